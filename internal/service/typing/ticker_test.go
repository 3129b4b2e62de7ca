package typing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunEmitsGrowingPrefixes(t *testing.T) {
	var got []string
	err := New(time.Millisecond).Run(context.Background(), "héllo", func(prefix string) {
		got = append(got, prefix)
	})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}

	want := []string{"h", "hé", "hél", "héll", "héllo"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected prefixes: %q", got)
	}
}

func TestRunNonPositiveIntervalEmitsOnce(t *testing.T) {
	for _, interval := range []time.Duration{0, -10 * time.Millisecond} {
		var got []string
		if err := New(interval).Run(context.Background(), "full reply", func(p string) {
			got = append(got, p)
		}); err != nil {
			t.Fatalf("Run err: %v", err)
		}
		if len(got) != 1 || got[0] != "full reply" {
			t.Fatalf("interval %s: unexpected emissions %q", interval, got)
		}
	}
}

func TestTaskStopCancels(t *testing.T) {
	var mu sync.Mutex
	count := 0
	task := New(time.Hour).Start(context.Background(), "never shown", func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	task.Stop()
	if err := task.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no emissions, got %d", count)
	}
}

func TestTaskWaitCompletes(t *testing.T) {
	var last string
	task := New(time.Millisecond).Start(context.Background(), "abc", func(p string) { last = p })
	if err := task.Wait(); err != nil {
		t.Fatalf("Wait err: %v", err)
	}
	if last != "abc" {
		t.Fatalf("unexpected final prefix: %q", last)
	}
}
