package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Fatalf("unexpected top k: %d", cfg.Retrieval.TopK)
	}
	if cfg.Model.Provider != ProviderOllama || cfg.Model.Name != "llama3.2" {
		t.Fatalf("unexpected model config: %+v", cfg.Model)
	}
	if cfg.History.SessionKey != DefaultSessionKey {
		t.Fatalf("unexpected session key: %s", cfg.History.SessionKey)
	}
	if cfg.Typing.Interval != 10*time.Millisecond {
		t.Fatalf("unexpected typing interval: %s", cfg.Typing.Interval)
	}
	if cfg.TopicGate.Enabled {
		t.Fatal("topic gate should be disabled by default")
	}
	if cfg.Model.Temperature != nil {
		t.Fatal("temperature should be unset")
	}
}

func TestLoadServerAddrForms(t *testing.T) {
	cases := map[string]string{
		"9000":           ":9000",
		":9001":          ":9001",
		"127.0.0.1:9002": "127.0.0.1:9002",
	}
	for port, want := range cases {
		t.Setenv("PORT", port)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load(%q) err: %v", port, err)
		}
		if cfg.Server.Addr != want {
			t.Fatalf("PORT=%q: got %s want %s", port, cfg.Server.Addr, want)
		}
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("PORT", "80 80")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_TOP_K", "5")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("MODEL_NAME", "gpt-4o-mini")
	t.Setenv("MODEL_API_KEY", "sk-test")
	t.Setenv("MODEL_TEMPERATURE", "0.2")
	t.Setenv("MODEL_MAX_TOKENS", "512")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Fatalf("unexpected top k: %d", cfg.Retrieval.TopK)
	}
	if !cfg.Model.Enabled() {
		t.Fatal("expected openai model config to be enabled")
	}
	if cfg.Model.Temperature == nil || *cfg.Model.Temperature != 0.2 {
		t.Fatalf("unexpected temperature: %v", cfg.Model.Temperature)
	}
	if cfg.Model.MaxTokens == nil || *cfg.Model.MaxTokens != 512 {
		t.Fatalf("unexpected max tokens: %v", cfg.Model.MaxTokens)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("top k", func(t *testing.T) {
		t.Setenv("RETRIEVAL_TOP_K", "0")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for zero top k")
		}
	})
	t.Run("provider", func(t *testing.T) {
		t.Setenv("MODEL_PROVIDER", "bard")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for unknown provider")
		}
	})
	t.Run("temperature", func(t *testing.T) {
		t.Setenv("MODEL_TEMPERATURE", "warm")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for invalid temperature")
		}
	})
}
