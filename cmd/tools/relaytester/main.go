package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/medintell/oncochat/backend/internal/app"
	"github.com/medintell/oncochat/backend/internal/config"
	"github.com/medintell/oncochat/backend/internal/logging"
	"github.com/medintell/oncochat/backend/internal/service/chat"
	"github.com/medintell/oncochat/backend/internal/service/retrieval"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	text := flag.String("text", "", "要发送的问题")
	model := flag.String("model", "", "模型名称，留空使用 MODEL_NAME")
	session := flag.String("session", "", "会话 ID，留空则新建临时会话")
	persona := flag.String("persona", "", "persona ID，仅在新建会话时生效")
	typingMode := flag.Bool("typing", true, "以打字机效果输出回复")
	retrievalOnly := flag.Bool("retrieval-only", false, "只调用检索服务并打印结果")
	timeout := flag.Duration("timeout", 2*time.Minute, "整体超时时间")
	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal("请通过 -text 指定问题")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	// 命令行输出保持干净，日志只打印告警。
	cfg.Log.Level = "warn"
	cfg.Log.Format = "text"
	logger, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *retrievalOnly {
		runRetrieval(ctx, cfg, logger, *text)
		return
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("服务初始化失败: %v", err)
	}
	defer a.Close(context.Background())

	sessionID := *session
	if sessionID == "" {
		s, err := a.Sessions.CreateSession(ctx, *persona)
		if err != nil {
			log.Fatalf("创建会话失败: %v", err)
		}
		sessionID = s.ID
	}

	start := time.Now()
	var firstToken time.Duration
	observe := func(event chat.Event) {
		switch event.Type {
		case chat.EventState:
			log.Printf("[state] %s", event.State)
		case chat.EventDelta:
			if firstToken == 0 {
				firstToken = time.Since(start)
			}
		case chat.EventError:
			log.Printf("[error] %s (partial %d bytes)", event.Error, len(event.Partial))
		}
	}

	reply, err := a.Controller.Submit(ctx, sessionID, *text, *model, observe)
	if err != nil {
		log.Fatalf("对话失败: %v", err)
	}

	if *typingMode {
		printed := 0
		if err := a.Ticker.Run(ctx, reply.Content, func(prefix string) {
			fmt.Print(prefix[printed:])
			printed = len(prefix)
		}); err != nil {
			fmt.Print(reply.Content[printed:])
		}
		fmt.Println()
	} else {
		fmt.Println(reply.Content)
	}

	log.Printf("[done] session=%s first_token=%s total=%s chars=%d",
		sessionID, firstToken, time.Since(start), len(reply.Content))
}

func runRetrieval(ctx context.Context, cfg *config.Config, logger *slog.Logger, query string) {
	client := retrieval.NewClient(cfg.Retrieval.URL,
		retrieval.WithTimeout(cfg.Retrieval.Timeout),
		retrieval.WithLogger(logger),
	)

	result := client.Query(ctx, query, cfg.Retrieval.TopK)
	log.Printf("[retrieval] kind=%s documents=%d", result.Kind, len(result.Documents))
	if result.Err != nil {
		log.Printf("[retrieval] error: %v", result.Err)
	}
	if result.Message != "" {
		log.Printf("[retrieval] message: %s", result.Message)
	}
	if text := result.Context(); text != "" {
		fmt.Println(text)
	}
	if result.Kind != retrieval.KindOK && result.Kind != retrieval.KindFallback {
		os.Exit(1)
	}
}
