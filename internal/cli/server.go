package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nthbao13/cloud-quiz/internal/config"
	"github.com/nthbao13/cloud-quiz/internal/explain"
	"github.com/nthbao13/cloud-quiz/internal/infra/memory"
	"github.com/nthbao13/cloud-quiz/internal/infra/postgres"
	redisstore "github.com/nthbao13/cloud-quiz/internal/infra/redis"
	"github.com/nthbao13/cloud-quiz/internal/quizbank"
	"github.com/nthbao13/cloud-quiz/internal/room"
	"github.com/nthbao13/cloud-quiz/internal/session"
	"github.com/nthbao13/cloud-quiz/internal/store"
	transport "github.com/nthbao13/cloud-quiz/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the gateway.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	bank, err := loadBank(ctx, cfg)
	if err != nil {
		return err
	}
	if bank.Empty() {
		log.Printf("warning: question bank is empty, quizzes cannot start")
	}

	var sharedStore store.Store = memory.NewStore()
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sharedStore = redisstore.NewStore(client, config.DurationOr(cfg.Redis.TTL, 24*time.Hour))
	}

	roomCfg := room.DefaultConfig()
	roomCfg.QuestionWindow = config.DurationOr(cfg.Room.QuestionWindow, roomCfg.QuestionWindow)
	roomCfg.RevealDelay = config.DurationOr(cfg.Room.RevealDelay, roomCfg.RevealDelay)
	roomCfg.AdvanceDelay = config.DurationOr(cfg.Room.AdvanceDelay, roomCfg.AdvanceDelay)
	if cfg.Room.MaxQuestions > 0 {
		roomCfg.MaxQuestions = cfg.Room.MaxQuestions
	}

	grader, explainer := buildExplainStack(cfg)

	wsHandler := transport.NewWSHandler(sharedStore, bank, roomCfg, grader, explainer)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting cloud-quiz gateway on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadBank prefers the Postgres quiz source, falling back to a local file.
func loadBank(ctx context.Context, cfg config.Config) (quizbank.Bank, error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return quizbank.Bank{}, err
		}
		defer pool.Close()
		sourceID := cfg.Quiz.SourceID
		if sourceID == "" {
			sourceID = "default"
		}
		bank, err := postgres.NewSourceStore(pool).LoadBank(ctx, sourceID)
		if err != nil {
			return quizbank.Bank{}, fmt.Errorf("load quiz source %q: %w", sourceID, err)
		}
		return bank, nil
	}
	if cfg.Quiz.SourceFile != "" {
		data, err := os.ReadFile(cfg.Quiz.SourceFile)
		if err != nil {
			return quizbank.Bank{}, fmt.Errorf("read quiz source file: %w", err)
		}
		return quizbank.ParseBank(string(data)), nil
	}
	return quizbank.Bank{}, nil
}

func buildExplainStack(cfg config.Config) (session.Grader, session.Explainer) {
	apiKey := cfg.Explain.APIKey
	if env := os.Getenv("GEMINI_API_KEY"); env != "" {
		apiKey = env
	}

	var cache explain.Cache = explain.NewMemoryCache()
	if cfg.Explain.CacheFile != "" {
		fileCache := explain.OpenFileCache(cfg.Explain.CacheFile)
		if apiKey == "" {
			apiKey = fileCache.APIKey()
		}
		cache = fileCache
	}
	if apiKey == "" {
		log.Printf("no generative API key configured, explanations and essay grading disabled")
		return nil, nil
	}

	client := explain.NewClient(explain.ClientConfig{
		BaseURL: cfg.Explain.BaseURL,
		Model:   cfg.Explain.Model,
		APIKey:  apiKey,
	})
	return explain.NewGrader(client), explain.NewExplainer(client, cache)
}
