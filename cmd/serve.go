package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/chat"
	"github.com/sells-group/intake-api/internal/delivery"
	"github.com/sells-group/intake-api/internal/extract"
	"github.com/sells-group/intake-api/internal/httpapi"
	"github.com/sells-group/intake-api/internal/ratelimit"
	"github.com/sells-group/intake-api/internal/specgen"
	"github.com/sells-group/intake-api/internal/store"
	"github.com/sells-group/intake-api/internal/upload"
	"github.com/sells-group/intake-api/pkg/anthropic"
	"github.com/sells-group/intake-api/pkg/notion"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intake API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	llm := anthropic.NewClient(cfg.Anthropic.Key)
	extractor := extract.New(llm, cfg.Anthropic.ExtractModel)
	specs := specgen.New(llm, st, cfg.Anthropic.SpecModel, cfg.Anthropic.SpecMaxTokens)

	var deliverer chat.Deliverer
	if cfg.Notion.Token != "" && cfg.Notion.LeadDB != "" {
		deliverer = delivery.NewNotion(notion.NewClient(cfg.Notion.Token), cfg.Notion.LeadDB)
		zap.L().Info("notion delivery enabled", zap.String("lead_db", cfg.Notion.LeadDB))
	}

	engine := chat.NewEngine(chat.Config{
		Model:         cfg.Anthropic.ChatModel,
		MaxTokens:     cfg.Anthropic.ChatMaxTokens,
		Greeting:      cfg.Chat.Greeting,
		MaxTranscript: cfg.Chat.MaxTranscript,
		DailyTotal:    cfg.Spots.DailyTotal,
	}, llm, extractor, st, specs, deliverer)

	guard, guardCleanup, err := initGuard(ctx)
	if err != nil {
		return err
	}
	defer guardCleanup()

	var uploader upload.Uploader
	if cfg.Upload.Bucket != "" {
		gcs, err := upload.NewGCS(ctx, cfg.Upload.Bucket)
		if err != nil {
			return err
		}
		defer gcs.Close()
		uploader = gcs
		zap.L().Info("brief upload enabled", zap.String("bucket", cfg.Upload.Bucket))
	}

	server := httpapi.NewServer(httpapi.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DailyTotal:     cfg.Spots.DailyTotal,
		MonthlyTotal:   cfg.Spots.MonthlyTotal,
		MaxUploadBytes: cfg.Upload.MaxSizeBytes,
		AllowedExts:    cfg.Upload.AllowedExts,
	}, st, engine, guard, uploader)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening", zap.String("addr", addr), zap.String("driver", cfg.Store.Driver))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	}
}

func initGuard(ctx context.Context) (*ratelimit.Guard, func(), error) {
	rlCfg := ratelimit.Config{
		Window:         time.Duration(cfg.RateLimit.WindowSecs) * time.Second,
		MaxRequests:    cfg.RateLimit.MaxRequests,
		RapidGap:       time.Duration(cfg.RateLimit.RapidGapMillis) * time.Millisecond,
		RapidThreshold: cfg.RateLimit.RapidThreshold,
		BanTTL:         time.Duration(cfg.RateLimit.BanHours) * time.Hour,
	}

	if cfg.RateLimit.RedisAddr != "" {
		rs, err := ratelimit.NewRedisStore(ctx, cfg.RateLimit.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		zap.L().Info("rate limit state in redis", zap.String("addr", cfg.RateLimit.RedisAddr))
		return ratelimit.NewGuard(rlCfg, rs), func() { _ = rs.Close() }, nil
	}

	ms := ratelimit.NewMemoryStore(2 * rlCfg.Window)
	return ratelimit.NewGuard(rlCfg, ms), ms.Close, nil
}
