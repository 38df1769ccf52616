// phone-mockup-kit のサーバーエントリポイントです。
// 環境変数で設定を受け取り、3ステップ生成パイプラインを HTTP で公開します。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"google.golang.org/genai"
	"gorm.io/gorm"

	"github.com/shouni/phone-mockup-kit/pkg/adapters"
	"github.com/shouni/phone-mockup-kit/pkg/geometry"
	"github.com/shouni/phone-mockup-kit/pkg/ledger"
	"github.com/shouni/phone-mockup-kit/pkg/pipeline"
	"github.com/shouni/phone-mockup-kit/pkg/server"
	"github.com/shouni/phone-mockup-kit/pkg/typography"
)

type config struct {
	port         string
	databasePath string
	apiKey       string
	model        string
	tokenSecret  string
	cronSecret   string
	templatesDir string
	layoutPath   string
	outputsDir   string
}

func loadConfig() (*config, error) {
	cfg := &config{
		port:         envOr("PORT", "8080"),
		databasePath: envOr("DATABASE_PATH", "mockup.db"),
		apiKey:       os.Getenv("GEMINI_API_KEY"),
		model:        envOr("GEMINI_MODEL", adapters.DefaultModel),
		tokenSecret:  os.Getenv("TOKEN_SECRET"),
		cronSecret:   os.Getenv("CRON_SECRET"),
		templatesDir: envOr("TEMPLATES_DIR", "templates"),
		layoutPath:   os.Getenv("LAYOUT_PATH"),
		outputsDir:   envOr("OUTPUTS_DIR", "outputs"),
	}
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.tokenSecret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := gorm.Open(sqlite.Open(cfg.databasePath), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("データベースを開けませんでした: %w", err)
	}
	if err := db.AutoMigrate(ledger.Models()...); err != nil {
		return fmt.Errorf("マイグレーションに失敗しました: %w", err)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("生成モデルクライアントの初期化に失敗しました: %w", err)
	}

	client, err := adapters.NewGenaiClient(genaiClient)
	if err != nil {
		return err
	}
	synthesizer, err := adapters.NewBackgroundSynthesizer(client, cfg.model)
	if err != nil {
		return err
	}

	layout := geometry.DefaultLayoutTable()
	if cfg.layoutPath != "" {
		layout, err = geometry.LoadLayoutTable(cfg.layoutPath)
		if err != nil {
			return err
		}
	}
	templates, err := geometry.NewDirTemplates(cfg.templatesDir)
	if err != nil {
		return err
	}
	engine, err := geometry.NewEngine(templates, layout)
	if err != nil {
		return err
	}

	// 全スタイルのテンプレートを起動時に読み込み、欠けていれば即座に失敗させる
	for _, style := range layout.Styles() {
		if _, err := templates.Template(style); err != nil {
			return fmt.Errorf("スタイル %s のテンプレートを読み込めませんでした: %w", style, err)
		}
	}

	creditLedger, err := ledger.NewLedger(db)
	if err != nil {
		return err
	}
	gate, err := ledger.NewRateLimiter(db)
	if err != nil {
		return err
	}
	tokens, err := pipeline.NewTokenService([]byte(cfg.tokenSecret))
	if err != nil {
		return err
	}
	assets, err := pipeline.NewDiskAssetStore(cfg.outputsDir, "/outputs")
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(
		engine, synthesizer, typography.NewCompositor(),
		creditLedger, gate, tokens, assets,
	)
	if err != nil {
		return err
	}

	srv, err := server.New(p, creditLedger, server.NewHeaderAuthenticator(""), gate, cfg.cronSecret, cfg.outputsDir)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("サーバーを起動します", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("シャットダウンします")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
