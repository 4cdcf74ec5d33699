package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/schemebot/internal/application"
	"github.com/hitoshi/schemebot/internal/auth"
	"github.com/hitoshi/schemebot/internal/catalog"
	"github.com/hitoshi/schemebot/internal/config"
	"github.com/hitoshi/schemebot/internal/conversation"
	"github.com/hitoshi/schemebot/internal/database"
	"github.com/hitoshi/schemebot/internal/fallback"
	"github.com/hitoshi/schemebot/internal/handler"
	"github.com/hitoshi/schemebot/internal/logger"
	"github.com/hitoshi/schemebot/internal/metrics"
	"github.com/hitoshi/schemebot/internal/middleware"
	"github.com/hitoshi/schemebot/internal/repository"
	"github.com/hitoshi/schemebot/internal/scheme"
	"github.com/hitoshi/schemebot/internal/security"
	"github.com/hitoshi/schemebot/internal/session"
	"github.com/hitoshi/schemebot/internal/worker/cleanup"
	"github.com/hitoshi/schemebot/internal/worker/linkcheck"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、環境変数からConfigを読み込んでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("region", cfg.DefaultRegion),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// loadCatalog はCATALOG_PATHのカタログを読み込む。未指定の場合は組み込みカタログを使う。
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.LoadDefault()
	}
	return catalog.LoadFile(path)
}

// newResponder はAPIキーが設定されていればGemini、なければ応答なしのResponderを返す。
// Geminiクライアントの生成に失敗しても起動は止めない。
func newResponder(ctx context.Context, cfg *config.Config, log *slog.Logger, recorder fallback.OutcomeRecorder) fallback.Responder {
	if !cfg.GeminiEnabled() {
		log.Info("fallback responder disabled (GEMINI_API_KEY not set)")
		return fallback.NopResponder{}
	}
	r, err := fallback.NewGeminiResponder(ctx, fallback.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GeminiTimeout,
	}, log, recorder)
	if err != nil {
		log.Warn("fallback responder unavailable", slog.String("error", err.Error()))
		return fallback.NopResponder{}
	}
	return r
}

// rateLimiterConfig はreq/min単位の設定値をreq/secに変換してレート制限設定を作る。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitChat > 0 {
		rl.ChatRate = rate.Limit(float64(cfg.RateLimitChat) / 60.0)
		rl.ChatBurst = cfg.RateLimitChat
	}
	if cfg.RateLimitCredential > 0 {
		rl.CredentialRate = rate.Limit(float64(cfg.RateLimitCredential) / 60.0)
		rl.CredentialBurst = cfg.RateLimitCredential
	}
	return rl
}

// server はserveモードで組み立てた依存関係を保持する。
type server struct {
	handler http.Handler
	limiter *middleware.RateLimiter
	redis   *redis.Client
}

// Close はバックグラウンドのリソースを解放する。
func (s *server) Close() {
	s.limiter.Stop()
	if s.redis != nil {
		s.redis.Close()
	}
}

// newServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
func newServer(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (*server, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 2. カタログと会話エンジン
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	log.Info("catalog loaded", slog.Int("schemes", cat.Len()))

	responder := newResponder(ctx, cfg, log, collector)
	engine := conversation.NewEngine(cat, responder, cfg.DefaultRegion, collector)

	// 3. セッションストア（Redis未設定・障害時はメモリ）
	redisClient, err := session.NewRedisClient(session.RedisOptions{
		URL:          cfg.RedisURL,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure redis: %w", err)
	}
	var primary session.Store
	if redisClient != nil {
		primary = session.NewRedisStore(redisClient, cfg.SessionTTL)
	} else {
		log.Info("REDIS_URL not set, using in-memory session store")
	}
	store := session.NewFallbackStore(primary, log, collector)
	chatService := conversation.NewService(engine, store, collector, log)

	// 4. リポジトリとポータルのサービス
	userRepo := repository.NewPostgresUserRepo(db)
	schemeRepo := repository.NewPostgresSchemeRepo(db)
	appRepo := repository.NewPostgresApplicationRepo(db)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(userRepo, tokens, log)

	ssrfGuard := security.NewSSRFGuard()
	schemeService := scheme.NewService(
		schemeRepo, ssrfGuard,
		security.NewContentSanitizer(), security.NewPlainTextSanitizer(),
		log,
	)

	storage, err := application.NewDiskStorage(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	appService := application.NewService(appRepo, schemeRepo, storage, log)

	// 5. ルーターの構築
	limiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))

	var healthChecker handler.Pinger
	if db != nil {
		healthChecker = db
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		TokenVerifier:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		StatusRecorder:    collector,
		MetricsHandler:    metrics.Handler(reg),
		HealthChecker:     healthChecker,

		ChatService: chatService,
		Catalog:     cat,
		Region:      cfg.DefaultRegion,

		AuthService:        authService,
		SchemeService:      schemeService,
		ApplicationService: appService,
	})

	return &server{handler: router, limiter: limiter, redis: redisClient}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv, err := newServer(context.Background(), cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// リンク確認スケジューラと却下申請のクリーンアップジョブを起動し、
// メトリクスを別ポートで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	schemeRepo := repository.NewPostgresSchemeRepo(db)
	appRepo := repository.NewPostgresApplicationRepo(db)

	// 1. リンク確認
	ssrfGuard := security.NewSSRFGuard()
	checker := linkcheck.NewChecker(
		ssrfGuard.NewSafeClient(cfg.LinkCheckTimeout), ssrfGuard, collector,
		slog.Default(), cfg.LinkCheckConcurrency,
	)
	scheduler := linkcheck.NewScheduler(checker, slog.Default(),
		linkcheck.NewCatalogSource(cat),
		linkcheck.NewPortalSource(schemeRepo),
	)

	// 2. クリーンアップジョブ
	storage, err := application.NewDiskStorage(cfg.UploadDir)
	if err != nil {
		return err
	}
	cleanupJob := cleanup.NewCleanupJob(appRepo, storage, collector, slog.Default())
	if cfg.CleanupRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.CleanupRetentionDays
	}

	// 3. メトリクス公開
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("link_check_interval", cfg.LinkCheckInterval),
		slog.Int("link_check_concurrency", cfg.LinkCheckConcurrency),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	go cleanupJob.Start(ctx, cfg.CleanupInterval)

	// リンク確認スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.LinkCheckInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
