package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schemebot/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder
	MetricsHandler    http.Handler

	// ヘルスチェック
	HealthChecker Pinger

	// 会話・カタログ
	ChatService ChatServiceInterface
	Catalog     CatalogReader
	Region      string

	// ポータル
	AuthService        AuthServiceInterface
	SchemeService      SchemeServiceInterface
	ApplicationService ApplicationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Logging → RateLimit → Auth
//
// 会話・カタログ・認証ルートは認証なしで公開し、それぞれ専用のレート制限を掛ける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	chatHandler := NewChatHandler(deps.ChatService, deps.CORSAllowedOrigin)
	catalogHandler := NewCatalogHandler(deps.Catalog, deps.Region)
	authHandler := NewAuthHandler(deps.AuthService)
	schemeHandler := NewSchemeHandler(deps.SchemeService)
	appHandler := NewApplicationHandler(deps.ApplicationService)
	authMW := middleware.NewAuthMiddleware(deps.TokenVerifier)

	// --- 認証不要のルート ---
	r.Get("/", healthHandler.Welcome)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 会話
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.ChatMiddleware())
		r.Post("/api/chat", chatHandler.Chat)
		r.Get("/api/chat/ws", chatHandler.ChatWS)
	})

	// カタログと資格判定
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Get("/api/catalog", catalogHandler.ListSchemes)
		r.Get("/api/catalog/{name}", catalogHandler.GetScheme)
		r.Post("/api/eligibility", catalogHandler.CheckEligibility)
	})

	// 認証（登録・ログインは資格情報用のレート制限）
	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.CredentialMiddleware()).Post("/register", authHandler.Register)
		r.With(deps.RateLimiter.CredentialMiddleware()).Post("/login", authHandler.Login)
		r.With(authMW, deps.RateLimiter.GeneralMiddleware()).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(authMW)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// スキーム管理
		r.Route("/api/schemes", func(r chi.Router) {
			r.Get("/", schemeHandler.ListSchemes)
			r.With(middleware.RequireAdmin).Post("/", schemeHandler.CreateScheme)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", schemeHandler.GetScheme)
				r.With(middleware.RequireAdmin).Put("/", schemeHandler.UpdateScheme)
				r.With(middleware.RequireAdmin).Delete("/", schemeHandler.DeleteScheme)
			})
		})

		// 申請
		r.Route("/api/applications", func(r chi.Router) {
			r.Post("/", appHandler.Submit)
			r.Get("/user", appHandler.ListOwn)
			r.With(middleware.RequireAdmin).Get("/admin", appHandler.ListAll)
			r.With(middleware.RequireAdmin).Put("/{id}/status", appHandler.UpdateStatus)
		})
	})

	return r
}
