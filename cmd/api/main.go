// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/paper-rename/internal/auth"
	"github.com/yourusername/paper-rename/internal/config"
	"github.com/yourusername/paper-rename/internal/metadata"
	"github.com/yourusername/paper-rename/internal/quota"
	"github.com/yourusername/paper-rename/internal/rename"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// リクエスト全体のサイズ上限（multipart の読み込み時に効く）
	router.Use(limitRequestBody(cfg.MaxRequestSize))

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
		rename.FingerprintHeader,
	}
	// フロントエンドが成果物のファイル名や処理結果をレスポンスヘッダーから読めるように公開
	corsConfig.ExposeHeaders = []string{
		"X-CSRF-Token",
		"Content-Disposition",
		"X-Batch-Id",
		"X-Files-Processed",
		"X-Files-Errors",
	}
	router.Use(cors.New(corsConfig))

	// 依存コンポーネントの構築
	deps, err := buildDependencies(cfg)
	if err != nil {
		log.Fatalf("Failed to build dependencies: %v", err)
	}
	deps.cleaner.Start()

	// ルーティングの設定
	setupRoutes(router, deps)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s, metadata backend: %s)", addr, cfg.GinMode, cfg.LLMProvider)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// dependencies はHTTP層に渡す構築済みのコンポーネント一式です。
type dependencies struct {
	auth    *auth.Manager
	service *rename.Service
	cleaner *rename.Scheduler
}

func buildDependencies(cfg *config.Config) (*dependencies, error) {
	store, err := buildQuotaStore(cfg)
	if err != nil {
		return nil, err
	}
	tracker := quota.NewTracker(quota.Limits{
		AnonMaxFiles:       cfg.AnonMaxFiles,
		RegisteredMaxFiles: cfg.RegisteredMaxFiles,
		AnonMaxSubmissions: cfg.AnonMaxSubmissionsYear,
	}, store)

	extractor, err := metadata.New(cfg)
	if err != nil {
		return nil, err
	}

	service, err := rename.NewService(cfg, tracker, extractor, log.Default())
	if err != nil {
		return nil, err
	}

	return &dependencies{
		auth:    auth.NewManager(cfg),
		service: service,
		cleaner: rename.NewScheduler(cfg, log.Default()),
	}, nil
}

// buildQuotaStore は送信記録の保存先を選びます。
// QUOTA_REDIS_URL が未設定ならプロセス内メモリを使います。
func buildQuotaStore(cfg *config.Config) (quota.Store, error) {
	if cfg.QuotaRedisURL == "" {
		return quota.NewMemoryStore(), nil
	}
	opt, err := redis.ParseURL(cfg.QuotaRedisURL)
	if err != nil {
		return nil, fmt.Errorf("QUOTA_REDIS_URL の解析に失敗しました: %w", err)
	}
	return quota.NewRedisStore(redis.NewClient(opt)), nil
}

// limitRequestBody はリクエストボディの読み取り量に上限を掛けます。
func limitRequestBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "paper-rename-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, deps *dependencies) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", deps.auth.Login)
			authRoutes.POST("/logout",
				deps.auth.RequireLogin(),
				deps.auth.VerifyCSRF(),
				deps.auth.Logout,
			)
		}

		// アップロードと利用枠の照会はログインなしでも使える
		open := api.Group("")
		open.Use(deps.auth.Resolve())
		{
			open.POST("/upload", rename.UploadHandler(deps.service, deps.cleaner))
			open.GET("/limits", rename.LimitsHandler(deps.service))
		}
	}
}
