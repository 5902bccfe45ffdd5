// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// アップロード設定
	UploadDir      string // バッチごとの作業ディレクトリを作る場所
	MaxFileSize    int64  // 単一ファイルの最大サイズ（バイト）
	MaxRequestSize int64  // リクエストボディ全体の最大サイズ（バイト）

	// 利用回数制限
	AnonMaxFiles           int    // 匿名利用者が1回に送れるファイル数
	RegisteredMaxFiles     int    // ログイン済み利用者が1回に送れるファイル数
	AnonMaxSubmissionsYear int    // 匿名利用者の年間送信回数上限
	QuotaRedisURL          string // 送信記録をRedisで共有する場合の接続URL（空ならプロセス内）

	// テキスト抽出設定
	ExtractMaxPages int // 先頭から読み取る最大ページ数
	ExtractMaxChars int // 抽出する最大文字数

	// メタデータ推定バックエンド設定
	LLMProvider       string // 使用するバックエンド (openai, ollama)
	LLMModel          string // モデル名
	LLMTimeoutSeconds int    // 1回の推定呼び出しのタイムアウト（秒）
	OpenAIAPIKey      string // OpenAI互換APIのキー
	OpenAIBaseURL     string // OpenAI互換APIのベースURL
	OllamaBaseURL     string // OllamaサーバーのベースURL

	// クリーンアップ設定
	CleanupDelaySeconds    int // 応答送信開始から削除までの待ち時間（秒）
	WorkspaceExpireMinutes int // 取り残された作業ディレクトリを掃除するまでの時間（分）
	SweepIntervalSeconds   int // 定期掃除の実行間隔（秒）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// アプリケーション設定
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// アップロード設定
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		MaxFileSize:    getEnvAsInt64("MAX_FILE_SIZE", 52428800),    // 50MB
		MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 52428800), // 50MB

		// 利用回数制限
		AnonMaxFiles:           getEnvAsInt("ANON_MAX_FILES", 5),
		RegisteredMaxFiles:     getEnvAsInt("REGISTERED_MAX_FILES", 30),
		AnonMaxSubmissionsYear: getEnvAsInt("ANON_MAX_SUBMISSIONS_PER_YEAR", 5),
		QuotaRedisURL:          getEnv("QUOTA_REDIS_URL", ""),

		// テキスト抽出設定
		ExtractMaxPages: getEnvAsInt("EXTRACT_MAX_PAGES", 2),
		ExtractMaxChars: getEnvAsInt("EXTRACT_MAX_CHARS", 8000),

		// メタデータ推定バックエンド設定
		LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSeconds: getEnvAsInt("LLM_TIMEOUT_SECONDS", 30),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),

		// クリーンアップ設定
		CleanupDelaySeconds:    getEnvAsInt("CLEANUP_DELAY_SECONDS", 30),
		WorkspaceExpireMinutes: getEnvAsInt("WORKSPACE_EXPIRE_MINUTES", 10),
		SweepIntervalSeconds:   getEnvAsInt("SWEEP_INTERVAL_SECONDS", 60),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of: openai, ollama (got %q)", c.LLMProvider)
	}

	// ローカル開発では認証設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.LLMProvider == "openai" && c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
