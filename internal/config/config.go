package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あればDSNを直接使う
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット

	RedisAddr    string   // 遅延ジョブキュー
	KafkaBrokers []string // 注文イベント配信（空なら無効）

	// 決済ゲートウェイのWebhook署名検証キー
	PaymentServerKey string

	// 未払い注文の自動キャンセルまでの猶予（デフォルト60分）
	PaymentDeadline time.Duration
	// 出荷後の自動受取確認までの日数（デフォルト7日）
	AutoConfirmAfter time.Duration

	WorkerCount        int           // ジョブワーカー数
	WorkerPollInterval time.Duration // キューのポーリング間隔
	JobMaxAttempts     int           // ジョブのリトライ上限

	LogLevel string
	GoEnv    string // dev/prod
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getenv("POSTGRES_DB", "app"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),

		PaymentServerKey: os.Getenv("PAYMENT_SERVER_KEY"),

		LogLevel: getenv("LOG_LEVEL", "info"),
		GoEnv:    getenv("GO_ENV", "dev"),
	}

	port, err := atoiDefault("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	cfg.PostgresPort = port

	deadlineMin, err := atoiDefault("PAYMENT_DEADLINE_MINUTES", 60)
	if err != nil {
		return Config{}, err
	}
	cfg.PaymentDeadline = time.Duration(deadlineMin) * time.Minute

	confirmDays, err := atoiDefault("AUTO_CONFIRM_DAYS", 7)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoConfirmAfter = time.Duration(confirmDays) * 24 * time.Hour

	workers, err := atoiDefault("WORKER_COUNT", 4)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerCount = workers

	pollSec, err := atoiDefault("WORKER_POLL_INTERVAL_SECONDS", 1)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerPollInterval = time.Duration(pollSec) * time.Second

	attempts, err := atoiDefault("JOB_MAX_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}
	cfg.JobMaxAttempts = attempts

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.PaymentServerKey == "" {
		return Config{}, fmt.Errorf("PAYMENT_SERVER_KEY is required")
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
