package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// BotKey guards the chat-platform-facing intake endpoints
	// (/v1/ask, /v1/token). The integration presents it as "Authorization: Bot <key>".
	BotKey string

	// Relay tuning.
	AskTimeout     time.Duration
	IdleWindow     time.Duration
	TimeoutMessage string
	FallbackAppID  string

	// Delivery tuning.
	ChunkLimit     int
	WebhookBaseURL string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BEACON_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BEACON_LOG_LEVEL", "info"),
		LogFormat: EnvString("BEACON_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("BEACON_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BEACON_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BEACON_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BEACON_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("BEACON_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BEACON_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("BEACON_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BEACON_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("BEACON_DB_SCHEMA", "beacon"),

		ReadinessRequireDB: EnvBool("BEACON_READINESS_REQUIRE_DB", false),

		BotKey: EnvString("BEACON_BOT_KEY", ""),

		AskTimeout:     EnvDuration("BEACON_ASK_TIMEOUT", 30*time.Second),
		IdleWindow:     EnvDuration("BEACON_IDLE_WINDOW", 7*24*time.Hour),
		TimeoutMessage: EnvString("BEACON_TIMEOUT_MESSAGE", ""),
		FallbackAppID:  EnvString("BEACON_FALLBACK_APP_ID", ""),

		ChunkLimit:     EnvInt("BEACON_CHUNK_LIMIT", 1900),
		WebhookBaseURL: EnvString("BEACON_WEBHOOK_BASE_URL", ""),
	}
}
