package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Scheduling    SchedulingConfig
	Notifications NotificationsConfig
	Realtime      RealtimeConfig
	Email         EmailConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig governs availability interpretation and slot resolution.
type SchedulingConfig struct {
	TimeZone            string
	SlotCacheTTL        time.Duration
	DefaultLessonLength int
	MaxLessonLength     int
}

// Location resolves the configured school time zone, falling back to UTC.
func (s SchedulingConfig) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotificationsConfig tunes the scheduled notification pipeline.
type NotificationsConfig struct {
	SweepInterval        time.Duration
	SweepBatchSize       int
	Workers              int
	RetryDelay           time.Duration
	MaxDeliveryAttempts  int
	EscalationPriorities []string
	ReminderOffsets      []time.Duration
	EmailWorkers         int
	EmailMaxRetries      int
	InboxPageSize        int
}

// RealtimeConfig tunes websocket sessions.
type RealtimeConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	SendBuffer       int
	MaxMessageBytes  int64
}

// EmailConfig selects the durable side channel used for escalated notifications.
type EmailConfig struct {
	Provider        string
	SendgridAPIKey  string
	FromName        string
	FromAddress     string
	AppName         string
	FrontendBaseURL string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_SLOT_CACHE"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduling = SchedulingConfig{
		TimeZone:            v.GetString("SCHOOL_TIMEZONE"),
		SlotCacheTTL:        parseDuration(v.GetString("SLOT_CACHE_TTL"), 2*time.Minute),
		DefaultLessonLength: v.GetInt("DEFAULT_LESSON_MINUTES"),
		MaxLessonLength:     v.GetInt("MAX_LESSON_MINUTES"),
	}

	cfg.Notifications = NotificationsConfig{
		SweepInterval:        parseDuration(v.GetString("NOTIFICATION_SWEEP_INTERVAL"), 5*time.Minute),
		SweepBatchSize:       v.GetInt("NOTIFICATION_SWEEP_BATCH"),
		Workers:              v.GetInt("NOTIFICATION_WORKERS"),
		RetryDelay:           parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), 10*time.Second),
		MaxDeliveryAttempts:  v.GetInt("NOTIFICATION_MAX_ATTEMPTS"),
		EscalationPriorities: splitAndTrim(v.GetString("NOTIFICATION_ESCALATION_PRIORITIES")),
		ReminderOffsets:      parseDurations(v.GetString("LESSON_REMINDER_OFFSETS")),
		EmailWorkers:         v.GetInt("EMAIL_WORKERS"),
		EmailMaxRetries:      v.GetInt("EMAIL_MAX_RETRIES"),
		InboxPageSize:        v.GetInt("NOTIFICATION_INBOX_PAGE_SIZE"),
	}

	cfg.Realtime = RealtimeConfig{
		HandshakeTimeout: parseDuration(v.GetString("WS_HANDSHAKE_TIMEOUT"), 10*time.Second),
		WriteTimeout:     parseDuration(v.GetString("WS_WRITE_TIMEOUT"), 5*time.Second),
		PongWait:         parseDuration(v.GetString("WS_PONG_WAIT"), 60*time.Second),
		PingInterval:     parseDuration(v.GetString("WS_PING_INTERVAL"), 30*time.Second),
		SendBuffer:       v.GetInt("WS_SEND_BUFFER"),
		MaxMessageBytes:  v.GetInt64("WS_MAX_MESSAGE_BYTES"),
	}

	cfg.Email = EmailConfig{
		Provider:        strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		SendgridAPIKey:  v.GetString("SENDGRID_API_KEY"),
		FromName:        v.GetString("EMAIL_FROM_NAME"),
		FromAddress:     v.GetString("EMAIL_FROM_ADDRESS"),
		AppName:         v.GetString("APP_NAME"),
		FrontendBaseURL: v.GetString("FRONTEND_BASE_URL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "driving_school")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("ENABLE_SLOT_CACHE", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHOOL_TIMEZONE", "UTC")
	v.SetDefault("SLOT_CACHE_TTL", "2m")
	v.SetDefault("DEFAULT_LESSON_MINUTES", 60)
	v.SetDefault("MAX_LESSON_MINUTES", 240)

	v.SetDefault("NOTIFICATION_SWEEP_INTERVAL", "5m")
	v.SetDefault("NOTIFICATION_SWEEP_BATCH", 200)
	v.SetDefault("NOTIFICATION_WORKERS", 4)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "10s")
	v.SetDefault("NOTIFICATION_MAX_ATTEMPTS", 5)
	v.SetDefault("NOTIFICATION_ESCALATION_PRIORITIES", "HIGH,URGENT")
	v.SetDefault("LESSON_REMINDER_OFFSETS", "24h,2h,30m")
	v.SetDefault("EMAIL_WORKERS", 2)
	v.SetDefault("EMAIL_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_INBOX_PAGE_SIZE", 20)

	v.SetDefault("WS_HANDSHAKE_TIMEOUT", "10s")
	v.SetDefault("WS_WRITE_TIMEOUT", "5s")
	v.SetDefault("WS_PONG_WAIT", "60s")
	v.SetDefault("WS_PING_INTERVAL", "30s")
	v.SetDefault("WS_SEND_BUFFER", 64)
	v.SetDefault("WS_MAX_MESSAGE_BYTES", 8192)

	v.SetDefault("EMAIL_PROVIDER", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_NAME", "Driving School")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@drivingschool.local")
	v.SetDefault("APP_NAME", "Driving School")
	v.SetDefault("FRONTEND_BASE_URL", "http://localhost:5173")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

// parseDurations reads a comma separated duration list, skipping invalid entries.
func parseDurations(raw string) []time.Duration {
	var out []time.Duration
	for _, part := range splitAndTrim(raw) {
		d, err := time.ParseDuration(part)
		if err != nil || d <= 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
