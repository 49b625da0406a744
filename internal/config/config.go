package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Download  DownloadConfig
	R2        R2Config
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	BodyLimitMB int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	DiscoverPerMin  int
	DownloadPerHour int
	RetrievePerMin  int
}

// DownloadConfig controls the extractor and the shared download directory
type DownloadConfig struct {
	BaseDir          string
	Binary           string
	Timeout          int // seconds, 0 disables
	Retention        int // minutes
	DeleteAfterServe bool
	SubtitleLangs    string
	SubtitleMode     string // auto, manual or both
	SubtitleFormat   string
	VideoContainer   string
	MaxOutputKB      int
}

// TimeoutDuration returns the extractor timeout, zero when disabled.
func (d DownloadConfig) TimeoutDuration() time.Duration {
	if d.Timeout <= 0 {
		return 0
	}
	return time.Duration(d.Timeout) * time.Second
}

// RetentionDuration returns how long finished artifacts are kept.
func (d DownloadConfig) RetentionDuration() time.Duration {
	if d.Retention <= 0 {
		return 0
	}
	return time.Duration(d.Retention) * time.Minute
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	// Endpoint overrides the R2 endpoint for other S3-compatible stores
	Endpoint string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.discover_per_min", "RATELIMIT_DISCOVER_PER_MIN")
	_ = viper.BindEnv("ratelimit.download_per_hour", "RATELIMIT_DOWNLOAD_PER_HOUR")
	_ = viper.BindEnv("ratelimit.retrieve_per_min", "RATELIMIT_RETRIEVE_PER_MIN")
	_ = viper.BindEnv("download.base_dir", "DOWNLOAD_DIR")
	_ = viper.BindEnv("download.binary", "YTDLP_BINARY")
	_ = viper.BindEnv("download.timeout", "DOWNLOAD_TIMEOUT")
	_ = viper.BindEnv("download.retention", "DOWNLOAD_RETENTION")
	_ = viper.BindEnv("download.delete_after_serve", "DOWNLOAD_DELETE_AFTER_SERVE")
	_ = viper.BindEnv("download.subtitle_langs", "SUBTITLE_LANGS")
	_ = viper.BindEnv("download.subtitle_mode", "SUBTITLE_MODE")
	_ = viper.BindEnv("download.subtitle_format", "SUBTITLE_FORMAT")
	_ = viper.BindEnv("download.video_container", "VIDEO_CONTAINER")
	_ = viper.BindEnv("download.max_output_kb", "DOWNLOAD_MAX_OUTPUT_KB")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("r2.endpoint", "R2_ENDPOINT")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.body_limit_mb", 1)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.discover_per_min", 30)
	viper.SetDefault("ratelimit.download_per_hour", 20)
	viper.SetDefault("ratelimit.retrieve_per_min", 60)

	// Download defaults
	viper.SetDefault("download.base_dir", "./downloads")
	viper.SetDefault("download.binary", "yt-dlp")
	viper.SetDefault("download.timeout", 1800)
	viper.SetDefault("download.retention", 60)
	viper.SetDefault("download.delete_after_serve", false)
	viper.SetDefault("download.subtitle_langs", "en")
	viper.SetDefault("download.subtitle_mode", "auto")
	viper.SetDefault("download.subtitle_format", "srt")
	viper.SetDefault("download.video_container", "mp4")
	viper.SetDefault("download.max_output_kb", 64)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			LogLevel:    viper.GetString("server.log_level"),
			BodyLimitMB: viper.GetInt("server.body_limit_mb"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			DiscoverPerMin:  viper.GetInt("ratelimit.discover_per_min"),
			DownloadPerHour: viper.GetInt("ratelimit.download_per_hour"),
			RetrievePerMin:  viper.GetInt("ratelimit.retrieve_per_min"),
		},
		Download: DownloadConfig{
			BaseDir:          viper.GetString("download.base_dir"),
			Binary:           viper.GetString("download.binary"),
			Timeout:          viper.GetInt("download.timeout"),
			Retention:        viper.GetInt("download.retention"),
			DeleteAfterServe: viper.GetBool("download.delete_after_serve"),
			SubtitleLangs:    viper.GetString("download.subtitle_langs"),
			SubtitleMode:     viper.GetString("download.subtitle_mode"),
			SubtitleFormat:   viper.GetString("download.subtitle_format"),
			VideoContainer:   viper.GetString("download.video_container"),
			MaxOutputKB:      viper.GetInt("download.max_output_kb"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
			Endpoint:        viper.GetString("r2.endpoint"),
		},
	}

	return cfg, nil
}
