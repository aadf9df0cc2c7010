package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "REVEAL"

type Config struct {
	ServerAddr     string
	AllowedOrigins []string

	DatabaseDriver string
	DatabaseDSN    string

	SigningKey []byte
	BcryptCost int

	AdminUsername     string
	AdminPasswordHash string
	AdminRoomId       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	YouTubeAPIKey  string
	SearchCacheTTL time.Duration

	DefaultStartAt  int
	RevealStartAt   int
	RoomIdleTimeout time.Duration

	LogLevel  string
	LogPretty bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "localhost:8000")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("admin.room_id", "admin-room")
	v.SetDefault("redis.db", 0)
	v.SetDefault("search.cache_ttl", "1h")
	v.SetDefault("room.default_start_at", 12)
	v.SetDefault("room.reveal_start_at", 15)
	v.SetDefault("room.idle_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load builds the configuration from defaults, an optional YAML file,
// REVEAL_* environment variables and finally explicit overrides (command
// line flags), in increasing order of precedence.
func Load(configFile string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	signingKey, err := decodeSigningSecret(v.GetString("auth.signing_key"))
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		ServerAddr:        v.GetString("server.addr"),
		AllowedOrigins:    splitList(v.GetStringSlice("server.allowed_origins")),
		DatabaseDriver:    v.GetString("database.driver"),
		DatabaseDSN:       v.GetString("database.dsn"),
		SigningKey:        signingKey,
		BcryptCost:        v.GetInt("auth.bcrypt_cost"),
		AdminUsername:     strings.ToLower(strings.TrimSpace(v.GetString("admin.username"))),
		AdminPasswordHash: v.GetString("admin.password_hash"),
		AdminRoomId:       v.GetString("admin.room_id"),
		RedisAddr:         v.GetString("redis.addr"),
		RedisPassword:     v.GetString("redis.password"),
		RedisDB:           v.GetInt("redis.db"),
		YouTubeAPIKey:     v.GetString("search.youtube_api_key"),
		SearchCacheTTL:    v.GetDuration("search.cache_ttl"),
		DefaultStartAt:    v.GetInt("room.default_start_at"),
		RevealStartAt:     v.GetInt("room.reveal_start_at"),
		RoomIdleTimeout:   v.GetDuration("room.idle_timeout"),
		LogLevel:          v.GetString("log.level"),
		LogPretty:         v.GetBool("log.pretty"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	switch c.DatabaseDriver {
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}

	if len(c.SigningKey) == 0 {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if c.AdminRoomId == "" {
		return fmt.Errorf("admin room id cannot be empty")
	}
	if (c.AdminUsername == "") != (c.AdminPasswordHash == "") {
		return fmt.Errorf("admin username and password hash must be set together")
	}
	if c.DefaultStartAt < 0 || c.RevealStartAt < 0 {
		return fmt.Errorf("start offsets must not be negative")
	}
	if c.RoomIdleTimeout <= 0 {
		return fmt.Errorf("room idle timeout must be positive")
	}

	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
