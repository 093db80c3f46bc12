package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	storeAzureTables = "aztables"
	storePostgres    = "postgres"
	storeMemory      = "memory"
)

type config struct {
	ListenAddr string
	Location   *time.Location
	Debug      bool

	Store          string
	StorageConnStr string
	EventsTable    string
	RollQueue      string
	DatabaseURL    string

	RedisConn     string
	EventCacheTTL time.Duration

	NonceSecret     []byte
	NonceTTL        time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration

	Auth0Domain     string
	Auth0Audience   string
	LocalAuthSecret []byte
	JWKSCacheTTL    time.Duration

	TrustProxyHeaders bool
}

func loadConfig() (config, error) {
	cfg := config{
		ListenAddr:      ":8080",
		Location:        time.UTC,
		Store:           storeAzureTables,
		EventsTable:     "Events",
		NonceTTL:        30 * time.Minute,
		RateLimitMax:    10,
		RateLimitWindow: time.Minute,
		JWKSCacheTTL:    15 * time.Minute,
	}
	var err error

	if v, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		cfg.ListenAddr = ":" + v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return cfg, fmt.Errorf("invalid DEBUG: %w", err)
		}
	}
	if v := os.Getenv("SITE_TIMEZONE"); v != "" {
		if cfg.Location, err = time.LoadLocation(v); err != nil {
			return cfg, fmt.Errorf("invalid SITE_TIMEZONE: %w", err)
		}
	}

	if v := os.Getenv("EVENT_STORE"); v != "" {
		cfg.Store = strings.ToLower(v)
	}
	cfg.StorageConnStr = os.Getenv("STORAGE_CONNECTION_STRING")
	if v := os.Getenv("EVENTS_TABLE"); v != "" {
		cfg.EventsTable = v
	}
	cfg.RollQueue = os.Getenv("ROLL_QUEUE")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.Store {
	case storeAzureTables:
		if cfg.StorageConnStr == "" {
			return cfg, errors.New("missing storage config")
		}
	case storePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("missing DATABASE_URL")
		}
	case storeMemory:
	default:
		return cfg, fmt.Errorf("invalid EVENT_STORE %q", cfg.Store)
	}
	if cfg.RollQueue != "" && cfg.StorageConnStr == "" {
		return cfg, errors.New("ROLL_QUEUE requires STORAGE_CONNECTION_STRING")
	}

	cfg.RedisConn = os.Getenv("REDIS_CONNECTION_STRING")
	if cfg.RedisConn == "" {
		return cfg, errors.New("missing redis config")
	}
	if cfg.EventCacheTTL, err = durationEnv("EVENT_CACHE_TTL", 0, true); err != nil {
		return cfg, err
	}

	secret := os.Getenv("NONCE_SECRET")
	if secret == "" {
		return cfg, errors.New("missing NONCE_SECRET")
	}
	cfg.NonceSecret = []byte(secret)
	if cfg.NonceTTL, err = durationEnv("NONCE_TTL", cfg.NonceTTL, false); err != nil {
		return cfg, err
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid RATE_LIMIT_MAX: must be a positive integer")
		}
		cfg.RateLimitMax = n
	}
	if cfg.RateLimitWindow, err = durationEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow, false); err != nil {
		return cfg, err
	}

	if mode := strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")); mode != "" {
		if mode != "hs256" {
			return cfg, errors.New("unsupported LOCAL_AUTH_MODE value")
		}
		s := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if s == "" {
			return cfg, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
		cfg.LocalAuthSecret = []byte(s)
	} else {
		cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
		cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			return cfg, errors.New("missing Auth0 config")
		}
	}
	if cfg.JWKSCacheTTL, err = durationEnv("JWKS_CACHE_TTL", cfg.JWKSCacheTTL, false); err != nil {
		return cfg, err
	}

	if v := os.Getenv("TRUST_PROXY_HEADERS"); v != "" {
		if cfg.TrustProxyHeaders, err = strconv.ParseBool(v); err != nil {
			return cfg, fmt.Errorf("invalid TRUST_PROXY_HEADERS: %w", err)
		}
	}
	return cfg, nil
}

func durationEnv(name string, def time.Duration, allowZero bool) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return d, nil
}

// redisOptions accepts a redis:// URL or an Azure style "host:port,password=...,ssl=True" string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
