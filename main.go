package main

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"calendar-countdown/api"
	"calendar-countdown/clock"
	"calendar-countdown/domain"
	"calendar-countdown/storage"
	"calendar-countdown/storage/migrations"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	rc := redis.NewClient(redisOptions(cfg.RedisConn))

	backend, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	var store storage.Backend = backend
	if cfg.EventCacheTTL > 0 {
		store = storage.NewCache(backend, rc, cfg.EventCacheTTL, cfg.Location)
	}

	observers := []domain.RollObserver{api.RollCounter{}}
	if cfg.RollQueue != "" {
		notifier, err := storage.NewQueueNotifier(cfg.StorageConnStr, cfg.RollQueue)
		if err != nil {
			log.Fatalf("roll queue: %v", err)
		}
		observers = append(observers, notifier)
	}
	norm := domain.NewNormalizer(store, observers...)
	clk := clock.NewSystem(cfg.Location)

	var auth *api.Auth
	if cfg.LocalAuthSecret != nil {
		auth = api.NewLocalAuth(cfg.LocalAuthSecret, "", "")
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", cfg.JWKSCacheTTL)
	}

	e := echo.New()
	if cfg.TrustProxyHeaders {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("calendar_countdown"))
	e.GET("/metrics", echoprometheus.NewHandler())

	logger := log.StandardLogger()
	api.Register(e, api.Deps{
		Resolver:   domain.NewResolver(store, norm),
		Normalizer: norm,
		Admin:      domain.NewAdminService(store, cfg.Location),
		Tokens:     api.NewNonces(cfg.NonceSecret, cfg.NonceTTL, rc, clk),
		Limiter:    api.NewRedisLimiter(rc, cfg.RateLimitMax, cfg.RateLimitWindow),
		Auth:       auth,
		Clock:      clk,
	}, logger)

	log.WithFields(log.Fields{"store": cfg.Store, "addr": cfg.ListenAddr, "tz": cfg.Location.String()}).Info("calendar countdown starting")
	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}

func openBackend(cfg config) (storage.Backend, error) {
	switch cfg.Store {
	case storeMemory:
		log.Warn("using in-memory event store; events are lost on restart")
		return storage.NewMemory(cfg.Location), nil
	case storePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pool, err := storage.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return storage.NewPostgres(pool, cfg.Location), nil
	default:
		st, err := storage.New(cfg.StorageConnStr, cfg.EventsTable, cfg.Location)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}
