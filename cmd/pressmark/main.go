// Command pressmark runs the billing core of the Pressmark publishing
// platform: the subscription lifecycle service, its provider webhook
// endpoint, and the JSON API the payment and settings pages call.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pressmark/pressmark/pkg/config"
	"github.com/pressmark/pressmark/pkg/httpserver"
	"github.com/pressmark/pressmark/pkg/logger"
	"github.com/pressmark/pressmark/pkg/pg"
	"github.com/pressmark/pressmark/pkg/subscription"
	"github.com/pressmark/pressmark/svc/billing"
)

type appConfig struct {
	BaseURL   string        `env:"APP_BASE_URL,required"` // used to build the billing portal return URL
	PlansPath string        `env:"PLANS_PATH" envDefault:"plans.yaml"`
	RedisURL  string        `env:"REDIS_URL"` // optional; enables the subscription record cache
	CacheTTL  time.Duration `env:"SUBSCRIPTION_CACHE_TTL" envDefault:"1m"`
}

func main() {
	ctx := context.Background()

	var (
		appCfg    appConfig
		logCfg    logger.Config
		pgCfg     pg.Config
		httpCfg   httpserver.Config
		stripeCfg subscription.StripeConfig
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&logCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&stripeCfg)

	log := logger.New(logCfg, slog.String("app", "pressmark"))

	if err := run(ctx, appCfg, pgCfg, httpCfg, stripeCfg, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg appConfig, pgCfg pg.Config, httpCfg httpserver.Config, stripeCfg subscription.StripeConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	gateway, err := subscription.NewStripeGateway(stripeCfg)
	if err != nil {
		return err
	}

	var store subscription.Store = subscription.NewPostgresStore(pool)
	if appCfg.RedisURL != "" {
		opts, err := redis.ParseURL(appCfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		store = subscription.NewCachedStore(store, client, appCfg.CacheTTL, log)
	}

	svc, err := subscription.NewService(ctx,
		subscription.NewYAMLSource(appCfg.PlansPath),
		gateway,
		store,
		subscription.WithLogger(log),
		subscription.WithPortalReturnURL(appCfg.BaseURL+"/settings/billing"),
	)
	if err != nil {
		return err
	}

	handler := billing.NewHandler(svc, headerIdentity, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", healthHandler(pg.Healthcheck(pool)))
	r.Mount("/", handler.Router())

	return httpserver.New(httpCfg, log).Run(ctx, r)
}

// headerIdentity reads the identity headers set by the authenticating proxy
// in front of this service. Requests that bypass the proxy carry no headers
// and resolve to no identity.
func headerIdentity(r *http.Request) (billing.Identity, bool) {
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil || userID == uuid.Nil {
		return billing.Identity{}, false
	}
	return billing.Identity{
		UserID: userID,
		Name:   r.Header.Get("X-User-Name"),
		Email:  r.Header.Get("X-User-Email"),
	}, true
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
