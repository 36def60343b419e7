package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/veilchat/anonbot/internal/ban"
	"github.com/veilchat/anonbot/internal/chat"
	"github.com/veilchat/anonbot/internal/config"
	"github.com/veilchat/anonbot/internal/events"
	"github.com/veilchat/anonbot/internal/match"
	"github.com/veilchat/anonbot/internal/media"
	"github.com/veilchat/anonbot/internal/metrics"
	"github.com/veilchat/anonbot/internal/moderation"
	"github.com/veilchat/anonbot/internal/presence"
	"github.com/veilchat/anonbot/internal/ratelimit"
	"github.com/veilchat/anonbot/internal/store/postgres"
	"github.com/veilchat/anonbot/internal/telegram"
)

func main() {
	log.Println("Starting anonbot...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Postgres setup (runs migrations).
	store, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer store.Close()

	// Redis setup. Optional: without it rate limits and bans are off.
	var (
		limiter *ratelimit.Limiter
		bans    *ban.Store
		rdb     *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		limiter = ratelimit.NewLimiter(rdb)
		bans = ban.NewStore(rdb)
		defer rdb.Close()
	}

	// NATS setup. Optional: a nil publisher drops every event.
	var pub *events.Publisher
	if cfg.NATSURL != "" {
		pub, err = events.Connect(cfg.NATSURL, "anonbot")
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer pub.Close()
	}

	archive, err := media.NewStore(cfg.MediaDir)
	if err != nil {
		log.Fatalf("failed to prepare media dir: %v", err)
	}

	var filter chat.TermFilter
	if terms := cfg.BannedTermList(); len(terms) > 0 {
		f, err := moderation.NewFilter(terms)
		if err != nil {
			log.Fatalf("failed to build term filter: %v", err)
		}
		filter = f
		log.Printf("[main] term filter active with %d terms", len(terms))
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("failed to authorize bot: %v", err)
	}
	transport := telegram.NewTransport(api)

	// Warm the presence cache from the store so restarts do not orphan
	// active sessions or queued searchers.
	cache := presence.NewCache()
	warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sessions, err := store.ActiveSessions(warmCtx)
	if err != nil {
		cancel()
		log.Fatalf("failed to load active sessions: %v", err)
	}
	queue, err := store.ListQueue(warmCtx)
	if err != nil {
		cancel()
		log.Fatalf("failed to load search queue: %v", err)
	}
	cancel()
	cache.Rebuild(sessions, queue)
	searching, paired := cache.Counts()
	log.Printf("[main] cache warmed: %d searching, %d paired", searching, paired)
	metrics.SearchingUsers.Set(float64(searching))
	metrics.ActiveSessions.Set(float64(paired / 2))

	sweeper := chat.NewSweeper(transport, cache)
	matcher := match.New(store, cache)
	manager := chat.NewManager(store, cache, transport, sweeper, matcher, pub, cfg.SettleDelay())
	relay := chat.NewRelay(store, cache, transport, archive, filter, pub)
	bot := telegram.NewBot(api, transport, store, cache, matcher, manager, relay, sweeper, limiter, bans)

	// Metrics endpoint.
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		log.Printf("[main] metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] metrics server: %v", err)
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	go bot.Run(ctx)

	log.Printf("anonbot running")
	log.Printf("  bot:          @%s", api.Self.UserName)
	log.Printf("  postgres_dsn: %s", cfg.PostgresDSN)
	log.Printf("  redis_addr:   %s", orDisabled(cfg.RedisAddr))
	log.Printf("  nats_url:     %s", orDisabled(cfg.NATSURL))
	log.Printf("  media_dir:    %s", cfg.MediaDir)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	stop()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutCtx); err != nil {
		log.Printf("[main] metrics shutdown: %v", err)
	}
}

func orDisabled(v string) string {
	if v == "" {
		return "(disabled)"
	}
	return v
}
