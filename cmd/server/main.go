package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/christopherjohns/socialhub/internal/api"
	"github.com/christopherjohns/socialhub/internal/auth"
	"github.com/christopherjohns/socialhub/internal/chat"
	"github.com/christopherjohns/socialhub/internal/config"
	"github.com/christopherjohns/socialhub/internal/friend"
	"github.com/christopherjohns/socialhub/internal/hub"
	"github.com/christopherjohns/socialhub/internal/logging"
	"github.com/christopherjohns/socialhub/internal/message"
	"github.com/christopherjohns/socialhub/internal/metrics"
	"github.com/christopherjohns/socialhub/internal/notification"
	"github.com/christopherjohns/socialhub/internal/post"
	"github.com/christopherjohns/socialhub/internal/presence"
	"github.com/christopherjohns/socialhub/internal/ratelimit"
	"github.com/christopherjohns/socialhub/internal/router"
	"github.com/christopherjohns/socialhub/internal/server"
	"github.com/christopherjohns/socialhub/internal/storage"
	"github.com/christopherjohns/socialhub/internal/user"
	"github.com/christopherjohns/socialhub/internal/ws"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("SOCIALHUB_CONFIG"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cache, closeCache := messageCache(ctx, cfg.Redis, logger)
	defer closeCache()

	users := user.NewStore(db)
	notes := notification.NewStore(db)
	chatSvc := chat.NewService(db)
	postSvc := post.NewService(db)
	authSvc := auth.NewService(users, cfg.Auth)

	connOpts := []ws.ConnManagerOption{
		ws.WithSendBuffer(cfg.Realtime.SendBuffer),
		ws.WithWriteTimeout(cfg.Realtime.WriteTimeout),
		ws.WithMaxConns(cfg.Realtime.MaxConns),
		ws.WithIdleTimeout(cfg.Realtime.IdleTimeout),
	}
	chatHub := ws.NewHub(router.ChannelChat, logger, m, connOpts...)
	notifyHub := ws.NewHub(router.ChannelNotifications, logger, m, connOpts...)
	postHub := ws.NewHub(router.ChannelPosts, logger, m, connOpts...)

	r := router.New([]*ws.Hub{chatHub, notifyHub, postHub}, notes,
		router.WithConcurrency(cfg.Realtime.FanoutConcurrency),
		router.WithDeliveryTimeout(cfg.Realtime.DeliveryTimeout),
		router.WithLogger(logger),
		router.WithMetrics(m),
	)
	tracker := presence.New(users, chatHub.Registry(), r, logger, m)

	chatChannel := hub.NewChat(chatHub, chatSvc, cache, r, tracker, cfg.Redis.HistorySize, logger)
	notifyChannel := hub.NewNotifications(notifyHub, notes, logger)
	postChannel := hub.NewPosts(postHub, postSvc, users, r, logger)

	authLimiter := ratelimit.New(cfg.Server.AuthRateLimit, cfg.Server.AuthRateWindow)
	go pruneLoop(ctx, authLimiter, cfg.Server.AuthRateWindow)

	handler := api.NewHandler(api.Deps{
		Auth:          authSvc,
		Users:         users,
		Chat:          chatSvc,
		Posts:         postSvc,
		Friends:       friend.NewService(db),
		Notifications: notes,
		Messages:      chatChannel,
		PostHub:       postChannel,
		Counts:        notifyChannel,
		Router:        r,
		AuthLimiter:   authLimiter,
		Log:           logger,
	})

	hubOpts := []ws.HandlerOption{
		ws.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		ws.WithCommandLimit(cfg.Realtime.CommandRate, cfg.Realtime.CommandWindow),
	}
	srv := server.New(cfg.Server.ListenAddr,
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithAPI(handler),
		server.WithHub(chatHub, ws.NewHandler(chatHub, chatChannel, authSvc, hubOpts...)),
		server.WithHub(notifyHub, ws.NewHandler(notifyHub, notifyChannel, authSvc, hubOpts...)),
		server.WithHub(postHub, ws.NewHandler(postHub, postChannel, authSvc, hubOpts...)),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	if n, err := users.ResetPresence(ctx); err != nil {
		logger.Warn().Err(err).Msg("reset presence")
	} else if n > 0 {
		logger.Info().Int64("users", n).Msg("cleared stale presence")
	}
	logger.Info().Str("addr", cfg.Server.ListenAddr).Str("db", cfg.Database.Driver).Msg("starting socialhub")
	return srv.Run(ctx)
}

// messageCache prefers redis when configured and reachable and falls back
// to the in-process cache otherwise.
func messageCache(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (message.Cache, func()) {
	if cfg.Addr == "" {
		return message.NewMemoryCache(cfg.HistorySize), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable, using in-memory message cache")
		rdb.Close()
		return message.NewMemoryCache(cfg.HistorySize), func() {}
	}
	logger.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return message.NewRedisCache(rdb, cfg.HistorySize), func() { rdb.Close() }
}

func pruneLoop(ctx context.Context, l *ratelimit.Limiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
