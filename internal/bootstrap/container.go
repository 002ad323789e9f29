package bootstrap

import (
	"context"
	"fmt"
	"log"

	"realtime-chat-be/internal/config"
	"realtime-chat-be/internal/controller"
	"realtime-chat-be/internal/handler"
	"realtime-chat-be/internal/pkg/logger"
	"realtime-chat-be/internal/pkg/serverutils"
	"realtime-chat-be/internal/repository/memory"
	"realtime-chat-be/internal/repository/unitofwork"
	"realtime-chat-be/internal/service"
	"realtime-chat-be/internal/websocket"
	"realtime-chat-be/pkg/changefeed"
	"realtime-chat-be/pkg/chat/profile"
	"realtime-chat-be/pkg/database"
	pktNats "realtime-chat-be/pkg/nats"
	"realtime-chat-be/pkg/pgnotify"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// FeedTables are the tables whose inserts are published on the change feed.
var FeedTables = []string{changefeed.TableMessages, changefeed.TableParticipants}

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// WebSockets
	WsHandler    *handler.WsHandler
	WebSocketHub *websocket.Hub

	// Background
	SessionService service.ISessionService
	Bridge         *pgnotify.Bridge

	logger  logger.ILogger
	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	rtLogger := logger.NewIsolatedLogger(cfg.App.RealtimeLogFilePath)

	c := &Container{logger: sysLogger}

	// 2. Change Feed
	feed, publisher, err := c.newFeed(cfg, rtLogger)
	if err != nil {
		c.Close()
		return nil, err
	}

	switch cfg.Feed.Source {
	case config.FeedSourcePostgres:
		c.Bridge = pgnotify.NewBridge(cfg.Database.Connection, publisher)
		log.Printf("[INFO] Change feed source: postgres LISTEN/NOTIFY")
	default:
		if err := db.Use(database.NewChangeFeedPlugin(publisher, FeedTables...)); err != nil {
			c.Close()
			return nil, fmt.Errorf("register changefeed plugin: %w", err)
		}
		log.Printf("[INFO] Change feed source: gorm after-commit hook")
	}

	// 3. Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	c.closers = append(c.closers, func() { _ = rdb.Close() })

	// 4. WebSocket Hub
	c.WebSocketHub = websocket.NewHub(rdb, rtLogger)

	// 5. Services
	chatQuery := service.NewChatQuery(uowFactory, sysLogger)
	resolver := profile.NewResolver(chatQuery, cfg.Chat.ProfileCacheTTL, sysLogger)
	sessionRepo := memory.NewSessionRepository(cfg.Chat.SessionIdleTTL)

	chatService := service.NewChatService(uowFactory, resolver, sysLogger, cfg.Chat.SearchMinLength)
	c.SessionService = service.NewSessionService(
		sessionRepo,
		chatQuery,
		feed,
		resolver,
		service.NewViewNotifier(c.WebSocketHub),
		rtLogger,
		cfg.Chat.ReconcileTolerance,
	)
	// Sessions hold feed subscriptions; close them before the feed.
	c.closers = append([]func(){c.SessionService.Close}, c.closers...)

	// 6. Transport
	auth := serverutils.NewJwtMiddleware(cfg.Auth.JwtSecret)
	c.ChatController = controller.NewChatController(chatService, c.SessionService, auth)
	c.WsHandler = handler.NewWsHandler(c.WebSocketHub, cfg.Auth.JwtSecret, rtLogger)

	c.closers = append(c.closers, func() {
		_ = sysLogger.Sync()
		_ = rtLogger.Sync()
	})
	return c, nil
}

func (c *Container) newFeed(cfg *config.Config, rtLogger logger.ILogger) (changefeed.Feed, changefeed.Publisher, error) {
	switch cfg.Feed.Driver {
	case config.FeedDriverNats:
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect NATS publisher: %w", err)
		}
		c.closers = append(c.closers, pub.Close)

		sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect NATS subscriber: %w", err)
		}
		c.closers = append(c.closers, sub.Close)

		log.Printf("[INFO] Change feed driver: NATS JetStream (%s)", cfg.App.NatsURL)
		return sub, pub, nil
	default:
		mem := changefeed.NewMemoryFeed(logger.NewWatermillAdapter(rtLogger, "CHANGEFEED"))
		c.closers = append(c.closers, func() { _ = mem.Close() })

		log.Printf("[INFO] Change feed driver: in-process")
		return mem, mem, nil
	}
}

// Run supervises the background workers until ctx is cancelled or one of them fails.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.WebSocketHub.Run(ctx)
	})

	if c.Bridge != nil {
		g.Go(func() error {
			return c.Bridge.Run(ctx)
		})
	}

	return g.Wait()
}

// Close releases sessions, the feed and connections, in that order.
func (c *Container) Close() {
	for _, closeFn := range c.closers {
		closeFn()
	}
	c.closers = nil
}
