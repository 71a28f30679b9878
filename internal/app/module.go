// Package app wires the client core together with fx.
package app

import (
	"context"
	"io"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/inbox"
	"github.com/matheus3301/chatline/internal/live"
	"github.com/matheus3301/chatline/internal/lock"
	"github.com/matheus3301/chatline/internal/logging"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/realtime"
	"github.com/matheus3301/chatline/internal/realtime/loopback"
	"github.com/matheus3301/chatline/internal/realtime/pubsub"
	"github.com/matheus3301/chatline/internal/realtime/ws"
	"github.com/matheus3301/chatline/internal/source"
	"github.com/matheus3301/chatline/internal/source/fixtures"
	"github.com/matheus3301/chatline/internal/source/sqlite"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dialTimeout = 10 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile        string
	Config         *config.Config
	ConversationID string // bound on start when set
}

// Module returns the fx module for the client, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("chatline",
		fx.Supply(p, p.Config),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideSources,
			provideStore,
			provideChannel,
			provideIdentity,
			provideDirectory,
			provideReplier,
			provideSession,
			provideInboxEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile,
		zap.String("source", cfg.Source.Kind),
		zap.String("realtime", cfg.Realtime.Kind()),
	)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// Sources exposes the data source, the sink local changes are written back
// to and, for the sqlite kind, the database behind both. DB is nil for
// fixtures.
type Sources struct {
	fx.Out

	DataSource source.DataSource
	Sink       source.Sink
	DB         *sqlite.DB
}

func provideSources(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (Sources, error) {
	if cfg.Source.Kind != config.SourceSQLite {
		logger.Info("using fixture data source")
		src := fixtures.New(time.Now())
		return Sources{DataSource: src, Sink: src}, nil
	}

	dbPath := profile.DBPath(p.Profile)
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return Sources{}, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return Sources{}, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}

	ctx := context.Background()
	count, err := db.ConversationCount(ctx)
	if err != nil {
		_ = db.Close()
		return Sources{}, err
	}
	if count == 0 {
		seeded, err := db.Seed(ctx, fixtures.New(time.Now()))
		if err != nil {
			_ = db.Close()
			return Sources{}, err
		}
		logger.Info("empty database seeded with demo data",
			zap.Int("conversations", seeded.Conversations),
			zap.Int("messages", seeded.Messages))
	}
	logger.Info("sqlite data source ready", zap.String("path", dbPath))
	return Sources{DataSource: db, Sink: db, DB: db}, nil
}

func provideStore(b *bus.Bus) *store.Store {
	return store.New(b)
}

func provideChannel(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (realtime.Channel, error) {
	kind := cfg.Realtime.Kind()
	if kind == config.RealtimeLoopback {
		return loopback.New(b), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	logger = logger.Named("realtime")
	if kind == config.RealtimeRedis {
		return pubsub.Dial(ctx, cfg.Realtime.URL, logger)
	}
	return ws.Dial(ctx, cfg.Realtime.URL, nil, logger)
}

func provideIdentity(cfg *config.Config) identity.Provider {
	if cfg.User.ID != "" {
		return identity.NewStatic(cfg.User)
	}
	return identity.NewStatic(fixtures.DemoUser())
}

func provideDirectory() *identity.Directory {
	return identity.NewDirectory(fixtures.Users())
}

func provideReplier(cfg *config.Config) live.Replier {
	if !cfg.AutoReply.Enabled {
		return nil
	}
	return live.NewScriptedReplier(cfg.AutoReply.MinDelay.Duration, cfg.AutoReply.MaxDelay.Duration, nil)
}

func provideSession(
	cfg *config.Config,
	st *store.Store,
	src source.DataSource,
	sink source.Sink,
	ch realtime.Channel,
	id identity.Provider,
	replier live.Replier,
	b *bus.Bus,
	logger *zap.Logger,
) *live.Session {
	return live.NewSession(st, src, ch, id, replier, b, logger.Named("live"), live.Options{
		TypingWindow: cfg.Typing.Window.Duration,
		Sink:         sink,
	})
}

func provideInboxEngine(st *store.Store, ch realtime.Channel, sink source.Sink, b *bus.Bus, logger *zap.Logger) *inbox.Engine {
	return inbox.NewEngine(st, ch, sink, b, logger.Named("inbox"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	p Params,
	lk *lock.Lock,
	src source.DataSource,
	db *sqlite.DB,
	st *store.Store,
	ch realtime.Channel,
	sess *live.Session,
	engine *inbox.Engine,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			convs, err := src.ListConversations(ctx)
			if err != nil {
				return err
			}
			st.ReplaceConversations(convs)
			logger.Info("conversations loaded", zap.Int("count", len(convs)))

			engine.Start(context.Background())

			if p.ConversationID != "" {
				if state := sess.Bind(ctx, p.ConversationID); state != live.Bound {
					logger.Warn("could not open conversation",
						zap.String("conversation", p.ConversationID),
						zap.String("error", sess.Err()))
				}
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			sess.Unbind()
			engine.Stop()
			if c, ok := ch.(io.Closer); ok {
				if err := c.Close(); err != nil {
					logger.Warn("error closing channel", zap.Error(err))
				}
			}
			if db != nil {
				if err := db.Close(); err != nil {
					logger.Warn("error closing database", zap.Error(err))
				}
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
