package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/minigame/arena"
	"github.com/wfunc/minigame/broadcast"
	"github.com/wfunc/minigame/config"
	"github.com/wfunc/minigame/games/classic"
	"github.com/wfunc/minigame/httpapi"
	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/minigame"
	"github.com/wfunc/minigame/monitor"
	"github.com/wfunc/minigame/persistence"
	"github.com/wfunc/minigame/rpc"
	"github.com/wfunc/minigame/server"
	"github.com/wfunc/minigame/services"
	"github.com/wfunc/minigame/session"
	"github.com/wfunc/minigame/timer"
)

const timerResolution = 50 * time.Millisecond

func main() {
	// 先用默认配置初始化日志, 读完配置后再按配置重建
	if err := logger.Init("info", false); err != nil {
		panic(err)
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Log.Warnf("Failed to read .env: %v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		logger.Log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := openStore(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	logger.Log.Infof("Using %s store.", cfg.Database.Driver)

	// 注册小游戏
	catalog := minigame.NewCatalog()
	classicSettings, err := classic.Settings(cfg.Game.SettingsDir)
	if err != nil {
		logger.Log.Warnf("classic settings: %v, using defaults", err)
	}
	game, err := classic.New(classicSettings)
	if err != nil {
		logger.Log.Fatalf("Failed to build minigame %s: %v", classic.Name, err)
	}
	if err := catalog.Register(game.Minigame()); err != nil {
		logger.Log.Fatalf("Failed to register minigame %s: %v", classic.Name, err)
	}

	arenas := arena.NewManager()
	sessions := session.NewManager()
	timers := timer.NewTimerManager(timerResolution)

	mon := monitor.NewMonitor("minigame", arenas.Count)
	recorder := persistence.NewRecorder(store, catalog, cfg.Game.EventQueue)
	broadcaster := broadcast.NewArenaBroadcaster(sessions, cfg.Game.EventQueue)
	lifecycle := services.NewLifecycle(arenas, catalog, timers, cfg.Game.TickInterval)

	arenas.Observe(mon)
	arenas.Observe(recorder)
	arenas.Observe(broadcaster)
	arenas.Observe(lifecycle)
	arenas.Observe(game)

	for _, mg := range catalog.List() {
		for i := 0; i < cfg.Game.ArenasPerMinigame; i++ {
			if _, err := arenas.Create(mg); err != nil {
				logger.Log.Fatalf("Failed to create arena for %s: %v", mg.Name(), err)
			}
		}
	}

	gameServer := server.NewGameServer(server.Options{
		Addr:          cfg.Server.HTTPAddress,
		Heartbeat:     cfg.Server.Heartbeat,
		RatePerSecond: cfg.Server.RatePerSecond,
		RateBurst:     cfg.Server.RateBurst,
	}, catalog, arenas, sessions, mon)
	api := httpapi.NewHandler(catalog, arenas, services.NewHistory(store), store)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewAdmin(arenas))
	if err != nil {
		logger.Log.Fatalf("Failed to start RPC server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		timers.Run(ctx)
		return nil
	})
	g.Go(func() error {
		recorder.Run(ctx)
		return nil
	})
	g.Go(func() error {
		broadcaster.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return gameServer.Start(ctx)
	})
	g.Go(func() error {
		return api.Serve(ctx, cfg.Server.APIAddress)
	})
	g.Go(func() error {
		return mon.ListenAndServe(ctx, cfg.Server.MetricsAddress)
	})
	g.Go(func() error {
		rpcServer.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		rpcServer.Stop()
		return nil
	})

	lifecycle.Start()
	logger.Log.Infof("minigame server started with %d arenas", arenas.Count())

	if err := g.Wait(); err != nil {
		logger.Log.Errorf("server stopped: %v", err)
	}

	lifecycle.Stop()
	arenas.Shutdown()
	logger.Log.Info("shutdown complete")
}

// openStore builds the store selected by database.driver. With redis enabled
// snapshots go to redis and finished games stay in the database.
func openStore(cfg *config.Config) (persistence.Store, error) {
	var db persistence.Store
	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case "gorm":
		gormDB, err := persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return nil, err
		}
		db = gormDB
	case "pq":
		sqlDB, err := persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return nil, err
		}
		db = sqlDB
	default:
		db = persistence.NewMemory()
	}

	if !cfg.Redis.Enabled {
		return db, nil
	}
	snapshots, err := persistence.NewRedisSnapshots(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err != nil {
		db.Close()
		return nil, err
	}
	return persistence.NewSplit(snapshots, db), nil
}
