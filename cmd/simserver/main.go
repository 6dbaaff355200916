// Package main provides the simulation server binary: the march loop, the
// HTTP and websocket control surface, and PostgreSQL persistence.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/config"
	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/enemy"
	"github.com/marchaven/roadband/internal/game/party"
	"github.com/marchaven/roadband/internal/game/rng"
	"github.com/marchaven/roadband/internal/game/road"
	"github.com/marchaven/roadband/internal/observability"
	"github.com/marchaven/roadband/internal/scripting"
	"github.com/marchaven/roadband/internal/server"
	"github.com/marchaven/roadband/internal/simserver"
	"github.com/marchaven/roadband/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "simserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting simulation server",
		zap.String("http_addr", cfg.HTTP.Addr()),
	)

	// Load content
	contentStart := time.Now()
	abilities, err := ability.LoadDirectory(cfg.Content.AbilitiesDir())
	if err != nil {
		logger.Fatal("loading abilities", zap.Error(err))
	}
	heroes, err := party.LoadDirectory(cfg.Content.HeroesDir())
	if err != nil {
		logger.Fatal("loading hero archetypes", zap.Error(err))
	}
	enemies, err := enemy.LoadDirectory(cfg.Content.EnemiesDir())
	if err != nil {
		logger.Fatal("loading enemy templates", zap.Error(err))
	}
	roads, err := road.LoadDirectory(cfg.Content.RoadsDir())
	if err != nil {
		logger.Fatal("loading roads", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("abilities", abilities.Len()),
		zap.Int("heroes", heroes.Len()),
		zap.Int("enemies", enemies.Len()),
		zap.Int("roads", roads.Len()),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	// One roll stream feeds combat and scripting so seeded runs replay.
	var src rng.Source
	if cfg.Sim.Seed != 0 {
		src = rng.NewSeededSource(cfg.Sim.Seed)
		logger.Info("using seeded roll stream", zap.Int64("seed", cfg.Sim.Seed))
	} else {
		src = rng.NewCryptoSource()
	}
	src = rng.NewLoggedSource(src, logger)

	// Initialise scripting engine
	var scriptMgr *scripting.Manager
	if info, statErr := os.Stat(cfg.Content.ScriptsDir); statErr == nil && info.IsDir() {
		scriptStart := time.Now()
		scriptMgr = scripting.NewManager(src, logger)
		defer scriptMgr.Close()

		if err := scriptMgr.LoadGlobal(cfg.Content.ScriptsDir, scripting.DefaultInstructionLimit); err != nil {
			logger.Fatal("loading global scripts", zap.Error(err))
		}

		// Per-road scripts live in a subdirectory named after the road.
		for _, id := range roads.IDs() {
			dir := filepath.Join(cfg.Content.ScriptsDir, id)
			if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
				continue
			}
			if err := scriptMgr.LoadRoad(id, dir, scripting.DefaultInstructionLimit); err != nil {
				logger.Fatal("loading road scripts", zap.String("road", id), zap.Error(err))
			}
			logger.Info("road scripts loaded", zap.String("road", id), zap.String("dir", dir))
		}
		logger.Info("scripting engine initialized",
			zap.Duration("elapsed", time.Since(scriptStart)),
		)
	} else {
		logger.Warn("scripts directory not found, scripting disabled",
			zap.String("dir", cfg.Content.ScriptsDir),
		)
	}

	// Connect to PostgreSQL for party persistence
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	parties := postgres.NewPartyRepository(pool.DB())

	hub := simserver.NewHub(logger)
	march, err := simserver.NewMarch(simserver.MarchConfig{
		Sim:       cfg.Sim,
		Combat:    cfg.Combat,
		Store:     parties,
		Heroes:    heroes,
		Abilities: abilities,
		Enemies:   enemies,
		Roads:     roads,
		Scripts:   scriptMgr,
		Hub:       hub,
		Logger:    logger,
		Source:    src,
	})
	if err != nil {
		logger.Fatal("building march", zap.Error(err))
	}

	api := simserver.NewAPI(march, parties, roads, pool, hub, logger)
	httpServer := simserver.NewHTTPServer(cfg.HTTP, api.Router(), logger)

	// Wire lifecycle. Stop order is the reverse: the listener drains first,
	// then the march makes its final save while the pool is still open.
	lifecycle := server.NewLifecycle(logger)

	healthDone := make(chan struct{})
	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-healthDone:
					return nil
				case <-ticker.C:
					if err := pool.Health(ctx); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func() {
			close(healthDone)
			pool.Close()
		},
	})

	lifecycle.Add("feed", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  func() { hub.Close() },
	})

	lifecycle.Add("march", march)
	lifecycle.Add("http", httpServer)

	logger.Info("simulation server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.HTTP.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
