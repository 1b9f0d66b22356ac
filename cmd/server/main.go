package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"blocklife.gg/internal/persistence/archive"
	"blocklife.gg/internal/persistence/indexdb"
	persistlog "blocklife.gg/internal/persistence/log"
	"blocklife.gg/internal/persistence/snapshot"
	"blocklife.gg/internal/sim/game"
	"blocklife.gg/internal/sim/tuning"
	"blocklife.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		gameID     = flag.String("game", "game_1", "game id")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	gameDir := filepath.Join(*dataDir, "games", *gameID)
	_ = os.MkdirAll(gameDir, 0o755)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(gameDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
	}

	mirror, err := buildMirror(gameDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	if mirror != nil {
		defer mirror.Close()
	}

	effectLog := persistlog.NewEffectLogger(gameDir)
	defer effectLog.Close()
	tickLog := persistlog.NewTickLogger(gameDir)
	defer tickLog.Close()

	// Off-thread snapshot writer: the tick loop hands finished snapshots to
	// this goroutine so disk latency never stalls the sim.
	snapDir := filepath.Join(gameDir, "snapshots")
	snapCh := make(chan snapshot.SnapshotV1, 2)
	go func() {
		for snap := range snapCh {
			path := filepath.Join(snapDir, snapshot.Filename(snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("write snapshot: %v", err)
				continue
			}
			logger.Printf("snapshot tick=%d blocks=%d -> %s", snap.Header.Tick, len(snap.Blocks), path)
			if idx != nil {
				idx.RecordSnapshot(indexdb.SnapshotRow{Tick: snap.Header.Tick, Path: path, Blocks: len(snap.Blocks)})
			}
			mirror.Enqueue(path)

			if _, archivedPath, ok, err := archive.ArchiveMilestoneSnapshot(gameDir, path, snap, uint64(tune.ArchiveEveryTicks)); err != nil {
				logger.Printf("archive milestone snapshot: %v", err)
			} else if ok {
				mirror.Enqueue(archivedPath)
				if meta := filepath.Join(filepath.Dir(archivedPath), "meta.json"); fileExists(meta) {
					mirror.Enqueue(meta)
				}
			}
		}
	}()

	g := game.New(
		game.Config{ID: *gameID, Tune: tune},
		logger,
		game.WithEffectLog(effectLog),
		game.WithTickLog(tickLog),
		game.WithIndex(idx),
		game.WithSnapshotSink(snapCh),
	)

	// Resume from snapshot when one is available.
	toLoad := strings.TrimSpace(*snapPath)
	if toLoad == "" && *loadLatest {
		toLoad = snapshot.Latest(snapDir)
	}
	if toLoad != "" {
		snap, err := snapshot.ReadSnapshot(toLoad)
		if err != nil {
			logger.Fatalf("read snapshot %s: %v", toLoad, err)
		}
		if err := g.Restore(snap); err != nil {
			logger.Fatalf("restore snapshot %s: %v", toLoad, err)
		}
		logger.Printf("resumed from %s (tick=%d blocks=%d)", toLoad, snap.Header.Tick, len(snap.Blocks))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := g.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Fatalf("game loop: %v", err)
		}
	}()

	wsSrv := ws.NewServer(g, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := map[string]any{
			"game":    *gameID,
			"tick":    g.Tick(),
			"blocks":  g.Engine().Grid().Count(),
			"clients": g.ClientCount(),
		}
		if mirror != nil {
			status["mirror"] = mirror.Stats()
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	httpSrv := &http.Server{Addr: *addr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		// Cancelling stops the game loop, which closes snapCh itself; the
		// snapshot writer goroutine drains and exits behind it.
		cancel()
	}()

	logger.Printf("listening on %s (game=%s grid=%dx%d tick=%dhz)", *addr, *gameID, tune.GridWidth, tune.GridHeight, tune.TickRateHz)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http: %v", err)
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
