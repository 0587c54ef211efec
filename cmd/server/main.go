package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "gridsnake.io/internal/persistence/log"
	"gridsnake.io/internal/persistence/scores"
	"gridsnake.io/internal/sim/grid"
	"gridsnake.io/internal/sim/tuning"
	"gridsnake.io/internal/sim/world"
	"gridsnake.io/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		seed       = flag.Int64("seed", 1337, "world seed")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite score index")
		noJournal  = flag.Bool("disable_journal", false, "disable the per-tick journal")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	edge, err := grid.ParseEdgePolicy(tune.EdgePolicy)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	w, err := world.New(world.Config{
		Width:             tune.GridWidth,
		Height:            tune.GridHeight,
		TickRateHz:        tune.TickRateHz,
		AppleTarget:       tune.AppleTarget,
		AppleGrowth:       tune.AppleGrowth,
		StartLength:       tune.SnakeStartLength,
		EdgePolicy:        edge,
		MaxSessions:       tune.MaxSessions,
		RespawnDelayTicks: uint64(tune.RespawnDelayTicks),
		Seed:              *seed,
	}, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	if !*noJournal {
		journal := persistlog.NewTickJournal(*dataDir)
		defer journal.Close()
		w.SetTickLogger(journal)
	}

	var scoreDB *scores.Store
	if !*disableDB {
		scoreDB, err = scores.Open(filepath.Join(*dataDir, "scores.db"))
		if err != nil {
			logger.Fatalf("open score index: %v", err)
		}
		defer scoreDB.Close()
		w.SetDeathRecorder(scoreDB)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	liveness := ws.Liveness{
		PingInterval: time.Duration(tune.Liveness.PingIntervalS) * time.Second,
		PongMisses:   tune.Liveness.PongMisses,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w))
	mux.HandleFunc("/v1/ws", ws.NewServer(w, liveness, logger).Handler())

	if envBool("GS_ENABLE_ADMIN_HTTP", true) {
		registerAdminHandlers(mux, w, scoreDB)
	} else {
		logger.Printf("admin endpoints disabled (GS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("GS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (%dx%d grid, %dHz)", *addr, tune.GridWidth, tune.GridHeight, tune.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func metricsHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()
		inbox, join, leave, admin := w.QueueDepths()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP gridsnake_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_tick gauge\n")
		fmt.Fprintf(rw, "gridsnake_tick %d\n", m.Tick)

		fmt.Fprintf(rw, "# HELP gridsnake_snakes Snakes currently on the board.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_snakes gauge\n")
		fmt.Fprintf(rw, "gridsnake_snakes %d\n", m.Snakes)

		fmt.Fprintf(rw, "# HELP gridsnake_sessions Connected sessions.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_sessions gauge\n")
		fmt.Fprintf(rw, "gridsnake_sessions %d\n", m.Sessions)

		fmt.Fprintf(rw, "# HELP gridsnake_apples Apples currently on the board.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_apples gauge\n")
		fmt.Fprintf(rw, "gridsnake_apples %d\n", m.Apples)

		fmt.Fprintf(rw, "# HELP gridsnake_paused Whether the simulation is paused.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_paused gauge\n")
		fmt.Fprintf(rw, "gridsnake_paused %d\n", boolToInt(m.Paused))

		fmt.Fprintf(rw, "# HELP gridsnake_tick_rate_hz Configured tick rate.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_tick_rate_hz gauge\n")
		fmt.Fprintf(rw, "gridsnake_tick_rate_hz %d\n", m.TickRateHz)

		fmt.Fprintf(rw, "# HELP gridsnake_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_step_ms gauge\n")
		fmt.Fprintf(rw, "gridsnake_step_ms %.3f\n", m.StepMS)

		fmt.Fprintf(rw, "# HELP gridsnake_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE gridsnake_queue_depth gauge\n")
		fmt.Fprintf(rw, "gridsnake_queue_depth{queue=%q} %d\n", "inbox", inbox)
		fmt.Fprintf(rw, "gridsnake_queue_depth{queue=%q} %d\n", "join", join)
		fmt.Fprintf(rw, "gridsnake_queue_depth{queue=%q} %d\n", "leave", leave)
		fmt.Fprintf(rw, "gridsnake_queue_depth{queue=%q} %d\n", "admin", admin)
	}
}

// registerAdminHandlers wires the loopback-only control surface. Every
// mutating command goes through the world's admin channel and takes
// effect at the next tick boundary.
func registerAdminHandlers(mux *http.ServeMux, w *world.World, scoreDB *scores.Store) {
	sendAdmin := func(rw http.ResponseWriter, r *http.Request, cmd world.AdminCommand) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		cmd.Resp = make(chan error, 1)
		select {
		case w.Admin() <- cmd:
		case <-time.After(2 * time.Second):
			http.Error(rw, "admin queue full", http.StatusServiceUnavailable)
			return
		}
		var err error
		select {
		case err = <-cmd.Resp:
		case <-time.After(5 * time.Second):
			http.Error(rw, "command not applied within 5s", http.StatusGatewayTimeout)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": w.CurrentTick()})
	}

	mux.HandleFunc("/v1/admin/pause", func(rw http.ResponseWriter, r *http.Request) {
		sendAdmin(rw, r, world.AdminCommand{Kind: world.AdminPause})
	})
	mux.HandleFunc("/v1/admin/resume", func(rw http.ResponseWriter, r *http.Request) {
		sendAdmin(rw, r, world.AdminCommand{Kind: world.AdminResume})
	})
	mux.HandleFunc("/v1/admin/kick", func(rw http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("snake_id"))
		if id == "" {
			http.Error(rw, "missing snake_id", http.StatusBadRequest)
			return
		}
		sendAdmin(rw, r, world.AdminCommand{Kind: world.AdminKick, SnakeID: id})
	})
	mux.HandleFunc("/v1/admin/tickrate", func(rw http.ResponseWriter, r *http.Request) {
		hz, err := strconv.Atoi(r.URL.Query().Get("hz"))
		if err != nil {
			http.Error(rw, "bad hz", http.StatusBadRequest)
			return
		}
		sendAdmin(rw, r, world.AdminCommand{Kind: world.AdminSetTickRate, TickRateHz: hz})
	})
	mux.HandleFunc("/v1/admin/scores", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if scoreDB == nil {
			http.Error(rw, "score index disabled", http.StatusNotImplemented)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		top, err := scoreDB.TopScores(ctx, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"scores": top})
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
