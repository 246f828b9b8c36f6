// Command typeraced runs the typing-race server: the Race Engine, the
// Fan-out Layer's WebSocket transport, the Self-Healing Controller, and
// the monitoring/admin HTTP API, wired together and run until a
// termination signal arrives.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"typerace/internal/clock"
	"typerace/internal/config"
	"typerace/internal/control"
	"typerace/internal/controller"
	"typerace/internal/engine"
	"typerace/internal/fanout"
	"typerace/internal/httpapi"
	"typerace/internal/idgen"
	"typerace/internal/logx"
	"typerace/internal/replay"
	"typerace/internal/textcorpus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("typeraced: config: %v", err)
	}
	logx.SetLevel(logx.ParseLevel(cfg.LogLevel))

	flags := control.NewSnapshot()

	ids := idgen.New()
	texts := textcorpus.New()
	replays := replay.New(clock.Real{})

	// Hub and Engine depend on each other: the Hub resolves room
	// membership through the Engine, and the Engine emits events through
	// the Hub. Construct the Hub first, pass it to the Engine as its
	// Broadcaster, then complete the cycle with SetRooms.
	hub := fanout.NewHub(nil, flags)
	eng := engine.New(texts, clock.Real{}, ids, replays, flags, hub, engine.Config{
		DefaultMaxPlayers: cfg.MaxPlayersPerGame,
		MinPlayersToStart: cfg.MinPlayersToStart,
		CountdownSeconds:  cfg.CountdownSeconds,
		MaxRaceTime:       cfg.MaxRaceTime,
		CleanupDelay:      cfg.CleanupDelay,
	})
	hub.SetRooms(eng)

	ctrl := controller.New(flags, eng, controller.ProcLoadSampler{})

	dispatcher := fanout.NewDispatcher(eng, hub, flags, ctrl)
	wsServer := fanout.NewServer(hub, dispatcher, ids)

	adminAPI := httpapi.NewServer(eng, ctrl, cfg)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/", adminAPI)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	stopEngine := eng.StartBackgroundTasks()
	var stopController func()
	if cfg.SelfHealingEnabled {
		stopController = ctrl.Start()
		logx.Infof("self-healing controller started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logx.Infof("typeraced listening on %s (env=%s)", httpServer.Addr, cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Errorf("http server exited unexpectedly: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		logx.Infof("received signal %v, starting graceful shutdown", s)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logx.Errorf("http server shutdown error: %v", err)
	}
	if stopController != nil {
		stopController()
	}
	stopEngine()

	logx.Infof("typeraced shutdown complete")
}
