package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/llmhub/termmux/internal/channel"
	"github.com/llmhub/termmux/internal/config"
	"github.com/llmhub/termmux/internal/database"
	"github.com/llmhub/termmux/internal/fanout"
	"github.com/llmhub/termmux/internal/handlers"
	"github.com/llmhub/termmux/internal/logging"
	"github.com/llmhub/termmux/internal/mux"
	"github.com/llmhub/termmux/internal/session"
)

func main() {
	config.Load()
	logging.Init()
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	if config.Cfg.ServersFile != "" {
		if err := seedFromServersFile(config.Cfg.ServersFile); err != nil {
			log.Fatalf("Servers file import: %v", err)
		}
	}

	broadcaster := fanout.NewBroadcaster()

	adapter := channel.NewAdapter(channel.DBResolver{}, broadcaster)
	if d, err := time.ParseDuration(config.Cfg.DialTimeout); err == nil {
		adapter.DialTimeout = d
	}

	manager := session.NewManager(session.AdapterOpener{Adapter: adapter}, broadcaster, config.Cfg.ScrollbackSize)
	controller := mux.NewController(manager, config.Cfg.NarrowBreakpoint, config.Cfg.MaxSessions)

	handlers.Mux = controller
	handlers.Sessions = manager
	handlers.StatusFanout = broadcaster

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: handlers.Router(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	controller.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// seedFromServersFile upserts the hosts and projects declared in the YAML
// seed file into the registry.
func seedFromServersFile(path string) error {
	spec, err := config.LoadServersFile(path)
	if err != nil {
		return err
	}

	for _, s := range spec.Servers {
		port := s.TerminalPort
		if port == 0 {
			port = 7700
		}
		if err := database.UpsertServer(&database.Server{
			Key:          s.Key,
			Name:         s.Name,
			Host:         s.Host,
			TerminalPort: port,
		}); err != nil {
			return err
		}
	}
	for _, p := range spec.Projects {
		if err := database.UpsertProject(&database.Project{
			Key:       p.Key,
			Name:      p.Name,
			Slug:      p.Slug,
			ServerKey: p.ServerKey,
		}); err != nil {
			return err
		}
	}

	log.Printf("Imported %d servers and %d projects from %s", len(spec.Servers), len(spec.Projects), path)
	return nil
}
