package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tgienger/teamflow/internal/config"
	"github.com/tgienger/teamflow/internal/devserver"
)

func main() {
	cfg, err := config.LoadDevServer(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	requireAuth := flag.Bool("require-auth", false, "reject unauthenticated task reads")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.Parse()

	store := devserver.NewStore(devserver.SeedTasks(time.Now())...)
	srv := devserver.New(store, devserver.Options{
		BotToken:    cfg.BotToken,
		BotUsername: cfg.BotUsername,
		JWTSecret:   []byte(cfg.JWTSecret),
		RequireAuth: *requireAuth,
		AccessLog:   true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("teamflow dev backend on %s (bot @%s)", cfg.Addr, cfg.BotUsername)
	if err := srv.Start(cfg.Addr); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
