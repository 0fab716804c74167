package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bandalloc/pkg/config"
	"bandalloc/pkg/listcache"
	"bandalloc/pkg/store"
)

func main() {
	// ./.env is loaded first; variables already set keep their values
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.UsingDevSecret() {
		log.Println("warning: JWT_SECRET not set, using the development secret")
	}

	// `bandalloc migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		cfg.Database.AutoMigrate = true
		if _, err := store.Open(cfg); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		fmt.Println("migration and seeding completed")
		return
	}

	cache, err := listcache.New(cfg.Cache.RedisURL, cfg.Cache.TTL)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	srv, err := newServer(cfg, newLazyStore(cfg), cache)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if r, ok := cache.(*listcache.Redis); ok {
		_ = r.Close()
	}
}
