package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bandalloc/pkg/bands"
	"bandalloc/pkg/config"
	"bandalloc/pkg/listcache"
	"bandalloc/pkg/store"
	"bandalloc/process/inbox"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	dir := flag.String("dir", cfg.InboxDir, "directory to watch for submission files")
	once := flag.Bool("once", false, "process pending files and exit instead of watching")
	workers := flag.Int("workers", 2, "concurrent submissions while watching")
	flag.Parse()

	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	amount, err := cfg.Amount()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cache, err := listcache.New(cfg.Cache.RedisURL, cfg.Cache.TTL)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	p := inbox.New(*dir, bands.New(db, amount))
	p.OnAllocated = cache.Invalidate
	if err := p.Prepare(); err != nil {
		log.Fatalf("prepare inbox: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accepted, rejected, err := p.ProcessPending(ctx)
	if err != nil {
		log.Fatalf("process pending: %v", err)
	}
	log.Printf("pending files: %d accepted, %d rejected", accepted, rejected)
	if *once {
		return
	}
	if err := p.Watch(ctx, *workers); err != nil {
		log.Fatalf("watch: %v", err)
	}
}
