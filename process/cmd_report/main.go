package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"bandalloc/pkg/bands"
	"bandalloc/pkg/config"
	"bandalloc/pkg/store"
	"bandalloc/process/report"
)

func main() {
	userID := flag.String("user", bands.AllUsers, "user to report for (all for everyone)")
	list := flag.Bool("list", false, "list matching entries")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	amount, err := cfg.Amount()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := report.RunReport(context.Background(), os.Stdout, bands.New(db, amount), *userID, *list); err != nil {
		log.Fatalf("report: %v", err)
	}
}
