package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"bandalloc/pkg/accounts"
	"bandalloc/pkg/config"
	"bandalloc/pkg/store"
)

func main() {
	username := flag.String("username", "", "username to reset")
	password := flag.String("password", "", "new plaintext password (min 6 chars)")
	flag.Parse()
	if *username == "" || *password == "" {
		log.Fatal("--username and --password are required")
	}
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	if err := accounts.New(db, cfg.DefaultRole).ResetPassword(context.Background(), *username, *password); err != nil {
		log.Fatalf("reset failed: %v", err)
	}
	fmt.Printf("Password reset for user %s\n", *username)
}
