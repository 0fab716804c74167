package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"bandalloc/models"
	"bandalloc/pkg/accounts"
	"bandalloc/pkg/apperr"
	"bandalloc/pkg/config"
	"bandalloc/pkg/store"
)

func main() {
	role := flag.String("role", "", "role to assign (defaults to DEFAULT_ROLE)")
	zones := flag.String("zones", "", "comma separated zones the user belongs to")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("usage: go run ./cmd/create_user [-role r] [-zones a,b] <username> <password>")
		os.Exit(2)
	}
	username, password := flag.Arg(0), flag.Arg(1)

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	var userZone models.Zones
	if *zones != "" {
		if err := userZone.UnmarshalJSON([]byte(fmt.Sprintf("%q", *zones))); err != nil {
			log.Fatalf("invalid zones: %v", err)
		}
	}
	user, err := accounts.New(db, cfg.DefaultRole).Create(context.Background(), accounts.NewUser{
		Username: username,
		Password: password,
		Role:     *role,
		UserZone: userZone,
	})
	if apperr.KindOf(err) == apperr.KindConflict {
		fmt.Printf("user %s already exists\n", username)
		return
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%s role=%s\n", user.Username, user.ID, user.Role)
}
