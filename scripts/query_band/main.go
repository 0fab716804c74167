package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"bandalloc/pkg/apperr"
	"bandalloc/pkg/bands"
	"bandalloc/pkg/config"
	"bandalloc/pkg/store"
)

// query_band reports who holds a band number, polling for a while so it can
// follow a submission dropped into the inbox.
func main() {
	band := flag.Int64("band", 0, "band number")
	wait := flag.Int("wait", 15, "seconds to wait/poll")
	flag.Parse()
	if *band <= 0 {
		log.Fatal("--band is required")
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
	amount, err := cfg.Amount()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	svc := bands.New(db, amount)

	deadline := time.Now().Add(time.Duration(*wait) * time.Second)
	for {
		e, err := svc.FindByBand(context.Background(), *band)
		if err == nil {
			fmt.Printf("FOUND band=%d user=%s name=%s zone=%s amount=%s group=%s\n", e.BandNo, e.UserID, e.Name, e.Zone, e.Amount.StringFixed(2), e.EntryGroupID)
			return
		}
		if apperr.KindOf(err) != apperr.KindNotFound {
			log.Fatalf("query failed: %v", err)
		}
		if time.Now().After(deadline) {
			log.Fatalf("not found after %ds waiting", *wait)
		}
		time.Sleep(2 * time.Second)
	}
}
