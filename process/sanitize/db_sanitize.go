package sanitize

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"bandalloc/models"
	"bandalloc/pkg/config"
	"bandalloc/pkg/listcache"
	"bandalloc/pkg/store"

	"gorm.io/gorm"
)

type Options struct {
	// KeepUsers leaves accounts in place and only clears entries.
	KeepUsers bool
	DryRun    bool
	// OnPurged runs after entries were actually removed, e.g. to drop cached
	// listings.
	OnPurged func(context.Context)
}

type Result struct {
	Entries int64
	Users   int64
}

// Purge clears every entry and, unless KeepUsers is set, every account other
// than admin. With DryRun it only counts what would go.
func Purge(ctx context.Context, db *gorm.DB, opts Options) (Result, error) {
	var res Result
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Entry{}).Count(&res.Entries).Error; err != nil {
			return fmt.Errorf("count entries: %w", err)
		}
		if !opts.KeepUsers {
			if err := tx.Model(&models.User{}).Where("username <> ?", store.AdminUsername).Count(&res.Users).Error; err != nil {
				return fmt.Errorf("count users: %w", err)
			}
		}
		if opts.DryRun {
			return nil
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Entry{}).Error; err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		if !opts.KeepUsers {
			if err := tx.Where("username <> ?", store.AdminUsername).Delete(&models.User{}).Error; err != nil {
				return fmt.Errorf("delete users: %w", err)
			}
		}
		return nil
	})
	if err == nil && !opts.DryRun && opts.OnPurged != nil {
		opts.OnPurged(ctx)
	}
	return res, err
}

// Run executes the db_sanitize CLI behavior. Exported so a small cmd/main can call it.
func Run() {
	var (
		dryRun    = flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
		yes       = flag.Bool("yes", false, "Confirm destructive action (required to actually delete)")
		keepUsers = flag.Bool("keep-users", false, "Only clear entries; keep every account")
		reseed    = flag.Bool("reseed", false, "After clearing, seed the admin account from ADMIN_PASSWORD")
	)
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if !*dryRun && !*yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return
	}
	cache, err := listcache.New(cfg.Cache.RedisURL, cfg.Cache.TTL)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	if r, ok := cache.(*listcache.Redis); ok {
		defer r.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res, err := Purge(ctx, db, Options{KeepUsers: *keepUsers, DryRun: *dryRun, OnPurged: cache.Invalidate})
	if err != nil {
		log.Fatalf("sanitize failed: %v", err)
	}
	if *dryRun {
		fmt.Printf("dry-run: would delete %d entries and %d users. Use --dry-run=false --yes to execute.\n", res.Entries, res.Users)
		return
	}
	log.Printf("Deleted %d entries and %d users.", res.Entries, res.Users)

	if *reseed {
		if err := store.Seed(db, cfg); err != nil {
			log.Fatalf("reseed failed: %v", err)
		}
	}
}
