// Package store opens the relational store behind the service, keeps its
// schema current and hands out the process-wide cached handle.
package store

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"bandalloc/models"
	"bandalloc/pkg/config"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const AdminUsername = "admin"

// Open connects to the configured store, migrates it when enabled and seeds
// the admin account.
func Open(cfg config.Config) (*gorm.DB, error) {
	models.EntriesTable = cfg.Database.EntriesTable

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(withDatabaseName(cfg.Database.DSN, cfg.Database.Name))
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s database: %w", cfg.Database.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "sqlite" {
		// one connection keeps in-memory databases shared and serialises writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if cfg.Database.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	if err := Seed(db, cfg); err != nil {
		log.Printf("seed warning: %v", err)
	}
	return db, nil
}

// Migrate creates or updates the users and entries tables, including the
// unique index on band numbers.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("migration (users): %w", err)
	}
	if err := db.AutoMigrate(&models.Entry{}); err != nil {
		return fmt.Errorf("migration (%s): %w", models.EntriesTable, err)
	}
	return nil
}

// Seed creates the admin account when ADMIN_PASSWORD is configured and the
// account does not exist yet. Without a password nothing is seeded.
func Seed(db *gorm.DB, cfg config.Config) error {
	if cfg.Auth.AdminPassword == "" {
		return nil
	}
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", AdminUsername).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{
		Username:       AdminUsername,
		HashedPassword: hashed,
		Role:           "administrator",
		IsAdmin:        true,
	}
	if err := db.Create(&admin).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return err
	}
	log.Println("Seeded admin user: username=admin")
	return nil
}

// withDatabaseName points a postgres DSN at name, for both the URL and the
// keyword/value forms. An empty name leaves the DSN untouched.
func withDatabaseName(dsn, name string) string {
	if name == "" {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		u.Path = "/" + name
		return u.String()
	}
	fields := strings.Fields(dsn)
	out := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "dbname=") {
			continue
		}
		out = append(out, f)
	}
	out = append(out, "dbname="+name)
	return strings.Join(out, " ")
}
