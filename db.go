package main

import (
	"bandalloc/pkg/accounts"
	"bandalloc/pkg/bands"
	"bandalloc/pkg/config"
	"bandalloc/pkg/store"

	"gorm.io/gorm"
)

// newLazyStore defers connecting until the first request needs the store.
// A failed connect is retried by the next request.
func newLazyStore(cfg config.Config) *store.Lazy {
	return store.NewLazy(func() (*gorm.DB, error) {
		return store.Open(cfg)
	})
}

func (s *server) bandService() (*bands.Service, error) {
	db, err := s.store.Get()
	if err != nil {
		return nil, err
	}
	return bands.New(db, s.amount), nil
}

func (s *server) accountService() (*accounts.Service, error) {
	db, err := s.store.Get()
	if err != nil {
		return nil, err
	}
	return accounts.New(db, s.cfg.DefaultRole), nil
}
