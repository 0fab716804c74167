package store

import (
	"sync"
	"sync/atomic"

	"gorm.io/gorm"
)

// Lazy holds a store handle that is opened on first use and then shared for
// the life of the process. Concurrent first callers wait for a single open;
// a failed open is not remembered, so the next caller tries again.
type Lazy struct {
	open func() (*gorm.DB, error)
	mu   sync.Mutex
	db   atomic.Pointer[gorm.DB]
}

func NewLazy(open func() (*gorm.DB, error)) *Lazy {
	return &Lazy{open: open}
}

func (l *Lazy) Get() (*gorm.DB, error) {
	if db := l.db.Load(); db != nil {
		return db, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if db := l.db.Load(); db != nil {
		return db, nil
	}
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	l.db.Store(db)
	return db, nil
}
