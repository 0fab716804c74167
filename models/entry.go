package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EntriesTable is the table backing Entry. Set it before the first query;
// gorm caches the parsed schema afterwards.
var EntriesTable = "entries"

func init() {
	// amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Entry is one allocated band number.
type Entry struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	BandNo       int64           `gorm:"uniqueIndex:idx_entries_band_no;not null" json:"bandNo"`
	Name         string          `gorm:"size:255" json:"name"`
	Zone         string          `gorm:"size:64;index" json:"zone"`
	Community    string          `gorm:"size:255" json:"community"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	UserID       string          `gorm:"size:255;index;not null" json:"userId"`
	EntryGroupID string          `gorm:"size:64;index" json:"entryGroupId"`
	Edited       bool            `gorm:"default:false" json:"edited"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (Entry) TableName() string {
	return EntriesTable
}

// BeforeCreate assigns the identifier; clients never supply one.
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
