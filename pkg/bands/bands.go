// Package bands allocates band numbers to people and keeps every band number
// unique across the entries table.
//
// Uniqueness is enforced by the unique index on band_no. The lookup that runs
// before an insert or update only exists to name the current holder of a
// colliding band; a unique violation raised by the store is treated as the
// same conflict.
package bands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bandalloc/models"
	"bandalloc/pkg/apperr"
	"bandalloc/pkg/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// AllUsers selects every entry in listing, summary and bulk delete.
	AllUsers = "all"
	// DefaultUser is the owner assumed when a listing names none.
	DefaultUser = "user1"

	SortBand   = "band"
	SortRecent = "recent"
)

var errBandTaken = errors.New("band number taken")

// IsReserved reports whether name is the AllUsers selector, which can never
// own entries or name an account.
func IsReserved(name string) bool {
	return strings.TrimSpace(name) == AllUsers
}

type Service struct {
	db            *gorm.DB
	defaultAmount decimal.Decimal
	now           func() time.Time
}

func New(db *gorm.DB, defaultAmount decimal.Decimal) *Service {
	return &Service{db: db, defaultAmount: defaultAmount, now: time.Now}
}

// Submission is one create request: a list of band numbers sharing the same
// person, zone and community. EntryID names an existing group of the same
// user that the submission replaces.
type Submission struct {
	UserID        string           `json:"userId" validate:"required"`
	Bands         []int64          `json:"bands" validate:"required,min=1,unique,dive,gt=0"`
	Name          string           `json:"name" validate:"required"`
	Zone          string           `json:"zone" validate:"required"`
	Community     string           `json:"community" validate:"required"`
	AmountPerBand *decimal.Decimal `json:"amountPerBand,omitempty"`
	EntryID       string           `json:"entryId,omitempty"`
}

func (s Submission) normalized() Submission {
	s.UserID = strings.TrimSpace(s.UserID)
	s.Name = strings.TrimSpace(s.Name)
	s.Zone = strings.TrimSpace(s.Zone)
	s.Community = strings.TrimSpace(s.Community)
	s.EntryID = strings.TrimSpace(s.EntryID)
	return s
}

type Allocation struct {
	IDs           []string  `json:"ids"`
	EntryGroupID  string    `json:"entryGroupId"`
	ReplacedCount int64     `json:"replacedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Allocate stores one entry per submitted band. Either every band is
// inserted or none is; in edit mode the replaced group is only removed when
// the new bands go in.
func (s *Service) Allocate(ctx context.Context, sub Submission) (Allocation, error) {
	sub = sub.normalized()
	if err := apperr.ValidateStruct(sub); err != nil {
		return Allocation{}, err
	}
	if IsReserved(sub.UserID) {
		return Allocation{}, apperr.Validation("userId %q is reserved", sub.UserID)
	}
	amount := s.defaultAmount
	if sub.AmountPerBand != nil && !sub.AmountPerBand.IsZero() {
		if sub.AmountPerBand.IsNegative() {
			return Allocation{}, apperr.Validation("amountPerBand must not be negative")
		}
		amount = *sub.AmountPerBand
	}
	groupID := sub.EntryID
	if groupID == "" {
		groupID = uuid.NewString()
	}
	now := s.now().UTC()

	var out Allocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var replaced int64
		if sub.EntryID != "" {
			res := tx.Where("user_id = ? AND entry_group_id = ?", sub.UserID, sub.EntryID).Delete(&models.Entry{})
			if res.Error != nil {
				return fmt.Errorf("remove previous group: %w", res.Error)
			}
			replaced = res.RowsAffected
		}

		dups, err := holders(tx, sub.Bands)
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			return apperr.DuplicateBands(dups)
		}

		rows := make([]models.Entry, len(sub.Bands))
		for i, band := range sub.Bands {
			rows[i] = models.Entry{
				BandNo:       band,
				Name:         sub.Name,
				Zone:         sub.Zone,
				Community:    sub.Community,
				Amount:       amount,
				UserID:       sub.UserID,
				EntryGroupID: groupID,
				Edited:       replaced > 0,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			if store.IsUniqueViolation(err) {
				return errBandTaken
			}
			return fmt.Errorf("insert entries: %w", err)
		}

		out = Allocation{
			IDs:           make([]string, len(rows)),
			EntryGroupID:  groupID,
			ReplacedCount: replaced,
			CreatedAt:     now,
		}
		for i, row := range rows {
			out.IDs[i] = row.ID
		}
		return nil
	})
	if errors.Is(err, errBandTaken) {
		return Allocation{}, s.takenConflict(ctx, sub.Bands)
	}
	if err != nil {
		return Allocation{}, err
	}
	return out, nil
}

// takenConflict names the holders of bands after a concurrent writer won the
// unique index race.
func (s *Service) takenConflict(ctx context.Context, bands []int64) error {
	dups, err := holders(s.db.WithContext(ctx), bands)
	if err != nil || len(dups) == 0 {
		return apperr.Conflict("Duplicate band numbers found")
	}
	return apperr.DuplicateBands(dups)
}

func holders(tx *gorm.DB, bands []int64) ([]apperr.Duplicate, error) {
	var existing []models.Entry
	if err := tx.Select("band_no", "user_id").Where("band_no IN ?", bands).Order("band_no").Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("check duplicate bands: %w", err)
	}
	dups := make([]apperr.Duplicate, 0, len(existing))
	for _, e := range existing {
		dups = append(dups, apperr.Duplicate{BandNo: e.BandNo, User: e.UserID})
	}
	return dups, nil
}

// FindByBand returns the entry currently holding band.
func (s *Service) FindByBand(ctx context.Context, band int64) (models.Entry, error) {
	var e models.Entry
	err := s.db.WithContext(ctx).Where("band_no = ?", band).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Entry{}, apperr.NotFound("Band %d is not allocated", band)
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("find band %d: %w", band, err)
	}
	return e, nil
}

type ListQuery struct {
	UserID string
	Sort   string
}

// List returns the entries of one user, or of everyone for AllUsers.
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.Entry, error) {
	order, err := orderFor(q.Sort)
	if err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(q.UserID)
	if userID == "" {
		userID = DefaultUser
	}
	query := s.db.WithContext(ctx).Model(&models.Entry{})
	if userID != AllUsers {
		query = query.Where("user_id = ?", userID)
	}
	entries := []models.Entry{}
	if err := query.Order(order).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// NormalizeSort maps the accepted sort spellings onto SortBand or SortRecent.
func NormalizeSort(sort string) (string, error) {
	switch strings.TrimSpace(sort) {
	case "", SortBand, "bandNo":
		return SortBand, nil
	case SortRecent, "createdAt":
		return SortRecent, nil
	}
	return "", apperr.Validation("sort must be %q or %q", SortBand, SortRecent)
}

func orderFor(sort string) (string, error) {
	s, err := NormalizeSort(sort)
	if err != nil {
		return "", err
	}
	if s == SortRecent {
		return "created_at DESC, band_no ASC", nil
	}
	return "band_no ASC", nil
}

// Update is a partial change to one entry; nil fields are left alone.
type Update struct {
	ID        string           `json:"id"`
	NewBandNo *int64           `json:"newBandNo,omitempty"`
	Name      *string          `json:"name,omitempty"`
	Zone      *string          `json:"zone,omitempty"`
	Community *string          `json:"community,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

func (s *Service) Update(ctx context.Context, u Update) (int64, error) {
	id := strings.TrimSpace(u.ID)
	if id == "" {
		return 0, apperr.Validation("Entry ID is required")
	}
	updates := map[string]any{}
	if u.NewBandNo != nil {
		if *u.NewBandNo <= 0 {
			return 0, apperr.Validation("newBandNo must be greater than 0")
		}
		updates["band_no"] = *u.NewBandNo
	}
	for col, v := range map[string]*string{"name": u.Name, "zone": u.Zone, "community": u.Community} {
		if v == nil {
			continue
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			return 0, apperr.Validation("%s must not be empty", col)
		}
		updates[col] = trimmed
	}
	if u.Amount != nil {
		if u.Amount.IsNegative() {
			return 0, apperr.Validation("amount must not be negative")
		}
		updates["amount"] = *u.Amount
	}
	if len(updates) == 0 {
		return 0, apperr.Validation("Nothing to update")
	}
	updates["updated_at"] = s.now().UTC()

	var modified int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Entry
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Entry not found")
			}
			return fmt.Errorf("load entry: %w", err)
		}
		if u.NewBandNo != nil && *u.NewBandNo != current.BandNo {
			var holder models.Entry
			res := tx.Where("band_no = ? AND id <> ?", *u.NewBandNo, id).Limit(1).Find(&holder)
			if res.Error != nil {
				return fmt.Errorf("check duplicate band: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				return bandExists(holder.BandNo, holder.UserID)
			}
		}
		res := tx.Model(&models.Entry{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			if store.IsUniqueViolation(res.Error) {
				return errBandTaken
			}
			return fmt.Errorf("update entry: %w", res.Error)
		}
		modified = res.RowsAffected
		return nil
	})
	if errors.Is(err, errBandTaken) {
		return 0, s.bandTaken(ctx, *u.NewBandNo)
	}
	if err != nil {
		return 0, err
	}
	return modified, nil
}

// bandTaken names the holder of band after an update lost the unique index
// race. The losing transaction is already rolled back, so the lookup runs
// outside it.
func (s *Service) bandTaken(ctx context.Context, band int64) error {
	dups, err := holders(s.db.WithContext(ctx), []int64{band})
	if err != nil || len(dups) == 0 {
		return apperr.Conflict("Band number already exists")
	}
	return bandExists(dups[0].BandNo, dups[0].User)
}

func bandExists(band int64, user string) error {
	return &apperr.Error{
		Kind:       apperr.KindConflict,
		Message:    "Band number already exists",
		Duplicates: []apperr.Duplicate{{BandNo: band, User: user}},
	}
}

// DeleteQuery mirrors the query parameters of a delete request. The first
// non-empty selector wins: ID, then BandNo, then UserID == AllUsers.
type DeleteQuery struct {
	ID     string
	BandNo string
	UserID string
}

func (s *Service) Delete(ctx context.Context, q DeleteQuery) (int64, error) {
	id := strings.TrimSpace(q.ID)
	band := strings.TrimSpace(q.BandNo)
	user := strings.TrimSpace(q.UserID)
	switch {
	case id != "":
		return s.DeleteByID(ctx, id)
	case band != "":
		n, err := strconv.ParseInt(band, 10, 64)
		if err != nil {
			return 0, apperr.Validation("bandNo must be an integer")
		}
		if user == AllUsers {
			user = ""
		}
		return s.DeleteByBand(ctx, n, user)
	case user == AllUsers:
		return s.DeleteAll(ctx)
	}
	return 0, apperr.Validation("Missing id or bandNo")
}

func (s *Service) DeleteByID(ctx context.Context, id string) (int64, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, apperr.NotFound("Entry not found")
	}
	return res.RowsAffected, nil
}

// DeleteByBand removes the entries holding band, optionally only when owned
// by userID. Zero matches is not an error.
func (s *Service) DeleteByBand(ctx context.Context, band int64, userID string) (int64, error) {
	q := s.db.WithContext(ctx).Where("band_no = ?", band)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Delete(&models.Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete band %d: %w", band, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete all entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}
