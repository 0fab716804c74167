// Package accounts manages the operator accounts that own entries.
//
// An account's username doubles as the owner id stored on entries, so
// renaming or deleting an account carries its entries along inside the same
// transaction.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bandalloc/models"
	"bandalloc/pkg/apperr"
	"bandalloc/pkg/bands"
	"bandalloc/pkg/store"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 6

type Service struct {
	db          *gorm.DB
	defaultRole string
}

func New(db *gorm.DB, defaultRole string) *Service {
	if defaultRole == "" {
		defaultRole = "unassigned"
	}
	return &Service{db: db, defaultRole: defaultRole}
}

// List returns every account ordered by username. Accounts without a role
// report the default role.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		if users[i].Role == "" {
			users[i].Role = s.defaultRole
		}
	}
	return users, nil
}

func (s *Service) Get(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	if user.Role == "" {
		user.Role = s.defaultRole
	}
	return user, nil
}

type NewUser struct {
	Username string       `json:"username" validate:"required"`
	Password string       `json:"password" validate:"required,min=6"`
	Role     string       `json:"role"`
	UserZone models.Zones `json:"userZone"`
}

func (s *Service) Create(ctx context.Context, in NewUser) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Role = strings.TrimSpace(in.Role)
	if err := apperr.ValidateStruct(in); err != nil {
		return models.User{}, err
	}
	if bands.IsReserved(in.Username) {
		return models.User{}, apperr.Validation("username %q is reserved", in.Username)
	}
	if in.Role == "" {
		in.Role = s.defaultRole
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		Username:       in.Username,
		HashedPassword: hashed,
		Role:           in.Role,
		UserZone:       in.UserZone,
		IsAdmin:        in.Username == store.AdminUsername,
	}
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", in.Username).Count(&count).Error; err != nil {
		return models.User{}, fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return models.User{}, apperr.Conflict("User already exists")
	}
	if err := db.Create(&user).Error; err != nil {
		if store.IsUniqueViolation(err) {
			return models.User{}, apperr.Conflict("User already exists")
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Change is a partial account update addressed by id; nil fields are left
// alone.
type Change struct {
	ID       string        `json:"id"`
	Username *string       `json:"username,omitempty"`
	Password *string       `json:"password,omitempty"`
	Role     *string       `json:"role,omitempty"`
	UserZone *models.Zones `json:"userZone,omitempty"`
}

func (s *Service) Update(ctx context.Context, ch Change) (models.User, error) {
	id := strings.TrimSpace(ch.ID)
	if id == "" {
		return models.User{}, apperr.Validation("User ID is required")
	}
	if ch.Username == nil && ch.Password == nil && ch.Role == nil && ch.UserZone == nil {
		return models.User{}, apperr.Validation("Nothing to update")
	}
	var hashed []byte
	if ch.Password != nil {
		if len(*ch.Password) < minPasswordLen {
			return models.User{}, apperr.Validation("password must be at least %d characters", minPasswordLen)
		}
		var err error
		if hashed, err = bcrypt.GenerateFromPassword([]byte(*ch.Password), bcrypt.DefaultCost); err != nil {
			return models.User{}, err
		}
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("User not found")
			}
			return fmt.Errorf("load user: %w", err)
		}
		oldName := user.Username
		if ch.Username != nil {
			newName := strings.TrimSpace(*ch.Username)
			if newName == "" {
				return apperr.Validation("username must not be empty")
			}
			if bands.IsReserved(newName) {
				return apperr.Validation("username %q is reserved", newName)
			}
			if newName != oldName {
				if oldName == store.AdminUsername {
					return apperr.Forbidden("Cannot rename the admin user")
				}
				var taken int64
				if err := tx.Model(&models.User{}).Where("username = ? AND id <> ?", newName, id).Count(&taken).Error; err != nil {
					return fmt.Errorf("check username: %w", err)
				}
				if taken > 0 {
					return apperr.Conflict("Username already exists")
				}
				user.Username = newName
			}
		}
		if hashed != nil {
			user.HashedPassword = hashed
		}
		if ch.Role != nil {
			user.Role = strings.TrimSpace(*ch.Role)
		}
		if ch.UserZone != nil {
			user.UserZone = *ch.UserZone
		}
		if err := tx.Save(&user).Error; err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.Conflict("Username already exists")
			}
			return fmt.Errorf("update user: %w", err)
		}
		if user.Username != oldName {
			if err := tx.Model(&models.Entry{}).Where("user_id = ?", oldName).Update("user_id", user.Username).Error; err != nil {
				return fmt.Errorf("move entries to %s: %w", user.Username, err)
			}
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	if user.Role == "" {
		user.Role = s.defaultRole
	}
	return user, nil
}

// Delete removes the account and every entry it owns, returning how many
// entries went with it. The admin account cannot be deleted.
func (s *Service) Delete(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, apperr.Validation("Username is required")
	}
	if username == store.AdminUsername {
		return 0, apperr.Forbidden("Cannot delete the admin user")
	}
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("User not found")
			}
			return fmt.Errorf("load user: %w", err)
		}
		res := tx.Where("user_id = ?", username).Delete(&models.Entry{})
		if res.Error != nil {
			return fmt.Errorf("delete entries of %s: %w", username, res.Error)
		}
		removed = res.RowsAffected
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Authenticate checks a username and password pair. Both unknown users and
// wrong passwords report the same unauthorized error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.Get(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return models.User{}, apperr.Unauthorized("invalid credentials")
		}
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, apperr.Unauthorized("invalid credentials")
	}
	return user, nil
}

// ResetPassword replaces the password of username.
func (s *Service) ResetPassword(ctx context.Context, username, password string) error {
	if len(password) < minPasswordLen {
		return apperr.Validation("password must be at least %d characters", minPasswordLen)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", strings.TrimSpace(username)).
		Update("hashed_password", hashed)
	if res.Error != nil {
		return fmt.Errorf("reset password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}
