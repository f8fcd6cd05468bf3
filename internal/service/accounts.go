// Package service holds the business flows behind the HTTP handlers:
// account management and the document upload/delete orchestration.
package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/securevault/internal/metrics"
	"github.com/iliyamo/securevault/internal/model"
	"github.com/iliyamo/securevault/internal/repository"
	"github.com/iliyamo/securevault/internal/utils"
)

// UserStore is the credential store.
type UserStore interface {
	Create(ctx context.Context, name, email, password string, cost int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	EmailTaken(ctx context.Context, email, exceptID string) (bool, error)
	UpdateProfile(ctx context.Context, id string, name, email *string) error
	UpdatePassword(ctx context.Context, id, password string, cost int) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ProfileUpdate carries the optional fields of a profile edit.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// AccountService registers, authenticates and manages users.
type AccountService struct {
	users   UserStore
	docs    DocumentStore
	blobs   BlobStore
	metrics *metrics.Metrics
	cost    int
	now     func() time.Time
}

// NewAccountService wires the account flows.  cost is the bcrypt cost.
func NewAccountService(users UserStore, docs DocumentStore, blobs BlobStore, m *metrics.Metrics, cost int) *AccountService {
	return &AccountService{users: users, docs: docs, blobs: blobs, metrics: m, cost: cost, now: time.Now}
}

func validateName(fe fieldErrors, name string) {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 2 || n > 100 {
		fe.add("name", "name must be between 2 and 100 characters")
	}
}

func validateEmail(fe fieldErrors, email string) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		fe.add("email", "email must be a valid address")
	}
}

func validatePassword(fe fieldErrors, field, password string) {
	if len(password) < utils.MinPasswordLength {
		fe.add(field, "password must be at least 6 characters long")
	}
}

// Register creates a user and records the login that implicitly follows.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid("All fields are required: name, email, password")
	}
	fe := fieldErrors{}
	validateName(fe, name)
	validateEmail(fe, email)
	validatePassword(fe, "password", password)
	if err := fe.err(); err != nil {
		return nil, err
	}

	u, err := s.users.Create(ctx, name, email, password, s.cost)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, u)
	return u, nil
}

// Login checks credentials.  Unknown email and bad password are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid("Email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	s.touch(ctx, u)
	return u, nil
}

func (s *AccountService) touch(ctx context.Context, u *model.User) {
	at := s.now().UTC().Truncate(time.Second)
	if err := s.users.TouchLastLogin(ctx, u.ID, at); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("record last login")
		return
	}
	u.LastLogin = &at
}

// UpdateProfile changes name and/or email and returns the updated user.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		upd.Name = nil
	}
	if upd.Email != nil && strings.TrimSpace(*upd.Email) == "" {
		upd.Email = nil
	}
	if upd.Name == nil && upd.Email == nil {
		return nil, ErrNoUpdates
	}
	fe := fieldErrors{}
	if upd.Name != nil {
		validateName(fe, *upd.Name)
	}
	if upd.Email != nil {
		validateEmail(fe, *upd.Email)
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	if upd.Email != nil {
		taken, err := s.users.EmailTaken(ctx, *upd.Email, userID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, repository.ErrEmailExists
		}
	}
	if err := s.users.UpdateProfile(ctx, userID, upd.Name, upd.Email); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return invalid("Current password and new password are required")
	}
	if len(next) < utils.MinPasswordLength {
		return invalid("New password must be at least 6 characters long")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return ErrWrongPassword
	}
	return s.users.UpdatePassword(ctx, userID, next, s.cost)
}

// DeleteAccount removes the user after a password check.  Every owned blob
// is deleted first on a best-effort basis; the metadata rows go with the
// user through the foreign key cascade.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, password string) error {
	if password == "" {
		return invalid("Password is required to delete account")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return ErrWrongPassword
	}

	keys, err := s.docs.ListKeysByOwner(ctx, userID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		err := s.blobs.Delete(ctx, key)
		s.metrics.RecordBlobOp("delete", err)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("key", key).Msg("account deletion: blob not removed")
		}
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	log.Info().Str("user_id", userID).Int("blobs", len(keys)).Msg("account deleted")
	return nil
}
