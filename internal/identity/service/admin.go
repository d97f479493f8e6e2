package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"certo/internal/audit"
	"certo/internal/identity"
	"certo/internal/policy"
	"certo/pkg/domerrors"
	"certo/pkg/sentinel"
)

// ListUsers returns users for the admin console, newest first, with optional
// role and name/email search filters.
func (s *Service) ListUsers(ctx context.Context, filter identity.Filter) ([]*identity.User, error) {
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// AdminUserUpdate is the allow-list of fields an admin may patch on any user.
// Unlike self-service profile updates it can change role and reset passwords.
type AdminUserUpdate struct {
	FullName    *string `json:"fullName"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	Role        *string `json:"role"`
	CollegeName *string `json:"collegeName"`
	Department  *string `json:"department"`
	Year        *int    `json:"year"`
	IsActive    *bool   `json:"isActive"`
}

// AdminUpdateUser applies a typed partial update to any user record on
// behalf of actorID.
func (s *Service) AdminUpdateUser(ctx context.Context, actorID, userID uuid.UUID, upd AdminUserUpdate) (*identity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerrors.New(domerrors.CodeNotFound, "user does not exist")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}

	if upd.FullName != nil {
		user.FullName = strings.ToLower(strings.TrimSpace(*upd.FullName))
	}
	if upd.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*upd.Email))
	}
	if upd.Role != nil {
		user.Role = policy.ParseRole(*upd.Role)
	}
	if upd.CollegeName != nil {
		user.CollegeName = *upd.CollegeName
	}
	if upd.Department != nil {
		user.Department = *upd.Department
	}
	if upd.Year != nil {
		if *upd.Year < 1 || *upd.Year > 4 {
			return nil, domerrors.New(domerrors.CodeValidation, "year must be between 1 and 4")
		}
		user.Year = *upd.Year
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if upd.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domerrors.New(domerrors.CodeConflict, "email already in use")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update user")
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionUserUpdated,
		Resource:   "user",
		ResourceID: user.ID.String(),
	})
	return user, nil
}

// DeactivateUser soft-deletes a user. Registrations and certificates that
// reference the user are preserved; the account can no longer authenticate.
func (s *Service) DeactivateUser(ctx context.Context, actorID, userID uuid.UUID) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domerrors.New(domerrors.CodeNotFound, "user does not exist")
		}
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}

	user.IsActive = false
	user.RefreshToken = ""
	if err := s.users.Update(ctx, user); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to deactivate user")
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionUserDeactivated,
		Resource:   "user",
		ResourceID: user.ID.String(),
	})
	return nil
}
