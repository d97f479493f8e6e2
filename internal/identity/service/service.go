// Package service implements the identity and credential manager: user
// registration, password verification, token issuance and rotation, social
// login, and admin user management.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"certo/internal/audit"
	"certo/internal/identity"
	"certo/internal/identity/provider"
	"certo/internal/identity/token"
	"certo/internal/platform/metrics"
	"certo/internal/platform/objectstore"
	"certo/internal/policy"
	"certo/pkg/domerrors"
	"certo/pkg/sentinel"
)

// UserStore is the persistence port for users.
type UserStore interface {
	Create(ctx context.Context, u *identity.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	FindByEmail(ctx context.Context, email string) (*identity.User, error)
	ExistsByName(ctx context.Context, fullName string) (bool, error)
	Update(ctx context.Context, u *identity.User) error
	List(ctx context.Context, filter identity.Filter) ([]*identity.User, error)
}

// RevocationList tracks revoked access-token JTIs.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Recorder receives audit events for sign-ins and admin user mutations.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event)
}

// Service orchestrates identity operations.
type Service struct {
	users       UserStore
	tokens      *token.Service
	files       objectstore.Store
	provider    provider.Provider
	revocations RevocationList
	allowList   policy.AdminAllowList
	recorder    Recorder
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(
	users UserStore,
	tokens *token.Service,
	files objectstore.Store,
	idp provider.Provider,
	revocations RevocationList,
	allowList policy.AdminAllowList,
	recorder Recorder,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:       users,
		tokens:      tokens,
		files:       files,
		provider:    idp,
		revocations: revocations,
		allowList:   allowList,
		recorder:    recorder,
		metrics:     m,
		logger:      logger,
	}
}

// RegisterInput carries everything needed to create an account.
type RegisterInput struct {
	FullName    string
	Email       string
	Password    string
	CollegeName string
	Department  string
	Year        int
	Avatar      *objectstore.Upload
}

// Register creates a user. The role comes from the admin allow-list, never
// from the caller.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*identity.User, error) {
	in.FullName = strings.ToLower(strings.TrimSpace(in.FullName))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.FullName == "" || in.Email == "" || in.Password == "" ||
		in.CollegeName == "" || in.Department == "" || in.Year == 0 {
		return nil, domerrors.New(domerrors.CodeValidation, "please fill all the fields")
	}
	if in.Year < 1 || in.Year > 4 {
		return nil, domerrors.New(domerrors.CodeValidation, "year must be between 1 and 4")
	}
	if in.Avatar == nil {
		return nil, domerrors.New(domerrors.CodeValidation, "avatar is required")
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, domerrors.New(domerrors.CodeConflict, "user already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to check existing user")
	}
	taken, err := s.users.ExistsByName(ctx, in.FullName)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to check existing user")
	}
	if taken {
		return nil, domerrors.New(domerrors.CodeConflict, "user already exists")
	}

	avatarURL, err := s.files.Put(ctx, *in.Avatar)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeUpload, "failed to upload avatar")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &identity.User{
		ID:           uuid.New(),
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         s.allowList.RoleFor(in.Email),
		CollegeName:  in.CollegeName,
		Department:   in.Department,
		Year:         in.Year,
		AvatarURL:    avatarURL,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domerrors.New(domerrors.CodeConflict, "user already exists")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to create user")
	}

	if s.metrics != nil {
		s.metrics.UsersRegistered.Inc()
	}
	return user, nil
}

// LoginInput carries the credentials plus the client's User-Agent header,
// recorded on the sign-in audit event.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

// Login verifies credentials and issues a fresh token pair. The stored
// refresh token is replaced wholesale, invalidating any previous one.
func (s *Service) Login(ctx context.Context, in LoginInput) (*identity.AuthResult, error) {
	if in.Email == "" || in.Password == "" {
		return nil, domerrors.New(domerrors.CodeValidation, "all fields are required")
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Deliberately indistinguishable from a wrong password.
			return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}
	if !user.IsActive {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid email or password")
	}

	result, err := s.issueTokenPair(ctx, user, true)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.Event{
		Actor:      user.ID.String(),
		Action:     audit.ActionUserLogin,
		Resource:   "user",
		ResourceID: user.ID.String(),
		Detail:     clientDetail(in.UserAgent),
	})
	return result, nil
}

// clientDetail parses the User-Agent header into audit fields. An empty or
// unrecognized header yields no detail.
func clientDetail(rawUA string) map[string]string {
	if rawUA == "" {
		return nil
	}
	ua := useragent.New(rawUA)
	detail := make(map[string]string)
	if name, version := ua.Browser(); name != "" {
		detail["browser"] = strings.TrimSpace(name + " " + version)
	}
	if os := ua.OS(); os != "" {
		detail["os"] = os
	}
	if ua.Bot() {
		detail["bot"] = "true"
	} else if ua.Mobile() {
		detail["device"] = "mobile"
	}
	if len(detail) == 0 {
		return nil
	}
	return detail
}

// Refresh rotates the token pair. The presented token must exactly match the
// user's stored refresh token; a superseded token is rejected as replay.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*identity.AuthResult, error) {
	if refreshToken == "" {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "provide refresh token")
	}

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid token")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerrors.New(domerrors.CodeUnauthorized, "user not found with this token")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}
	if user.RefreshToken != refreshToken {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "unauthorized token")
	}

	return s.issueTokenPair(ctx, user, false)
}

func (s *Service) issueTokenPair(ctx context.Context, user *identity.User, countLogin bool) (*identity.AuthResult, error) {
	access, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to sign access token")
	}
	refresh, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to sign refresh token")
	}

	now := time.Now().UTC()
	user.RefreshToken = refresh
	user.LastLogin = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to persist refresh token")
	}

	if countLogin && s.metrics != nil {
		s.metrics.Logins.Inc()
	}
	return &identity.AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Logout clears the stored refresh token and revokes the presented access
// token until its natural expiry.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, accessJTI string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domerrors.New(domerrors.CodeNotFound, "user not found")
		}
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}

	user.RefreshToken = ""
	if err := s.users.Update(ctx, user); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to clear refresh token")
	}

	if s.revocations != nil && accessJTI != "" {
		if err := s.revocations.Revoke(ctx, accessJTI, s.tokens.AccessTTL()); err != nil {
			// Logout still succeeded server-side; the token simply ages out.
			s.logger.WarnContext(ctx, "failed to revoke access token", "error", err)
		}
	}
	return nil
}

// GoogleLogin verifies a provider token and finds or creates the local user.
// Provider-created accounts have no password and the default user role.
func (s *Service) GoogleLogin(ctx context.Context, providerToken string) (*identity.AuthResult, error) {
	if providerToken == "" {
		return nil, domerrors.New(domerrors.CodeValidation, "google token is required")
	}

	ident, err := s.provider.Verify(ctx, providerToken)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(ident.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		now := time.Now().UTC()
		user = &identity.User{
			ID:        uuid.New(),
			FullName:  strings.ToLower(ident.Name),
			Email:     email,
			Role:      policy.RoleUser,
			AvatarURL: ident.Picture,
			GoogleID:  ident.Subject,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to create user")
		}
		if s.metrics != nil {
			s.metrics.UsersRegistered.Inc()
		}
	} else if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}

	access, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to sign access token")
	}
	if s.metrics != nil {
		s.metrics.Logins.Inc()
	}
	return &identity.AuthResult{User: user, AccessToken: access}, nil
}

// GetProfile loads a user by id.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*identity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerrors.New(domerrors.CodeNotFound, "user not found")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// ProfileUpdate is the allow-list of self-service mutable fields.
type ProfileUpdate struct {
	FullName    *string `json:"fullName"`
	Email       *string `json:"email"`
	CollegeName *string `json:"collegeName"`
	Department  *string `json:"department"`
	Year        *int    `json:"year"`
}

// UpdateProfile applies a typed partial update to the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*identity.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.FullName != nil {
		name := strings.ToLower(strings.TrimSpace(*upd.FullName))
		if name == "" {
			return nil, domerrors.New(domerrors.CodeValidation, "full name must not be empty")
		}
		user.FullName = name
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if email == "" {
			return nil, domerrors.New(domerrors.CodeValidation, "email must not be empty")
		}
		user.Email = email
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

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domerrors.New(domerrors.CodeConflict, "email already in use")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update user")
	}
	return user, nil
}

// ChangePassword requires proof of the old password.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return domerrors.New(domerrors.CodeValidation, "all fields are required")
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return domerrors.New(domerrors.CodeUnauthorized, "please provide correct password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to hash password")
	}
	user.PasswordHash = string(hash)
	if err := s.users.Update(ctx, user); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to update password")
	}
	return nil
}

// UserExists implements the middleware's user check: the user must still
// exist and be active for the token to remain usable.
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return false, nil
	}
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsActive, nil
}
