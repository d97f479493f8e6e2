package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"certo/internal/audit"
	"certo/internal/identity"
	"certo/internal/identity/provider"
	identitystore "certo/internal/identity/store"
	"certo/internal/identity/token"
	"certo/internal/platform/metrics"
	"certo/internal/platform/objectstore"
	"certo/internal/policy"
	"certo/pkg/domerrors"
)

type stubProvider struct {
	identity *provider.Identity
	err      error
}

func (p *stubProvider) Verify(context.Context, string) (*provider.Identity, error) {
	return p.identity, p.err
}

type captureRecorder struct {
	events []audit.Event
}

func (r *captureRecorder) Record(_ context.Context, ev audit.Event) {
	r.events = append(r.events, ev)
}

func (r *captureRecorder) last() audit.Event {
	return r.events[len(r.events)-1]
}

type IdentityServiceSuite struct {
	suite.Suite
	ctx         context.Context
	svc         *Service
	users       *identitystore.Memory
	files       *objectstore.MemoryStore
	revocations *identitystore.MemoryRevocationList
	provider    *stubProvider
	tokens      *token.Service
	recorder    *captureRecorder
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.users = identitystore.NewMemory()
	s.files = objectstore.NewMemoryStore()
	s.revocations = identitystore.NewMemoryRevocationList()
	s.provider = &stubProvider{}
	s.tokens = token.NewService("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
	s.recorder = &captureRecorder{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	allowList := policy.NewAdminAllowList([]string{"admin@example.com"})
	s.svc = New(s.users, s.tokens, s.files, s.provider, s.revocations, allowList, s.recorder, m, logger)
}

func (s *IdentityServiceSuite) login(email, password string) (*identity.AuthResult, error) {
	return s.svc.Login(s.ctx, LoginInput{Email: email, Password: password})
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		FullName:    "Test User " + email,
		Email:       email,
		Password:    "s3cret-pass",
		CollegeName: "Test College",
		Department:  "CSE",
		Year:        2,
		Avatar: &objectstore.Upload{
			Name:        "avatar.png",
			ContentType: "image/png",
			Reader:      strings.NewReader("png-bytes"),
		},
	}
}

func (s *IdentityServiceSuite) TestRegister() {
	s.Run("creates a user with hashed password and stored avatar", func() {
		user, err := s.svc.Register(s.ctx, registerInput("Alice@Example.com"))
		s.Require().NoError(err)
		s.Equal("alice@example.com", user.Email)
		s.Equal(policy.RoleUser, user.Role)
		s.True(user.IsActive)
		s.NotEqual("s3cret-pass", user.PasswordHash)
		s.NoError(bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
		_, ok := s.files.Get(user.AvatarURL)
		s.True(ok)
	})

	s.Run("allow-listed email becomes admin", func() {
		user, err := s.svc.Register(s.ctx, registerInput("admin@example.com"))
		s.Require().NoError(err)
		s.Equal(policy.RoleAdmin, user.Role)
	})

	s.Run("duplicate email conflicts", func() {
		_, err := s.svc.Register(s.ctx, registerInput("alice@example.com"))
		s.True(domerrors.HasCode(err, domerrors.CodeConflict))
	})

	s.Run("missing fields rejected", func() {
		in := registerInput("bob@example.com")
		in.Department = ""
		_, err := s.svc.Register(s.ctx, in)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("year out of range rejected", func() {
		in := registerInput("bob@example.com")
		in.Year = 5
		_, err := s.svc.Register(s.ctx, in)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("avatar required", func() {
		in := registerInput("bob@example.com")
		in.Avatar = nil
		_, err := s.svc.Register(s.ctx, in)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})
}

func (s *IdentityServiceSuite) TestLogin() {
	user, err := s.svc.Register(s.ctx, registerInput("alice@example.com"))
	s.Require().NoError(err)

	s.Run("valid credentials issue a token pair", func() {
		result, err := s.login("alice@example.com", "s3cret-pass")
		s.Require().NoError(err)
		s.NotEmpty(result.AccessToken)
		s.NotEmpty(result.RefreshToken)
		s.NotNil(result.User.LastLogin)

		claims, err := s.tokens.ValidateAccessToken(result.AccessToken)
		s.Require().NoError(err)
		s.Equal(user.ID.String(), claims.UserID)
		s.Equal("alice@example.com", claims.Email)
	})

	s.Run("wrong password and unknown email are indistinguishable", func() {
		_, badPass := s.login("alice@example.com", "wrong")
		_, badEmail := s.login("nobody@example.com", "s3cret-pass")
		s.True(domerrors.HasCode(badPass, domerrors.CodeUnauthorized))
		s.True(domerrors.HasCode(badEmail, domerrors.CodeUnauthorized))
		s.Equal(badPass.Error(), badEmail.Error())
	})

	s.Run("sign-in is audited with parsed client info", func() {
		_, err := s.svc.Login(s.ctx, LoginInput{
			Email:     "alice@example.com",
			Password:  "s3cret-pass",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		})
		s.Require().NoError(err)

		ev := s.recorder.last()
		s.Equal(audit.ActionUserLogin, ev.Action)
		s.Equal(user.ID.String(), ev.Actor)
		s.Contains(ev.Detail["browser"], "Chrome")
		s.NotEmpty(ev.Detail["os"])
	})

	s.Run("deactivated account cannot log in", func() {
		s.Require().NoError(s.svc.DeactivateUser(s.ctx, uuid.New(), user.ID))
		_, err := s.login("alice@example.com", "s3cret-pass")
		s.True(domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})
}

func (s *IdentityServiceSuite) TestRefreshRotation() {
	_, err := s.svc.Register(s.ctx, registerInput("alice@example.com"))
	s.Require().NoError(err)
	first, err := s.login("alice@example.com", "s3cret-pass")
	s.Require().NoError(err)

	second, err := s.svc.Refresh(s.ctx, first.RefreshToken)
	s.Require().NoError(err)
	s.NotEmpty(second.RefreshToken)

	s.Run("superseded refresh token is rejected as replay", func() {
		_, err := s.svc.Refresh(s.ctx, first.RefreshToken)
		s.True(domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})

	s.Run("current refresh token still rotates", func() {
		third, err := s.svc.Refresh(s.ctx, second.RefreshToken)
		s.Require().NoError(err)
		s.NotEmpty(third.RefreshToken)
	})

	s.Run("garbage token is unauthorized", func() {
		_, err := s.svc.Refresh(s.ctx, "not-a-jwt")
		s.True(domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})
}

func (s *IdentityServiceSuite) TestLogout() {
	user, err := s.svc.Register(s.ctx, registerInput("alice@example.com"))
	s.Require().NoError(err)
	result, err := s.login("alice@example.com", "s3cret-pass")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Logout(s.ctx, user.ID, "jti-123"))

	s.Run("refresh token is cleared", func() {
		_, err := s.svc.Refresh(s.ctx, result.RefreshToken)
		s.True(domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})

	s.Run("access token JTI lands on the revocation list", func() {
		revoked, err := s.revocations.IsRevoked(s.ctx, "jti-123")
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Run("unknown user", func() {
		s.True(domerrors.HasCode(s.svc.Logout(s.ctx, uuid.New(), ""), domerrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestGoogleLogin() {
	s.provider.identity = &provider.Identity{
		Subject: "google-sub-1",
		Email:   "Carol@Example.com",
		Name:    "Carol Jones",
		Picture: "https://lh3.example.com/carol.png",
	}

	s.Run("first login provisions the account", func() {
		result, err := s.svc.GoogleLogin(s.ctx, "provider-token")
		s.Require().NoError(err)
		s.Equal("carol@example.com", result.User.Email)
		s.Equal("google-sub-1", result.User.GoogleID)
		s.Equal(policy.RoleUser, result.User.Role)
		s.NotEmpty(result.AccessToken)
	})

	s.Run("second login reuses the account", func() {
		result, err := s.svc.GoogleLogin(s.ctx, "provider-token")
		s.Require().NoError(err)
		users, err := s.users.List(s.ctx, identity.Filter{})
		s.Require().NoError(err)
		s.Len(users, 1)
		s.Equal("carol@example.com", result.User.Email)
	})

	s.Run("empty token rejected", func() {
		_, err := s.svc.GoogleLogin(s.ctx, "")
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("provider rejection propagates", func() {
		s.provider.identity = nil
		s.provider.err = domerrors.New(domerrors.CodeUnauthorized, "invalid google token")
		_, err := s.svc.GoogleLogin(s.ctx, "provider-token")
		s.True(domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})
}

func (s *IdentityServiceSuite) TestProfile() {
	user, err := s.svc.Register(s.ctx, registerInput("alice@example.com"))
	s.Require().NoError(err)

	s.Run("partial update touches only named fields", func() {
		year := 3
		dept := "ECE"
		updated, err := s.svc.UpdateProfile(s.ctx, user.ID, ProfileUpdate{Year: &year, Department: &dept})
		s.Require().NoError(err)
		s.Equal(3, updated.Year)
		s.Equal("ECE", updated.Department)
		s.Equal("alice@example.com", updated.Email)
	})

	s.Run("empty name rejected", func() {
		blank := "   "
		_, err := s.svc.UpdateProfile(s.ctx, user.ID, ProfileUpdate{FullName: &blank})
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("unknown user", func() {
		_, err := s.svc.GetProfile(s.ctx, uuid.New())
		s.True(domerrors.HasCode(err, domerrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestChangePassword() {
	user, err := s.svc.Register(s.ctx, registerInput("alice@example.com"))
	s.Require().NoError(err)

	s.Run("requires the old password", func() {
		err := s.svc.ChangePassword(s.ctx, user.ID, "wrong", "new-pass")
		s.True(domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})

	s.Run("new password takes effect", func() {
		s.Require().NoError(s.svc.ChangePassword(s.ctx, user.ID, "s3cret-pass", "new-pass"))
		_, err := s.login("alice@example.com", "s3cret-pass")
		s.True(domerrors.HasCode(err, domerrors.CodeUnauthorized))
		_, err = s.login("alice@example.com", "new-pass")
		s.NoError(err)
	})
}

func (s *IdentityServiceSuite) TestAdminOperations() {
	user, err := s.svc.Register(s.ctx, registerInput("alice@example.com"))
	s.Require().NoError(err)
	admin, err := s.svc.Register(s.ctx, registerInput("admin@example.com"))
	s.Require().NoError(err)

	s.Run("list filters by role", func() {
		admins, err := s.svc.ListUsers(s.ctx, identity.Filter{Role: policy.RoleAdmin})
		s.Require().NoError(err)
		s.Require().Len(admins, 1)
		s.Equal("admin@example.com", admins[0].Email)
	})

	s.Run("list filters by search term", func() {
		found, err := s.svc.ListUsers(s.ctx, identity.Filter{Search: "alice"})
		s.Require().NoError(err)
		s.Require().Len(found, 1)
		s.Equal(user.ID, found[0].ID)
	})

	s.Run("admin update can change role and reset password", func() {
		role := "admin"
		password := "reset-pass"
		updated, err := s.svc.AdminUpdateUser(s.ctx, admin.ID, user.ID, AdminUserUpdate{Role: &role, Password: &password})
		s.Require().NoError(err)
		s.Equal(policy.RoleAdmin, updated.Role)

		s.Require().NotEmpty(s.recorder.events)
		ev := s.recorder.last()
		s.Equal(audit.ActionUserUpdated, ev.Action)
		s.Equal(admin.ID.String(), ev.Actor)
		s.Equal(user.ID.String(), ev.ResourceID)

		_, err = s.login("alice@example.com", "reset-pass")
		s.NoError(err)
	})

	s.Run("deactivate is a soft delete", func() {
		s.Require().NoError(s.svc.DeactivateUser(s.ctx, admin.ID, user.ID))
		loaded, err := s.svc.GetProfile(s.ctx, user.ID)
		s.Require().NoError(err)
		s.False(loaded.IsActive)
		ok, err := s.svc.UserExists(s.ctx, user.ID.String())
		s.Require().NoError(err)
		s.False(ok)

		s.Require().NotEmpty(s.recorder.events)
		ev := s.recorder.last()
		s.Equal(audit.ActionUserDeactivated, ev.Action)
		s.Equal(admin.ID.String(), ev.Actor)
	})

	s.Run("unknown user", func() {
		_, err := s.svc.AdminUpdateUser(s.ctx, admin.ID, uuid.New(), AdminUserUpdate{})
		s.True(domerrors.HasCode(err, domerrors.CodeNotFound))
		s.True(domerrors.HasCode(s.svc.DeactivateUser(s.ctx, admin.ID, uuid.New()), domerrors.CodeNotFound))
	})
}
