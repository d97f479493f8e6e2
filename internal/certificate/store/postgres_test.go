//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certo/internal/certificate"
	"certo/pkg/sentinel"
	"certo/pkg/testutil/containers"
)

type PostgresCertificateSuite struct {
	suite.Suite
	ctx   context.Context
	store *Postgres
}

func TestPostgresCertificateSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	pc := containers.NewPostgresContainer(t)
	suite.Run(t, &PostgresCertificateSuite{store: NewPostgres(pc.DB)})
}

func (s *PostgresCertificateSuite) SetupTest() {
	s.ctx = context.Background()
	_, err := s.store.db.ExecContext(s.ctx, `TRUNCATE certificates`)
	s.Require().NoError(err)
}

func (s *PostgresCertificateSuite) newCertificate(userID, eventID uuid.UUID) *certificate.Certificate {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &certificate.Certificate{
		ID:         uuid.New(),
		UserID:     userID,
		EventID:    eventID,
		Score:      82.5,
		IssuedDate: now,
		FileURL:    "/files/" + uuid.NewString() + ".pdf",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *PostgresCertificateSuite) TestPairUniqueness() {
	userID, eventID := uuid.New(), uuid.New()
	s.Require().NoError(s.store.Create(s.ctx, s.newCertificate(userID, eventID)))

	s.Run("second certificate for the pair conflicts", func() {
		err := s.store.Create(s.ctx, s.newCertificate(userID, eventID))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("other event for the same user is fine", func() {
		s.NoError(s.store.Create(s.ctx, s.newCertificate(userID, uuid.New())))
	})
}

func (s *PostgresCertificateSuite) TestRoundTrip() {
	c := s.newCertificate(uuid.New(), uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, c))

	got, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.ID, got.ID)
	s.Equal(82.5, got.Score)
	s.False(got.IsRevoked)
	s.Nil(got.RevokedDate)

	_, err = s.store.FindByID(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresCertificateSuite) TestRevocationRoundTrip() {
	c := s.newCertificate(uuid.New(), uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, c))

	now := time.Now().UTC().Truncate(time.Microsecond)
	c.IsRevoked = true
	c.RevokedDate = &now
	c.RevokedReason = "issued against the wrong event"
	c.UpdatedAt = now
	s.Require().NoError(s.store.Update(s.ctx, c))

	got, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.True(got.IsRevoked)
	s.Require().NotNil(got.RevokedDate)
	s.Equal("issued against the wrong event", got.RevokedReason)
}

func (s *PostgresCertificateSuite) TestListByUserNewestFirst() {
	userID := uuid.New()
	older := s.newCertificate(userID, uuid.New())
	older.IssuedDate = older.IssuedDate.Add(-time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, older))
	newer := s.newCertificate(userID, uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, newer))

	certs, err := s.store.ListByUser(s.ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(certs, 2)
	s.Equal(newer.ID, certs[0].ID)
	s.Equal(older.ID, certs[1].ID)
}

func (s *PostgresCertificateSuite) TestDelete() {
	c := s.newCertificate(uuid.New(), uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, c))
	s.Require().NoError(s.store.Delete(s.ctx, c.ID))
	_, err := s.store.FindByID(s.ctx, c.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, c.ID), sentinel.ErrNotFound)
}
