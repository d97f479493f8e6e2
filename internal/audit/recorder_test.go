package audit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certo/internal/audit"
	"certo/internal/audit/mocks"
)

type RecorderSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockPublisher
	recorder  *audit.Recorder
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.recorder = audit.NewRecorder(s.publisher, logger)
}

func (s *RecorderSuite) TestDeliversRecordedEvents() {
	delivered := make(chan audit.Event, 1)
	s.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev audit.Event) error {
			delivered <- ev
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	go s.recorder.Run(ctx)

	s.recorder.Record(context.Background(), audit.Event{
		Actor:    "admin-1",
		Action:   audit.ActionEventCreated,
		Resource: "event",
	})

	select {
	case ev := <-delivered:
		s.Equal("admin-1", ev.Actor)
		s.Equal(audit.ActionEventCreated, ev.Action)
		s.False(ev.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		s.Fail("event was not delivered")
	}

	cancel()
	s.recorder.Wait()
}

func (s *RecorderSuite) TestFlushesPendingEventsOnShutdown() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	for range 3 {
		s.recorder.Record(context.Background(), audit.Event{Action: audit.ActionRegistrationGraded})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(s.recorder.Run(ctx), context.Canceled)
	s.recorder.Wait()
}

func (s *RecorderSuite) TestDropsWhenInboxIsFull() {
	// Inbox holds 256; the worker is not running, so the rest are dropped.
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(256)

	for range 300 {
		s.recorder.Record(context.Background(), audit.Event{Action: audit.ActionUserUpdated})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(s.recorder.Run(ctx), context.Canceled)
	s.recorder.Wait()
}

func (s *RecorderSuite) TestPublishErrorDoesNotStopTheWorker() {
	first := s.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Return(context.DeadlineExceeded)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).After(first)

	s.recorder.Record(context.Background(), audit.Event{Action: audit.ActionCertificateIssued})
	s.recorder.Record(context.Background(), audit.Event{Action: audit.ActionCertificateDeleted})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(s.recorder.Run(ctx), context.Canceled)
	s.recorder.Wait()
}
