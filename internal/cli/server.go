package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	adminhandler "certo/internal/admin/handler"
	analyticssvc "certo/internal/analytics/service"
	"certo/internal/audit"
	certificatehandler "certo/internal/certificate/handler"
	certificatesvc "certo/internal/certificate/service"
	certificatestore "certo/internal/certificate/store"
	eventhandler "certo/internal/event/handler"
	eventsvc "certo/internal/event/service"
	eventstore "certo/internal/event/store"
	identityhandler "certo/internal/identity/handler"
	"certo/internal/identity/provider"
	identitysvc "certo/internal/identity/service"
	identitystore "certo/internal/identity/store"
	"certo/internal/identity/token"
	"certo/internal/platform/config"
	"certo/internal/platform/httpserver"
	"certo/internal/platform/logger"
	"certo/internal/platform/metrics"
	"certo/internal/platform/objectstore"
	"certo/internal/platform/postgres"
	"certo/internal/platform/redis"
	"certo/internal/policy"
	questionbankhandler "certo/internal/questionbank/handler"
	questionbanksvc "certo/internal/questionbank/service"
	questionbankstore "certo/internal/questionbank/store"
	registrationhandler "certo/internal/registration/handler"
	registrationsvc "certo/internal/registration/service"
	registrationstore "certo/internal/registration/store"
	httptransport "certo/internal/transport/http"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath)
		},
	}
}

// The store unions below name every surface a backend must provide so the
// server runs against Postgres when configured and memory otherwise.

type userStore interface {
	identitysvc.UserStore
	registrationsvc.UserFinder
	certificatesvc.UserFinder
	analyticssvc.UserReader
}

type eventStore interface {
	eventsvc.EventStore
	registrationsvc.EventFinder
	certificatesvc.EventFinder
	analyticssvc.EventReader
}

type registrationStore interface {
	registrationsvc.Store
	eventsvc.ParticipantCounter
	certificatesvc.RegistrationLinker
	analyticssvc.RegistrationReader
}

type stores struct {
	users         userStore
	events        eventStore
	registrations registrationStore
	certificates  certificatesvc.Store
	questions     questionbanksvc.Store
}

func runServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New()
	m := metrics.New()

	var st stores
	var health func() error
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}

		st = stores{
			users:         identitystore.NewPostgres(db),
			events:        eventstore.NewPostgres(db),
			registrations: registrationstore.NewPostgres(db),
			certificates:  certificatestore.NewPostgres(db),
			questions:     questionbankstore.NewPostgres(db),
		}
		health = func() error { return db.Ping() }
		log.Info("using postgres storage")
	} else {
		st = stores{
			users:         identitystore.NewMemory(),
			events:        eventstore.NewMemory(),
			registrations: registrationstore.NewMemory(),
			certificates:  certificatestore.NewMemory(),
			questions:     questionbankstore.NewMemory(),
		}
		log.Warn("postgres not configured, using in-memory storage")
	}

	var revocations identitysvc.RevocationList
	if cfg.Redis.URL != "" {
		client, err := redis.New(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		revocations = identitystore.NewRedisRevocationList(client.Client)
		log.Info("using redis token revocation list")
	} else {
		revocations = identitystore.NewMemoryRevocationList()
		log.Warn("redis not configured, using in-memory revocation list")
	}

	var publisher audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		log.Info("publishing audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	} else {
		publisher = audit.NewLogPublisher(log)
	}
	defer publisher.Close()

	recorder := audit.NewRecorder(publisher, log)
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go func() {
		if err := recorder.Run(auditCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	files, err := objectstore.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.BaseURL)
	if err != nil {
		stopAudit()
		return err
	}

	tokens := token.NewService(cfg.Auth.JWTAccessSecret, cfg.Auth.JWTRefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	allowList := policy.NewAdminAllowList(cfg.Auth.AdminEmails)
	google := provider.NewGoogle(cfg.Auth.GoogleClientID)

	identityService := identitysvc.New(st.users, tokens, files, google, revocations, allowList, recorder, m, log)
	eventService := eventsvc.New(st.events, st.registrations, files, recorder, m, log)
	registrationService := registrationsvc.New(st.registrations, st.users, st.events, recorder, m, log)
	certificateService := certificatesvc.New(st.certificates, st.users, st.events, st.registrations, files, recorder, m, log)
	analyticsService := analyticssvc.New(st.users, st.events, st.registrations, log)
	questionService := questionbanksvc.New(st.questions, recorder, log)

	router := httptransport.New(httptransport.Deps{
		Identity:       identityhandler.New(identityService, log, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL),
		Events:         eventhandler.New(eventService, log),
		Questions:      questionbankhandler.New(questionService, log),
		Registrations:  registrationhandler.New(registrationService, log, cfg.Auth.WebhookSecret),
		Certificates:   certificatehandler.New(certificateService, log),
		Admin:          adminhandler.New(identityService, eventService, registrationService, analyticsService, log),
		TokenValidator: token.NewMiddlewareAdapter(tokens),
		Revocations:    revocations,
		Users:          identityService,
		Metrics:        m,
		Logger:         log,
		FilesDir:       cfg.Uploads.Dir,
		Health:         health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		stopAudit()
		return err
	case <-stop:
		log.Info("shutting down")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		stopAudit()
		return err
	}

	stopAudit()
	recorder.Wait()
	return nil
}
