package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

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
	identitysvc "certo/internal/identity/service"
	identitystore "certo/internal/identity/store"
	"certo/internal/identity/token"
	"certo/internal/platform/metrics"
	"certo/internal/platform/objectstore"
	"certo/internal/policy"
	questionbankhandler "certo/internal/questionbank/handler"
	questionbanksvc "certo/internal/questionbank/service"
	questionbankstore "certo/internal/questionbank/store"
	registrationhandler "certo/internal/registration/handler"
	registrationsvc "certo/internal/registration/service"
	registrationstore "certo/internal/registration/store"
)

const webhookSecret = "test-webhook-secret"

// envelope mirrors the response shape every endpoint writes.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

type RouterSuite struct {
	suite.Suite
	router  http.Handler
	healthy error
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())

	users := identitystore.NewMemory()
	events := eventstore.NewMemory()
	registrations := registrationstore.NewMemory()
	certificates := certificatestore.NewMemory()
	files := objectstore.NewMemoryStore()
	revocations := identitystore.NewMemoryRevocationList()

	tokens := token.NewService("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
	allowList := policy.NewAdminAllowList([]string{"admin@example.com"})
	recorder := audit.NewRecorder(audit.NewLogPublisher(logger), logger)

	identityService := identitysvc.New(users, tokens, files, nil, revocations, allowList, recorder, m, logger)
	eventService := eventsvc.New(events, registrations, files, recorder, m, logger)
	registrationService := registrationsvc.New(registrations, users, events, recorder, m, logger)
	certificateService := certificatesvc.New(certificates, users, events, registrations, files, recorder, m, logger)
	analyticsService := analyticssvc.New(users, events, registrations, logger)
	questionService := questionbanksvc.New(questionbankstore.NewMemory(), recorder, logger)

	s.healthy = nil
	s.router = New(Deps{
		Identity:      identityhandler.New(identityService, logger, time.Hour, 24*time.Hour),
		Events:        eventhandler.New(eventService, logger),
		Questions:     questionbankhandler.New(questionService, logger),
		Registrations: registrationhandler.New(registrationService, logger, webhookSecret),
		Certificates:  certificatehandler.New(certificateService, logger),
		Admin:         adminhandler.New(identityService, eventService, registrationService, analyticsService, logger),

		TokenValidator: token.NewMiddlewareAdapter(tokens),
		Revocations:    revocations,
		Users:          identityService,

		Metrics: m,
		Logger:  logger,
		Health:  func() error { return s.healthy },
	})
}

func (s *RouterSuite) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		s.T().Fatalf("non-envelope response %d: %s", w.Code, w.Body.String())
	}
	return w, env
}

func (s *RouterSuite) jsonRequest(method, target, bearer string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

// multipartRequest builds a form with string fields plus one optional file.
func (s *RouterSuite) multipartRequest(method, target, bearer string, fields map[string]string, fileField, fileName string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		s.Require().NoError(mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		s.Require().NoError(err)
		_, err = fw.Write([]byte("file-bytes"))
		s.Require().NoError(err)
	}
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func (s *RouterSuite) registerAndLogin(email string) (token string, userID string) {
	w, env := s.do(s.multipartRequest(http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName":    "User " + email,
		"email":       email,
		"password":    "s3cret-pass",
		"collegeName": "Test College",
		"department":  "CSE",
		"year":        "2",
	}, "avatar", "avatar.png"))
	s.Require().Equal(http.StatusCreated, w.Code, env.Message)

	w, env = s.do(s.jsonRequest(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "s3cret-pass",
	}))
	s.Require().Equal(http.StatusOK, w.Code, env.Message)

	var result struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &result))
	s.Require().NotEmpty(result.AccessToken)
	return result.AccessToken, result.User.ID
}

func (s *RouterSuite) createEvent(adminToken, title string) string {
	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339)
	w, env := s.do(s.multipartRequest(http.MethodPost, "/api/events", adminToken, map[string]string{
		"title":           title,
		"description":     "timed aptitude round for " + title,
		"category":        "Technical",
		"difficulty":      "easy",
		"startDate":       start,
		"endDate":         end,
		"duration":        "60",
		"maxParticipants": "50",
	}, "image", "banner.png"))
	s.Require().Equal(http.StatusCreated, w.Code, env.Message)

	var created struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &created))
	return created.ID
}

func (s *RouterSuite) TestHealthAndMetrics() {
	s.Run("healthy", func() {
		w, env := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		s.Equal(http.StatusOK, w.Code)
		s.True(env.Success)
	})

	s.Run("unhealthy backing service", func() {
		s.healthy = errors.New("db down")
		defer func() { s.healthy = nil }()
		w, env := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		s.Equal(http.StatusServiceUnavailable, w.Code)
		s.Equal("unhealthy", env.Message)
	})

	s.Run("metrics endpoint is plain prometheus text", func() {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Body.String(), "go_goroutines")
	})
}

func (s *RouterSuite) TestAuthorizationBoundaries() {
	userToken, _ := s.registerAndLogin("plain@example.com")

	s.Run("missing token", func() {
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/auth/profile", "", nil))
		s.Equal(http.StatusUnauthorized, w.Code)
		s.False(env.Success)
	})

	s.Run("garbage token", func() {
		w, _ := s.do(s.jsonRequest(http.MethodGet, "/api/auth/profile", "not-a-jwt", nil))
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("non-admin cannot create events", func() {
		w, env := s.do(s.multipartRequest(http.MethodPost, "/api/events", userToken, map[string]string{
			"title": "x",
		}, "", ""))
		s.Equal(http.StatusForbidden, w.Code)
		s.Contains(env.Message, "only admin")
	})

	s.Run("non-admin cannot reach the admin console", func() {
		w, _ := s.do(s.jsonRequest(http.MethodGet, "/api/admin/dashboard", userToken, nil))
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("revoked token is rejected after logout", func() {
		w, _ := s.do(s.jsonRequest(http.MethodPost, "/api/auth/logout", userToken, nil))
		s.Require().Equal(http.StatusOK, w.Code)
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/auth/profile", userToken, nil))
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Equal("token has been revoked", env.Message)
	})
}

func (s *RouterSuite) TestEventLifecycle() {
	adminToken, _ := s.registerAndLogin("admin@example.com")
	eventID := s.createEvent(adminToken, "Logic Sprint")

	s.Run("event is publicly listed", func() {
		w, env := s.do(httptest.NewRequest(http.MethodGet, "/api/events", nil))
		s.Require().Equal(http.StatusOK, w.Code)
		var page struct {
			Items []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"items"`
			Total int `json:"total"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &page))
		s.Equal(1, page.Total)
		s.Equal("Logic Sprint", page.Items[0].Title)
	})

	s.Run("duplicate title and description conflicts", func() {
		start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		end := time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339)
		w, _ := s.do(s.multipartRequest(http.MethodPost, "/api/events", adminToken, map[string]string{
			"title":           "Logic Sprint",
			"description":     "timed aptitude round for Logic Sprint",
			"category":        "Technical",
			"difficulty":      "easy",
			"startDate":       start,
			"endDate":         end,
			"duration":        "60",
			"maxParticipants": "50",
		}, "image", "banner.png"))
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("missing image is rejected", func() {
		start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		end := time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339)
		w, env := s.do(s.multipartRequest(http.MethodPost, "/api/events", adminToken, map[string]string{
			"title":           "Bannerless",
			"description":     "event posted without an image",
			"category":        "Technical",
			"difficulty":      "easy",
			"startDate":       start,
			"endDate":         end,
			"duration":        "60",
			"maxParticipants": "50",
		}, "", ""))
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("image is required", env.Message)
	})

	s.Run("search matches the title query param", func() {
		w, env := s.do(httptest.NewRequest(http.MethodGet, "/api/events/search?title=logic", nil))
		s.Require().Equal(http.StatusOK, w.Code)
		var page struct {
			Items []struct {
				Title string `json:"title"`
			} `json:"items"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &page))
		s.Require().Len(page.Items, 1)
		s.Equal("Logic Sprint", page.Items[0].Title)
	})

	s.Run("soft delete removes it from public listings", func() {
		w, _ := s.do(s.jsonRequest(http.MethodDelete, "/api/events/"+eventID, adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code)

		w, env := s.do(httptest.NewRequest(http.MethodGet, "/api/events", nil))
		s.Require().Equal(http.StatusOK, w.Code)
		var page struct {
			Total int `json:"total"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &page))
		s.Equal(0, page.Total)
	})
}

func (s *RouterSuite) TestRegistrationFlow() {
	adminToken, _ := s.registerAndLogin("admin@example.com")
	userToken, userID := s.registerAndLogin("student@example.com")
	eventID := s.createEvent(adminToken, "Aptitude Open")

	var registrationID string

	s.Run("session caller registers their own claims email", func() {
		w, env := s.do(s.jsonRequest(http.MethodPost, "/api/registrations", userToken, map[string]string{
			"email":   "someone-else@example.com",
			"eventId": eventID,
		}))
		s.Require().Equal(http.StatusCreated, w.Code, env.Message)
		var reg struct {
			ID     string `json:"id"`
			UserID string `json:"userId"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &reg))
		s.Equal(userID, reg.UserID)
		registrationID = reg.ID
	})

	s.Run("repeat registration is idempotent", func() {
		w, env := s.do(s.jsonRequest(http.MethodPost, "/api/registrations", userToken, map[string]string{
			"eventId": eventID,
		}))
		s.Equal(http.StatusOK, w.Code)
		s.Equal("already registered for this event", env.Message)
	})

	s.Run("webhook secret admits an unauthenticated caller", func() {
		req := s.jsonRequest(http.MethodPost, "/api/registrations", "", map[string]string{
			"email":   "admin@example.com",
			"eventId": eventID,
		})
		req.Header.Set("X-Webhook-Secret", webhookSecret)
		w, env := s.do(req)
		s.Equal(http.StatusCreated, w.Code, env.Message)
	})

	s.Run("wrong webhook secret falls through to auth", func() {
		req := s.jsonRequest(http.MethodPost, "/api/registrations", "", map[string]string{
			"email":   "student@example.com",
			"eventId": eventID,
		})
		req.Header.Set("X-Webhook-Secret", "guessed-secret")
		w, _ := s.do(req)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("only admins grade", func() {
		w, _ := s.do(s.jsonRequest(http.MethodPut, "/api/registrations/"+registrationID, userToken, map[string]any{
			"score": 88.5,
		}))
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("grading completes the registration", func() {
		w, env := s.do(s.jsonRequest(http.MethodPut, "/api/registrations/"+registrationID, adminToken, map[string]any{
			"score": 88.5,
		}))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var reg struct {
			Status string   `json:"status"`
			Score  *float64 `json:"score"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &reg))
		s.Equal("completed", reg.Status)
		s.Require().NotNil(reg.Score)
		s.Equal(88.5, *reg.Score)
	})

	s.Run("admin sees enriched event registrations", func() {
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/registrations/event/"+eventID, adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var details []struct {
			ParticipantEmail string `json:"participantEmail"`
			EventTitle       string `json:"eventTitle"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &details))
		s.Require().Len(details, 2)
		s.Equal("Aptitude Open", details[0].EventTitle)
	})

	s.Run("participant cannot cancel someone else's registration", func() {
		otherToken, _ := s.registerAndLogin("bystander@example.com")
		w, _ := s.do(s.jsonRequest(http.MethodDelete, "/api/registrations/"+registrationID, otherToken, nil))
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *RouterSuite) TestCertificateFlow() {
	adminToken, _ := s.registerAndLogin("admin@example.com")
	userToken, userID := s.registerAndLogin("student@example.com")
	eventID := s.createEvent(adminToken, "Numeric Finals")

	var certificateID string

	s.Run("admin issues a certificate", func() {
		w, env := s.do(s.multipartRequest(http.MethodPost, "/api/certificates/upload", adminToken, map[string]string{
			"userId":  userID,
			"eventId": eventID,
			"score":   "91.5",
		}, "certificate", "certificate.pdf"))
		s.Require().Equal(http.StatusCreated, w.Code, env.Message)
		var cert struct {
			ID      string  `json:"id"`
			Score   float64 `json:"score"`
			FileURL string  `json:"fileUrl"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &cert))
		s.Equal(91.5, cert.Score)
		s.NotEmpty(cert.FileURL)
		certificateID = cert.ID
	})

	s.Run("second issuance for the pair conflicts", func() {
		w, _ := s.do(s.multipartRequest(http.MethodPost, "/api/certificates/upload", adminToken, map[string]string{
			"userId":  userID,
			"eventId": eventID,
			"score":   "70",
		}, "certificate", "certificate.pdf"))
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("holder lists their own certificates", func() {
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/certificates/user/"+userID, userToken, nil))
		s.Require().Equal(http.StatusOK, w.Code)
		var certs []struct {
			ID string `json:"id"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &certs))
		s.Require().Len(certs, 1)
		s.Equal(certificateID, certs[0].ID)
	})

	s.Run("non-admin cannot revoke", func() {
		w, _ := s.do(s.jsonRequest(http.MethodPut, "/api/certificates/"+certificateID, userToken, map[string]any{
			"isRevoked": true,
		}))
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *RouterSuite) TestAdminAnalytics() {
	adminToken, _ := s.registerAndLogin("admin@example.com")
	userToken, _ := s.registerAndLogin("student@example.com")
	eventID := s.createEvent(adminToken, "Verbal Heats")

	w, env := s.do(s.jsonRequest(http.MethodPost, "/api/registrations", userToken, map[string]string{"eventId": eventID}))
	s.Require().Equal(http.StatusCreated, w.Code, env.Message)

	s.Run("dashboard totals", func() {
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/admin/dashboard", adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var dash struct {
			Totals struct {
				TotalUsers         int `json:"totalUsers"`
				TotalEvents        int `json:"totalEvents"`
				TotalRegistrations int `json:"totalRegistrations"`
			} `json:"totals"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &dash))
		s.Equal(2, dash.Totals.TotalUsers)
		s.Equal(1, dash.Totals.TotalEvents)
		s.Equal(1, dash.Totals.TotalRegistrations)
	})

	s.Run("global analytics includes the trend", func() {
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/admin/analytics", adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var global struct {
			RegistrationTrend []struct {
				Date  string `json:"date"`
				Count int    `json:"count"`
			} `json:"registrationTrend"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &global))
		s.Require().Len(global.RegistrationTrend, 7)
		s.Equal(1, global.RegistrationTrend[6].Count)
	})

	s.Run("user search filter", func() {
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/admin/users?search=student", adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var found []struct {
			Email string `json:"email"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &found))
		s.Require().Len(found, 1)
		s.True(strings.HasPrefix(found[0].Email, "student@"))
	})
}

func (s *RouterSuite) TestQuestionBank() {
	adminToken, _ := s.registerAndLogin("admin@example.com")
	userToken, _ := s.registerAndLogin("member@example.com")

	question := map[string]any{
		"question":      "Which layer does TCP live in?",
		"type":          "multiple_choice",
		"category":      "Technical",
		"difficulty":    "easy",
		"options":       []string{"Transport", "Application"},
		"correctAnswer": "Transport",
		"points":        2,
	}

	s.Run("bank is admin only", func() {
		w, _ := s.do(s.jsonRequest(http.MethodPost, "/api/questions", userToken, question))
		s.Equal(http.StatusForbidden, w.Code)
		w, _ = s.do(s.jsonRequest(http.MethodGet, "/api/questions", userToken, nil))
		s.Equal(http.StatusForbidden, w.Code)
	})

	var questionID string
	s.Run("admin curates entries", func() {
		w, env := s.do(s.jsonRequest(http.MethodPost, "/api/questions", adminToken, question))
		s.Require().Equal(http.StatusCreated, w.Code, env.Message)
		var created struct {
			ID string `json:"id"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &created))
		questionID = created.ID

		w, env = s.do(s.jsonRequest(http.MethodPut, "/api/questions/"+questionID, adminToken, map[string]any{
			"points": 5,
		}))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var updated struct {
			Points int `json:"points"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &updated))
		s.Equal(5, updated.Points)
	})

	s.Run("pick draws event-ready copies", func() {
		w, env := s.do(s.jsonRequest(http.MethodGet, "/api/questions/pick?category=Technical&difficulty=easy&count=3", adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var picked []struct {
			QuestionID string `json:"questionId"`
			Question   string `json:"question"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &picked))
		s.Require().Len(picked, 1)
		s.Equal(questionID, picked[0].QuestionID)
	})

	s.Run("deleted entries leave the active listing", func() {
		w, env := s.do(s.jsonRequest(http.MethodDelete, "/api/questions/"+questionID, adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)

		w, env = s.do(s.jsonRequest(http.MethodGet, "/api/questions", adminToken, nil))
		s.Require().Equal(http.StatusOK, w.Code, env.Message)
		var page struct {
			Total int `json:"total"`
		}
		s.Require().NoError(json.Unmarshal(env.Data, &page))
		s.Equal(0, page.Total)
	})
}
