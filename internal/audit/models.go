// Package audit records admin actions (event management, certificate
// issuance and revocation, grading, user administration) as structured
// events published to Kafka when configured.
package audit

import "time"

// Event is one recorded admin action.
type Event struct {
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resourceId"`
	Timestamp  time.Time         `json:"timestamp"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// Actions recorded by the domain services.
const (
	ActionEventCreated       = "event.created"
	ActionEventUpdated       = "event.updated"
	ActionEventDeleted       = "event.deleted"
	ActionCertificateIssued  = "certificate.issued"
	ActionCertificateUpdated = "certificate.updated"
	ActionCertificateDeleted = "certificate.deleted"
	ActionRegistrationGraded = "registration.graded"
	ActionQuestionCreated    = "question.created"
	ActionQuestionUpdated    = "question.updated"
	ActionQuestionDeleted    = "question.deleted"
	ActionUserLogin          = "user.login"
	ActionUserUpdated        = "user.updated"
	ActionUserDeactivated    = "user.deactivated"
)
