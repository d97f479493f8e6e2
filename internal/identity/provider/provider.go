// Package provider abstracts the external identity provider used for social
// login. The platform consumes it as "verify an opaque token, return the
// asserted identity".
package provider

import "context"

// Identity is the payload asserted by the external provider.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Provider verifies a provider-issued token.
type Provider interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
