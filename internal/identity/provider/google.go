package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"certo/pkg/domerrors"
)

const tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// Google verifies Google ID tokens against the tokeninfo endpoint and checks
// the audience matches our client ID.
type Google struct {
	clientID string
	client   *http.Client
}

func NewGoogle(clientID string) *Google {
	return &Google{
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Google) Verify(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		tokenInfoURL+"?id_token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, fmt.Errorf("build tokeninfo request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeUnauthorized, "google token verification failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid google token")
	}

	var payload struct {
		Aud     string `json:"aud"`
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeUnauthorized, "invalid google token payload")
	}
	if payload.Aud != g.clientID {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "google token audience mismatch")
	}
	if payload.Email == "" {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "google token missing email")
	}

	return &Identity{
		Subject: payload.Sub,
		Email:   payload.Email,
		Name:    payload.Name,
		Picture: payload.Picture,
	}, nil
}
