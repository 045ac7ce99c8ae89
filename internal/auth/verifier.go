package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Identity is the authenticated user returned by the auth collaborator's
// /api/login/ endpoint. Immutable for the lifetime of a session.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Verifier resolves an opaque bearer token to an Identity.
// A nil result means "not authenticated" — invalid tokens, collaborator
// downtime, and malformed responses are all normal verification failures,
// never errors surfaced to the session.
type Verifier interface {
	Verify(ctx context.Context, token string) *Identity
}

type httpVerifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPVerifier builds a Verifier that POSTs /api/login/ on the auth
// collaborator with an "Authorization: Token <t>" header.
func NewHTTPVerifier(baseURL string, timeout time.Duration) Verifier {
	return &httpVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

const maxIdentityBody = 64 << 10

func (v *httpVerifier) Verify(ctx context.Context, token string) *Identity {
	if token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/login/", nil)
	if err != nil {
		zap.L().Warn("auth.request_build", zap.Error(err))
		return nil
	}
	req.Header.Set("Authorization", "Token "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		zap.L().Warn("auth.unreachable", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		zap.L().Debug("auth.rejected", zap.Int("status", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityBody))
	if err != nil {
		zap.L().Warn("auth.body_read", zap.Error(err))
		return nil
	}

	var id Identity
	if err := json.Unmarshal(body, &id); err != nil {
		zap.L().Warn("auth.malformed_identity", zap.Error(err))
		return nil
	}
	if id.ID == 0 || id.Username == "" {
		zap.L().Warn("auth.incomplete_identity")
		return nil
	}
	return &id
}
