package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TokenClient talks to the token issuance service.
type TokenClient struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

func NewTokenClient(baseURL string, timeout time.Duration, tokens TokenSource) *TokenClient {
	return &TokenClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// IssueRequest asks the token service to mint against a verified capture.
type IssueRequest struct {
	CaptureID   string `json:"captureId"`
	PlanterID   string `json:"planterId"`
	TreeSpecies string `json:"treeSpecies"`
}

// Issue mints a token. A backend rejection stating the token already
// exists comes back wrapped around ErrTokenExists so the coordinator
// can reconcile instead of surfacing a failure.
func (c *TokenClient) Issue(ctx context.Context, ir IssueRequest) error {
	body, err := marshalBody(ir)
	if err != nil {
		return &ServiceError{Service: "token", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/tokens", body)
	if err != nil {
		return &ServiceError{Service: "token", Err: err}
	}

	_, err = do(c.client, "token", req, c.tokens)
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) && strings.Contains(se.Err.Error(), "Token already exists") {
			return &ServiceError{Service: "token", Status: se.Status,
				Err: fmt.Errorf("%s: %w", se.Err.Error(), ErrTokenExists)}
		}
		return err
	}
	return nil
}

// DashboardMetrics fetches the analytics dashboard payload. The shape
// is owned by the token service; the console passes it through opaque.
func (c *TokenClient) DashboardMetrics(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/analytics/dashboard", nil)
	if err != nil {
		return nil, &ServiceError{Service: "token", Err: err}
	}

	env, err := do(c.client, "token", req, c.tokens)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}
