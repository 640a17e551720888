package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IdentityClient talks to the identity service: operator login/logout
// and planter account lookups.
type IdentityClient struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

func NewIdentityClient(baseURL string, timeout time.Duration, tokens TokenSource) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// User is an identity-service account.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

// DisplayName joins the given and family names, falling back to the
// username and finally the raw id.
func (u *User) DisplayName() string {
	parts := make([]string, 0, 2)
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

// LoginResult carries the backend token pair and the operator account.
type LoginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Login authenticates an operator against the admin login endpoint.
func (c *IdentityClient) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body, err := marshalBody(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, &ServiceError{Service: "identity", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/auth/admin/login", body)
	if err != nil {
		return nil, &ServiceError{Service: "identity", Err: err}
	}

	env, err := do(c.client, "identity", req, nil)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return nil, &ServiceError{Service: "identity", Err: fmt.Errorf("decoding login result: %w", err)}
	}
	return result, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *IdentityClient) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	body, err := marshalBody(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, &ServiceError{Service: "identity", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/auth/refresh", body)
	if err != nil {
		return nil, &ServiceError{Service: "identity", Err: err}
	}

	env, err := do(c.client, "identity", req, nil)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return nil, &ServiceError{Service: "identity", Err: fmt.Errorf("decoding refresh result: %w", err)}
	}
	return result, nil
}

// Logout invalidates a refresh token. Backend failures are returned but
// callers generally ignore them — local state is cleared regardless.
func (c *IdentityClient) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	body, err := marshalBody(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return &ServiceError{Service: "identity", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/auth/logout", body)
	if err != nil {
		return &ServiceError{Service: "identity", Err: err}
	}

	_, err = do(c.client, "identity", req, c.tokens)
	return err
}

// GetUser looks up a planter account by ledger id.
func (c *IdentityClient) GetUser(ctx context.Context, ledgerID string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		c.baseURL+"/auth/admin/users/"+url.PathEscape(ledgerID), nil)
	if err != nil {
		return nil, &ServiceError{Service: "identity", Err: err}
	}

	env, err := do(c.client, "identity", req, c.tokens)
	if err != nil {
		return nil, err
	}

	user := &User{}
	if err := json.Unmarshal(env.Data, user); err != nil {
		return nil, &ServiceError{Service: "identity", Err: fmt.Errorf("decoding user: %w", err)}
	}
	return user, nil
}
