// Package remote holds the HTTP clients for the three backend services
// the console reconciles: identity (operator accounts and planter
// lookups), capture submission, and token issuance. All three speak the
// same JSON envelope; a success:false body or a non-2xx status surfaces
// the envelope error as a *ServiceError.
package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// TokenSource supplies the bearer token attached to backend requests.
// An empty string sends the request unauthenticated.
type TokenSource interface {
	AccessToken() string
}

// StaticToken is a fixed-value TokenSource, mostly for tests.
type StaticToken string

func (s StaticToken) AccessToken() string { return string(s) }

// envelope is the response wrapper shared by all three services.
type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Pagination *Pagination     `json:"pagination"`
}

// Pagination reports how much of a paged collection remains. Backends
// fill totalPages, total, both, or neither.
type Pagination struct {
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// errMessage picks the most specific error text the envelope carries.
func (e *envelope) errMessage(fallback string) string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// do sends one JSON request and decodes the envelope. Transport
// failures, non-2xx statuses and success:false envelopes all come back
// as *ServiceError.
func do(client *http.Client, service string, req *http.Request, tokens TokenSource) (*envelope, error) {
	req.Header.Set("Content-Type", "application/json")
	if tokens != nil {
		if tok := tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	httpResp, err := client.Do(req)
	if err != nil {
		return nil, &ServiceError{Service: service, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ServiceError{Service: service, Status: httpResp.StatusCode, Err: err}
	}

	env := &envelope{}
	// A broken body on an error status still yields the status text.
	decodeErr := json.Unmarshal(body, env)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := http.StatusText(httpResp.StatusCode)
		if decodeErr == nil {
			msg = env.errMessage(msg)
		}
		err := errors.New(msg)
		if httpResp.StatusCode == http.StatusNotFound {
			err = fmt.Errorf("%s: %w", msg, ErrNotFound)
		}
		if httpResp.StatusCode == http.StatusUnauthorized {
			err = fmt.Errorf("%s: %w", msg, ErrUnauthorized)
		}
		return nil, &ServiceError{Service: service, Status: httpResp.StatusCode, Err: err}
	}

	if decodeErr != nil {
		return nil, &ServiceError{Service: service, Status: httpResp.StatusCode,
			Err: fmt.Errorf("decoding response: %w", decodeErr)}
	}
	if !env.Success {
		return nil, &ServiceError{Service: service, Status: httpResp.StatusCode,
			Err: errors.New(env.errMessage("request failed"))}
	}
	return env, nil
}

// marshalBody encodes a request payload, or returns a nil reader for a
// bodyless request.
func marshalBody(payload any) (io.Reader, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
