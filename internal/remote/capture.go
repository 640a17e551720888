package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CaptureClient talks to the capture submission service.
type CaptureClient struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

func NewCaptureClient(baseURL string, timeout time.Duration, tokens TokenSource) *CaptureClient {
	return &CaptureClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Capture is one raw planting-event record as the submission service
// returns it. Submitters vary wildly in which fields they fill, and the
// service has gone through several schema revisions, so several fields
// arrive under alternate names or as either strings or numbers. The
// normalizer owns the fallback rules; this struct just captures the
// union faithfully.
type Capture struct {
	ID               any      `json:"id"`
	Status           string   `json:"status"`
	Approved         bool     `json:"approved"`
	VerificationDate string   `json:"verificationDate"`
	VerifiedBy       string   `json:"verifiedBy"`
	Timestamp        string   `json:"timestamp"`
	Latitude         any      `json:"latitude"`
	Longitude        any      `json:"longitude"`
	Species          string   `json:"species"`
	CommonName       string   `json:"commonName"`
	Height           any      `json:"height"`
	DBH              any      `json:"dbh"`
	TreeAge          any      `json:"treeAge"`
	HealthStatus     string   `json:"healthStatus"`
	Note             string   `json:"note"`
	ImageURL         string   `json:"imageUrl"`
	AdditionalImages []string `json:"additionalImages"`
	TokenID          any      `json:"tokenId"`
	BlockchainTxID   string   `json:"blockchainTxId"`
	TxID             string   `json:"tx_id"`

	PlantedBy      string `json:"plantedBy"`
	PlanterName    string `json:"planterName"`
	Planter        string `json:"planter"`
	PlantedBySnake string `json:"planted_by"`
	UserName       string `json:"userName"`
	Username       string `json:"username"`

	UserID         string `json:"userId"`
	PlanterID      string `json:"planterId"`
	PlanterIDSnake string `json:"planter_id"`
}

// CapturePage is one page of the admin capture listing.
type CapturePage struct {
	Records    []Capture
	Pagination Pagination
}

// ListParams narrows the admin capture listing.
type ListParams struct {
	Page   int
	Limit  int
	Status string
	UserID string
}

// List fetches one page of capture records.
func (c *CaptureClient) List(ctx context.Context, p ListParams) (*CapturePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("limit", strconv.Itoa(p.Limit))
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	if p.UserID != "" {
		q.Set("userId", p.UserID)
	}

	req, err := http.NewRequestWithContext(ctx, "GET",
		c.baseURL+"/api/captures/admin?"+q.Encode(), nil)
	if err != nil {
		return nil, &ServiceError{Service: "capture", Err: err}
	}

	env, err := do(c.client, "capture", req, c.tokens)
	if err != nil {
		return nil, err
	}

	page := &CapturePage{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &page.Records); err != nil {
			return nil, &ServiceError{Service: "capture", Err: fmt.Errorf("decoding captures: %w", err)}
		}
	}
	if env.Pagination != nil {
		page.Pagination = *env.Pagination
	}
	return page, nil
}

// Get fetches a single capture record by id.
func (c *CaptureClient) Get(ctx context.Context, id string) (*Capture, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		c.baseURL+"/api/captures/admin/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, &ServiceError{Service: "capture", Err: err}
	}

	env, err := do(c.client, "capture", req, c.tokens)
	if err != nil {
		return nil, err
	}

	capture := &Capture{}
	if err := json.Unmarshal(env.Data, capture); err != nil {
		return nil, &ServiceError{Service: "capture", Err: fmt.Errorf("decoding capture: %w", err)}
	}
	return capture, nil
}

// Approve records a verification decision against a capture.
func (c *CaptureClient) Approve(ctx context.Context, id string, approved bool) error {
	body, err := marshalBody(map[string]bool{"approved": approved})
	if err != nil {
		return &ServiceError{Service: "capture", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "PUT",
		c.baseURL+"/api/captures/"+url.PathEscape(id)+"/approve", body)
	if err != nil {
		return &ServiceError{Service: "capture", Err: err}
	}

	_, err = do(c.client, "capture", req, c.tokens)
	return err
}
