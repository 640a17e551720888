// Package tree defines the canonical Tree entity — the normalized view
// of a raw capture record — and the normalization rules that derive it.
package tree

import (
	"time"

	"github.com/canopyops/canopy/internal/remote"
)

// Status is a Tree's verification state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusVerified || s == StatusRejected
}

// Tree is the canonical entity every view is derived from. It is built
// once per session load by Normalize and afterwards mutated only by the
// mutation coordinator.
type Tree struct {
	TreeID           string          `json:"treeId"`
	LedgerID         string          `json:"ledgerId,omitempty"`
	BlockchainHash   string          `json:"blockchainHash,omitempty"`
	Planter          string          `json:"planter"`
	PlanterKey       string          `json:"planterKey"`
	Status           Status          `json:"status"`
	Lat              string          `json:"lat"`
	Lng              string          `json:"lng"`
	Species          string          `json:"species"`
	Height           string          `json:"height"`
	AgeMonths        int             `json:"age"`
	HealthStatus     string          `json:"healthStatus"`
	Notes            string          `json:"notes,omitempty"`
	Photos           []string        `json:"photos,omitempty"`
	MintedToken      bool            `json:"mintedToken"`
	VerifiedBy       string          `json:"verifiedBy,omitempty"`
	VerificationDate *time.Time      `json:"verificationDate,omitempty"`
	LastModified     time.Time       `json:"lastModified"`
	Timestamp        time.Time       `json:"timestamp"`
	Raw              *remote.Capture `json:"raw,omitempty"`
}
