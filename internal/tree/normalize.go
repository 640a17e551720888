package tree

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/canopyops/canopy/internal/remote"
)

// Normalize maps one raw capture record into a Tree. It is a pure
// function of (record, minted-id snapshot, now): no network access, no
// cache mutation, and identical inputs produce an identical Tree.
//
// now fills missing timestamps; session load passes a single value for
// the whole batch so repeated normalization stays byte-identical.
func Normalize(rec *remote.Capture, minted map[string]struct{}, now time.Time) Tree {
	treeID := stringifyID(rec.ID)

	planter := firstNonEmpty(
		rec.PlantedBy,
		rec.PlanterName,
		rec.Planter,
		rec.PlantedBySnake,
		rec.UserName,
		rec.Username,
	)
	planter = strings.TrimSpace(planter)
	if planter == "" {
		planter = "Unknown"
	}

	ledgerID := strings.TrimSpace(firstNonEmpty(rec.UserID, rec.PlanterID, rec.PlanterIDSnake))

	verificationDate := parseTime(rec.VerificationDate)

	lastModified := now
	if verificationDate != nil {
		lastModified = *verificationDate
	}

	timestamp := now
	if ts := parseTime(rec.Timestamp); ts != nil {
		timestamp = *ts
	}

	_, confirmedMint := minted[treeID]

	t := Tree{
		TreeID:           treeID,
		LedgerID:         ledgerID,
		BlockchainHash:   firstNonEmpty(rec.BlockchainTxID, rec.TxID),
		Planter:          planter,
		PlanterKey:       strings.ToLower(planter),
		Status:           deriveStatus(rec),
		Lat:              fixed6(rec.Latitude),
		Lng:              fixed6(rec.Longitude),
		Species:          firstNonEmpty(rec.Species, rec.CommonName, "Unknown"),
		Height:           heightLabel(rec.Height, rec.DBH),
		AgeMonths:        ageMonths(rec.TreeAge),
		HealthStatus:     firstNonEmpty(rec.HealthStatus, "unknown"),
		Notes:            rec.Note,
		Photos:           photoList(rec.ImageURL, rec.AdditionalImages),
		MintedToken:      tokenPresent(rec.TokenID) || confirmedMint,
		VerifiedBy:       rec.VerifiedBy,
		VerificationDate: verificationDate,
		LastModified:     lastModified,
		Timestamp:        timestamp,
		Raw:              rec,
	}
	return t
}

// deriveStatus applies the priority rules: explicit status wins, then
// the approved flag, then the presence of any verification date maps to
// rejected, else pending. A non-approved record carrying a verification
// date classifies as rejected even if it was approved then edited; the
// backend does not disambiguate, so neither do we.
func deriveStatus(rec *remote.Capture) Status {
	if rec.Status != "" {
		return Status(rec.Status)
	}
	if rec.Approved {
		return StatusVerified
	}
	if rec.VerificationDate != "" {
		return StatusRejected
	}
	return StatusPending
}

// fixed6 parses a coordinate that may arrive as a number, a string, or
// nothing, and renders it as a 6-decimal string. Unparseable or
// non-finite values normalize to "0.000000". Strings keep display and
// comparison stable across backends that disagree on precision.
func fixed6(v any) string {
	f := 0.0
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			f = math.NaN()
		} else {
			f = parsed
		}
	case nil:
		f = 0
	default:
		f = math.NaN()
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0.000000"
	}
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// stringifyID renders a record id that may be numeric or textual.
func stringifyID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// measureString renders height-like fields, which arrive as strings or
// numbers. Zero and empty both count as absent.
func measureString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == 0 {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func heightLabel(height, dbh any) string {
	if s := measureString(height); s != "" {
		return s
	}
	if s := measureString(dbh); s != "" {
		return s
	}
	return "N/A"
}

// ageMonths converts a years value, which arrives as a number or a
// string, into whole months. Unparseable values count as absent.
func ageMonths(v any) int {
	var years float64
	switch val := v.(type) {
	case float64:
		years = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		years = parsed
	default:
		return 0
	}
	if years == 0 || math.IsNaN(years) || math.IsInf(years, 0) {
		return 0
	}
	return int(years * 12)
}

// tokenPresent reports whether the record carries a token identifier.
func tokenPresent(v any) bool {
	switch val := v.(type) {
	case string:
		return val != ""
	case float64:
		return val != 0
	case bool:
		return val
	case nil:
		return false
	default:
		return true
	}
}

func photoList(imageURL string, additional []string) []string {
	photos := make([]string, 0, 1+len(additional))
	if imageURL != "" {
		photos = append(photos, imageURL)
	}
	for _, p := range additional {
		if p != "" {
			photos = append(photos, p)
		}
	}
	if len(photos) == 0 {
		return nil
	}
	return photos
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
