package session

import (
	"crypto/sha256"
	"fmt"
)

// PrivacyFilter masks attempt fields before they leave the process. The zero
// value is a no-op filter.
type PrivacyFilter struct {
	MaskCorrelationIDs bool
	HideFingerprints   bool
	HideMessages       bool
}

// Apply returns a masked copy of a. The original is never modified.
func (f *PrivacyFilter) Apply(a *Attempt) *Attempt {
	masked := a.Clone()

	if f.MaskCorrelationIDs && masked.CorrelationID != "" {
		masked.CorrelationID = shortHash(masked.CorrelationID)
	}

	if f.HideFingerprints {
		masked.TokenFingerprint = ""
	}

	if f.HideMessages {
		masked.Message = ""
	}

	return masked
}

// FilterSlice applies the filter to each attempt, returning a new slice.
func (f *PrivacyFilter) FilterSlice(attempts []*Attempt) []*Attempt {
	result := make([]*Attempt, 0, len(attempts))
	for _, a := range attempts {
		result = append(result, f.Apply(a))
	}
	return result
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskCorrelationIDs && !f.HideFingerprints && !f.HideMessages
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
