package status

import (
	"strings"

	"github.com/masterplanhq/masterplan-server/domain"
)

// Mapping lists, per canonical status, the vendor strings that normalize to
// it. Matching is case-insensitive.
type Mapping map[domain.CanonicalStatus][]string

// DefaultMapping is applied when a project has no configured mapping.
var DefaultMapping = Mapping{
	domain.StatusAvailable:  {"available", "open", "free"},
	domain.StatusReserved:   {"reserved", "hold", "onhold", "pending"},
	domain.StatusSold:       {"sold", "purchased", "closed"},
	domain.StatusHidden:     {"hidden", "disabled", "unavailable", "notforsale", "blocked"},
	domain.StatusUnreleased: {"unreleased", "future", "comingsoon", "coming_soon"},
}

// Normalize maps a vendor status string to the canonical taxonomy. Unmatched
// values normalize to hidden: an unknown unit must never render as
// purchasable.
func Normalize(vendorStatus string, mapping Mapping) domain.CanonicalStatus {
	if len(mapping) == 0 {
		mapping = DefaultMapping
	}
	for _, canonical := range domain.CanonicalStatuses {
		for _, synonym := range mapping[canonical] {
			if strings.EqualFold(vendorStatus, synonym) {
				return canonical
			}
		}
	}
	return domain.StatusHidden
}

// NormalizeAll normalizes a raw vendor status map keyed by overlay ref.
func NormalizeAll(raw map[string]string, mapping Mapping) map[string]domain.CanonicalStatus {
	statuses := make(map[string]domain.CanonicalStatus, len(raw))
	for ref, vendorStatus := range raw {
		statuses[ref] = Normalize(vendorStatus, mapping)
	}
	return statuses
}
