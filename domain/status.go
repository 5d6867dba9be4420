package domain

// CanonicalStatus is the closed 5-value taxonomy every vendor status
// vocabulary is normalized into.
type CanonicalStatus string

const (
	StatusAvailable  CanonicalStatus = "available"
	StatusReserved   CanonicalStatus = "reserved"
	StatusSold       CanonicalStatus = "sold"
	StatusHidden     CanonicalStatus = "hidden"
	StatusUnreleased CanonicalStatus = "unreleased"
)

// CanonicalStatuses lists the taxonomy in a fixed order so that mapping
// lookups are deterministic when synonym lists overlap.
var CanonicalStatuses = []CanonicalStatus{
	StatusAvailable,
	StatusReserved,
	StatusSold,
	StatusHidden,
	StatusUnreleased,
}
