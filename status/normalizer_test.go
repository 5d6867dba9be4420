package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/masterplanhq/masterplan-server/domain"
)

func TestNormalize(t *testing.T) {
	t.Run("default mapping", func(t *testing.T) {
		assert.Equal(t, domain.StatusAvailable, Normalize("available", nil))
		assert.Equal(t, domain.StatusAvailable, Normalize("free", nil))
		assert.Equal(t, domain.StatusReserved, Normalize("onhold", nil))
		assert.Equal(t, domain.StatusSold, Normalize("purchased", nil))
		assert.Equal(t, domain.StatusHidden, Normalize("blocked", nil))
		assert.Equal(t, domain.StatusUnreleased, Normalize("coming_soon", nil))
	})

	t.Run("case-insensitive", func(t *testing.T) {
		assert.Equal(t, domain.StatusAvailable, Normalize("AVAILABLE", nil))
		assert.Equal(t, domain.StatusSold, Normalize("Sold", nil))
	})

	t.Run("unmatched values fail safe to hidden", func(t *testing.T) {
		assert.Equal(t, domain.StatusHidden, Normalize("WeirdValue", nil))
		assert.Equal(t, domain.StatusHidden, Normalize("", nil))
	})

	t.Run("configured mapping replaces the default", func(t *testing.T) {
		mapping := Mapping{
			domain.StatusAvailable: {"OPEN"},
			domain.StatusSold:      {"CLOSED"},
		}
		assert.Equal(t, domain.StatusAvailable, Normalize("OPEN", mapping))
		assert.Equal(t, domain.StatusAvailable, Normalize("open", mapping))
		assert.Equal(t, domain.StatusSold, Normalize("CLOSED", mapping))
		// "available" is not in the configured mapping, so it is unknown
		assert.Equal(t, domain.StatusHidden, Normalize("available", mapping))
	})
}

func TestNormalizeAll(t *testing.T) {
	mapping := Mapping{
		domain.StatusAvailable: {"OPEN"},
		domain.StatusSold:      {"CLOSED"},
	}
	statuses := NormalizeAll(map[string]string{
		"U1": "OPEN",
		"U2": "CLOSED",
		"U3": "WeirdValue",
	}, mapping)
	assert.Equal(t, map[string]domain.CanonicalStatus{
		"U1": domain.StatusAvailable,
		"U2": domain.StatusSold,
		"U3": domain.StatusHidden,
	}, statuses)
}
