package booking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tnsmusic/rehearsal-booking/booking"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"TNS Band", "tns band"},
		{"  tns   band ", "tns band"},
		{"ＴＮＳ　Ｂａｎｄ", "tns band"}, // full-width letters and ideographic space
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, booking.NormalizeKey(tt.raw))
		})
	}
}

func TestIdentityTable_Canonicalize(t *testing.T) {
	ids := booking.NewIdentityTable("v2", map[string]string{
		"TNS  Band": "TNS Band",
		"blank":     "   ",
	})

	assert.Equal(t, "v2", ids.Version())
	assert.Equal(t, 1, ids.Len(), "blank labels are dropped")

	key, label := ids.Canonicalize("tns band")
	assert.Equal(t, "tns band", key)
	assert.Equal(t, "TNS Band", label)

	key, label = ids.Canonicalize("  The Garage  ")
	assert.Equal(t, "the garage", key)
	assert.Equal(t, "The Garage", label, "unknown names keep their own spelling")
}

func TestIdentityTable_NilIsEmpty(t *testing.T) {
	var ids *booking.IdentityTable
	assert.Equal(t, 0, ids.Len())
	assert.Equal(t, "Solo", ids.Label("solo", " Solo "))
}
