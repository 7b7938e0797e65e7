package booking

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// CANONICAL BAND IDENTITY
// =============================================================================

// NormalizeKey maps free-text band names onto a stable key so spelling
// variants ("TNS  Band", "tns band", full-width letters) merge.
func NormalizeKey(raw string) string {
	s := norm.NFKC.String(raw)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// IdentityTable holds the display label of every known canonical band.
// The zero value is an empty table. It is read-only after construction.
type IdentityTable struct {
	version string
	labels  map[string]string
}

// NewIdentityTable builds a table from key -> label pairs. Keys are
// normalized so the source file may use any spelling.
func NewIdentityTable(version string, labels map[string]string) *IdentityTable {
	t := &IdentityTable{version: version, labels: make(map[string]string, len(labels))}
	for k, v := range labels {
		label := strings.TrimSpace(v)
		if label == "" {
			continue
		}
		t.labels[NormalizeKey(k)] = label
	}
	return t
}

func (t *IdentityTable) Version() string {
	if t == nil {
		return ""
	}
	return t.version
}

func (t *IdentityTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.labels)
}

// Canonicalize returns the band key and display label for raw.
func (t *IdentityTable) Canonicalize(raw string) (key, label string) {
	key = NormalizeKey(raw)
	return key, t.Label(key, raw)
}

// Label returns the canonical label for key, or fallback trimmed when the
// key is unknown.
func (t *IdentityTable) Label(key, fallback string) string {
	if t != nil {
		if l, ok := t.labels[key]; ok {
			return l
		}
	}
	return strings.TrimSpace(fallback)
}
