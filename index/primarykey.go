package index

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/velasearch/vela/errkind"
)

// idPattern matches valid document and index identifiers (§6 "Identifier
// constraints").
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,512}$`)

// ValidDocumentID reports whether s is an acceptable document id string.
func ValidDocumentID(s string) bool { return idPattern.MatchString(s) }

// DerivePrimaryKey implements §4.3 "Primary key": explicit setting wins;
// otherwise the single field whose name contains "id" (case-insensitive)
// — more than one such field is an IndexPrimaryKeyMultipleCandidatesFound
// error; otherwise, if autoGenerate is allowed, a fresh UUID field named
// "id" is used and every document gets a generated value.
func DerivePrimaryKey(explicit string, fieldNamesInOrder []string, autoGenerate bool) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	var candidates []string
	for _, name := range fieldNamesInOrder {
		if strings.Contains(strings.ToLower(name), "id") {
			candidates = append(candidates, name)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		if autoGenerate {
			return "id", nil
		}
		return "", errkind.New(errkind.IndexPrimaryKeyNoCandidateFound, "no field name contains \"id\" and auto-generation is disabled")
	default:
		return "", errkind.New(errkind.IndexPrimaryKeyMultipleCandidatesFound, "multiple candidate id fields: %v", candidates)
	}
}

// GenerateDocumentID returns a fresh auto-generated id, used when the
// primary key is auto-generated and a document's own value is absent.
func GenerateDocumentID() string {
	return uuid.NewString()
}
