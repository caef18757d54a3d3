package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Identifiable is implemented by entities that already know their canonical identifier.
type Identifiable interface {
	IdentityKey() string
}

// identityFields lists the payload keys that may carry an identifier, by priority.
var identityFields = []string{"id", "_id", "userId", "username"}

// ResolveID maps an identifier of unknown shape to its canonical string form.
// The boolean is false when no identifier can be found; absence is not an error.
func ResolveID(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return nonEmpty(strings.TrimSpace(x))
	case json.Number:
		return nonEmpty(x.String())
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case Identifiable:
		return nonEmpty(x.IdentityKey())
	case map[string]any:
		for _, key := range identityFields {
			if id, ok := ResolveID(x[key]); ok {
				return id, true
			}
		}
		return "", false
	}
	return "", false
}

// SameID compares two identifiers case-insensitively. Absent identifiers never match.
func SameID(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

func nonEmpty(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	return s, true
}
