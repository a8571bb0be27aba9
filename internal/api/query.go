package api

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Problems collects non-fatal input issues reported back with the response.
type Problems []string

func (p *Problems) Addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// ParseJSONParam decodes the JSON value of query parameter key into T. A missing
// parameter yields def silently; a malformed one yields def and a problem entry.
func ParseJSONParam[T any](q url.Values, key string, def T, problems *Problems) T {
	raw := q.Get(key)
	if raw == "" {
		return def
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		problems.Addf("query parameter %q: %v; using default", key, err)
		return def
	}
	return v
}
