package gateway

import "strings"

// Headers is the flat header map used by Gateway envelopes.
type Headers map[string]string

// Get looks up a header by name, ignoring case.
func (h Headers) Get(name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Normalize returns a copy with lower-cased header names. When two keys
// collide after folding, the one that was already lower-case wins.
func (h Headers) Normalize() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		lk := strings.ToLower(k)
		if _, exists := out[lk]; exists && k != lk {
			continue
		}
		out[lk] = v
	}
	return out
}
