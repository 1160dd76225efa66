package engine

import "strings"

// Normalize turns a raw scanned value into a comparable serial key.
// Case is preserved; hardware serials can be case-sensitive.
func Normalize(raw string) string {
	return strings.TrimSpace(raw)
}

// Dedupe normalizes values and drops empties and repeats, keeping first-seen order.
func Dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		s := Normalize(v)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
