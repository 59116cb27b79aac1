package common

import "strings"

// SplitAndTrim splits a comma-separated list, trimming spaces and dropping empty items.
func SplitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
