// Package utils holds small string helpers shared by the knowledge engine
// and the CLI.
package utils

import "strings"

// ComputeDistance computes the Levenshtein distance between two strings.
// It is case-insensitive and counts runes, not bytes.
func ComputeDistance(s1, s2 string) int {
	r1 := []rune(strings.ToLower(s1))
	r2 := []rune(strings.ToLower(s2))

	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rolling rows instead of the full matrix
	prev := make([]int, len(r2)+1)
	cur := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		cur[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			// deletion, insertion, substitution
			best := prev[j] + 1
			if ins := cur[j-1] + 1; ins < best {
				best = ins
			}
			if sub := prev[j-1] + cost; sub < best {
				best = sub
			}
			cur[j] = best
		}
		prev, cur = cur, prev
	}

	return prev[len(r2)]
}

// Similarity returns 1 - distance/longer length, in [0, 1]. Surrounding
// whitespace is ignored and two empty strings are identical.
func Similarity(s1, s2 string) float64 {
	s1 = strings.TrimSpace(s1)
	s2 = strings.TrimSpace(s2)
	longest := len([]rune(s1))
	if n := len([]rune(s2)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(ComputeDistance(s1, s2))/float64(longest)
}
