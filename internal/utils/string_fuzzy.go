package utils

import "strings"

// FuzzyMatch checks if source is a fuzzy match of target.
// Characters in source must appear in target in the same order.
// Case-insensitive; an empty source matches everything.
func FuzzyMatch(source, target string) bool {
	sourceRunes := []rune(strings.ToLower(source))
	targetRunes := []rune(strings.ToLower(target))

	sourceIdx := 0
	for targetIdx := 0; sourceIdx < len(sourceRunes) && targetIdx < len(targetRunes); targetIdx++ {
		if sourceRunes[sourceIdx] == targetRunes[targetIdx] {
			sourceIdx++
		}
	}

	return sourceIdx == len(sourceRunes)
}
