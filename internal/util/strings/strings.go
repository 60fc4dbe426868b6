// Package strings provides string helpers for command output.
package strings

import "strconv"

// Pluralize returns singular or plural form based on count.
// Example: Pluralize("row", 1) returns "row", Pluralize("chunk", 2) returns "chunks"
func Pluralize(word string, count int64) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

// Count formats count followed by word in the matching form, e.g. "1 row" or "12 chunks".
func Count(count int64, word string) string {
	return strconv.FormatInt(count, 10) + " " + Pluralize(word, count)
}
