// Package sanitize hardens user-supplied text before it is interpolated
// into a generation prompt.
package sanitize

import (
	"regexp"
	"strings"
)

// Max lengths for user-supplied text interpolated into prompts.
const (
	MaxTitleLength    = 200
	MaxTagLength      = 50
	MaxFeedbackLength = 500
)

// MaxFeedbackEntries caps how many feedback strings reach the prompt.
const MaxFeedbackEntries = 50

var (
	markerPattern  = regexp.MustCompile("[<>`]")
	headingPattern = regexp.MustCompile(`(?m)^#+\s`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// ForPrompt truncates text to maxLength runes, strips characters commonly
// used as formatting or instruction markers, and collapses internal
// whitespace so a value cannot span lines inside the prompt.
func ForPrompt(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) > maxLength {
		text = string(runes[:maxLength])
	}
	text = markerPattern.ReplaceAllString(text, "")
	text = headingPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Title sanitizes a track title.
func Title(s string) string { return ForPrompt(s, MaxTitleLength) }

// Tag sanitizes a single genre tag.
func Tag(s string) string { return ForPrompt(s, MaxTagLength) }

// Feedback sanitizes one rater feedback string.
func Feedback(s string) string { return ForPrompt(s, MaxFeedbackLength) }
