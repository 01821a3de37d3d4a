// Package textdiff compares proposal texts the way reviewers read them: whitespace
// insensitive, word by word.
package textdiff

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Op identifies the kind of a diff segment.
type Op string

const (
	OpEqual  Op = "equal"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Segment is a run of words sharing the same diff operation.
type Segment struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalize strips carriage returns and non-breaking spaces and collapses whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Clean prepares text for storage. Line breaks and inner spacing survive; carriage
// returns, non-breaking spaces, trailing blanks on each line and the outer padding do not.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Equal reports whether two texts are identical after normalisation.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Tokens splits normalised text into lower-cased words.
func Tokens(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	return strings.Fields(strings.ToLower(normalized))
}

// Similarity returns the SequenceMatcher ratio (2*M/T) over word tokens, in [0, 1].
func Similarity(a, b string) float64 {
	left, right := Tokens(a), Tokens(b)
	if len(left) == 0 && len(right) == 0 {
		return 1
	}
	return difflib.NewMatcher(left, right).Ratio()
}

// Diff returns word-level segments turning previous into current. A replaced run is
// emitted as a delete followed by an insert.
func Diff(previous, current string) []Segment {
	oldWords := strings.Fields(Normalize(previous))
	newWords := strings.Fields(Normalize(current))

	matcher := difflib.NewMatcher(lower(oldWords), lower(newWords))
	segments := make([]Segment, 0)
	for _, code := range matcher.GetOpCodes() {
		switch code.Tag {
		case 'e':
			segments = appendSegment(segments, OpEqual, newWords[code.J1:code.J2])
		case 'd':
			segments = appendSegment(segments, OpDelete, oldWords[code.I1:code.I2])
		case 'i':
			segments = appendSegment(segments, OpInsert, newWords[code.J1:code.J2])
		case 'r':
			segments = appendSegment(segments, OpDelete, oldWords[code.I1:code.I2])
			segments = appendSegment(segments, OpInsert, newWords[code.J1:code.J2])
		}
	}
	return segments
}

func appendSegment(segments []Segment, op Op, words []string) []Segment {
	if len(words) == 0 {
		return segments
	}
	return append(segments, Segment{Op: op, Text: strings.Join(words, " ")})
}

func lower(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
