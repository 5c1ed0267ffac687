// Package placeholder implements the inline token grammar that stands in for
// audio attachments inside a note body: "[AUDIO_ID:" + decimal digits + "]".
//
// The scan is tolerant of interior whitespace around the digits; the same
// compiled pattern is used everywhere tokens are read so the editor view and
// the save path can never disagree about what a token is.
package placeholder

import (
	"regexp"
	"strconv"
)

const (
	// Prefix and Suffix delimit a token. Both are syntactically inert in the
	// note markup, so a well-formed token never collides with ordinary text.
	Prefix = "[AUDIO_ID:"
	Suffix = "]"
)

var tokenPattern = regexp.MustCompile(`\[AUDIO_ID:\s*(\d+)\s*\]`)

// Match is one well-formed token occurrence within a text body.
type Match struct {
	ID    int64
	Start int // byte offset of the token's first character
	End   int // byte offset one past the token's last character
}

// Encode renders the inline token for an audio block id.
func Encode(id int64) string {
	return Prefix + strconv.FormatInt(id, 10) + Suffix
}

// Decode is the strict inverse of Encode. It returns ok=false for anything
// that is not a single well-formed token; callers treat such input as plain
// text. Decode never fails with an error.
func Decode(token string) (int64, bool) {
	m := tokenPattern.FindStringSubmatchIndex(token)
	if m == nil || m[0] != 0 || m[1] != len(token) {
		return 0, false
	}
	id, err := strconv.ParseInt(token[m[2]:m[3]], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// FindAll locates every well-formed token in text, left to right, with its
// byte span so callers can slice the surrounding text. Malformed candidates
// simply produce no match.
func FindAll(text string) []Match {
	idx := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if idx == nil {
		return nil
	}
	matches := make([]Match, 0, len(idx))
	for _, m := range idx {
		id, err := strconv.ParseInt(text[m[2]:m[3]], 10, 64)
		if err != nil {
			// Digits too long for int64; treat as plain text.
			continue
		}
		matches = append(matches, Match{ID: id, Start: m[0], End: m[1]})
	}
	return matches
}

// ReferencedIDs returns the set of block ids referenced by tokens in text.
func ReferencedIDs(text string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, m := range FindAll(text) {
		ids[m.ID] = true
	}
	return ids
}

// FirstIndex returns the byte offset of the first token referencing id, or -1.
func FirstIndex(text string, id int64) int {
	for _, m := range FindAll(text) {
		if m.ID == id {
			return m.Start
		}
	}
	return -1
}

// Remove deletes every token occurrence for id from text. When a removal
// leaves a space on both sides of the cut, one of the two is dropped so the
// text does not keep a visual gap where the attachment used to be.
func Remove(text string, id int64) string {
	for {
		matches := FindAll(text)
		var target *Match
		for i := range matches {
			if matches[i].ID == id {
				target = &matches[i]
				break
			}
		}
		if target == nil {
			return text
		}
		before, after := text[:target.Start], text[target.End:]
		if endsWithSpace(before) && startsWithSpace(after) {
			after = after[1:]
		}
		text = before + after
	}
}

func endsWithSpace(s string) bool {
	return len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t')
}

func startsWithSpace(s string) bool {
	return len(s) > 0 && (s[0] == ' ' || s[0] == '\t')
}
