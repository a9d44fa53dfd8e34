package search

import (
	"unicode"
	"unicode/utf8"
)

// Segment is a run of text that either matched the query or did not.
// Concatenating the Text of all segments reproduces the input exactly.
type Segment struct {
	Text  string `json:"text"`
	Match bool   `json:"match"`
}

// Highlight splits text into segments marking every case-insensitive
// occurrence of query. Matching folds rune by rune, so offsets stay aligned
// with the original text even where lowercasing changes byte length. A blank
// query yields a single unmatched segment.
func Highlight(text, query string) []Segment {
	q := normalize(query)
	if q == "" || text == "" {
		return []Segment{{Text: text}}
	}

	var segments []Segment
	pos := 0
	i := 0
	for i < len(text) {
		end, ok := foldedMatchAt(text, i, q)
		if !ok {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			continue
		}
		if i > pos {
			segments = append(segments, Segment{Text: text[pos:i]})
		}
		segments = append(segments, Segment{Text: text[i:end], Match: true})
		pos = end
		i = end
	}
	if pos < len(text) {
		segments = append(segments, Segment{Text: text[pos:]})
	}
	if len(segments) == 0 {
		return []Segment{{Text: text}}
	}
	return segments
}

// foldedMatchAt reports whether the lowered query occurs at byte offset i of
// text under simple case folding, and returns the end offset in text.
func foldedMatchAt(text string, i int, loweredQuery string) (int, bool) {
	ti := i
	qi := 0
	for qi < len(loweredQuery) {
		if ti >= len(text) {
			return 0, false
		}
		tr, tsize := utf8.DecodeRuneInString(text[ti:])
		qr, qsize := utf8.DecodeRuneInString(loweredQuery[qi:])
		if unicode.ToLower(tr) != unicode.ToLower(qr) {
			return 0, false
		}
		ti += tsize
		qi += qsize
	}
	return ti, true
}
