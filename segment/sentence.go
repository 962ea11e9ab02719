package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var commonAbbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "mt": {}, "vs": {}, "etc": {}, "no": {}, "vol": {}, "rev": {},
	"fig": {}, "al": {}, "inc": {}, "ltd": {}, "co": {}, "dept": {}, "gen": {},
	"capt": {}, "lt": {}, "col": {}, "sgt": {}, "messrs": {},
	"a.m": {}, "p.m": {}, "e.g": {}, "i.e": {}, "u.s": {}, "u.k": {},
}

// splitSentences splits text after sentence-ending punctuation followed by
// whitespace. Full-width CJK terminators end a sentence without whitespace.
// The whitespace between two sentences becomes the sep of the second one, so
// joining sep+text over the pieces gives back text.
func splitSentences(text string) []piece {
	var (
		pieces []piece
		sep    string
		start  int
	)

	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminal(r) {
			i += size
			continue
		}

		// Absorb runs like "?!" and closing quotes or brackets.
		end := i + size
		for end < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[end:])
			if !isTerminal(r2) && !isClosing(r2) {
				break
			}
			end += s2
		}

		if r == '.' && isAbbreviation(text[start:i]) {
			i = end
			continue
		}

		wsEnd := end
		for wsEnd < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[wsEnd:])
			if !unicode.IsSpace(r2) {
				break
			}
			wsEnd += s2
		}
		if wsEnd >= len(text) {
			break
		}
		if wsEnd == end && !isFullWidthTerminal(r) {
			i = end
			continue
		}

		pieces = append(pieces, piece{text: text[start:end], sep: sep})
		sep = text[end:wsEnd]
		start = wsEnd
		i = wsEnd
	}

	return append(pieces, piece{text: text[start:], sep: sep})
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isFullWidthTerminal(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»', '」', '』', '）':
		return true
	}
	return false
}

// isAbbreviation reports whether the token right before a period is a known
// abbreviation or a single-letter initial.
func isAbbreviation(before string) bool {
	j := len(before)
	for j > 0 {
		r, size := utf8.DecodeLastRuneInString(before[:j])
		if unicode.IsSpace(r) || strings.ContainsRune("\"'([{“‘", r) {
			break
		}
		j -= size
	}
	token := before[j:]
	if token == "" {
		return false
	}
	if utf8.RuneCountInString(token) == 1 {
		r, _ := utf8.DecodeRuneInString(token)
		return unicode.IsLetter(r)
	}
	_, ok := commonAbbreviations[strings.ToLower(token)]
	return ok
}
