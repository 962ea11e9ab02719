package epubtrans

import (
	"bytes"
	"strings"
)

// textEscaper escapes the characters that are significant in element content.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// rewriteMarkup reassembles a document from its scanned tokens. Tokens are
// copied byte for byte except the text of changed paragraphs: the first
// text token of such a paragraph receives the new text, keeping its own
// surrounding whitespace, and the paragraph's other text tokens are dropped.
// Whitespace-only tokens are always kept.
func rewriteMarkup(scan *markupScan, texts []string, changed []bool) []byte {
	var buf bytes.Buffer
	written := make([]bool, len(texts))

	for _, tok := range scan.tokens {
		order := -1
		if tok.unit >= 0 && tok.unit < len(scan.final) {
			order = scan.final[tok.unit]
		}
		if order < 0 || !changed[order] || !tok.hasText {
			buf.Write(tok.raw)
			continue
		}
		if written[order] {
			continue
		}

		lead, trail := surroundingSpace(tok.raw)
		buf.Write(lead)
		buf.WriteString(textEscaper.Replace(texts[order]))
		buf.Write(trail)
		written[order] = true
	}
	return buf.Bytes()
}

// surroundingSpace returns the leading and trailing whitespace of raw.
func surroundingSpace(raw []byte) (lead, trail []byte) {
	trimmedLeft := bytes.TrimLeftFunc(raw, isWhitespace)
	lead = raw[:len(raw)-len(trimmedLeft)]
	trimmed := bytes.TrimRightFunc(trimmedLeft, isWhitespace)
	trail = trimmedLeft[len(trimmed):]
	return lead, trail
}
