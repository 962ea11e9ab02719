package epubtrans

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipElements is the set of elements whose content never contributes text.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Title:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// boundaryElements is the set of block-level elements whose start and end
// tags both close the current paragraph unit.
var boundaryElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Section:    true,
	atom.Article:    true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Blockquote: true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Aside:      true,
	atom.Figure:     true,
	atom.Figcaption: true,
	atom.Pre:        true,
	atom.Dd:         true,
	atom.Dt:         true,
	atom.Td:         true,
	atom.Th:         true,
}

// inlineBreaks are void elements that separate words but not paragraphs.
var inlineBreaks = map[atom.Atom]bool{
	atom.Br: true,
	atom.Hr: true,
}

// markupToken is one tokenizer token kept for byte-preserving rewrites.
type markupToken struct {
	raw []byte

	// unit is the provisional unit the token's text belongs to, or -1.
	unit int

	// hasText is set for text tokens that contain non-whitespace characters.
	hasText bool
}

// markupScan is the result of one tokenizer pass over a decoded document.
type markupScan struct {
	units []ParagraphUnit

	// tokens is only filled when the scan was asked to keep them.
	tokens []markupToken

	// final maps provisional unit numbers to ParagraphUnit.Order, or -1 for
	// units that turned out empty and were dropped.
	final []int
}

// ExtractParagraphs converts an XHTML content document into its ordered
// paragraph units. Text inside script, style, head, title, noscript and
// template is discarded; block-level tags separate units; whitespace runs
// collapse to a single space and empty units are dropped.
//
// Markup that cannot be tokenized, or that ends inside an unterminated
// skipped element, yields ErrUnparsableMarkup.
func ExtractParagraphs(markup []byte) ([]ParagraphUnit, error) {
	doc, err := decodeMarkup(markup)
	if err != nil {
		return nil, err
	}
	s, err := scanMarkup(doc.text, false)
	if err != nil {
		return nil, err
	}
	return s.units, nil
}

// ExtractText returns the plain text of an XHTML content document: its
// paragraph units joined by ParagraphSeparator.
func ExtractText(markup []byte) (string, error) {
	units, err := ExtractParagraphs(markup)
	if err != nil {
		return "", err
	}
	return JoinParagraphs(units), nil
}

// JoinParagraphs joins unit texts with ParagraphSeparator.
func JoinParagraphs(units []ParagraphUnit) string {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	return strings.Join(texts, ParagraphSeparator)
}

// scanMarkup tokenizes UTF-8 markup once, collecting paragraph units and,
// when keep is set, every token's raw bytes tagged with its unit.
func scanMarkup(data []byte, keep bool) (*markupScan, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	s := &markupScan{}

	var (
		skip []atom.Atom // open skip elements, innermost last
		buf  strings.Builder
		prov int
	)

	flush := func() {
		order := -1
		if text := collapseWhitespace(buf.String()); text != "" {
			order = len(s.units)
			s.units = append(s.units, ParagraphUnit{Text: text, Order: order})
		}
		s.final = append(s.final, order)
		buf.Reset()
		prov++
	}
	emit := func(unit int, hasText bool) {
		if !keep {
			return
		}
		raw := z.Raw()
		if len(raw) == 0 {
			return
		}
		s.tokens = append(s.tokens, markupToken{
			raw:     append([]byte(nil), raw...),
			unit:    unit,
			hasText: hasText,
		})
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %v", ErrUnparsableMarkup, err)
			}
			if len(skip) > 0 {
				return nil, fmt.Errorf("%w: unterminated <%s> element", ErrUnparsableMarkup, skip[len(skip)-1])
			}
			emit(-1, false)
			flush()
			return s, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if tt == html.SelfClosingTagToken {
				// <script/> and <title/> are complete elements in XHTML.
				z.NextIsNotRawText()
			}
			switch {
			case a == atom.Body:
				// A body start tag closes a head that was never closed.
				if i := lastIndex(skip, atom.Head); i >= 0 {
					skip = skip[:i]
				}
			case skipElements[a]:
				if tt == html.StartTagToken {
					skip = append(skip, a)
				}
			case len(skip) > 0:
			case boundaryElements[a]:
				flush()
			case inlineBreaks[a]:
				buf.WriteByte(' ')
			}
			emit(-1, false)

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case skipElements[a]:
				if i := lastIndex(skip, a); i >= 0 {
					skip = skip[:i]
				}
			case len(skip) > 0:
			case boundaryElements[a]:
				flush()
			case inlineBreaks[a]:
				buf.WriteByte(' ')
			}
			emit(-1, false)

		case html.TextToken:
			if len(skip) > 0 {
				emit(-1, false)
				continue
			}
			text := z.Text()
			buf.Write(text)
			emit(prov, hasNonSpace(text))

		default:
			// Comments and doctypes.
			emit(-1, false)
		}
	}
}

// lastIndex returns the index of the innermost a in stack, or -1.
func lastIndex(stack []atom.Atom, a atom.Atom) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == a {
			return i
		}
	}
	return -1
}

// collapseWhitespace replaces runs of whitespace with a single space and
// trims both ends. Non-breaking spaces are kept as text.
func collapseWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, isWhitespace), " ")
}

func hasNonSpace(b []byte) bool {
	return len(bytes.TrimFunc(b, isWhitespace)) > 0
}

// isWhitespace returns true if r is an HTML whitespace character.
func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
}
