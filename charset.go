package epubtrans

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// xmlDeclEncoding captures the encoding pseudo-attribute of an XML declaration.
var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// decodedMarkup is a content document converted to UTF-8.
type decodedMarkup struct {
	text []byte

	// enc is the source encoding, or nil when the source was UTF-8.
	enc encoding.Encoding

	// bom is the UTF-8 byte-order mark the source started with, if any.
	bom []byte
}

// decodeMarkup converts a content document to UTF-8. The XML declaration
// wins; otherwise valid UTF-8 is used as is; otherwise the HTML sniffing
// rules (BOM, meta charset, windows-1252 fallback) decide.
func decodeMarkup(data []byte) (*decodedMarkup, error) {
	doc := &decodedMarkup{}
	if bytes.HasPrefix(data, utf8BOM) {
		doc.bom = utf8BOM
		data = data[len(utf8BOM):]
	}

	enc := declaredEncoding(data)
	if enc == nil && !utf8.Valid(data) {
		enc, _, _ = charset.DetermineEncoding(data, "")
	}
	if enc == nil || enc == encoding.Nop || enc == unicode.UTF8 {
		doc.text = data
		return doc, nil
	}

	text, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnparsableMarkup, err)
	}
	doc.text = text
	doc.enc = enc
	return doc, nil
}

// declaredEncoding returns the encoding named by the XML declaration, or nil
// when there is none, it is unknown, or it names UTF-8.
func declaredEncoding(data []byte) encoding.Encoding {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := xmlDeclEncoding.FindSubmatch(head)
	if m == nil {
		return nil
	}
	label := strings.ToLower(string(m[1]))
	if label == "utf-8" || label == "utf8" {
		return nil
	}
	enc, _ := charset.Lookup(label)
	return enc
}

// encode converts UTF-8 output back to the document's source encoding.
// Characters the encoding cannot represent become numeric character references.
func (d *decodedMarkup) encode(text []byte) ([]byte, error) {
	var out []byte
	if d.enc == nil {
		out = text
	} else {
		encoded, err := encoding.HTMLEscapeUnsupported(d.enc.NewEncoder()).Bytes(text)
		if err != nil {
			return nil, fmt.Errorf("epubtrans: encode document: %w", err)
		}
		out = encoded
	}
	if len(d.bom) > 0 {
		out = append(append([]byte(nil), d.bom...), out...)
	}
	return out, nil
}
