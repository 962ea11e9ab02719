package epubtrans

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

var (
	metadataOpen  = regexp.MustCompile(`<(?:[A-Za-z_][\w.-]*:)?metadata\b[^>]*>`)
	metadataClose = regexp.MustCompile(`</(?:[A-Za-z_][\w.-]*:)?metadata\s*>`)
	dcPrefixDecl  = regexp.MustCompile(`xmlns:([A-Za-z_][\w.-]*)\s*=\s*["']` + regexp.QuoteMeta(dcNamespace) + `["']`)
	opfPrefixDecl = regexp.MustCompile(`xmlns:opf\s*=\s*["']` + regexp.QuoteMeta(opfNamespace) + `["']`)
)

// translatorID is the id given to the inserted translator contributor.
const translatorID = "epubtrans-trl"

// patchPackageDocument edits the <metadata> block of a package document.
// Everything outside it, the manifest and spine included, is copied
// unchanged. The result must still parse as a package document.
func patchPackageDocument(data []byte, version string, opts RebuildOptions) ([]byte, error) {
	open := metadataOpen.FindIndex(data)
	if open == nil {
		return nil, fmt.Errorf("%w: <metadata> element missing", ErrMalformedManifest)
	}
	closeLoc := metadataClose.FindIndex(data[open[1]:])
	if closeLoc == nil {
		return nil, fmt.Errorf("%w: <metadata> element not closed", ErrMalformedManifest)
	}
	start, end := open[1], open[1]+closeLoc[0]

	prefix := "dc:"
	if m := dcPrefixDecl.FindSubmatch(data); m != nil {
		prefix = string(m[1]) + ":"
	}

	md := &metadataPatch{body: string(data[start:end]), prefix: prefix}
	if opts.Language != "" {
		md.setText("language", opts.Language)
	}
	if opts.TitleSuffix != "" {
		md.appendText("title", opts.TitleSuffix, "", false)
	}
	if opts.ProvenanceNote != "" {
		md.appendText("description", opts.ProvenanceNote, "\n\n", true)
	}
	if opts.Contributor != "" {
		md.addContributor(opts.Contributor, version, opfPrefixDecl.Match(data))
	}

	var out bytes.Buffer
	out.Grow(len(data) + len(md.body) - (end - start))
	out.Write(data[:start])
	out.WriteString(md.body)
	out.Write(data[end:])

	if _, err := parseOPF(out.Bytes()); err != nil {
		return nil, fmt.Errorf("patched package document: %w", err)
	}
	return out.Bytes(), nil
}

// metadataPatch edits the inner text of a <metadata> element.
type metadataPatch struct {
	body   string
	prefix string // Dublin Core prefix including the colon
}

// element returns a pattern for the first <prefix:name> element, either
// paired (groups: attributes, content) or self-closing.
func (m *metadataPatch) element(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(m.prefix + name)
	return regexp.MustCompile(`(?s)<` + q + `\b([^>]*?)(?:/>|>(.*?)</` + q + `\s*>)`)
}

// setText replaces the content of the first element, inserting one if
// there is none.
func (m *metadataPatch) setText(name, value string) {
	re := m.element(name)
	loc := re.FindStringSubmatchIndex(m.body)
	if loc == nil {
		m.insert(fmt.Sprintf("<%s%s>%s</%s%s>", m.prefix, name, escapeXML(value), m.prefix, name))
		return
	}
	attrs := m.body[loc[2]:loc[3]]
	replacement := fmt.Sprintf("<%s%s%s>%s</%s%s>", m.prefix, name, attrs, escapeXML(value), m.prefix, name)
	m.body = m.body[:loc[0]] + replacement + m.body[loc[1]:]
}

// appendText appends value to the content of the first element. When
// insert is set and the element is missing, a new one is added.
func (m *metadataPatch) appendText(name, value, sep string, insert bool) {
	re := m.element(name)
	loc := re.FindStringSubmatchIndex(m.body)
	if loc == nil {
		if insert {
			m.insert(fmt.Sprintf("<%s%s>%s</%s%s>", m.prefix, name, escapeXML(value), m.prefix, name))
		}
		return
	}
	attrs := m.body[loc[2]:loc[3]]
	content := ""
	if loc[4] >= 0 {
		content = m.body[loc[4]:loc[5]]
	}
	if strings.TrimSpace(content) != "" {
		content = strings.TrimRight(content, " \t\r\n") + sep
	}
	replacement := fmt.Sprintf("<%s%s%s>%s%s</%s%s>", m.prefix, name, attrs, content, escapeXML(value), m.prefix, name)
	m.body = m.body[:loc[0]] + replacement + m.body[loc[1]:]
}

// addContributor adds a translator. ePub 3 uses a refining role meta;
// ePub 2 uses the opf:role attribute when the opf prefix is declared.
func (m *metadataPatch) addContributor(name, version string, hasOPFPrefix bool) {
	switch {
	case strings.HasPrefix(version, "3"):
		m.insert(fmt.Sprintf(`<%scontributor id="%s">%s</%scontributor>`, m.prefix, translatorID, escapeXML(name), m.prefix))
		m.insert(fmt.Sprintf(`<meta refines="#%s" property="role" scheme="marc:relators">trl</meta>`, translatorID))
	case hasOPFPrefix:
		m.insert(fmt.Sprintf(`<%scontributor opf:role="trl">%s</%scontributor>`, m.prefix, escapeXML(name), m.prefix))
	default:
		m.insert(fmt.Sprintf(`<%scontributor>%s</%scontributor>`, m.prefix, escapeXML(name), m.prefix))
	}
}

// insert appends an element at the end of the metadata block, indented
// like the last child.
func (m *metadataPatch) insert(elem string) {
	indent := "\n    "
	if i := strings.LastIndex(m.body, "\n"); i >= 0 {
		tail := m.body[i:]
		if strings.TrimSpace(tail) == "" {
			m.body = m.body[:i]
			defer func() { m.body += tail }()
		}
		if j := strings.LastIndex(m.body, "\n"); j >= 0 {
			line := m.body[j+1:]
			indent = "\n" + line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		}
	}
	m.body += indent + elem
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
