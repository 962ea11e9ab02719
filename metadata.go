package epubtrans

import (
	"sort"
	"strconv"
	"strings"
)

// extractMetadata converts the raw OPF metadata into the flat Metadata record.
// Absent elements leave the corresponding field empty.
func extractMetadata(opf *opfPackage) Metadata {
	om := &opf.Metadata
	refinesMap := buildRefinesMap(om.Metas)

	md := Metadata{
		Titles:      extractTitles(om.Titles, refinesMap),
		Authors:     nonEmptyValues(om.Creators),
		Language:    firstNonEmpty(om.Languages),
		Identifier:  uniqueIdentifier(opf),
		Publisher:   firstNonEmpty(om.Publishers),
		Description: firstNonEmpty(om.Descriptions),
		Date:        firstNonEmpty(om.Dates),
		Subjects:    nonEmptyValues(om.Subjects),
	}
	if len(md.Titles) > 0 {
		md.Title = md.Titles[0]
	}
	return md
}

// uniqueIdentifier prefers the dc:identifier named by the package's
// unique-identifier attribute, then the first non-empty identifier.
func uniqueIdentifier(opf *opfPackage) string {
	if ref := opf.UniqueIdentifier; ref != "" {
		for _, id := range opf.Metadata.Identifiers {
			if id.ID == ref {
				if v := strings.TrimSpace(id.Value); v != "" {
					return v
				}
			}
		}
	}
	return firstNonEmpty(opf.Metadata.Identifiers)
}

func firstNonEmpty(elems []opfDCElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

func nonEmptyValues(elems []opfDCElement) []string {
	var out []string
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// buildRefinesMap builds a map from element ID (without "#") to the list of
// <meta refines="#id" ...> elements that refine it.
func buildRefinesMap(metas []opfMeta) map[string][]opfMeta {
	m := make(map[string][]opfMeta)
	for _, meta := range metas {
		ref := meta.Refines
		if !strings.HasPrefix(ref, "#") {
			continue
		}
		m[ref[1:]] = append(m[ref[1:]], meta)
	}
	return m
}

// findRefine looks up a single refining property value for the given element ID.
func findRefine(refinesMap map[string][]opfMeta, id, property string) (string, bool) {
	for _, m := range refinesMap[id] {
		if m.Property == property {
			if v := strings.TrimSpace(m.Value); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// extractTitles returns the dc:title values. For ePub 3, titles refined
// with display-seq are ordered by it; the rest keep document order after them.
func extractTitles(titles []opfDCElement, refinesMap map[string][]opfMeta) []string {
	type titleEntry struct {
		value string
		seq   int
		index int
	}

	entries := make([]titleEntry, 0, len(titles))
	hasSeq := false
	for i, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		e := titleEntry{value: v, index: i}
		if t.ID != "" {
			if seqStr, ok := findRefine(refinesMap, t.ID, "display-seq"); ok {
				if n, err := strconv.Atoi(seqStr); err == nil {
					e.seq = n
					hasSeq = true
				}
			}
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil
	}

	if hasSeq {
		sort.SliceStable(entries, func(i, j int) bool {
			si, sj := entries[i].seq, entries[j].seq
			switch {
			case si == 0 && sj == 0:
				return entries[i].index < entries[j].index
			case si == 0:
				return false
			case sj == 0:
				return true
			}
			return si < sj
		})
	}

	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.value
	}
	return result
}
