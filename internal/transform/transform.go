// Package transform sends segments to a text transformation service and
// records the results in a progress store.
package transform

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/simp-lee/epubtrans/segment"
)

// ErrEmptyResult is returned when the service answers with no text.
var ErrEmptyResult = errors.New("transform: empty result")

// Request is one segment to transform.
type Request struct {
	Key            segment.Key
	Text           string
	Genre          string
	TargetLanguage string

	// ChapterTitle is passed along as context; it may be empty.
	ChapterTitle string
}

// Transformer turns the text of one segment into its transformed form.
// Implementations must be safe for concurrent use.
type Transformer interface {
	Transform(ctx context.Context, req Request) (string, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, req Request) (string, error)

// Transform calls f.
func (f TransformerFunc) Transform(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var genreGuidance = map[string]string{
	"fantasy": "Keep invented names, places and magic terms consistent; transliterate them rather than translating their meaning. Preserve an epic, immersive tone.",
	"sci-fi":  "Keep technical and scientific terminology precise and consistent. Transliterate invented technology names.",
	"romance": "Preserve emotional nuance and the intimacy of dialogue. Keep terms of endearment natural in the target language.",
	"mystery": "Preserve every clue exactly, including ambiguity the author intended. Keep the suspenseful pacing.",
	"horror":  "Preserve the mounting dread and atmosphere. Favour vivid, unsettling word choices over neutral ones.",
	"general": "Stay faithful to the author's tone and register.",
}

// Genres returns the supported genre names in sorted order.
func Genres() []string {
	out := make([]string, 0, len(genreGuidance))
	for g := range genreGuidance {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// ValidGenre reports whether g has genre-specific guidance.
func ValidGenre(g string) bool {
	_, ok := genreGuidance[g]
	return ok
}

var languageNames = map[string]string{
	"ko": "Korean", "ja": "Japanese", "zh": "Chinese", "en": "English",
	"fr": "French", "de": "German", "es": "Spanish", "it": "Italian",
	"pt": "Portuguese", "ru": "Russian",
}

// LanguageName returns the English name of a BCP 47 primary tag, or the
// tag itself when unknown.
func LanguageName(tag string) string {
	primary, _, _ := strings.Cut(strings.ToLower(tag), "-")
	if name, ok := languageNames[primary]; ok {
		return name
	}
	return tag
}

// SystemPrompt builds the instruction sent ahead of every segment.
func SystemPrompt(genre, targetLanguage string) string {
	guidance, ok := genreGuidance[genre]
	if !ok {
		guidance = genreGuidance["general"]
	}
	return fmt.Sprintf(`You are a professional literary translator. Translate the user's text from a novel into %s.

Rules:
- Output only the translation, with no preamble, notes or explanations.
- Keep the paragraph structure: paragraphs are separated by a blank line and the translation must have the same number of paragraphs.
- Translate dialogue naturally and keep quotation marks.
- %s`, LanguageName(targetLanguage), guidance)
}

// UserPrompt renders the segment text with optional chapter context.
func UserPrompt(req Request) string {
	if req.ChapterTitle == "" {
		return req.Text
	}
	return fmt.Sprintf("[Chapter: %s]\n\n%s", req.ChapterTitle, req.Text)
}

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFence  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```$")
	preamble   = regexp.MustCompile(`(?i)^(?:here is|here's|sure|certainly|of course)[^\n]*?:[ \t]*\n+`)
	label      = regexp.MustCompile(`(?i)^(?:translation|translated text|번역(?:문)?)\s*:\s*`)
	chapterTag = regexp.MustCompile(`^\[Chapter: [^\]\n]*\]\s*`)
)

// Clean removes model chatter around a transformed text: reasoning blocks,
// an enclosing code fence, a leading "Here is the translation:" line, a
// leading label and an echoed chapter tag.
func Clean(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	text = preamble.ReplaceAllString(text, "")
	text = label.ReplaceAllString(text, "")
	text = chapterTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
