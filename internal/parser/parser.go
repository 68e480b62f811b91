// Package parser extracts frontmatter, wikilinks, tags, aliases, and block references from Markdown content.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ExcerptLength is the maximum excerpt length in characters, ellipsis excluded.
const ExcerptLength = 150

// ErrFrontmatter is returned when the frontmatter block is not valid YAML.
var ErrFrontmatter = errors.New("invalid frontmatter")

var (
	wikilinkRe  = regexp.MustCompile(`(!?)\[\[([^\[\]]+?)\]\]`)
	tagRe       = regexp.MustCompile(`(?:^|\s)#([\p{L}][\p{L}0-9_/-]*)`)
	blockRe     = regexp.MustCompile(`^(?:(.*?)\s+)?\^([A-Za-z0-9-]+)\s*$`)
	fenceRe     = regexp.MustCompile("(?ms)^```.*?^```[^\n]*$")
	inlineRe    = regexp.MustCompile("`[^`\n]*`")
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
	markerRe    = regexp.MustCompile(`(?m)(?:^|\s)\^[A-Za-z0-9-]+[ \t]*$`)
	markupRe    = regexp.MustCompile("[#*_`>\\[\\]~]")
	spaceRe     = regexp.MustCompile(`\s+`)
)

// WikiLink is one [[target]] or [[target|display]] occurrence.
type WikiLink struct {
	Target  string
	Display string
}

// Embed is one ![[file]] or ![[file#block]] occurrence.
type Embed struct {
	Target  string
	BlockID string
}

// Block is a line carrying a ^block-id marker.
type Block struct {
	ID   string
	Line int
	Text string
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	Tags        []string
	Aliases     []string
	Links       []WikiLink
	Embeds      []Embed
	Blocks      []Block
	Excerpt     string
	WordCount   int
	// Created is the frontmatter "created" value, zero when absent.
	Created time.Time
}

// Parse extracts frontmatter, body, references, and derived text fields from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	prose := stripCode(body)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Tags:        extractTags(prose, fm),
		Aliases:     NormalizeList(fm["aliases"]),
		Links:       ExtractWikiLinks(prose),
		Embeds:      ExtractEmbeds(prose),
		Blocks:      ExtractBlocks(body),
		Excerpt:     Excerpt(body),
		WordCount:   len(strings.Fields(body)),
		Created:     frontmatterTime(fm["created"]),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, the dashes are a thematic break.
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFrontmatter, err)
	}
	return fm, body, nil
}

// stripCode blanks out fenced code blocks and inline code spans so that
// references inside code are not extracted.
func stripCode(body string) string {
	body = fenceRe.ReplaceAllString(body, "")
	return inlineRe.ReplaceAllString(body, "")
}

// ExtractWikiLinks returns every [[target]] / [[target|display]] in order,
// without deduplication. Embeds (![[...]]) and same-note heading links are skipped.
func ExtractWikiLinks(content string) []WikiLink {
	var out []WikiLink
	for _, m := range wikilinkRe.FindAllStringSubmatch(content, -1) {
		if m[1] == "!" {
			continue
		}
		target, display, _ := strings.Cut(m[2], "|")
		target = strings.TrimSpace(target)
		display = strings.TrimSpace(display)
		if base, _, _ := strings.Cut(target, "#"); strings.TrimSpace(base) == "" {
			continue
		}
		if display == "" {
			display = target
		}
		out = append(out, WikiLink{Target: target, Display: display})
	}
	return out
}

// ExtractEmbeds returns every ![[file]] / ![[file#block]] transclusion in order.
func ExtractEmbeds(content string) []Embed {
	var out []Embed
	for _, m := range wikilinkRe.FindAllStringSubmatch(content, -1) {
		if m[1] != "!" {
			continue
		}
		ref, _, _ := strings.Cut(m[2], "|")
		file, block, _ := strings.Cut(ref, "#")
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		out = append(out, Embed{
			Target:  file,
			BlockID: strings.TrimPrefix(strings.TrimSpace(block), "^"),
		})
	}
	return out
}

// ExtractBlocks returns the ^block-id markers of body. A marker alone on its
// line names the preceding non-empty line. Line numbers are 1-based.
func ExtractBlocks(body string) []Block {
	var out []Block
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		m := blockRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text, lineNo := strings.TrimSpace(m[1]), i+1
		if text == "" {
			for j := i - 1; j >= 0; j-- {
				if t := strings.TrimSpace(lines[j]); t != "" {
					text, lineNo = t, j+1
					break
				}
			}
		}
		if text == "" {
			continue
		}
		out = append(out, Block{ID: m[2], Line: lineNo, Text: text})
	}
	return out
}

// extractTags collects tags from the frontmatter "tags" field and inline #tags in the body.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		t := NormalizeTag(raw)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, t := range NormalizeList(fm["tags"]) {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// NormalizeList turns a frontmatter value that is either a YAML sequence or a
// comma-separated string into a trimmed, deduplicated list.
func NormalizeList(v any) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(val, ",")
	case []any:
		for _, item := range val {
			if item == nil {
				continue
			}
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = val
	default:
		raw = []string{fmt.Sprint(val)}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormalizeTag returns the canonical hierarchical form of a tag:
// no leading '#', no empty '/' segments.
func NormalizeTag(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	segs := strings.Split(raw, "/")
	out := segs[:0]
	for _, s := range segs {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}

// Excerpt returns the first paragraph of body with markup stripped,
// truncated to ExcerptLength characters with an ellipsis if longer.
func Excerpt(body string) string {
	for _, para := range paragraphRe.Split(strings.TrimSpace(body), -1) {
		text := markerRe.ReplaceAllString(renderWikiLinks(para), "")
		text = markupRe.ReplaceAllString(text, "")
		text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > ExcerptLength {
			runes := []rune(text)
			return strings.TrimSpace(string(runes[:ExcerptLength])) + "..."
		}
		return text
	}
	return ""
}

// renderWikiLinks replaces each link with the text a reader sees: the display
// text if given, else the target. Embeds render as nothing.
func renderWikiLinks(text string) string {
	return wikilinkRe.ReplaceAllStringFunc(text, func(m string) string {
		if strings.HasPrefix(m, "!") {
			return ""
		}
		target, display, _ := strings.Cut(m[2:len(m)-2], "|")
		if display = strings.TrimSpace(display); display != "" {
			return display
		}
		return strings.TrimSpace(target)
	})
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func frontmatterTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(val)); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
