package index

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// SnippetContext is the number of bytes of context kept on each side of a match.
	SnippetContext = 64
	// maxSnippetWindows caps the number of match windows in one snippet.
	maxSnippetWindows = 3
	snippetJoiner     = " … "
	markOpen          = "<mark>"
	markClose         = "</mark>"
)

// SearchResult represents one search hit. Rank is higher-is-better.
type SearchResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Rank    float64 `json:"rank"`
	Snippet string  `json:"snippet"`
}

// Search runs a ranked full-text query. Title matches weigh ten times body matches.
// An empty or punctuation-only query returns no results.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := QueryTerms(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT n.id, n.title, n.path, n.content, -bm25(notes_fts, 10.0, 1.0) AS score
		FROM notes_fts
		JOIN notes n ON n.rid = notes_fts.rowid
		WHERE notes_fts MATCH ?
		ORDER BY score DESC, n.ordinal
		LIMIT ?`, matchExpr(terms), limit)
	if err != nil {
		return nil, unavailable("search", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var (
			r       SearchResult
			content string
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Path, &content, &r.Rank); err != nil {
			return nil, unavailable("scan search result", err)
		}
		r.Snippet = BuildSnippet(content, terms, SnippetContext)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("search", err)
	}
	return out, nil
}

// QueryTerms splits a user query into lowercase word tokens, dropping FTS
// operators and punctuation. Duplicates are removed; order is kept.
func QueryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}

// matchExpr quotes every term so the FTS5 parser treats them as plain strings
// (implicit AND).
func matchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " ")
}

type span struct{ start, end int }

// BuildSnippet returns up to three windows of text around occurrences of
// terms, with each occurrence wrapped in <mark> tags. Without any occurrence
// it returns the leading 2*context bytes of text.
func BuildSnippet(text string, terms []string, context int) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, text)

	matches := termMatches(text, terms)
	if len(matches) == 0 {
		if len(text) <= 2*context {
			return strings.TrimSpace(text)
		}
		return strings.TrimSpace(text[:runeFloor(text, 2*context)]) + "…"
	}

	var windows []span
	for _, m := range matches {
		w := span{start: runeFloor(text, m[0]-context), end: runeCeil(text, m[1]+context)}
		if n := len(windows); n > 0 && w.start <= windows[n-1].end {
			windows[n-1].end = w.end
			continue
		}
		if len(windows) == maxSnippetWindows {
			break
		}
		windows = append(windows, w)
	}

	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		var b strings.Builder
		pos := w.start
		for _, m := range matches {
			if m[0] < w.start || m[1] > w.end {
				continue
			}
			b.WriteString(text[pos:m[0]])
			b.WriteString(markOpen)
			b.WriteString(text[m[0]:m[1]])
			b.WriteString(markClose)
			pos = m[1]
		}
		b.WriteString(text[pos:w.end])
		parts = append(parts, strings.TrimSpace(b.String()))
	}

	snippet := strings.Join(parts, snippetJoiner)
	if windows[0].start > 0 {
		snippet = "…" + snippet
	}
	if windows[len(windows)-1].end < len(text) {
		snippet += "…"
	}
	return snippet
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// termMatches returns the spans of whole words in text equal to a term,
// compared case-insensitively. Words split the way QueryTerms splits queries.
func termMatches(text string, terms []string) [][]int {
	if len(terms) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[strings.ToLower(t)] = struct{}{}
	}
	var out [][]int
	for _, m := range wordRe.FindAllStringIndex(text, -1) {
		if _, ok := want[strings.ToLower(text[m[0]:m[1]])]; ok {
			out = append(out, m)
		}
	}
	return out
}

func runeFloor(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func runeCeil(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	if i <= 0 {
		return 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
