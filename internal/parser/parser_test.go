package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - notes\naliases: hi, greeting\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	require.NoError(t, err)

	assert.Equal(t, "Hello", r.Title)
	assert.Equal(t, []string{"go", "notes"}, r.Tags)
	assert.Equal(t, []string{"hi", "greeting"}, r.Aliases)
	assert.Equal(t, "# Hello\nBody text.\n", r.Body)
	assert.Equal(t, 4, r.WordCount)
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse([]byte("# Just a heading\nSome text.\n"))
	require.NoError(t, err)
	assert.Nil(t, r.Frontmatter)
	assert.Equal(t, "Just a heading", r.Title)
	assert.Empty(t, r.Aliases)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrontmatter))
}

func TestParse_UnclosedFrontmatterIsBody(t *testing.T) {
	r, err := Parse([]byte("---\nnot closed\n"))
	require.NoError(t, err)
	assert.Nil(t, r.Frontmatter)
	assert.Contains(t, r.Body, "not closed")
}

func TestParse_CreatedFromFrontmatter(t *testing.T) {
	r, err := Parse([]byte("---\ncreated: 2025-01-15\n---\nbody"))
	require.NoError(t, err)
	assert.Equal(t, 2025, r.Created.Year())
	assert.Equal(t, time.January, r.Created.Month())
}

func TestExtractWikiLinks_OrderedNotDeduplicated(t *testing.T) {
	links := ExtractWikiLinks("See [[Note A]] and [[Note B|alias]].\nAlso [[Note A]] again.")
	require.Len(t, links, 3)
	assert.Equal(t, WikiLink{Target: "Note A", Display: "Note A"}, links[0])
	assert.Equal(t, WikiLink{Target: "Note B", Display: "alias"}, links[1])
	assert.Equal(t, "Note A", links[2].Target)
}

func TestExtractWikiLinks_SkipsEmbedsAndEmptyTargets(t *testing.T) {
	links := ExtractWikiLinks("![[image.png]] [[ ]] [[|alias]] [[#heading]] [[page#section]]")
	require.Len(t, links, 1)
	assert.Equal(t, "page#section", links[0].Target)
}

func TestParse_IgnoresLinksInCode(t *testing.T) {
	r, err := Parse([]byte("```\n[[inside]] #code\n```\nUse `[[inline]]` but [[outside]]."))
	require.NoError(t, err)
	require.Len(t, r.Links, 1)
	assert.Equal(t, "outside", r.Links[0].Target)
	assert.Empty(t, r.Tags)
}

func TestExtractEmbeds(t *testing.T) {
	embeds := ExtractEmbeds("![[file]] and ![[other#^para-1]] and ![[third#block|shown]] and [[plain]]")
	require.Len(t, embeds, 3)
	assert.Equal(t, Embed{Target: "file"}, embeds[0])
	assert.Equal(t, Embed{Target: "other", BlockID: "para-1"}, embeds[1])
	assert.Equal(t, Embed{Target: "third", BlockID: "block"}, embeds[2])
}

func TestExtractBlocks(t *testing.T) {
	body := "First paragraph ^intro\n\nA quote\n^quote-1\n\nx^2 is not a block"
	blocks := ExtractBlocks(body)
	require.Len(t, blocks, 2)
	assert.Equal(t, Block{ID: "intro", Line: 1, Text: "First paragraph"}, blocks[0])
	assert.Equal(t, Block{ID: "quote-1", Line: 3, Text: "A quote"}, blocks[1])
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{"tags": []any{"alpha", "#project//x"}}
	tags := extractTags("Some text #beta and #alpha again, #project/x too.", fm)
	assert.Equal(t, []string{"alpha", "project/x", "beta"}, tags)
}

func TestNormalizeList(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, nil},
		{"comma string", " a, b ,,a ", []string{"a", "b"}},
		{"sequence", []any{"x", 2, nil, " y "}, []string{"x", "2", "y"}},
		{"scalar", 42, []string{"42"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeList(tc.in)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "Title", Excerpt("# Title\n\nBody"))
	assert.Equal(t, "bold and link more", Excerpt("\n\n**bold** and [[link]]\nmore\n\nsecond"))
	assert.Equal(t, "", Excerpt("   \n\n  "))

	long := strings.Repeat("word ", 60)
	got := Excerpt(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), ExcerptLength+3)
}

func TestExcerpt_RendersLinksAndKeepsPunctuation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"display text", "See [[target|Display]]! Really?", "See Display! Really?"},
		{"plain link", "Read [[Go Notes]] first", "Read Go Notes first"},
		{"embed dropped", "![[diagram.png]] Caption here", "Caption here"},
		{"block marker", "A claim worth citing ^claim-1", "A claim worth citing"},
		{"marker on own line", "First line\n^intro", "First line"},
		{"pipes and carets", "a | b and 2^10", "a | b and 2^10"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Excerpt(tc.body))
		})
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	assert.Equal(t, "FM Title", deriveTitle(map[string]any{"title": "FM Title"}, "# H1 Title\ntext"))
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	assert.Equal(t, "My Heading", deriveTitle(nil, "some text\n# My Heading\nmore"))
}
