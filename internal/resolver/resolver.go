// Package resolver resolves wikilink and block-reference targets against the
// flat, corpus-wide note namespace.
//
// A target matches a note's id, slug, title or any alias, case-insensitively and
// with an optional ".md" suffix. When several notes claim the same name the one
// that came first in scan traversal order wins.
package resolver

import (
	"strings"

	"github.com/starford/notegraph/internal/models"
)

// BlockTarget is the resolution of an embed.
type BlockTarget struct {
	NoteID string
	// Block is nil for whole-note transclusions.
	Block *models.Block
}

// Resolver is an immutable lookup built from one scan.
type Resolver struct {
	names      map[string]string
	slugs      map[string]string // note id -> lower-case slug
	blocks     map[string]models.Block
	duplicates []string
}

// New indexes notes, which must be in scan traversal order.
func New(notes []models.Note) *Resolver {
	r := &Resolver{
		names:  make(map[string]string, len(notes)*3),
		slugs:  make(map[string]string, len(notes)),
		blocks: make(map[string]models.Block),
	}
	for i := range notes {
		n := &notes[i]
		r.slugs[n.ID] = strings.ToLower(n.Slug)

		r.claim(n.ID, n.ID)
		r.claim(n.Slug, n.ID)
		r.claim(n.Title, n.ID)
		for _, a := range n.Aliases {
			r.claim(a, n.ID)
		}

		seen := make(map[string]struct{}, len(n.Blocks))
		for _, b := range n.Blocks {
			key := BlockKey(n.Slug, b.ID)
			if _, dup := seen[key]; dup {
				r.duplicates = append(r.duplicates, n.ID+"#"+b.ID)
				continue
			}
			seen[key] = struct{}{}
			if _, taken := r.blocks[key]; !taken {
				r.blocks[key] = b
			}
		}
	}
	return r
}

func (r *Resolver) claim(name, id string) {
	key := NormalizeTarget(name)
	if key == "" {
		return
	}
	if _, taken := r.names[key]; !taken {
		r.names[key] = id
	}
}

// NormalizeTarget lower-cases a link target and strips any "#heading" or
// "#^block" suffix and a trailing ".md".
func NormalizeTarget(target string) string {
	target, _, _ = strings.Cut(target, "#")
	target = strings.Trim(strings.TrimSpace(strings.ReplaceAll(target, "\\", "/")), "/")
	target = strings.ToLower(target)
	return strings.TrimSpace(strings.TrimSuffix(target, ".md"))
}

// BlockKey is the corpus-wide key of a block: "slug#blockId", slug lower-cased.
func BlockKey(slug, blockID string) string {
	return strings.ToLower(slug) + "#" + blockID
}

// Resolve returns the id of the note a link target refers to.
func (r *Resolver) Resolve(target string) (string, bool) {
	id, ok := r.names[NormalizeTarget(target)]
	return id, ok
}

// ResolveEmbed resolves a transclusion to its note and, if given, its block.
func (r *Resolver) ResolveEmbed(e models.Embed) (BlockTarget, bool) {
	id, ok := r.Resolve(e.Target)
	if !ok {
		return BlockTarget{}, false
	}
	if e.BlockID == "" {
		return BlockTarget{NoteID: id}, true
	}
	b, ok := r.blocks[r.slugs[id]+"#"+e.BlockID]
	if !ok {
		return BlockTarget{}, false
	}
	return BlockTarget{NoteID: id, Block: &b}, true
}

// Annotate fills SourceID, Resolved and TargetID on every link of notes.
func (r *Resolver) Annotate(notes []models.Note) {
	for i := range notes {
		for j := range notes[i].Links {
			l := &notes[i].Links[j]
			l.SourceID = notes[i].ID
			l.TargetID, l.Resolved = r.Resolve(l.TargetText)
		}
	}
}

// Duplicates lists "noteId#blockId" for block ids declared more than once in
// the same note. Only the first declaration is indexed.
func (r *Resolver) Duplicates() []string {
	return r.duplicates
}
