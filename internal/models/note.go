// Package models defines the domain types shared by the scanner, resolver, index and graph.
package models

import "time"

// Note is a markdown file of the corpus, normalized by the scanner.
type Note struct {
	ID           string     `json:"id"`
	Slug         string     `json:"slug"`
	Title        string     `json:"title"`
	Content      string     `json:"content,omitempty"`
	Excerpt      string     `json:"excerpt"`
	Path         string     `json:"path"`
	Folder       string     `json:"folder"`
	Size         int64      `json:"size"`
	Created      time.Time  `json:"created"`
	Modified     time.Time  `json:"modified"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	AccessCount  int        `json:"access_count"`
	WordCount    int        `json:"word_count"`
	Checksum     string     `json:"checksum"`
	Tags         []string   `json:"tags"`
	Aliases      []string   `json:"aliases"`
	Links        []Link     `json:"links,omitempty"`
	Blocks       []Block    `json:"blocks,omitempty"`
	Embeds       []Embed    `json:"embeds,omitempty"`
	// Ordinal is the note's position in scan traversal order.
	Ordinal int `json:"ordinal"`
}

// Link is a wikilink occurrence inside a note.
type Link struct {
	SourceID    string `json:"source_id"`
	TargetText  string `json:"target_text"`
	DisplayText string `json:"display_text"`
	Resolved    bool   `json:"resolved"`
	TargetID    string `json:"target_id,omitempty"`
}

// Block is a paragraph or list item carrying a ^block-id marker.
type Block struct {
	ID   string `json:"id"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Embed is a ![[file]] or ![[file#block]] transclusion.
type Embed struct {
	Target  string `json:"target"`
	BlockID string `json:"block_id,omitempty"`
}

// Folder is one directory of the scanned tree.
type Folder struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Files   []string  `json:"files"`
	Folders []*Folder `json:"folders"`
}

// Warning records a file the scanner had to skip.
type Warning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Structure is the result of one scan: the ordered folder tree and the flat note list.
type Structure struct {
	Root     *Folder   `json:"root"`
	Notes    []Note    `json:"notes"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// NoteByID returns the note with the given id, or nil.
func (s *Structure) NoteByID(id string) *Note {
	for i := range s.Notes {
		if s.Notes[i].ID == id {
			return &s.Notes[i]
		}
	}
	return nil
}
