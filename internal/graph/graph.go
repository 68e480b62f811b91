// Package graph builds the in-memory link graph of a corpus and derives
// connectivity analyses from it. Nothing here touches the index store.
package graph

import (
	"sort"

	"github.com/starford/notegraph/internal/models"
)

// DefaultTagEdgeMaxMembers is the largest tag that still produces tag edges.
const DefaultTagEdgeMaxMembers = 10

// EdgeType distinguishes explicit wikilinks from shared-tag relations.
type EdgeType string

const (
	EdgeWikilink EdgeType = "wikilink"
	EdgeTag      EdgeType = "tag"
)

// Node is one note in the graph with its degree counters.
type Node struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Path   string   `json:"path"`
	Folder string   `json:"folder"`
	Tags   []string `json:"tags"`
	// InDegree and OutDegree count wikilink edges only.
	InDegree  int   `json:"in_degree"`
	OutDegree int   `json:"out_degree"`
	TagDegree int   `json:"tag_degree"`
	Degree    int   `json:"degree"`
	Class     Class `json:"class"`
}

// WikilinkDegree is the number of wikilink edges touching the node.
func (n Node) WikilinkDegree() int { return n.InDegree + n.OutDegree }

// Edge is a graph edge. Tag edges are undirected; Source precedes Target in
// traversal order and Tags lists every tag the pair shares.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Tags   []string `json:"tags,omitempty"`
}

// Stats summarizes a graph.
type Stats struct {
	Nodes         int           `json:"nodes"`
	WikilinkEdges int           `json:"wikilink_edges"`
	TagEdges      int           `json:"tag_edges"`
	Orphans       int           `json:"orphans"`
	AverageDegree float64       `json:"average_degree"`
	Classes       map[Class]int `json:"classes"`
}

// Graph is built per request and never persisted.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`

	byID map[string]int
}

// Options tunes Build.
type Options struct {
	// TagEdgeMaxMembers bounds the tags that produce edges; 0 means the default.
	TagEdgeMaxMembers int
}

type pair struct{ a, b int }

func unordered(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// Build creates the graph from notes whose links are already resolved.
// Node order follows the notes slice.
func Build(notes []models.Note, opts Options) *Graph {
	maxMembers := opts.TagEdgeMaxMembers
	if maxMembers <= 0 {
		maxMembers = DefaultTagEdgeMaxMembers
	}

	g := &Graph{
		Nodes: make([]Node, len(notes)),
		Edges: []Edge{},
		byID:  make(map[string]int, len(notes)),
	}
	for i, n := range notes {
		tags := n.Tags
		if tags == nil {
			tags = []string{}
		}
		g.Nodes[i] = Node{ID: n.ID, Title: n.Title, Path: n.Path, Folder: n.Folder, Tags: tags}
		g.byID[n.ID] = i
	}

	linked := make(map[pair]bool)
	seen := make(map[pair]bool)
	for i, n := range notes {
		for _, l := range n.Links {
			if !l.Resolved {
				continue
			}
			j, ok := g.byID[l.TargetID]
			if !ok || j == i || seen[pair{i, j}] {
				continue
			}
			seen[pair{i, j}] = true
			linked[unordered(i, j)] = true
			g.Edges = append(g.Edges, Edge{Source: n.ID, Target: l.TargetID, Type: EdgeWikilink})
			g.Nodes[i].OutDegree++
			g.Nodes[j].InDegree++
			g.Stats.WikilinkEdges++
		}
	}

	g.addTagEdges(notes, maxMembers, linked)

	for i := range g.Nodes {
		n := &g.Nodes[i]
		n.Degree = n.InDegree + n.OutDegree + n.TagDegree
		n.Class = Classify(n.Degree)
	}
	g.Stats = g.computeStats()
	return g
}

func (g *Graph) addTagEdges(notes []models.Note, maxMembers int, linked map[pair]bool) {
	members := make(map[string][]int)
	for i, n := range notes {
		dedup := make(map[string]bool, len(n.Tags))
		for _, t := range n.Tags {
			if !dedup[t] {
				dedup[t] = true
				members[t] = append(members[t], i)
			}
		}
	}

	names := make([]string, 0, len(members))
	for t := range members {
		names = append(names, t)
	}
	sort.Strings(names)

	edgeAt := make(map[pair]int)
	for _, t := range names {
		m := members[t]
		if len(m) <= 1 || len(m) > maxMembers {
			continue
		}
		for x := 0; x < len(m); x++ {
			for y := x + 1; y < len(m); y++ {
				p := unordered(m[x], m[y])
				if linked[p] {
					continue
				}
				if k, ok := edgeAt[p]; ok {
					g.Edges[k].Tags = append(g.Edges[k].Tags, t)
					continue
				}
				edgeAt[p] = len(g.Edges)
				g.Edges = append(g.Edges, Edge{
					Source: g.Nodes[p.a].ID,
					Target: g.Nodes[p.b].ID,
					Type:   EdgeTag,
					Tags:   []string{t},
				})
				g.Nodes[p.a].TagDegree++
				g.Nodes[p.b].TagDegree++
			}
		}
	}
}

func (g *Graph) computeStats() Stats {
	s := Stats{
		Nodes:         len(g.Nodes),
		WikilinkEdges: g.Stats.WikilinkEdges,
		Classes: map[Class]int{
			ClassIsolated:      0,
			ClassConnected:     0,
			ClassWellConnected: 0,
			ClassHub:           0,
		},
	}
	total := 0
	for _, n := range g.Nodes {
		total += n.Degree
		s.Classes[n.Class]++
		if n.WikilinkDegree() == 0 {
			s.Orphans++
		}
	}
	for _, e := range g.Edges {
		if e.Type == EdgeTag {
			s.TagEdges++
		}
	}
	if len(g.Nodes) > 0 {
		s.AverageDegree = float64(total) / float64(len(g.Nodes))
	}
	return s
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}
