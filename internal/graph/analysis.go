package graph

import "sort"

// DefaultWeakThreshold is the wikilink degree at or below which a linked note counts as weakly connected.
const DefaultWeakThreshold = 2

// Analysis bundles the derived node sets of one graph.
type Analysis struct {
	Orphans         []Node `json:"orphans"`
	WeaklyConnected []Node `json:"weakly_connected"`
	MostConnected   []Node `json:"most_connected"`
	Hubs            []Node `json:"hubs"`
	Authorities     []Node `json:"authorities"`
	Stats           Stats  `json:"stats"`
}

// Analyze runs every analysis. Rankings are cut to top entries (0 means no limit).
func Analyze(g *Graph, weakThreshold, top int) Analysis {
	return Analysis{
		Orphans:         Orphans(g),
		WeaklyConnected: WeaklyConnected(g, weakThreshold),
		MostConnected:   MostConnected(g, top),
		Hubs:            Hubs(g, top),
		Authorities:     Authorities(g, top),
		Stats:           g.Stats,
	}
}

// Orphans returns nodes without any wikilink in or out. Tag edges do not count.
func Orphans(g *Graph) []Node {
	return filter(g, func(n Node) bool { return n.WikilinkDegree() == 0 })
}

// WeaklyConnected returns nodes whose wikilink degree is between 1 and threshold.
func WeaklyConnected(g *Graph, threshold int) []Node {
	if threshold <= 0 {
		threshold = DefaultWeakThreshold
	}
	return filter(g, func(n Node) bool {
		d := n.WikilinkDegree()
		return d >= 1 && d <= threshold
	})
}

// MostConnected ranks nodes by total degree.
func MostConnected(g *Graph, top int) []Node {
	return rank(g, top, func(n Node) int { return n.Degree })
}

// Hubs ranks nodes by outgoing wikilinks.
func Hubs(g *Graph, top int) []Node {
	return rank(g, top, func(n Node) int { return n.OutDegree })
}

// Authorities ranks nodes by incoming wikilinks.
func Authorities(g *Graph, top int) []Node {
	return rank(g, top, func(n Node) int { return n.InDegree })
}

func filter(g *Graph, keep func(Node) bool) []Node {
	out := []Node{}
	for _, n := range g.Nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// rank sorts nodes with a positive score descending; ties keep traversal order.
func rank(g *Graph, top int, score func(Node) int) []Node {
	out := filter(g, func(n Node) bool { return score(n) > 0 })
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}
