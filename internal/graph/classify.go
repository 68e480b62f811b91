package graph

// Class buckets a node by its total degree.
type Class string

const (
	ClassIsolated      Class = "isolated"
	ClassConnected     Class = "connected"
	ClassWellConnected Class = "well-connected"
	ClassHub           Class = "hub"
)

// Classify maps a total degree (wikilink in + out + tag) to its class.
func Classify(degree int) Class {
	switch {
	case degree <= 0:
		return ClassIsolated
	case degree <= 2:
		return ClassConnected
	case degree <= 5:
		return ClassWellConnected
	default:
		return ClassHub
	}
}
