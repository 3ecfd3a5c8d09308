package cmdmap

import "github.com/keshon/interactions/pkg/result"

// Search is the outcome of a lookup. A miss carries an UnknownCommand result
// and, when the walk stopped early, the tokens that were not consumed.
type Search[T any] struct {
	result.Result

	Text     string   // input as seen by the lookup
	Value    T        // matched handler on success
	Captures []string // tokens matched by wildcard segments
	Residual []string // unconsumed tokens on a miss
}
