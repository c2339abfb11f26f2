// Package algo bundles the built-in table algorithms.
package algo

import (
	"github.com/yanet-platform/yatable/tables"
	"github.com/yanet-platform/yatable/tables/algo/hashtab"
	"github.com/yanet-platform/yatable/tables/algo/maptrie"
)

// Defaults returns the built-in algorithms.
//
// The order matters: the first algorithm of each key type is its default,
// so address tables default to longest prefix match.
func Defaults() []tables.Algorithm {
	return []tables.Algorithm{
		maptrie.New(),
		hashtab.NewAddr(),
		hashtab.NewIface(),
		hashtab.NewNumber(),
		hashtab.NewFlow(),
	}
}
