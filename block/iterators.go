package block

import (
	"errors"
	"iter"
)

var errVisitCancelled = errors.New("visit cancelled")

// IterBlocks returns an iterator over all blocks in the store.
// It yields block IDs and their data. Iteration panics on read errors.
func IterBlocks(r Visitor) iter.Seq2[ID, []byte] {
	return func(yield func(ID, []byte) bool) {
		err := r.VisitBlocks(func(blockID ID, blockData []byte) error {
			if !yield(blockID, blockData) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && err != errVisitCancelled {
			panic(err)
		}
	}
}
