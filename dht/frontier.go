package dht

import (
	"net"

	"github.com/google/btree"
	"github.com/matei-oltean/magnetpeers/identity"
)

// Entry is one unvisited candidate in the search frontier: an address
// to query, its node id if known (seeds start with none), and its
// distance to the search target.
type Entry struct {
	Addr     *net.UDPAddr
	NodeID   *identity.ID
	Distance identity.ID
	seq      int64
}

// frontierItem adapts Entry to btree.Item, ordering ascending by
// distance and, within equal distances, by most-recently-inserted
// first (LIFO tie-break per spec §4.5).
type frontierItem struct{ *Entry }

func (a frontierItem) Less(than btree.Item) bool {
	b := than.(frontierItem)
	if a.Distance != b.Distance {
		return a.Distance.Less(b.Distance)
	}
	return a.seq > b.seq
}

// Frontier is the ordered-by-distance set of unvisited candidates that
// drives one peer-discovery walk. It is owned exclusively by the walk
// driver; nothing else may mutate it (spec invariant 1).
type Frontier struct {
	tree    *btree.BTree
	nextSeq int64
}

// NewFrontier returns an empty frontier. The degree (32) matches the
// branching factor used elsewhere in the corpus for this ordered-set
// role.
func NewFrontier() *Frontier {
	return &Frontier{tree: btree.New(32)}
}

// Insert adds a candidate to the frontier.
func (f *Frontier) Insert(e *Entry) {
	f.nextSeq++
	e.seq = f.nextSeq
	f.tree.ReplaceOrInsert(frontierItem{e})
}

// PopClosest removes and returns the entry with minimum distance to
// the search target, breaking ties LIFO. Returns false if the frontier
// is empty.
func (f *Frontier) PopClosest() (*Entry, bool) {
	item := f.tree.Min()
	if item == nil {
		return nil, false
	}
	f.tree.Delete(item)
	return item.(frontierItem).Entry, true
}

// Len reports the number of unvisited candidates remaining.
func (f *Frontier) Len() int {
	return f.tree.Len()
}
