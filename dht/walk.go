package dht

import (
	"context"
	"net"
	"time"

	"github.com/anacrolix/log"
	"github.com/matei-oltean/magnetpeers/identity"
	"golang.org/x/sync/errgroup"
)

// WellKnownBootstrapAddrs are public Mainline DHT entry points used to
// seed a frontier with no prior routing state.
var WellKnownBootstrapAddrs = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"dht.transmissionbt.com:6881",
}

// WalkConfig tunes the iterative search. Zero values are replaced by
// DefaultWalkConfig's defaults by NewWalker.
type WalkConfig struct {
	// Fanout is the number of concurrent get_peers queries in flight
	// at once; the spec recommends 3-8.
	Fanout int
	// PeerQuota stops the walk once this many distinct peers are found.
	PeerQuota int
	// MaxSteps bounds the total number of nodes queried, regardless of
	// convergence, per spec §4.5's progress invariant note.
	MaxSteps int
	// Pace is the delay between rounds of queries.
	Pace time.Duration
	// BootstrapAddrs seeds the frontier. Defaults to WellKnownBootstrapAddrs.
	BootstrapAddrs []string
}

// DefaultWalkConfig returns sensible defaults for WalkConfig.
func DefaultWalkConfig() WalkConfig {
	return WalkConfig{
		Fanout:         4,
		PeerQuota:      50,
		MaxSteps:       200,
		Pace:           100 * time.Millisecond,
		BootstrapAddrs: WellKnownBootstrapAddrs,
	}
}

func (c WalkConfig) withDefaults() WalkConfig {
	d := DefaultWalkConfig()
	if c.Fanout <= 0 {
		c.Fanout = d.Fanout
	}
	if c.PeerQuota <= 0 {
		c.PeerQuota = d.PeerQuota
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.Pace <= 0 {
		c.Pace = d.Pace
	}
	if c.BootstrapAddrs == nil {
		c.BootstrapAddrs = d.BootstrapAddrs
	}
	return c
}

// Walker drives one iterative, XOR-distance-guided get_peers search.
// A Walker's frontier and visited set are only ever touched from
// Walk's own goroutine (spec invariant 1); the fan-out goroutines it
// spawns only return results, they never reach back into that state.
type Walker struct {
	Client *Client
	Config WalkConfig
	Logger log.Logger
}

// NewWalker builds a Walker over the given client.
func NewWalker(client *Client, cfg WalkConfig) *Walker {
	return &Walker{Client: client, Config: cfg.withDefaults(), Logger: client.Logger}
}

type stepResult struct {
	entry *Entry
	reply *GetPeersResult
	err   error
}

// Walk performs the search for infoHash and returns the distinct peers
// discovered before the quota, frontier exhaustion, step cap, or ctx
// cancellation ended it. A partial result is not an error: per spec §7
// the driver never aborts the search loop on a per-node failure.
func (w *Walker) Walk(ctx context.Context, infoHash identity.ID) ([]CompactPeer, error) {
	frontier := NewFrontier()
	for _, addr := range w.Config.BootstrapAddrs {
		udpAddr, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			w.Logger.Levelf(log.Warning, "dht: could not resolve bootstrap address %s: %v", addr, err)
			continue
		}
		frontier.Insert(&Entry{Addr: udpAddr})
	}

	visited := make(map[string]struct{})
	peersFound := make(map[string]CompactPeer)
	steps := 0

	for frontier.Len() > 0 && len(peersFound) < w.Config.PeerQuota && steps < w.Config.MaxSteps {
		if err := ctx.Err(); err != nil {
			break
		}

		batch := w.popUnvisitedBatch(frontier, visited, min(w.Config.Fanout, w.Config.MaxSteps-steps))
		if len(batch) == 0 {
			break
		}
		steps += len(batch)

		results := w.queryBatch(ctx, batch, infoHash)
		for _, res := range results {
			if res.err != nil {
				w.Logger.Levelf(log.Warning, "dht: get_peers to %s failed: %v", res.entry.Addr, res.err)
				continue
			}
			for _, p := range res.reply.Peers {
				peersFound[p.Addr.String()] = p
			}
			for _, n := range res.reply.Nodes {
				addrStr := n.Addr.String()
				if _, seen := visited[addrStr]; seen {
					continue
				}
				id := n.ID
				frontier.Insert(&Entry{
					Addr:     n.Addr,
					NodeID:   &id,
					Distance: identity.Distance(n.ID, infoHash),
				})
			}
		}

		if frontier.Len() == 0 || len(peersFound) >= w.Config.PeerQuota {
			break
		}
		if err := w.pace(ctx); err != nil {
			break
		}
	}

	peers := make([]CompactPeer, 0, len(peersFound))
	for _, p := range peersFound {
		peers = append(peers, p)
	}
	return peers, nil
}

// popUnvisitedBatch pops up to limit entries, skipping and discarding
// any already-visited address, and marks every popped address visited
// (spec invariant 2: a node address is probed at most once per session).
func (w *Walker) popUnvisitedBatch(frontier *Frontier, visited map[string]struct{}, limit int) []*Entry {
	batch := make([]*Entry, 0, limit)
	for len(batch) < limit {
		entry, ok := frontier.PopClosest()
		if !ok {
			break
		}
		addrStr := entry.Addr.String()
		if _, seen := visited[addrStr]; seen {
			continue
		}
		visited[addrStr] = struct{}{}
		batch = append(batch, entry)
	}
	return batch
}

// queryBatch issues get_peers to every entry in batch concurrently,
// each over its own ephemeral socket (via Client.GetPeers -> netio).
// Every query shares ctx so an external cancel reaches every in-flight
// socket at once; a single query's failure never aborts its siblings.
func (w *Walker) queryBatch(ctx context.Context, batch []*Entry, infoHash identity.ID) []stepResult {
	results := make([]stepResult, len(batch))
	var g errgroup.Group
	g.SetLimit(w.Config.Fanout)

	for i, entry := range batch {
		i, entry := i, entry
		g.Go(func() error {
			reply, err := w.Client.GetPeers(ctx, entry.Addr, infoHash)
			results[i] = stepResult{entry: entry, reply: reply, err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

func (w *Walker) pace(ctx context.Context) error {
	t := time.NewTimer(w.Config.Pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
