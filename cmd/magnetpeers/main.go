// Command magnetpeers resolves a magnet link to a set of reachable
// peers: it walks the Kademlia DHT, announces to any trackers the
// magnet carries, and attempts a TCP handshake against a sample of
// what it finds. It does not download any pieces.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/anacrolix/log"
	"github.com/matei-oltean/magnetpeers/dht"
	"github.com/matei-oltean/magnetpeers/identity"
	"github.com/matei-oltean/magnetpeers/magnet"
	"github.com/matei-oltean/magnetpeers/peerconn"
	"github.com/matei-oltean/magnetpeers/tracker"
	"golang.org/x/sync/errgroup"
)

func usage() {
	fmt.Printf(`%s [options] <magnet-link>

    magnet-link      Magnet link (starting with magnet:)

    -fanout  n       Concurrent DHT queries in flight (default %d)
    -sample  n       Number of discovered peers to handshake with (default 5)
    -timeout d       Overall walk timeout (default 30s)
`, os.Args[0], dht.DefaultWalkConfig().Fanout)
	os.Exit(2)
}

func main() {
	var fanout int
	var sample int
	var timeout time.Duration
	flag.Usage = usage
	flag.IntVar(&fanout, "fanout", dht.DefaultWalkConfig().Fanout, "")
	flag.IntVar(&sample, "sample", 5, "")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "")
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}

	m, err := magnet.Parse(flag.Arg(0))
	if err != nil {
		log.Default.Printf("parsing magnet link: %v", err)
		os.Exit(1)
	}

	ourID, err := identity.Generate()
	if err != nil {
		log.Default.Printf("generating node id: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var walked, announced []dht.CompactPeer
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		walked = runWalk(gCtx, m.Hash, ourID, fanout)
		return nil
	})
	g.Go(func() error {
		announced = runTrackerAnnounces(gCtx, m, ourID)
		return nil
	})
	g.Wait()

	peers := make(map[string]dht.CompactPeer)
	for _, p := range walked {
		peers[p.Addr.String()] = p
	}
	for _, p := range announced {
		peers[p.Addr.String()] = p
	}

	if len(peers) == 0 {
		fmt.Println("no peers found")
		return
	}

	fmt.Printf("found %d peer(s) for %s\n", len(peers), m.DisplayName())
	handshakeSample(ctx, peers, ourID, m.Hash, sample)
}

func runWalk(ctx context.Context, infoHash, ourID identity.ID, fanout int) []dht.CompactPeer {
	client, err := dht.NewClient()
	if err != nil {
		log.Default.Printf("creating dht client: %v", err)
		return nil
	}
	client.Self = ourID
	cfg := dht.DefaultWalkConfig()
	cfg.Fanout = fanout
	walker := dht.NewWalker(client, cfg)

	peers, err := walker.Walk(ctx, infoHash)
	if err != nil {
		log.Default.Printf("dht walk: %v", err)
		return nil
	}
	return peers
}

func runTrackerAnnounces(ctx context.Context, m *magnet.Magnet, ourID identity.ID) []dht.CompactPeer {
	if !m.HasTrackers() {
		return nil
	}

	var all []dht.CompactPeer
	for _, trackerURL := range m.TrackersURL {
		if trackerURL.Scheme != "udp" {
			continue // only the UDP tracker protocol is in scope
		}
		addr, err := net.ResolveUDPAddr("udp", trackerURL.Host)
		if err != nil {
			log.Default.Printf("resolving tracker %s: %v", trackerURL, err)
			continue
		}

		client := tracker.NewClient(addr, ourID)
		if err := client.Connect(ctx); err != nil {
			log.Default.Printf("connecting to tracker %s: %v", trackerURL, err)
			continue
		}
		result, err := client.Announce(ctx, m.Hash, tracker.AnnounceParams{Port: 6881})
		if err != nil {
			log.Default.Printf("announcing to tracker %s: %v", trackerURL, err)
			continue
		}
		all = append(all, result.Peers...)
	}
	return all
}

func handshakeSample(ctx context.Context, peers map[string]dht.CompactPeer, ourID, infoHash identity.ID, sample int) {
	n := 0
	for addr := range peers {
		if n >= sample {
			break
		}
		n++
		conn, err := peerconn.Dial(ctx, addr, ourID, infoHash)
		if err != nil {
			fmt.Printf("%s: handshake failed: %v\n", addr, err)
			continue
		}
		fmt.Printf("%s: handshake ok, peer id %s\n", addr, conn.PeerHandshake.PeerID)
		conn.Close()
	}
}
