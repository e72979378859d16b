// Package simnet runs a whole overlay inside one process: every peer is an
// actor goroutine and handles address each other's mailboxes directly.
package simnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/FranchuFranchu/kelili/dht"
	"github.com/FranchuFranchu/kelili/storage"
)

const (
	TopologyMesh = "mesh"
	TopologyRing = "ring"
)

// Options shape a simulated overlay.
type Options struct {
	Peers    int
	Seed     uint64
	Topology string
	Backend  string
	Hasher   dht.Hasher
	Logger   *slog.Logger
}

// Network is a set of peers sharing one process.
type Network struct {
	peers  []*dht.Peer
	hasher dht.Hasher
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// New builds the peers and wires their routing tables according to the
// topology. A zero seed draws ids from the operating system.
func New(cfg dht.Config, opts Options) (*Network, error) {
	if opts.Peers < 1 {
		return nil, dht.ErrNoPeers
	}
	if opts.Hasher == nil {
		opts.Hasher = dht.Blake2s
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var src dht.RandomSource
	if opts.Seed != 0 {
		src = dht.NewSeededSource(opts.Seed)
	} else {
		src = dht.NewCryptoSource()
	}

	n := &Network{hasher: opts.Hasher, logger: opts.Logger.With(slog.String("component", "simnet"))}
	for i := 0; i < opts.Peers; i++ {
		db, err := storage.Open(opts.Backend)
		if err != nil {
			_ = n.close()
			return nil, err
		}
		peer := dht.NewPeer(cfg, src,
			dht.WithDatabase(db),
			dht.WithHasher(opts.Hasher),
			dht.WithLogger(opts.Logger))
		n.peers = append(n.peers, peer)
	}
	if err := n.connect(opts.Topology); err != nil {
		_ = n.close()
		return nil, err
	}
	n.logger.Info("simnet: overlay built",
		slog.Int("peers", len(n.peers)),
		slog.String("topology", opts.Topology))
	return n, nil
}

func (n *Network) connect(topology string) error {
	switch topology {
	case "", TopologyMesh:
		for _, p := range n.peers {
			for _, q := range n.peers {
				p.Bootstrap(q.Info())
			}
		}
	case TopologyRing:
		for i, p := range n.peers {
			p.Bootstrap(n.peers[(i+1)%len(n.peers)].Info())
			p.Bootstrap(n.peers[(i+len(n.peers)-1)%len(n.peers)].Info())
		}
	default:
		return fmt.Errorf("simnet: unknown topology %q", topology)
	}
	return nil
}

// Start runs every peer's loop in the background until Stop or ctx ends.
func (n *Network) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return errors.New("simnet: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	for _, p := range n.peers {
		group.Go(func() error {
			err := p.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	n.cancel = cancel
	n.group = group
	n.running = true
	return nil
}

// Wait blocks until every peer loop has returned.
func (n *Network) Wait() error {
	n.mu.Lock()
	group := n.group
	n.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop ends every peer loop and releases the peers' stores.
func (n *Network) Stop() error {
	n.mu.Lock()
	cancel, group := n.cancel, n.group
	n.cancel, n.group, n.running = nil, nil, false
	n.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		err = group.Wait()
	}
	return errors.Join(err, n.close())
}

func (n *Network) close() error {
	var errs []error
	for _, p := range n.peers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Peers returns the peers in creation order. Their state must not be touched
// while the network runs; use Clients.
func (n *Network) Peers() []*dht.Peer {
	return append([]*dht.Peer(nil), n.peers...)
}

// Clients returns one concurrent handle per peer.
func (n *Network) Clients() []dht.Client {
	clients := make([]dht.Client, len(n.peers))
	for i, p := range n.peers {
		clients[i] = p.Client()
	}
	return clients
}

// Client returns the handle of peer i.
func (n *Network) Client(i int) (dht.Client, error) {
	if i < 0 || i >= len(n.peers) {
		return dht.Client{}, fmt.Errorf("simnet: no peer %d of %d", i, len(n.peers))
	}
	return n.peers[i].Client(), nil
}

// Hasher returns the content hash every peer of the network uses.
func (n *Network) Hasher() dht.Hasher {
	return n.hasher
}

// IdealHolder returns the peer whose id is closest to hash across the whole
// network, where propagated content converges.
func (n *Network) IdealHolder(hash dht.ID) (*dht.Peer, error) {
	if len(n.peers) == 0 {
		return nil, dht.ErrNoPeers
	}
	best := n.peers[0]
	for _, p := range n.peers[1:] {
		if dht.Distance(p.ID(), hash).Less(dht.Distance(best.ID(), hash)) {
			best = p
		}
	}
	return best, nil
}

// HolderCount reports how many peers hold content for hash.
func (n *Network) HolderCount(hash dht.ID) int {
	count := 0
	for _, p := range n.peers {
		if p.Holds(hash) {
			count++
		}
	}
	return count
}
