// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package peertable

import (
	"math/rand"
	"net"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/time/rate"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/log"
)

// Config holds the tunables of a PeerTable, following the teacher's defaults-as-package-
// constants convention (eth/ethconfig style) with a small per-component Config struct layered
// on top.
type Config struct {
	TargetPeers    int
	TargetContacts int
	// RequestRateLimit sets the rate of the limiter New builds for the table; no table
	// method waits on that limiter, so it does not throttle callers' requests.
	RequestRateLimit rate.Limit
}

// DefaultConfig mirrors the original table's tuning constants.
var DefaultConfig = Config{
	TargetPeers:      TargetPeers,
	TargetContacts:   TargetContacts,
	RequestRateLimit: 50,
}

// PeerTable is the single actor owning every contact and connected-peer record. All state is
// touched only by the run loop goroutine; every exported method submits a closure to the
// loop's mailbox and blocks for its result, so messages are applied in the exact order callers
// submit them, without the table's maps ever needing a mutex.
type PeerTable struct {
	cfg     Config
	log     log.Logger
	limiter *rate.Limiter

	mailbox chan func()
	closed  chan struct{}

	// actor-owned state — touched only from run().
	contacts       map[common.Hash]*Contact
	contactOrder   []common.Hash // insertion order, for get_contact_to_initiate's sweep
	alreadyTried   map[common.Hash]bool
	peers          map[common.Hash]*peerEntry
}

// New starts a PeerTable's actor goroutine.
func New(cfg Config) *PeerTable {
	if cfg.TargetPeers == 0 {
		cfg.TargetPeers = DefaultConfig.TargetPeers
	}
	if cfg.TargetContacts == 0 {
		cfg.TargetContacts = DefaultConfig.TargetContacts
	}
	if cfg.RequestRateLimit == 0 {
		cfg.RequestRateLimit = DefaultConfig.RequestRateLimit
	}
	t := &PeerTable{
		cfg:          cfg,
		log:          log.New("module", "peertable"),
		limiter:      rate.NewLimiter(cfg.RequestRateLimit, int(cfg.RequestRateLimit)+1),
		mailbox:      make(chan func(), 256),
		closed:       make(chan struct{}),
		contacts:     make(map[common.Hash]*Contact),
		alreadyTried: make(map[common.Hash]bool),
		peers:        make(map[common.Hash]*peerEntry),
	}
	go t.run()
	return t
}

func (t *PeerTable) run() {
	for {
		select {
		case fn := <-t.mailbox:
			fn()
		case <-t.closed:
			// Drain anything already queued before this message, matching the
			// "workers observe end-of-stream and drain their in-flight set" rule.
			for {
				select {
				case fn := <-t.mailbox:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Close stops the actor. Pending calls already accepted into the mailbox still run; calls
// submitted after Close return ErrClosed.
func (t *PeerTable) Close() {
	close(t.closed)
}

// submit runs fn on the actor goroutine and waits for it to complete, preserving arrival
// order. It returns ErrClosed without running fn if the table has already been closed.
func (t *PeerTable) submit(fn func()) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	done := make(chan struct{})
	select {
	case t.mailbox <- func() { fn(); close(done) }:
	case <-t.closed:
		return ErrClosed
	}
	<-done
	return nil
}

// --- Fire-and-forget mutations ---

func (t *PeerTable) NewContacts(nodes []Node, protocol DiscoveryProtocol) error {
	return t.submit(func() {
		for _, n := range nodes {
			t.insertContactIfNew(n, protocol)
		}
	})
}

func (t *PeerTable) NewContactRecords(records []NodeRecord) error {
	return t.submit(func() {
		for _, r := range records {
			c, ok := t.contacts[r.ID]
			if !ok {
				c = t.insertContactIfNew(Node{ID: r.ID, IP: r.IP, UDPPort: r.UDP, TCPPort: r.TCP}, Discv5)
			}
			// An ENR update that changes IP/port must re-validate fork-id and force a
			// fresh ping, since the endpoint it was last validated against is gone.
			if !c.Node.IP.Equal(r.IP) || c.Node.UDPPort != r.UDP {
				c.Node.IP, c.Node.UDPPort, c.Node.TCPPort = r.IP, r.UDP, r.TCP
				c.IsForkIDValid = nil
				c.ValidationTimestamp = time.Time{}
				c.PingID = nil
			}
			rec := r
			c.Record = &rec
		}
	})
}

func (t *PeerTable) insertContactIfNew(n Node, protocol DiscoveryProtocol) *Contact {
	if c, ok := t.contacts[n.ID]; ok {
		c.addProtocol(protocol)
		return c
	}
	c := NewContact(n, protocol)
	t.contacts[n.ID] = c
	t.contactOrder = append(t.contactOrder, n.ID)
	return c
}

func (t *PeerTable) NewConnectedPeer(node Node, conn Connection, caps []Capability) error {
	return t.submit(func() {
		t.peers[node.ID] = &peerEntry{data: PeerData{Node: node, Connection: conn, SupportedCapabilities: caps}}
	})
}

func (t *PeerTable) SetSessionInfo(nodeID common.Hash, session Session) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.Session = &session
		}
	})
}

func (t *PeerTable) RemovePeer(nodeID common.Hash) error {
	return t.submit(func() { delete(t.peers, nodeID) })
}

func (t *PeerTable) IncRequests(nodeID common.Hash) error {
	return t.submit(func() {
		if p, ok := t.peers[nodeID]; ok {
			p.requests++
		}
	})
}

func (t *PeerTable) DecRequests(nodeID common.Hash) error {
	return t.submit(func() {
		if p, ok := t.peers[nodeID]; ok && p.requests > 0 {
			p.requests--
		}
	})
}

func (t *PeerTable) SetUnwanted(nodeID common.Hash) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.Unwanted = true
		}
	})
}

func (t *PeerTable) SetIsForkIDValid(nodeID common.Hash, valid bool) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.IsForkIDValid = &valid
		}
	})
}

func (t *PeerTable) RecordSuccess(nodeID common.Hash) error {
	return t.submit(func() { t.adjustScore(nodeID, 1) })
}

func (t *PeerTable) RecordFailure(nodeID common.Hash) error {
	return t.submit(func() { t.adjustScore(nodeID, -1) })
}

func (t *PeerTable) RecordCriticalFailure(nodeID common.Hash) error {
	return t.submit(func() {
		if p, ok := t.peers[nodeID]; ok {
			p.score = minScoreCritical
		}
	})
}

func (t *PeerTable) adjustScore(nodeID common.Hash, delta int64) {
	p, ok := t.peers[nodeID]
	if !ok {
		return
	}
	p.score += delta
	if p.score > maxScore {
		p.score = maxScore
	}
	if p.score < minScore {
		p.score = minScore
	}
}

func (t *PeerTable) RecordPingSent(nodeID common.Hash, pingID []byte) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.recordPingSent(pingID, time.Now())
		}
	})
}

func (t *PeerTable) RecordPongReceived(nodeID common.Hash, pingID []byte) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.recordPongReceived(pingID)
		}
	})
}

func (t *PeerTable) RecordEnrRequestSent(nodeID, requestHash common.Hash) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.recordEnrRequestSent(requestHash)
		}
	})
}

func (t *PeerTable) RecordEnrResponseReceived(nodeID, requestHash common.Hash, record NodeRecord) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.recordEnrResponseReceived(requestHash, record)
		}
	})
}

func (t *PeerTable) SetDisposable(nodeID common.Hash) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.Disposable = true
		}
	})
}

func (t *PeerTable) IncrementFindNodeSent(nodeID common.Hash) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.NFindNodeSent++
		}
	})
}

func (t *PeerTable) KnowsUs(nodeID common.Hash) error {
	return t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			c.KnowsUs = true
		}
	})
}

// Prune removes every contact marked disposable.
func (t *PeerTable) Prune() error {
	return t.submit(func() {
		kept := t.contactOrder[:0]
		for _, id := range t.contactOrder {
			if t.contacts[id].Disposable {
				delete(t.contacts, id)
				delete(t.alreadyTried, id)
				continue
			}
			kept = append(kept, id)
		}
		t.contactOrder = kept
	})
}

// --- Query/response ---

func (t *PeerTable) PeerCount() (int, error) {
	var n int
	err := t.submit(func() { n = len(t.peers) })
	return n, err
}

func (t *PeerTable) PeerCountByCapabilities(caps []Capability) (int, error) {
	want := capabilitySet(caps)
	var n int
	err := t.submit(func() {
		for _, p := range t.peers {
			if hasAnyCapability(p.data.SupportedCapabilities, want) {
				n++
			}
		}
	})
	return n, err
}

func capabilitySet(caps []Capability) mapset.Set[Capability] {
	s := mapset.NewThreadUnsafeSet[Capability]()
	for _, c := range caps {
		s.Add(c)
	}
	return s
}

func hasAnyCapability(have []Capability, want mapset.Set[Capability]) bool {
	for _, c := range have {
		if want.Contains(c) {
			return true
		}
	}
	return false
}

// TargetReached reports whether both the contact and connected-peer targets are met.
func (t *PeerTable) TargetReached() (bool, error) {
	var ok bool
	err := t.submit(func() {
		ok = len(t.contacts) >= t.cfg.TargetContacts && len(t.peers) >= t.cfg.TargetPeers
	})
	return ok, err
}

func (t *PeerTable) TargetPeersReached() (bool, error) {
	var ok bool
	err := t.submit(func() { ok = len(t.peers) >= t.cfg.TargetPeers })
	return ok, err
}

func (t *PeerTable) TargetPeersCompletion() (float64, error) {
	var frac float64
	err := t.submit(func() {
		if t.cfg.TargetPeers == 0 {
			frac = 1
			return
		}
		frac = float64(len(t.peers)) / float64(t.cfg.TargetPeers)
	})
	return frac, err
}

// GetContactToInitiate iterates contacts in insertion order, skipping already-connected,
// already-tried, unwanted, or known-bad-fork-id contacts. On a full unsuccessful sweep it
// clears the already-tried set and reports none, so the next call starts over.
func (t *PeerTable) GetContactToInitiate() (*Contact, error) {
	var result *Contact
	err := t.submit(func() {
		for _, id := range t.contactOrder {
			c := t.contacts[id]
			if _, connected := t.peers[id]; connected {
				continue
			}
			if t.alreadyTried[id] || c.Unwanted {
				continue
			}
			if c.IsForkIDValid != nil && !*c.IsForkIDValid {
				continue
			}
			if !c.KnowsUs {
				continue
			}
			t.alreadyTried[id] = true
			cpy := *c
			result = &cpy
			return
		}
		t.log.Trace("contact sweep exhausted, resetting already-tried set")
		t.alreadyTried = make(map[common.Hash]bool)
	})
	return result, err
}

// GetContactForLookup returns a random contact supporting protocol that hasn't exhausted its
// FindNode budget and isn't disposable.
func (t *PeerTable) GetContactForLookup(protocol DiscoveryProtocol) (*Contact, error) {
	var result *Contact
	err := t.submit(func() {
		var candidates []*Contact
		for _, id := range t.contactOrder {
			c := t.contacts[id]
			if c.supportsProtocol(protocol) && c.NFindNodeSent < maxFindNodePerPeer && !c.Disposable {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			return
		}
		cpy := *candidates[rand.Intn(len(candidates))]
		result = &cpy
	})
	return result, err
}

// GetContactForEnrLookup returns a validated discv4 contact with no pending ENR request and no
// record yet.
func (t *PeerTable) GetContactForEnrLookup() (*Contact, error) {
	var result *Contact
	err := t.submit(func() {
		for _, id := range t.contactOrder {
			c := t.contacts[id]
			if c.IsDiscv4 && c.wasValidated() && !c.hasPendingEnrRequest() && c.Record == nil && !c.Disposable {
				cpy := *c
				result = &cpy
				return
			}
		}
	})
	return result, err
}

func (t *PeerTable) GetContact(nodeID common.Hash) (*Contact, error) {
	var result *Contact
	err := t.submit(func() {
		if c, ok := t.contacts[nodeID]; ok {
			cpy := *c
			result = &cpy
		}
	})
	return result, err
}

func (t *PeerTable) GetSessionInfo(nodeID common.Hash) (*Session, error) {
	c, err := t.GetContact(nodeID)
	if err != nil || c == nil {
		return nil, err
	}
	return c.Session, nil
}

// needsRevalidation reports whether a contact must be revalidated: never validated, last
// validation older than interval, or an in-flight ping older than 30s.
func needsRevalidation(c *Contact, interval time.Duration, now time.Time) bool {
	if !c.wasValidated() && !c.hasPendingPing() {
		return true
	}
	if c.hasPendingPing() {
		return now.Sub(c.ValidationTimestamp) > pingStaleAfter*time.Second
	}
	return now.Sub(c.ValidationTimestamp) > interval
}

func (t *PeerTable) GetContactsToRevalidate(interval time.Duration, protocol DiscoveryProtocol) ([]Contact, error) {
	var result []Contact
	err := t.submit(func() {
		now := time.Now()
		for _, id := range t.contactOrder {
			c := t.contacts[id]
			if c.supportsProtocol(protocol) && needsRevalidation(c, interval, now) {
				result = append(result, *c)
			}
		}
	})
	return result, err
}

// GetBestPeer picks, among peers supporting any of caps and with capacity for more concurrent
// requests, the one maximizing score*scoreWeight - requests*requestsWeight.
func (t *PeerTable) GetBestPeer(caps []Capability) (common.Hash, Connection, error) {
	want := capabilitySet(caps)
	var (
		bestID   common.Hash
		bestConn Connection
		bestVal  int64
		found    bool
	)
	err := t.submit(func() {
		for id, p := range t.peers {
			if !hasAnyCapability(p.data.SupportedCapabilities, want) {
				continue
			}
			if p.requests >= maxConcurrentRequestsPerPeer {
				continue
			}
			val := p.score*scoreWeight - p.requests*requestsWeight
			if !found || val > bestVal {
				found, bestVal, bestID, bestConn = true, val, id, p.data.Connection
			}
		}
	})
	if !found {
		return common.Hash{}, nil, err
	}
	return bestID, bestConn, err
}

func (t *PeerTable) GetScore(nodeID common.Hash) (int64, error) {
	var score int64
	err := t.submit(func() {
		if p, ok := t.peers[nodeID]; ok {
			score = p.score
		}
	})
	return score, err
}

func (t *PeerTable) GetConnectedNodes() ([]Node, error) {
	var nodes []Node
	err := t.submit(func() {
		for _, p := range t.peers {
			nodes = append(nodes, p.data.Node)
		}
	})
	return nodes, err
}

func (t *PeerTable) GetPeersWithCapabilities() ([]PeerData, error) {
	var out []PeerData
	err := t.submit(func() {
		for _, p := range t.peers {
			out = append(out, p.data)
		}
	})
	return out, err
}

func (t *PeerTable) GetPeerConnections(caps []Capability) ([]Connection, error) {
	want := capabilitySet(caps)
	var out []Connection
	err := t.submit(func() {
		for _, p := range t.peers {
			if hasAnyCapability(p.data.SupportedCapabilities, want) {
				out = append(out, p.data.Connection)
			}
		}
	})
	return out, err
}

// InsertIfNew inserts node as a new contact if it is not already known, reporting whether it
// was new.
func (t *PeerTable) InsertIfNew(node Node, protocol DiscoveryProtocol) (bool, error) {
	var isNew bool
	err := t.submit(func() {
		_, existed := t.contacts[node.ID]
		t.insertContactIfNew(node, protocol)
		isNew = !existed
	})
	return isNew, err
}

// ValidateContact is the amplification-attack guard: a request claiming to be from senderIP is
// honored only for a contact that exists, was validated, and whose stored IP matches senderIP.
func (t *PeerTable) ValidateContact(nodeID common.Hash, senderIP net.IP) error {
	var verr error
	if err := t.submit(func() {
		c, ok := t.contacts[nodeID]
		switch {
		case !ok:
			verr = ErrUnknownContact
		case !c.wasValidated():
			verr = ErrInvalidContact
		case !c.Node.IP.Equal(senderIP):
			verr = ErrIPMismatch
		}
	}); err != nil {
		return err
	}
	return verr
}

func (t *PeerTable) GetClosestNodes(target common.Hash) ([]Node, error) {
	var nodes []Node
	err := t.submit(func() {
		var all []scoredNode
		for _, c := range t.contacts {
			all = append(all, scoredNode{c.Node, distance(target, c.Node.ID)})
		}
		sortByDistance(all)
		limit := MaxNodesInNeighborsPacket
		if len(all) < limit {
			limit = len(all)
		}
		for i := 0; i < limit; i++ {
			nodes = append(nodes, all[i].node)
		}
	})
	return nodes, err
}

func (t *PeerTable) GetNodesAtDistances(localNodeID common.Hash, distances []uint32) ([]NodeRecord, error) {
	want := make(map[int]bool, len(distances))
	for _, d := range distances {
		want[int(d)] = true
	}
	var out []NodeRecord
	err := t.submit(func() {
		for _, c := range t.contacts {
			if c.Record == nil {
				continue
			}
			if want[distance(localNodeID, c.Node.ID)] {
				out = append(out, *c.Record)
				if len(out) >= MaxENRsPerFindNodeResponse {
					return
				}
			}
		}
	})
	return out, err
}

func (t *PeerTable) GetPeersData() ([]PeerData, error) {
	return t.GetPeersWithCapabilities()
}

func (t *PeerTable) GetRandomPeer(caps []Capability) (common.Hash, Connection, error) {
	want := capabilitySet(caps)
	var (
		candidates []common.Hash
		conns      map[common.Hash]Connection
	)
	conns = make(map[common.Hash]Connection)
	err := t.submit(func() {
		for id, p := range t.peers {
			if hasAnyCapability(p.data.SupportedCapabilities, want) {
				candidates = append(candidates, id)
				conns[id] = p.data.Connection
			}
		}
	})
	if err != nil || len(candidates) == 0 {
		return common.Hash{}, nil, err
	}
	id := candidates[rand.Intn(len(candidates))]
	return id, conns[id], nil
}

// distance is the kademlia-style XOR distance metric this table uses for closeness ranking:
// the index of the highest set bit in a XOR b, saturating at 0 for equal IDs.
func distance(a, b common.Hash) int {
	var xor common.Hash
	for i := range a {
		xor[i] = a[i] ^ b[i]
	}
	bits := 0
	for _, byt := range xor {
		if byt == 0 {
			bits += 8
			continue
		}
		for byt&0x80 == 0 {
			byt <<= 1
			bits++
		}
		break
	}
	total := len(xor)*8 - bits
	if total <= 0 {
		return 0
	}
	return total - 1
}

// scoredNode pairs a contact's node with its XOR distance from a lookup target.
type scoredNode struct {
	node Node
	dist int
}

func sortByDistance(all []scoredNode) {
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].dist < all[j-1].dist; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
}
