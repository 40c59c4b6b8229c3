// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package peertable implements the protocol-agnostic peer table: the single actor that tracks
// discovery contacts and connected RLPx peers for both discv4- and discv5-style discovery,
// and feeds the snap-sync driver a connection to request from.
package peertable

import (
	"net"
	"time"

	"github.com/rollupchain/rgeth/common"
)

// DiscoveryProtocol identifies which discovery protocol found a contact, so protocol-specific
// lookups (ENR requests are discv4-only, for instance) only query compatible contacts.
type DiscoveryProtocol int

const (
	Discv4 DiscoveryProtocol = iota
	Discv5
)

// Node is a discovered endpoint: its node ID plus where to reach it.
type Node struct {
	ID      common.Hash
	IP      net.IP
	UDPPort uint16
	TCPPort uint16
}

// NodeRecord is the subset of an ENR this table needs to track: the node's latest address and
// sequence number, as carried by discv5 FindNode/ENR responses.
type NodeRecord struct {
	ID  common.Hash
	Seq uint64
	IP  net.IP
	UDP uint16
	TCP uint16
}

// Capability names an RLPx subprotocol a peer supports, e.g. {"eth", 68} or {"snap", 1}.
type Capability struct {
	Name    string
	Version uint
}

// Connection is the minimal peer-connection handle the peer table hands to callers; the RLPx
// transport itself stays out of scope, so this is left satisfiable by any type the transport
// layer provides.
type Connection interface {
	ID() common.Hash
}

// Session holds the discv5 symmetric keys negotiated for a contact. The wire crypto that
// produces these is out of scope; the table only stores the slot.
type Session struct {
	OutboundKey [16]byte
	InboundKey  [16]byte
}

// Contact is one discovery-table entry: an endpoint plus its validation state.
type Contact struct {
	Node Node

	IsDiscv4 bool
	IsDiscv5 bool

	// ValidationTimestamp is when the contact was last sent a ping; zero means never pinged.
	ValidationTimestamp time.Time
	// PingID is the identifier of the last unacknowledged ping, nil if none is outstanding.
	PingID []byte
	// EnrRequestHash is the hash of the last unacknowledged ENR request, nil if none.
	EnrRequestHash *common.Hash

	NFindNodeSent uint64
	Record        *NodeRecord

	Disposable    bool
	KnowsUs       bool
	Unwanted      bool
	IsForkIDValid *bool

	Session *Session
}

// NewContact creates a contact freshly discovered via protocol. KnowsUs starts true: per the
// original table, a contact is assumed to know about us until proven otherwise, not the other
// way around.
func NewContact(node Node, protocol DiscoveryProtocol) *Contact {
	c := &Contact{Node: node, KnowsUs: true}
	c.addProtocol(protocol)
	return c
}

func (c *Contact) addProtocol(protocol DiscoveryProtocol) {
	switch protocol {
	case Discv4:
		c.IsDiscv4 = true
	case Discv5:
		c.IsDiscv5 = true
	}
}

func (c *Contact) supportsProtocol(protocol DiscoveryProtocol) bool {
	switch protocol {
	case Discv4:
		return c.IsDiscv4
	case Discv5:
		return c.IsDiscv5
	}
	return false
}

func (c *Contact) hasPendingPing() bool { return c.PingID != nil }

func (c *Contact) wasValidated() bool {
	return !c.ValidationTimestamp.IsZero() && !c.hasPendingPing()
}

func (c *Contact) hasPendingEnrRequest() bool { return c.EnrRequestHash != nil }

func (c *Contact) recordPingSent(pingID []byte, now time.Time) {
	c.ValidationTimestamp = now
	c.PingID = pingID
}

func (c *Contact) recordPongReceived(pingID []byte) {
	if c.PingID != nil && bytesEqual(c.PingID, pingID) {
		c.PingID = nil
	}
}

func (c *Contact) recordEnrRequestSent(hash common.Hash) {
	c.EnrRequestHash = &hash
}

func (c *Contact) recordEnrResponseReceived(hash common.Hash, record NodeRecord) {
	if c.EnrRequestHash != nil && *c.EnrRequestHash == hash {
		c.EnrRequestHash = nil
		c.Record = &record
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PeerData is a connected peer's externally visible metadata, returned by GetPeersData.
type PeerData struct {
	Node                 Node
	Record               *NodeRecord
	SupportedCapabilities []Capability
	IsConnectionInbound  bool
	Connection           Connection
}

// peerEntry is a connected peer's full bookkeeping record, held only inside the table.
type peerEntry struct {
	data     PeerData
	score    int64
	requests int64
}
