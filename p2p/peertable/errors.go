// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package peertable

import "errors"

// Tuning constants carried verbatim from the table this package was distilled from.
const (
	maxScore                    = 50
	minScore                    = -50
	minScoreCritical            = minScore * 3
	maxFindNodePerPeer          = 20
	scoreWeight                 = 1
	requestsWeight              = 1
	maxConcurrentRequestsPerPeer = 100
	pingStaleAfter              = 30 // seconds; an in-flight ping older than this needs revalidation

	// TargetPeers is the default target number of RLPx connections to maintain.
	TargetPeers = 100
	// TargetContacts is the default target number of discovery contacts to maintain.
	TargetContacts = 100_000
	// MaxNodesInNeighborsPacket bounds a discv4-compatible Neighbors response.
	MaxNodesInNeighborsPacket = 16
	// MaxENRsPerFindNodeResponse bounds a discv5 FindNode response.
	MaxENRsPerFindNodeResponse = 16
)

var (
	// ErrUnknownContact is returned by ValidateContact when node_id has no table entry.
	ErrUnknownContact = errors.New("peertable: unknown contact")
	// ErrInvalidContact is returned by ValidateContact when the contact has never completed
	// a ping/pong round trip.
	ErrInvalidContact = errors.New("peertable: contact not yet validated")
	// ErrIPMismatch is returned by ValidateContact when sender-ip disagrees with the
	// contact's recorded address — the table's amplification-attack guard.
	ErrIPMismatch = errors.New("peertable: sender IP does not match contact")
	// ErrClosed is returned by every method once Close has been called.
	ErrClosed = errors.New("peertable: table is closed")
)
