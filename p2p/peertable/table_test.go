// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package peertable

import (
	"net"
	"testing"
	"time"

	"github.com/rollupchain/rgeth/common"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id common.Hash }

func (f fakeConn) ID() common.Hash { return f.id }

func node(n byte, ip string) Node {
	return Node{ID: common.BytesToHash([]byte{n}), IP: net.ParseIP(ip), UDPPort: 30303, TCPPort: 30303}
}

func TestNewContactsInsertsAndDedupsByID(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(1, "127.0.0.1")
	require.NoError(t, pt.NewContacts([]Node{n}, Discv4))
	require.NoError(t, pt.NewContacts([]Node{n}, Discv5))

	c, err := pt.GetContact(n.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.True(t, c.IsDiscv4)
	require.True(t, c.IsDiscv5)
	require.True(t, c.KnowsUs)
}

func TestValidateContactRejectsUnknownNode(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	err := pt.ValidateContact(common.HexToHash("0xdead"), net.ParseIP("1.2.3.4"))
	require.ErrorIs(t, err, ErrUnknownContact)
}

func TestValidateContactRejectsUnvalidated(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(2, "10.0.0.1")
	require.NoError(t, pt.NewContacts([]Node{n}, Discv4))

	err := pt.ValidateContact(n.ID, net.ParseIP("10.0.0.1"))
	require.ErrorIs(t, err, ErrInvalidContact)
}

func TestValidateContactRejectsIPMismatchAfterPong(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(3, "10.0.0.2")
	require.NoError(t, pt.NewContacts([]Node{n}, Discv4))
	require.NoError(t, pt.RecordPingSent(n.ID, []byte("ping-id")))
	require.NoError(t, pt.RecordPongReceived(n.ID, []byte("ping-id")))

	err := pt.ValidateContact(n.ID, net.ParseIP("9.9.9.9"))
	require.ErrorIs(t, err, ErrIPMismatch)

	require.NoError(t, pt.ValidateContact(n.ID, net.ParseIP("10.0.0.2")))
}

func TestPingPongLifecycleClearsOutstandingPing(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(4, "10.0.0.3")
	require.NoError(t, pt.NewContacts([]Node{n}, Discv4))

	c, err := pt.GetContact(n.ID)
	require.NoError(t, err)
	require.False(t, c.wasValidated())

	require.NoError(t, pt.RecordPingSent(n.ID, []byte("abc")))
	c, err = pt.GetContact(n.ID)
	require.NoError(t, err)
	require.True(t, c.hasPendingPing())

	require.NoError(t, pt.RecordPongReceived(n.ID, []byte("abc")))
	c, err = pt.GetContact(n.ID)
	require.NoError(t, err)
	require.False(t, c.hasPendingPing())
	require.True(t, c.wasValidated())
}

func TestRecordSuccessAndFailureClampScore(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(5, "10.0.0.4")
	conn := fakeConn{id: n.ID}
	require.NoError(t, pt.NewConnectedPeer(n, conn, []Capability{{Name: "eth", Version: 68}}))

	for i := 0; i < maxScore+10; i++ {
		require.NoError(t, pt.RecordSuccess(n.ID))
	}
	score, err := pt.GetScore(n.ID)
	require.NoError(t, err)
	require.Equal(t, int64(maxScore), score)

	for i := 0; i < 200; i++ {
		require.NoError(t, pt.RecordFailure(n.ID))
	}
	score, err = pt.GetScore(n.ID)
	require.NoError(t, err)
	require.Equal(t, int64(minScore), score)

	require.NoError(t, pt.RecordCriticalFailure(n.ID))
	score, err = pt.GetScore(n.ID)
	require.NoError(t, err)
	require.Equal(t, int64(minScoreCritical), score)
}

func TestGetBestPeerPrefersHigherScoreAndFewerRequests(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	capsEth := []Capability{{Name: "eth", Version: 68}}
	a := node(6, "10.0.1.1")
	b := node(7, "10.0.1.2")
	require.NoError(t, pt.NewConnectedPeer(a, fakeConn{id: a.ID}, capsEth))
	require.NoError(t, pt.NewConnectedPeer(b, fakeConn{id: b.ID}, capsEth))

	require.NoError(t, pt.RecordSuccess(a.ID))
	require.NoError(t, pt.RecordSuccess(a.ID))
	require.NoError(t, pt.RecordSuccess(b.ID))

	best, _, err := pt.GetBestPeer(capsEth)
	require.NoError(t, err)
	require.Equal(t, a.ID, best)

	// Loading up b's concurrent-request count should not change the winner while a is ahead,
	// but once b has no spare capacity at all it must be excluded entirely.
	for i := 0; i < maxConcurrentRequestsPerPeer; i++ {
		require.NoError(t, pt.IncRequests(b.ID))
	}
	best, _, err = pt.GetBestPeer(capsEth)
	require.NoError(t, err)
	require.Equal(t, a.ID, best)
}

func TestGetBestPeerExcludesUnsupportedCapability(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(8, "10.0.2.1")
	require.NoError(t, pt.NewConnectedPeer(n, fakeConn{id: n.ID}, []Capability{{Name: "snap", Version: 1}}))

	_, conn, err := pt.GetBestPeer([]Capability{{Name: "eth", Version: 68}})
	require.NoError(t, err)
	require.Nil(t, conn)
}

func TestGetContactToInitiateSkipsConnectedAndUnwanted(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	a := node(9, "10.0.3.1")
	b := node(10, "10.0.3.2")
	require.NoError(t, pt.NewContacts([]Node{a, b}, Discv4))
	require.NoError(t, pt.NewConnectedPeer(a, fakeConn{id: a.ID}, nil))
	require.NoError(t, pt.SetUnwanted(b.ID))

	first, err := pt.GetContactToInitiate()
	require.NoError(t, err)
	require.Nil(t, first, "a is connected and b is unwanted, so nothing should be offered")
}

func TestGetContactForLookupRespectsFindNodeBudget(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(11, "10.0.4.1")
	require.NoError(t, pt.NewContacts([]Node{n}, Discv4))

	c, err := pt.GetContactForLookup(Discv4)
	require.NoError(t, err)
	require.NotNil(t, c)

	for i := uint64(0); i < maxFindNodePerPeer; i++ {
		require.NoError(t, pt.IncrementFindNodeSent(n.ID))
	}
	c, err = pt.GetContactForLookup(Discv4)
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestGetContactsToRevalidateFlagsNeverPingedButNotFreshPing(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(12, "10.0.5.1")
	require.NoError(t, pt.NewContacts([]Node{n}, Discv4))

	need, err := pt.GetContactsToRevalidate(time.Hour, Discv4)
	require.NoError(t, err)
	require.Len(t, need, 1)

	require.NoError(t, pt.RecordPingSent(n.ID, []byte("p")))
	need, err = pt.GetContactsToRevalidate(time.Hour, Discv4)
	require.NoError(t, err)
	require.Empty(t, need, "a freshly sent ping is not stale yet")
}

func TestPruneRemovesDisposableContacts(t *testing.T) {
	pt := New(Config{})
	defer pt.Close()

	n := node(13, "10.0.6.1")
	require.NoError(t, pt.NewContacts([]Node{n}, Discv4))
	require.NoError(t, pt.SetDisposable(n.ID))
	require.NoError(t, pt.Prune())

	c, err := pt.GetContact(n.ID)
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestTargetPeersReachedAndCompletion(t *testing.T) {
	pt := New(Config{TargetPeers: 2})
	defer pt.Close()

	reached, err := pt.TargetPeersReached()
	require.NoError(t, err)
	require.False(t, reached)

	n := node(14, "10.0.7.1")
	require.NoError(t, pt.NewConnectedPeer(n, fakeConn{id: n.ID}, nil))
	frac, err := pt.TargetPeersCompletion()
	require.NoError(t, err)
	require.InDelta(t, 0.5, frac, 0.0001)
}

func TestClosedTableRejectsFurtherCalls(t *testing.T) {
	pt := New(Config{})
	pt.Close()

	err := pt.NewContacts([]Node{node(15, "1.1.1.1")}, Discv4)
	require.ErrorIs(t, err, ErrClosed)
}
