package srv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

func TestRequestSlotFillsRoomThenQueues(t *testing.T) {
	h := newTestHub(t)
	var ids []string
	for i := 0; i < 12; i++ {
		id, _ := connect(h, "")
		requestSlot(t, h, id, "lava")
		ids = append(ids, id)
	}

	r := roomOf(h, ids[0])
	require.NotNil(t, r)
	assert.Equal(t, ids[:10], rosterOf(h, r))
	assert.Len(t, roomIDs(h, "lava"), 1)
	assert.Nil(t, roomOf(h, ids[10]), "11th player must not be seated")
	assert.Equal(t, ids[10:], queued(h, "lava"), "overflow keeps arrival order")
}

func TestRoomCapacityNeverExceedsMax(t *testing.T) {
	h := newTestHub(t, func(o *Options) { o.Capacity = 50 })
	var ids []string
	for i := 0; i < 12; i++ {
		id, _ := connect(h, "")
		requestSlot(t, h, id, "lava")
		ids = append(ids, id)
	}

	r := roomOf(h, ids[0])
	require.NotNil(t, r)
	assert.LessOrEqual(t, len(rosterOf(h, r)), protocol.MaxRoomPlayers)
	assert.Equal(t, ids[protocol.MaxRoomPlayers:], queued(h, "lava"))
}

func TestOneRoomPerConnection(t *testing.T) {
	h := newTestHub(t)
	a, recA := connect(h, "")
	requestSlot(t, h, a, "lava")
	requestSlot(t, h, a, "lava")
	requestSlot(t, h, a, "ice")

	r := roomOf(h, a)
	require.NotNil(t, r)
	assert.Equal(t, "lava", r.Level)
	assert.Equal(t, []string{a}, rosterOf(h, r))
	assert.Empty(t, roomIDs(h, "ice"))
	assert.Equal(t, 3, recA.count(protocol.TypeGameData), "repeat requests re-send the roster")
}

func TestDuplicateRequestWhileQueued(t *testing.T) {
	h := newTestHub(t)
	for i := 0; i < 10; i++ {
		id, _ := connect(h, "")
		requestSlot(t, h, id, "lava")
	}
	late, _ := connect(h, "")
	requestSlot(t, h, late, "lava")
	requestSlot(t, h, late, "lava")
	assert.Equal(t, []string{late}, queued(h, "lava"))
}

func TestRequestSlotRunningRoomQueues(t *testing.T) {
	h := newTestHub(t)
	a, _ := connect(h, "")
	b, _ := connect(h, "")
	requestSlot(t, h, a, "lava")
	requestSlot(t, h, b, "lava")
	startRoom(t, h, a)
	require.Equal(t, PhaseRunning, stateOf(h, roomOf(h, a)))

	c, _ := connect(h, "")
	requestSlot(t, h, c, "lava")
	assert.Nil(t, roomOf(h, c))
	assert.Equal(t, []string{c}, queued(h, "lava"))
}

func TestRequestSlotReplacesStaleRoom(t *testing.T) {
	h := newTestHub(t)
	a, _ := connect(h, "")
	requestSlot(t, h, a, "lava")
	stale := roomOf(h, a).GameID

	// connection vanishes without the hub hearing about it
	h.mu.Lock()
	h.conns.disconnect(a)
	h.mu.Unlock()

	b, recB := connect(h, "")
	requestSlot(t, h, b, "lava")
	r := roomOf(h, b)
	require.NotNil(t, r)
	assert.NotEqual(t, stale, r.GameID)
	assert.Equal(t, []string{r.GameID}, roomIDs(h, "lava"))
	assert.Equal(t, []string{b}, rosterOf(h, r))

	var gd protocol.GameData
	recB.last(t, protocol.TypeGameData, &gd)
	assert.Equal(t, protocol.StateWaiting, gd.GameState)
	require.Len(t, gd.Players, 1)
	assert.Equal(t, b, gd.Players[0].PlayerID)
}

func TestRequestSlotUnknownLevel(t *testing.T) {
	h := newTestHub(t)
	a, rec := connect(h, "")
	err := send(t, h, a, protocol.TypeRequestSlot, protocol.RequestSlot{Level: "moon"})
	assert.ErrorIs(t, err, ErrUnknownLevel)
	assert.Equal(t, 1, rec.count(protocol.TypeError))
	assert.Nil(t, roomOf(h, a))
}

func TestUnknownLevelDoesNotBindWallet(t *testing.T) {
	h := newTestHub(t)
	a, _ := connect(h, "")
	err := send(t, h, a, protocol.TypeRequestSlot, protocol.RequestSlot{Level: "moon", Wallet: wallet(7)})
	require.ErrorIs(t, err, ErrUnknownLevel)

	require.NoError(t, send(t, h, a, protocol.TypeRequestSlot, protocol.RequestSlot{Level: "lava", Wallet: wallet(8)}))
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, wallet(8), h.conns.walletOf(a))
}

func TestRequestSlotAttachesWalletOnce(t *testing.T) {
	h := newTestHub(t)
	a, recA := connect(h, "")
	require.NoError(t, send(t, h, a, protocol.TypeRequestSlot, protocol.RequestSlot{Level: "lava", Wallet: wallet(1)}))

	b, _ := connect(h, wallet(2))
	require.NoError(t, send(t, h, b, protocol.TypeRequestSlot, protocol.RequestSlot{Level: "lava", Wallet: wallet(3)}))

	err := h.dispatch(a, []byte(`{"type":"requestSlot","data":{"level":"lava","account":"nope"}}`))
	assert.Error(t, err)
	assert.Equal(t, 1, recA.count(protocol.TypeError), "malformed wallet is reported")

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, wallet(1), h.conns.walletOf(a))
	assert.Equal(t, wallet(2), h.conns.walletOf(b), "token-bound wallet is kept")
}

func TestFinalizeRoomSeedsFromLiveQueueHead(t *testing.T) {
	h := newTestHub(t, func(o *Options) { o.Capacity = 2 })
	a, _ := connect(h, "")
	b, _ := connect(h, "")
	requestSlot(t, h, a, "lava")
	requestSlot(t, h, b, "lava")
	old := roomOf(h, a).GameID

	var waiting []string
	for i := 0; i < 4; i++ {
		id, _ := connect(h, "")
		requestSlot(t, h, id, "lava")
		waiting = append(waiting, id)
	}
	require.Equal(t, waiting, queued(h, "lava"))

	// waiting[1] dies but is still in the queue
	h.mu.Lock()
	h.conns.disconnect(waiting[1])
	h.mu.Unlock()

	next, err := h.FinalizeRoom("lava", old)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaiting, stateOf(h, next))
	assert.Equal(t, []string{waiting[0], waiting[2]}, rosterOf(h, next))
	assert.Equal(t, []string{waiting[3]}, queued(h, "lava"))
	assert.NotContains(t, roomIDs(h, "lava"), old)
	assert.Nil(t, roomOf(h, a), "old members are released")
	assert.Equal(t, next, roomOf(h, waiting[2]))

	_, err = h.FinalizeRoom("lava", old)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestFinalizeRoomWithEmptyQueue(t *testing.T) {
	h := newTestHub(t)
	a, _ := connect(h, "")
	requestSlot(t, h, a, "lava")
	old := roomOf(h, a).GameID

	next, err := h.FinalizeRoom("lava", old)
	require.NoError(t, err)
	assert.Empty(t, rosterOf(h, next))
	assert.Equal(t, []string{next.GameID}, roomIDs(h, "lava"))
}

func TestQueuePopLive(t *testing.T) {
	q := &queue{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.push(&Player{ConnID: id})
	}
	live := func(id string) bool { return id != "b" && id != "c" }

	got := q.popLive(2, live)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ConnID)
	assert.Equal(t, "d", got[1].ConnID)
	assert.Equal(t, 1, q.len())
	assert.True(t, q.contains("e"))
	assert.True(t, q.remove("e"))
	assert.False(t, q.remove("e"))
	assert.Empty(t, q.popLive(3, live))
}
