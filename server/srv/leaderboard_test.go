package srv

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasperdoggames/crypto-jumper/server/ledger"
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

func TestLeaderboardTopFive(t *testing.T) {
	// wins per wallet 1..7; every wallet shows up in the first round
	counts := []int{2, 3, 2, 1, 3, 2, 1}
	var wins []ledger.Win
	tx := 0
	for round := 0; round < 3; round++ {
		for i, c := range counts {
			if round < c {
				tx++
				wins = append(wins, ledger.Win{
					Player: common.HexToAddress(wallet(byte(i + 1))),
					TxHash: common.BytesToHash([]byte{byte(tx)}),
				})
			}
		}
	}

	b := NewLeaderboard()
	b.Rebuild(wins)
	top := b.Top(protocol.LeaderboardTopSize)
	require.Len(t, top, 5)

	want := []struct {
		wallet byte
		wins   int
	}{{2, 3}, {5, 3}, {1, 2}, {3, 2}, {6, 2}}
	for i, w := range want {
		assert.Equal(t, DisplayWallet(wallet(w.wallet)), top[i].Address, "rank %d", i)
		assert.Equal(t, w.wins, top[i].Wins, "rank %d", i)
	}
}

func TestLeaderboardRecordDedupesByTx(t *testing.T) {
	b := NewLeaderboard()
	w := wallet(1)
	assert.True(t, b.Record(w, "0xabc"))
	assert.False(t, b.Record(w, "0xabc"))
	assert.True(t, b.Record(w, ""))
	assert.True(t, b.Record(w, ""))
	assert.Equal(t, 3, b.Wins(w))
	assert.Equal(t, 0, b.Wins(wallet(2)))
}

func TestLeaderboardRebuildKeepsImages(t *testing.T) {
	b := NewLeaderboard()
	w := wallet(1)
	b.Record(w, "0x01")
	assert.Equal(t, []string{w}, b.MissingImages())
	b.SetImage(w, "ipfs://one")
	assert.Empty(t, b.MissingImages())

	b.Rebuild([]ledger.Win{
		{Player: common.HexToAddress(w), TxHash: common.BytesToHash([]byte{1})},
		{Player: common.HexToAddress(w), TxHash: common.BytesToHash([]byte{2})},
	})
	assert.Equal(t, 2, b.Wins(w))
	assert.Equal(t, "ipfs://one", b.Top(1)[0].Image)
}

func TestLeaderboardSnapshot(t *testing.T) {
	b := NewLeaderboard()
	at := time.UnixMilli(1700000000000)
	b.now = func() time.Time { return at }
	snap := b.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, at.UnixMilli(), snap.GeneratedAt)
}

func TestDisplayWallet(t *testing.T) {
	assert.Equal(t, "0x12...cdef", DisplayWallet("0x1234567890abcdef"))
	assert.Equal(t, "0x1234", DisplayWallet("0x1234"))
}
