package srv

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kasperdoggames/crypto-jumper/server/ledger"
	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

type boardEntry struct {
	wallet   string
	wins     int
	image    string
	imageSet bool
}

// Leaderboard counts wins per wallet from the ledger's PlayerWon history.
// Entries keep the order wallets were first seen, which breaks ties.
// Wins are keyed by transaction so a declaration and its log count once.
type Leaderboard struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*boardEntry
	order   []*boardEntry
	seenTx  map[string]struct{}
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		now:     time.Now,
		entries: make(map[string]*boardEntry),
		seenTx:  make(map[string]struct{}),
	}
}

// Rebuild replaces the cache with a full history scan, oldest first.
func (b *Leaderboard) Rebuild(wins []ledger.Win) {
	b.mu.Lock()
	images := make(map[string]string)
	for w, e := range b.entries {
		if e.imageSet {
			images[w] = e.image
		}
	}
	b.entries = make(map[string]*boardEntry)
	b.order = nil
	b.seenTx = make(map[string]struct{})
	for _, w := range wins {
		tx := ""
		if w.TxHash != (common.Hash{}) {
			tx = w.TxHash.Hex()
		}
		b.recordLocked(w.Player.Hex(), tx)
	}
	for w, img := range images {
		if e, ok := b.entries[w]; ok {
			e.image, e.imageSet = img, true
		}
	}
	b.mu.Unlock()
}

// Record counts one win. It reports false if tx was already counted.
// An empty tx is always counted.
func (b *Leaderboard) Record(wallet, tx string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recordLocked(wallet, tx)
}

func (b *Leaderboard) recordLocked(wallet, tx string) bool {
	if tx != "" {
		if _, dup := b.seenTx[tx]; dup {
			return false
		}
		b.seenTx[tx] = struct{}{}
	}
	e, ok := b.entries[wallet]
	if !ok {
		e = &boardEntry{wallet: wallet}
		b.entries[wallet] = e
		b.order = append(b.order, e)
	}
	e.wins++
	return true
}

func (b *Leaderboard) Wins(wallet string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[wallet]; ok {
		return e.wins
	}
	return 0
}

func (b *Leaderboard) SetImage(wallet, ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[wallet]; ok {
		e.image, e.imageSet = ref, true
	}
}

// MissingImages lists wallets whose image was never looked up.
func (b *Leaderboard) MissingImages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.order {
		if !e.imageSet {
			out = append(out, e.wallet)
		}
	}
	return out
}

// Top returns the n best wallets, most wins first, ties by first seen.
func (b *Leaderboard) Top(n int) []protocol.LeaderboardEntry {
	b.mu.Lock()
	ranked := make([]boardEntry, 0, len(b.order))
	for _, e := range b.order {
		ranked = append(ranked, *e)
	}
	b.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].wins > ranked[j].wins
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]protocol.LeaderboardEntry, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, protocol.LeaderboardEntry{
			Address: DisplayWallet(e.wallet),
			Wins:    e.wins,
			Image:   e.image,
		})
	}
	return out
}

func (b *Leaderboard) Snapshot() protocol.Leaderboard {
	return protocol.Leaderboard{
		Items:       b.Top(protocol.LeaderboardTopSize),
		GeneratedAt: b.now().UnixMilli(),
	}
}
