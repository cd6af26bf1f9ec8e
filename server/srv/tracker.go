package srv

// peer receives encoded envelopes; false means the message was dropped.
type peer interface {
	deliver(msg []byte) bool
}

// Assignment is where a connection currently plays.
type Assignment struct {
	Level  string
	GameID string
	Wallet string
}

type roomKey struct{ level, gameID string }

// tracker maps live connections to their player record and room. It is the
// liveness oracle: a connection is live exactly while it is tracked.
type tracker struct {
	peers    map[string]peer
	players  map[string]*Player
	assigned map[string]roomKey
}

func newTracker() *tracker {
	return &tracker{
		peers:    make(map[string]peer),
		players:  make(map[string]*Player),
		assigned: make(map[string]roomKey),
	}
}

func (t *tracker) connect(id string, p peer, wallet string) *Player {
	pl := &Player{ConnID: id, Wallet: wallet}
	t.peers[id] = p
	t.players[id] = pl
	return pl
}

func (t *tracker) disconnect(id string) {
	delete(t.peers, id)
	delete(t.players, id)
	delete(t.assigned, id)
}

func (t *tracker) isLive(id string) bool {
	_, ok := t.peers[id]
	return ok
}

func (t *tracker) player(id string) (*Player, bool) {
	p, ok := t.players[id]
	return p, ok
}

func (t *tracker) assign(id, level, gameID string) {
	if t.isLive(id) {
		t.assigned[id] = roomKey{level, gameID}
	}
}

// release clears the assignment only if it still points at gameID.
func (t *tracker) release(id, gameID string) {
	if k, ok := t.assigned[id]; ok && k.gameID == gameID {
		delete(t.assigned, id)
	}
}

func (t *tracker) assignment(id string) (Assignment, bool) {
	k, ok := t.assigned[id]
	if !ok {
		return Assignment{}, false
	}
	return Assignment{Level: k.level, GameID: k.gameID, Wallet: t.walletOf(id)}, true
}

func (t *tracker) walletOf(id string) string {
	if p, ok := t.players[id]; ok {
		return p.Wallet
	}
	return ""
}

// attachWallet sets the wallet only if the connection has none yet.
func (t *tracker) attachWallet(id, wallet string) bool {
	p, ok := t.players[id]
	if !ok || p.Wallet != "" || wallet == "" {
		return false
	}
	p.Wallet = wallet
	return true
}

// bindWallet overrides whatever wallet the connection claimed.
func (t *tracker) bindWallet(id, wallet string) bool {
	p, ok := t.players[id]
	if !ok {
		return false
	}
	p.Wallet = wallet
	return true
}
