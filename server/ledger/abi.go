package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GameABI covers the parts of the P2EGame contract this server uses.
const GameABI = `[
  {"type":"function","name":"gameSessionState","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"gameId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"declareWinner","stateMutability":"nonpayable","inputs":[{"name":"winner","type":"address"},{"name":"roomId","type":"string"}],"outputs":[]},
  {"type":"function","name":"declareNoWinner","stateMutability":"nonpayable","inputs":[{"name":"roomId","type":"string"}],"outputs":[]},
  {"type":"event","name":"NewGame","anonymous":false,"inputs":[{"name":"gameId","type":"uint256","indexed":false}]},
  {"type":"event","name":"GameStarted","anonymous":false,"inputs":[{"name":"gameId","type":"uint256","indexed":false}]},
  {"type":"event","name":"GameFinished","anonymous":false,"inputs":[{"name":"gameId","type":"uint256","indexed":false}]},
  {"type":"event","name":"GameSettled","anonymous":false,"inputs":[{"name":"gameId","type":"uint256","indexed":false}]},
  {"type":"event","name":"PlayerJoinedGame","anonymous":false,"inputs":[{"name":"player","type":"address","indexed":false},{"name":"clientId","type":"string","indexed":false}]},
  {"type":"event","name":"PlayerWon","anonymous":false,"inputs":[{"name":"player","type":"address","indexed":false}]}
]`

// NFTABI covers the GameNFTToken lookups used for leaderboard images.
const NFTABI = `[
  {"type":"function","name":"walletOfOwner","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]}
]`

var kindByEventName = map[string]EventKind{
	"NewGame":          EventNewGame,
	"GameStarted":      EventGameStarted,
	"GameFinished":     EventGameFinished,
	"GameSettled":      EventGameSettled,
	"PlayerJoinedGame": EventPlayerJoined,
	"PlayerWon":        EventPlayerWon,
}

func parseABI(def string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

// decodeLog turns a raw contract log into an Event. ok is false for logs
// this server does not care about.
func decodeLog(contract abi.ABI, l types.Log) (Event, bool, error) {
	if len(l.Topics) == 0 {
		return Event{}, false, nil
	}
	abiEvent, err := contract.EventByID(l.Topics[0])
	if err != nil {
		return Event{}, false, nil
	}
	kind, ok := kindByEventName[abiEvent.Name]
	if !ok {
		return Event{}, false, nil
	}

	fields := map[string]interface{}{}
	if err := contract.UnpackIntoMap(fields, abiEvent.Name, l.Data); err != nil {
		return Event{}, false, fmt.Errorf("unpack %s: %w", abiEvent.Name, err)
	}

	ev := Event{Kind: kind, TxHash: l.TxHash, BlockNumber: l.BlockNumber}
	switch kind {
	case EventNewGame, EventGameStarted, EventGameFinished, EventGameSettled:
		id, _ := fields["gameId"].(*big.Int)
		if id == nil {
			return Event{}, false, fmt.Errorf("%s: missing gameId", abiEvent.Name)
		}
		ev.GameID = id.Uint64()
	case EventPlayerJoined:
		ev.Player, _ = fields["player"].(common.Address)
		ev.ClientID, _ = fields["clientId"].(string)
	case EventPlayerWon:
		ev.Player, _ = fields["player"].(common.Address)
	}
	return ev, true, nil
}
