package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
)

var ErrReverted = errors.New("transaction reverted")

type ContractConfig struct {
	RPCURL     string
	Address    string
	NFTAddress string
	PrivateKey string
	ChainID    int64
}

type gameBinding interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

type nonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Contract is the JSON-RPC backed Ledger.
type Contract struct {
	log     zerolog.Logger
	client  *ethclient.Client
	address common.Address
	gameABI abi.ABI
	game    gameBinding
	nft     *bind.BoundContract
	key     *ecdsa.PrivateKey
	chainID *big.Int

	// sendMu orders nonce allocation and submission for the signer key.
	sendMu   sync.Mutex
	nonces   nonceReader
	next     uint64
	haveNext bool
}

var _ Ledger = (*Contract)(nil)

// Dial connects to the node. Subscriptions need a websocket or IPC endpoint.
func Dial(ctx context.Context, cfg ContractConfig, log zerolog.Logger) (*Contract, error) {
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("ledger: invalid contract address %q", cfg.Address)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: private key: %w", err)
	}
	gameABI, err := parseABI(GameABI)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}

	c := &Contract{
		log:     log.With().Str("component", "ledger").Logger(),
		client:  client,
		address: common.HexToAddress(cfg.Address),
		gameABI: gameABI,
		key:     key,
		chainID: big.NewInt(cfg.ChainID),
		nonces:  client,
	}
	c.game = bind.NewBoundContract(c.address, gameABI, client, client, client)

	if cfg.NFTAddress != "" {
		if !common.IsHexAddress(cfg.NFTAddress) {
			client.Close()
			return nil, fmt.Errorf("ledger: invalid nft address %q", cfg.NFTAddress)
		}
		nftABI, err := parseABI(NFTABI)
		if err != nil {
			client.Close()
			return nil, err
		}
		c.nft = bind.NewBoundContract(common.HexToAddress(cfg.NFTAddress), nftABI, client, client, client)
	}
	c.log.Info().Str("contract", c.address.Hex()).Str("signer", crypto.PubkeyToAddress(key.PublicKey).Hex()).Msg("ledger connected")
	return c, nil
}

func (c *Contract) Close() { c.client.Close() }

func (c *Contract) SessionState(ctx context.Context) (Phase, error) {
	var out []interface{}
	if err := c.game.Call(&bind.CallOpts{Context: ctx}, &out, "gameSessionState"); err != nil {
		return 0, fmt.Errorf("gameSessionState: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("gameSessionState: empty result")
	}
	state := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	return Phase(state), nil
}

func (c *Contract) Subscribe(ctx context.Context, sink chan<- Event) (event.Subscription, error) {
	logs := make(chan types.Log, 64)
	sub, err := c.client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{Addresses: []common.Address{c.address}}, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				ev, ok, err := decodeLog(c.gameABI, l)
				if err != nil {
					c.log.Warn().Err(err).Str("tx", l.TxHash.Hex()).Msg("undecodable contract log")
					continue
				}
				if !ok {
					continue
				}
				select {
				case sink <- ev:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Contract) WonHistory(ctx context.Context, fromBlock uint64) ([]Win, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{c.gameABI.Events["PlayerWon"].ID}},
	}
	logs, err := c.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter PlayerWon logs: %w", err)
	}
	wins := make([]Win, 0, len(logs))
	for _, l := range logs {
		ev, ok, err := decodeLog(c.gameABI, l)
		if err != nil || !ok || ev.Kind != EventPlayerWon {
			continue
		}
		wins = append(wins, Win{Player: ev.Player, TxHash: ev.TxHash, BlockNumber: ev.BlockNumber})
	}
	return wins, nil
}

func (c *Contract) DeclareWinner(ctx context.Context, winner common.Address, gameID string) (common.Hash, error) {
	return c.transact(ctx, "declareWinner", winner, gameID)
}

func (c *Contract) DeclareNoWinner(ctx context.Context, gameID string) (common.Hash, error) {
	return c.transact(ctx, "declareNoWinner", gameID)
}

func (c *Contract) transact(ctx context.Context, method string, params ...interface{}) (common.Hash, error) {
	tx, err := c.send(ctx, method, params...)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("%s: wait mined %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrReverted)
	}
	return tx.Hash(), nil
}

// send signs and submits one transaction. Concurrent writers get consecutive
// nonces even when the node's pending view lags behind our own submissions.
func (c *Contract) send(ctx context.Context, method string, params ...interface{}) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: transactor: %w", method, err)
	}
	opts.Context = ctx

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	nonce, err := c.nonces.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("%s: pending nonce: %w", method, err)
	}
	if c.haveNext && c.next > nonce {
		nonce = c.next
	}
	opts.Nonce = new(big.Int).SetUint64(nonce)

	tx, err := c.game.Transact(opts, method, params...)
	if err != nil {
		// resync from the node on the next send
		c.haveNext = false
		return nil, fmt.Errorf("%s: send: %w", method, err)
	}
	c.next, c.haveNext = nonce+1, true
	return tx, nil
}

func (c *Contract) ImageRef(ctx context.Context, owner common.Address) (string, error) {
	if c.nft == nil {
		return "", nil
	}
	opts := &bind.CallOpts{Context: ctx}

	var out []interface{}
	if err := c.nft.Call(opts, &out, "walletOfOwner", owner); err != nil {
		return "", fmt.Errorf("walletOfOwner: %w", err)
	}
	if len(out) == 0 {
		return "", nil
	}
	tokens := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	if len(tokens) == 0 {
		return "", nil
	}

	out = nil
	if err := c.nft.Call(opts, &out, "tokenURI", tokens[0]); err != nil {
		return "", fmt.Errorf("tokenURI: %w", err)
	}
	if len(out) == 0 {
		return "", nil
	}
	uri, _ := out[0].(string)
	return uri, nil
}
