// Package evm implements domain.MarketGateway against deployed market
// contracts over JSON-RPC. Market IDs are contract addresses; player IDs are
// account addresses.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/promptwars/warsd/internal/crypto"
	"github.com/promptwars/warsd/internal/domain"
)

// Config holds the parameters for the EVM gateway.
type Config struct {
	RPCURL         string
	FactoryAddress string
	GasLimit       uint64
	ConfirmTimeout time.Duration
}

// Gateway talks to market contracts through a shared RPC client. Reads go
// through eth_call; writes are signed with the operator key and waited to a
// receipt within ConfirmTimeout.
type Gateway struct {
	client  *ethclient.Client
	signer  *crypto.Signer
	abi     abi.ABI
	factory *bind.BoundContract // nil when no factory address is configured
	chainID *big.Int
	cfg     Config
}

// New dials the RPC endpoint and prepares the market contract ABI.
func New(ctx context.Context, cfg Config, signer *crypto.Signer) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: parse market abi: %w", err)
	}

	g := &Gateway{
		client:  client,
		signer:  signer,
		abi:     parsed,
		chainID: big.NewInt(signer.ChainID()),
		cfg:     cfg,
	}

	if cfg.FactoryAddress != "" {
		if !common.IsHexAddress(cfg.FactoryAddress) {
			client.Close()
			return nil, fmt.Errorf("evm: factory address %q is not an address", cfg.FactoryAddress)
		}
		factoryParsed, err := abi.JSON(strings.NewReader(factoryABI))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("evm: parse factory abi: %w", err)
		}
		g.factory = bind.NewBoundContract(
			common.HexToAddress(cfg.FactoryAddress), factoryParsed, client, client, client)
	}

	return g, nil
}

// MarketsCount returns the number of markets the factory has created.
func (g *Gateway) MarketsCount(ctx context.Context) (int64, error) {
	if g.factory == nil {
		return 0, fmt.Errorf("evm: no factory address configured")
	}

	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := g.factory.Call(opts, &out, "getMarketsCount"); err != nil {
		return 0, fmt.Errorf("evm: getMarketsCount: %w", err)
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return count.Int64(), nil
}

// MarketsList returns a page of market contract addresses from the factory.
func (g *Gateway) MarketsList(ctx context.Context, offset, limit int64) ([]string, error) {
	if g.factory == nil {
		return nil, fmt.Errorf("evm: no factory address configured")
	}

	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := g.factory.Call(opts, &out, "getMarketsList", big.NewInt(offset), big.NewInt(limit)); err != nil {
		return nil, fmt.Errorf("evm: getMarketsList: %w", err)
	}
	addrs := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)

	ids := make([]string, 0, len(addrs))
	for _, a := range addrs {
		ids = append(ids, a.Hex())
	}
	return ids, nil
}

// Close releases the underlying RPC client.
func (g *Gateway) Close() {
	g.client.Close()
}

func (g *Gateway) bound(marketID string) (*bind.BoundContract, error) {
	if !common.IsHexAddress(marketID) {
		return nil, fmt.Errorf("evm: market id %q is not an address: %w", marketID, domain.ErrNotFound)
	}
	addr := common.HexToAddress(marketID)
	return bind.NewBoundContract(addr, g.abi, g.client, g.client, g.client), nil
}

func (g *Gateway) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(g.signer.PrivateKey(), g.chainID)
	if err != nil {
		return nil, fmt.Errorf("evm: build transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = g.cfg.GasLimit
	return opts, nil
}

// waitMined blocks until the transaction is mined or ConfirmTimeout elapses,
// and rejects reverted transactions.
func (g *Gateway) waitMined(ctx context.Context, tx *types.Transaction) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, g.client, tx)
	if err != nil {
		return fmt.Errorf("evm: wait mined %s: %w", tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("evm: transaction %s reverted", tx.Hash())
	}
	return nil
}

// Snapshot fetches the full read surface in a single eth_call, so every flag
// reflects the same block timestamp.
func (g *Gateway) Snapshot(ctx context.Context, marketID string) (domain.Snapshot, error) {
	contract, err := g.bound(marketID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getSnapshot"); err != nil {
		return domain.Snapshot{}, fmt.Errorf("evm: snapshot %s: %w", marketID, err)
	}

	raw := *abi.ConvertType(out[0], new(snapshotTuple)).(*snapshotTuple)

	return domain.Snapshot{
		Market: domain.MarketData{
			ID:       marketID,
			ImageURI: raw.ImageUri,
			StartsAt: int64(raw.StartsAt),
			EndsAt:   int64(raw.EndsAt),
		},
		Management: domain.Management{
			DAOAccountID:           raw.DaoAccount.Hex(),
			MarketCreatorAccountID: raw.MarketCreator.Hex(),
			SelfDestructWindow:     int64(raw.SelfDestructWindow),
			BuySellThreshold:       raw.BuySellThreshold.Int64(),
		},
		Fees: domain.Fees{
			Price:     raw.Price.Int64(),
			FeeRatio:  raw.FeeRatio.Int64(),
			ClaimedAt: int64(raw.FeesClaimedAt),
		},
		Collateral: domain.CollateralToken{
			ID:         raw.CollateralToken.Hex(),
			Balance:    raw.CollateralBalance.Int64(),
			Decimals:   int32(raw.CollateralDecimals),
			FeeBalance: raw.FeeBalance.Int64(),
		},
		Resolution: domain.Resolution{
			Window:       int64(raw.ResolutionWindow),
			RevealWindow: int64(raw.RevealWindow),
			ResolvedAt:   int64(raw.ResolvedAt),
			PlayerID:     winnerID(raw.Winner),
		},
		PlayersCount: int(raw.PlayersCount.Int64()),
		Flags: domain.Flags{
			IsBeforeMarketEnds:          raw.IsBeforeMarketEnds,
			IsResolved:                  raw.IsResolved,
			IsRevealWindowExpired:       raw.IsRevealWindowExpired,
			IsResolutionWindowExpired:   raw.IsResolutionWindowExpired,
			IsExpiredUnresolved:         raw.IsExpiredUnresolved,
			IsSelfDestructWindowExpired: raw.IsSelfDestructWindowExpired,
		},
		BlockTimestamp: int64(raw.BlockTimestamp),
	}, nil
}

// winnerID maps the zero address to an empty player ID.
func winnerID(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// GetPlayer returns a registered player's entry.
func (g *Gateway) GetPlayer(ctx context.Context, marketID, playerID string) (domain.Player, error) {
	contract, err := g.bound(marketID)
	if err != nil {
		return domain.Player{}, err
	}

	var out []interface{}
	err = contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPlayer", common.HexToAddress(playerID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("evm: get player %s in %s: %w", playerID, marketID, err)
	}

	raw := *abi.ConvertType(out[0], new(playerTuple)).(*playerTuple)
	if raw.RegisteredAt == 0 {
		return domain.Player{}, domain.ErrPlayerNotRegistered
	}

	return domain.Player{
		ID:           playerID,
		Prompt:       raw.Prompt,
		OutputImgURI: raw.OutputImgUri,
		Result:       raw.Result,
		Balance:      raw.Balance.Int64(),
		Claimed:      raw.Claimed,
		RegisteredAt: time.Unix(int64(raw.RegisteredAt), 0).UTC(),
	}, nil
}

// GetPlayersCount returns the number of registered players.
func (g *Gateway) GetPlayersCount(ctx context.Context, marketID string) (int64, error) {
	contract, err := g.bound(marketID)
	if err != nil {
		return 0, err
	}

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPlayersCount"); err != nil {
		return 0, fmt.Errorf("evm: players count %s: %w", marketID, err)
	}

	count := *abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	return count.Int64(), nil
}

// Register enters a player into the market. The operator relays the
// transaction; the contract pulls the entry amount from the player's
// collateral allowance.
func (g *Gateway) Register(ctx context.Context, marketID, playerID, prompt string, amount domain.Amount) error {
	contract, err := g.bound(marketID)
	if err != nil {
		return err
	}
	opts, err := g.transactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := contract.Transact(opts, "register", common.HexToAddress(playerID), prompt, big.NewInt(amount))
	if err != nil {
		return fmt.Errorf("evm: register %s in %s: %w", playerID, marketID, err)
	}
	return g.waitMined(ctx, tx)
}

// Reveal publishes a player's scored result.
func (g *Gateway) Reveal(ctx context.Context, marketID, playerID, result, outputImgURI string) error {
	contract, err := g.bound(marketID)
	if err != nil {
		return err
	}
	opts, err := g.transactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := contract.Transact(opts, "revealResult", common.HexToAddress(playerID), result, outputImgURI)
	if err != nil {
		return fmt.Errorf("evm: reveal %s in %s: %w", playerID, marketID, err)
	}
	return g.waitMined(ctx, tx)
}

// Resolve designates the winning player.
func (g *Gateway) Resolve(ctx context.Context, marketID, playerID string) error {
	contract, err := g.bound(marketID)
	if err != nil {
		return err
	}
	opts, err := g.transactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := contract.Transact(opts, "resolution", common.HexToAddress(playerID))
	if err != nil {
		return fmt.Errorf("evm: resolve %s in %s: %w", marketID, playerID, err)
	}
	return g.waitMined(ctx, tx)
}

// Sell claims the player's refund or winnings. The payout amount is read by
// simulating the call first; the state change happens in the following
// transaction.
func (g *Gateway) Sell(ctx context.Context, marketID, playerID string) (domain.Amount, error) {
	contract, err := g.bound(marketID)
	if err != nil {
		return 0, err
	}

	player := common.HexToAddress(playerID)

	var out []interface{}
	err = contract.Call(&bind.CallOpts{Context: ctx, From: player}, &out, "sell", player)
	if err != nil {
		return 0, fmt.Errorf("evm: simulate sell %s in %s: %w", playerID, marketID, err)
	}
	amount := *abi.ConvertType(out[0], new(big.Int)).(*big.Int)

	opts, err := g.transactOpts(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := contract.Transact(opts, "sell", player)
	if err != nil {
		return 0, fmt.Errorf("evm: sell %s in %s: %w", playerID, marketID, err)
	}
	if err := g.waitMined(ctx, tx); err != nil {
		return 0, err
	}

	return amount.Int64(), nil
}

// Compile-time interface check.
var _ domain.MarketGateway = (*Gateway)(nil)
