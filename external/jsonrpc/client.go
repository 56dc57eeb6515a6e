// Package jsonrpc binds the external collaborator interfaces to a host
// ledger node speaking JSON-RPC. One Client serves all four surfaces
// (project registry, issuance ledger, operator registry, AMM venue) under a
// single namespace; amounts travel as hex quantities.
package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/liquidity-treasury-go/external"
)

// RPCNamespace is the namespace under which the host ledger exposes the
// treasury collaborator methods.
const RPCNamespace = "treasury"

// fallbackTickSpacing covers a failed spacing lookup; 60 is the spacing of
// the common mid fee tiers.
const fallbackTickSpacing = int64(60)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the configuration for the client.
type Config struct {
	URL    string
	Logger Logger
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	return nil
}

// Client implements the collaborator interfaces over a JSON-RPC connection.
type Client struct {
	rpc *rpc.Client
	log Logger

	// spacings caches fee-tier tick spacings; the venue treats them as
	// immutable per tier.
	mu       sync.Mutex
	spacings map[uint32]int64
}

// Dial connects to the host ledger node and returns a Client.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: dial %s: %w", cfg.URL, err)
	}
	cfg.Logger.Info("connected to host ledger", "url", cfg.URL)
	return NewClient(rpcClient, cfg.Logger), nil
}

// NewClient wraps an established RPC connection.
func NewClient(rpcClient *rpc.Client, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{rpc: rpcClient, log: logger, spacings: make(map[uint32]int64)}
}

// Close tears down the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	if err := c.rpc.CallContext(ctx, result, RPCNamespace+"_"+method, args...); err != nil {
		return fmt.Errorf("jsonrpc: %s: %w", method, err)
	}
	return nil
}

// rpcRecord is the wire form of an issuance record.
type rpcRecord struct {
	Weight          *hexutil.Big   `json:"weight"`
	ReservedPercent hexutil.Uint64 `json:"reservedPercent"`
	BaseCurrency    hexutil.Uint64 `json:"baseCurrency"`
	Ordinal         hexutil.Uint64 `json:"ordinal"`
}

func (r rpcRecord) toRecord() external.IssuanceRecord {
	weight := new(big.Int)
	if r.Weight != nil {
		weight.Set((*big.Int)(r.Weight))
	}
	return external.IssuanceRecord{
		Weight:          weight,
		ReservedPercent: uint64(r.ReservedPercent),
		BaseCurrency:    uint32(r.BaseCurrency),
		Ordinal:         uint64(r.Ordinal),
	}
}

type addressResult struct {
	Address common.Address `json:"address"`
	Set     bool           `json:"set"`
}

// --- external.ProjectRegistry ---

func (c *Client) ControllerOf(ctx context.Context, project uint64) (common.Address, bool, error) {
	var out addressResult
	if err := c.call(ctx, &out, "controllerOf", hexutil.Uint64(project)); err != nil {
		return common.Address{}, false, err
	}
	return out.Address, out.Set, nil
}

func (c *Client) TerminalOf(ctx context.Context, project uint64, token common.Address) (common.Address, bool, error) {
	var out addressResult
	if err := c.call(ctx, &out, "terminalOf", hexutil.Uint64(project), token); err != nil {
		return common.Address{}, false, err
	}
	return out.Address, out.Set, nil
}

func (c *Client) PairingTokensOf(ctx context.Context, project uint64) ([]common.Address, error) {
	var out []common.Address
	if err := c.call(ctx, &out, "pairingTokensOf", hexutil.Uint64(project)); err != nil {
		return nil, err
	}
	return out, nil
}

// --- external.OperatorRegistry ---

func (c *Client) IsOperatorOf(ctx context.Context, operator common.Address, project uint64) (bool, error) {
	var out bool
	if err := c.call(ctx, &out, "isOperatorOf", operator, hexutil.Uint64(project)); err != nil {
		return false, err
	}
	return out, nil
}

// --- external.IssuanceLedger ---

func (c *Client) CurrentRecordOf(ctx context.Context, project uint64) (external.IssuanceRecord, error) {
	var out rpcRecord
	if err := c.call(ctx, &out, "currentRecordOf", hexutil.Uint64(project)); err != nil {
		return external.IssuanceRecord{}, err
	}
	return out.toRecord(), nil
}

func (c *Client) RecordsOf(ctx context.Context, project uint64, offset, limit uint64) ([]external.IssuanceRecord, error) {
	var out []rpcRecord
	if err := c.call(ctx, &out, "recordsOf", hexutil.Uint64(project), hexutil.Uint64(offset), hexutil.Uint64(limit)); err != nil {
		return nil, err
	}
	records := make([]external.IssuanceRecord, len(out))
	for i, r := range out {
		records[i] = r.toRecord()
	}
	return records, nil
}

func (c *Client) RecordCountOf(ctx context.Context, project uint64) (uint64, error) {
	var out hexutil.Uint64
	if err := c.call(ctx, &out, "recordCountOf", hexutil.Uint64(project)); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

func (c *Client) TokenOf(ctx context.Context, project uint64) (common.Address, error) {
	var out common.Address
	if err := c.call(ctx, &out, "tokenOf", hexutil.Uint64(project)); err != nil {
		return common.Address{}, err
	}
	return out, nil
}

func (c *Client) DecimalsOf(ctx context.Context, token common.Address) (uint8, error) {
	var out hexutil.Uint64
	if err := c.call(ctx, &out, "decimalsOf", token); err != nil {
		return 0, err
	}
	return uint8(out), nil
}

func (c *Client) CurrencyOf(ctx context.Context, token common.Address) (uint32, error) {
	var out hexutil.Uint64
	if err := c.call(ctx, &out, "currencyOf", token); err != nil {
		return 0, err
	}
	return uint32(out), nil
}

func (c *Client) PricePerUnitOf(ctx context.Context, base, quote uint32, decimals uint8) (*big.Int, error) {
	out := new(hexutil.Big)
	if err := c.call(ctx, out, "pricePerUnitOf", hexutil.Uint64(base), hexutil.Uint64(quote), hexutil.Uint64(decimals)); err != nil {
		return nil, err
	}
	return (*big.Int)(out), nil
}

func (c *Client) Burn(ctx context.Context, project uint64, amount *big.Int) error {
	return c.call(ctx, nil, "burn", hexutil.Uint64(project), (*hexutil.Big)(amount))
}

func (c *Client) CashOut(ctx context.Context, project uint64, amount *big.Int, pairing common.Address) (*big.Int, error) {
	out := new(hexutil.Big)
	if err := c.call(ctx, out, "cashOut", hexutil.Uint64(project), (*hexutil.Big)(amount), pairing); err != nil {
		return nil, err
	}
	return (*big.Int)(out), nil
}

func (c *Client) Pay(ctx context.Context, project uint64, token common.Address, amount *big.Int) (*big.Int, error) {
	out := new(hexutil.Big)
	if err := c.call(ctx, out, "pay", hexutil.Uint64(project), token, (*hexutil.Big)(amount)); err != nil {
		return nil, err
	}
	return (*big.Int)(out), nil
}

func (c *Client) AddToBalance(ctx context.Context, project uint64, token common.Address, amount *big.Int) error {
	return c.call(ctx, nil, "addToBalance", hexutil.Uint64(project), token, (*hexutil.Big)(amount))
}

func (c *Client) ReclaimableSurplusOf(ctx context.Context, project uint64, amount *big.Int, pairing common.Address) (*big.Int, error) {
	out := new(hexutil.Big)
	if err := c.call(ctx, out, "reclaimableSurplusOf", hexutil.Uint64(project), (*hexutil.Big)(amount), pairing); err != nil {
		return nil, err
	}
	return (*big.Int)(out), nil
}

func (c *Client) ProjectTokenBalanceOf(ctx context.Context, project uint64) (*big.Int, error) {
	out := new(hexutil.Big)
	if err := c.call(ctx, out, "projectTokenBalanceOf", hexutil.Uint64(project)); err != nil {
		return nil, err
	}
	return (*big.Int)(out), nil
}

func (c *Client) TransferProjectTokens(ctx context.Context, project uint64, to common.Address, amount *big.Int) error {
	return c.call(ctx, nil, "transferProjectTokens", hexutil.Uint64(project), to, (*hexutil.Big)(amount))
}

// --- external.AMMVenue ---

type poolResult struct {
	Pool   common.Address `json:"pool"`
	Exists bool           `json:"exists"`
}

func (c *Client) PoolFor(ctx context.Context, token0, token1 common.Address, feeTier uint32) (common.Address, bool, error) {
	var out poolResult
	if err := c.call(ctx, &out, "poolFor", token0, token1, hexutil.Uint64(feeTier)); err != nil {
		return common.Address{}, false, err
	}
	return out.Pool, out.Exists, nil
}

func (c *Client) CreatePool(ctx context.Context, token0, token1 common.Address, feeTier uint32, sqrtPriceX96 *big.Int) (common.Address, error) {
	var out common.Address
	if err := c.call(ctx, &out, "createPool", token0, token1, hexutil.Uint64(feeTier), (*hexutil.Big)(sqrtPriceX96)); err != nil {
		return common.Address{}, err
	}
	return out, nil
}

// TickSpacingOf looks the spacing up once per fee tier and caches it. A
// failed lookup falls back to a mid-tier spacing rather than stalling the
// caller, which has no error path here.
func (c *Client) TickSpacingOf(feeTier uint32) int64 {
	c.mu.Lock()
	if s, ok := c.spacings[feeTier]; ok {
		c.mu.Unlock()
		return s
	}
	c.mu.Unlock()

	var out hexutil.Uint64
	if err := c.call(context.Background(), &out, "tickSpacingOf", hexutil.Uint64(feeTier)); err != nil {
		c.log.Warn("tick spacing lookup failed, using fallback",
			"feeTier", feeTier, "fallback", fallbackTickSpacing, "error", err)
		return fallbackTickSpacing
	}

	spacing := int64(out)
	c.mu.Lock()
	c.spacings[feeTier] = spacing
	c.mu.Unlock()
	return spacing
}

type slotResult struct {
	SqrtPriceX96 *hexutil.Big `json:"sqrtPriceX96"`
	Tick         int64        `json:"tick"`
}

func (c *Client) SlotOf(ctx context.Context, pool common.Address) (*big.Int, int64, error) {
	var out slotResult
	if err := c.call(ctx, &out, "slotOf", pool); err != nil {
		return nil, 0, err
	}
	price := new(big.Int)
	if out.SqrtPriceX96 != nil {
		price.Set((*big.Int)(out.SqrtPriceX96))
	}
	return price, out.Tick, nil
}

type mintResult struct {
	PositionID hexutil.Uint64 `json:"positionId"`
	TickLower  int64          `json:"tickLower"`
	TickUpper  int64          `json:"tickUpper"`
	Used0      *hexutil.Big   `json:"used0"`
	Used1      *hexutil.Big   `json:"used1"`
	Liquidity  *hexutil.Big   `json:"liquidity"`
}

func (m mintResult) toResult() external.MintResult {
	return external.MintResult{
		PositionID: uint64(m.PositionID),
		TickLower:  m.TickLower,
		TickUpper:  m.TickUpper,
		Used0:      bigOrZero(m.Used0),
		Used1:      bigOrZero(m.Used1),
		Liquidity:  bigOrZero(m.Liquidity),
	}
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(v))
}

func (c *Client) MintPosition(ctx context.Context, pool common.Address, tickLower, tickUpper int64, amount0, amount1 *big.Int) (external.MintResult, error) {
	var out mintResult
	if err := c.call(ctx, &out, "mintPosition", pool, tickLower, tickUpper, (*hexutil.Big)(amount0), (*hexutil.Big)(amount1)); err != nil {
		return external.MintResult{}, err
	}
	return out.toResult(), nil
}

func (c *Client) IncreasePosition(ctx context.Context, position uint64, amount0, amount1 *big.Int) (external.MintResult, error) {
	var out mintResult
	if err := c.call(ctx, &out, "increasePosition", hexutil.Uint64(position), (*hexutil.Big)(amount0), (*hexutil.Big)(amount1)); err != nil {
		return external.MintResult{}, err
	}
	return out.toResult(), nil
}

type amountsResult struct {
	Amount0 *hexutil.Big `json:"amount0"`
	Amount1 *hexutil.Big `json:"amount1"`
}

func (c *Client) WithdrawAll(ctx context.Context, position uint64) (*big.Int, *big.Int, error) {
	var out amountsResult
	if err := c.call(ctx, &out, "withdrawAll", hexutil.Uint64(position)); err != nil {
		return nil, nil, err
	}
	return bigOrZero(out.Amount0), bigOrZero(out.Amount1), nil
}

func (c *Client) CollectFees(ctx context.Context, position uint64) (*big.Int, *big.Int, error) {
	var out amountsResult
	if err := c.call(ctx, &out, "collectFees", hexutil.Uint64(position)); err != nil {
		return nil, nil, err
	}
	return bigOrZero(out.Amount0), bigOrZero(out.Amount1), nil
}

func (c *Client) BurnPosition(ctx context.Context, position uint64) error {
	return c.call(ctx, nil, "burnPosition", hexutil.Uint64(position))
}

var (
	_ external.ProjectRegistry  = (*Client)(nil)
	_ external.OperatorRegistry = (*Client)(nil)
	_ external.IssuanceLedger   = (*Client)(nil)
	_ external.AMMVenue         = (*Client)(nil)
)
