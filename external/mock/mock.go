// Package mock provides in-memory collaborators for tests and for the
// daemon's dry-run wiring. The System aggregates project, token and operator
// state behind the external interfaces; the Venue simulates the AMM's pool
// and position lifecycle with configurable partial-fill behavior.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-treasury-go/external"
)

var (
	ErrUnknownProject  = errors.New("mock: unknown project")
	ErrUnknownToken    = errors.New("mock: unknown token")
	ErrUnknownPool     = errors.New("mock: unknown pool")
	ErrUnknownPosition = errors.New("mock: unknown position")
	ErrNoRecords       = errors.New("mock: project has no issuance records")
	ErrNoPrice         = errors.New("mock: no price for currency pair")
	ErrInsufficient    = errors.New("mock: insufficient balance")
)

// Token describes a pairing token known to the mock ledger.
type Token struct {
	Decimals uint8
	Currency uint32
}

// Transfer records an outbound project-token transfer for assertions.
type Transfer struct {
	To     common.Address
	Amount *big.Int
}

// Project is the mutable per-project state of the mock system. Tests set
// fields directly before exercising the treasury.
type Project struct {
	Token         common.Address
	Controller    common.Address
	HasController bool

	// Records is the issuance schedule, newest-first.
	Records []external.IssuanceRecord

	// Pairings lists accepted pairing tokens, primary first. Terminals maps
	// pairing token to terminal address; a missing entry means no terminal.
	Pairings  []common.Address
	Terminals map[common.Address]common.Address

	// TreasuryBalance is the treasury's holding of this project's token.
	TreasuryBalance *big.Int
	// Balances are the project's own terminal balances by token.
	Balances map[common.Address]*big.Int
	// Burned accumulates every Burn call.
	Burned *big.Int
	// Transfers records TransferProjectTokens calls.
	Transfers []Transfer

	// CashOutNum/CashOutDen define the pairing tokens returned per project
	// token for CashOut and ReclaimableSurplusOf.
	CashOutNum *big.Int
	CashOutDen *big.Int
	// SurplusErr, when set, fails ReclaimableSurplusOf (CashOut still works).
	SurplusErr error

	// MisreportPay makes Pay return zero while still minting, exercising the
	// balance-delta tracking in fee routing.
	MisreportPay bool
}

type priceKey struct{ base, quote uint32 }

type operatorKey struct {
	operator common.Address
	project  uint64
}

// System is the in-memory host ledger, project registry and operator
// registry behind one lock.
type System struct {
	mu        sync.Mutex
	projects  map[uint64]*Project
	tokens    map[common.Address]Token
	prices    map[priceKey]*big.Int
	operators map[operatorKey]bool
}

// NewSystem returns an empty System.
func NewSystem() *System {
	return &System{
		projects:  make(map[uint64]*Project),
		tokens:    make(map[common.Address]Token),
		prices:    make(map[priceKey]*big.Int),
		operators: make(map[operatorKey]bool),
	}
}

// AddProject registers a project and returns its mutable state.
func (s *System) AddProject(id uint64, token common.Address) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Project{
		Token:           token,
		Terminals:       make(map[common.Address]common.Address),
		TreasuryBalance: new(big.Int),
		Balances:        make(map[common.Address]*big.Int),
		Burned:          new(big.Int),
		CashOutNum:      big.NewInt(1),
		CashOutDen:      big.NewInt(1),
	}
	s.projects[id] = p
	return p
}

// Project returns previously added project state.
func (s *System) Project(id uint64) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id]
}

// AddToken registers a pairing token's metadata.
func (s *System) AddToken(addr common.Address, decimals uint8, currency uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[addr] = Token{Decimals: decimals, Currency: currency}
}

// SetPrice fixes the conversion of one base unit into quote currency.
func (s *System) SetPrice(base, quote uint32, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[priceKey{base, quote}] = new(big.Int).Set(price)
}

// SetOperator marks an address as the project's authorized operator.
func (s *System) SetOperator(operator common.Address, project uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operators[operatorKey{operator, project}] = ok
}

// CreditTreasury simulates an inbound transfer of project tokens to the
// treasury, as the host ledger would have executed before invoking the hook.
func (s *System) CreditTreasury(project uint64, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[project]; ok {
		p.TreasuryBalance.Add(p.TreasuryBalance, amount)
	}
}

// BindVenue keeps treasury project-token balances consistent with venue
// activity: amounts a mint consumes leave the treasury, amounts a
// withdrawal or collection releases come back. Pairing tokens are not
// balance-tracked by the mock.
func (s *System) BindVenue(v *Venue) {
	adjust := func(sign int) func(token common.Address, amount *big.Int) {
		return func(token common.Address, amount *big.Int) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, p := range s.projects {
				if p.Token == token {
					if sign < 0 {
						p.TreasuryBalance.Sub(p.TreasuryBalance, amount)
					} else {
						p.TreasuryBalance.Add(p.TreasuryBalance, amount)
					}
				}
			}
		}
	}
	v.OnUse = adjust(-1)
	v.OnRelease = adjust(+1)
}

func (s *System) project(id uint64) (*Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProject, id)
	}
	return p, nil
}

// --- external.ProjectRegistry ---

func (s *System) ControllerOf(_ context.Context, project uint64) (common.Address, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return common.Address{}, false, err
	}
	return p.Controller, p.HasController, nil
}

func (s *System) TerminalOf(_ context.Context, project uint64, token common.Address) (common.Address, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return common.Address{}, false, err
	}
	terminal, ok := p.Terminals[token]
	return terminal, ok, nil
}

func (s *System) PairingTokensOf(_ context.Context, project uint64) ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, len(p.Pairings))
	copy(out, p.Pairings)
	return out, nil
}

// --- external.OperatorRegistry ---

func (s *System) IsOperatorOf(_ context.Context, operator common.Address, project uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operators[operatorKey{operator, project}], nil
}

// --- external.IssuanceLedger ---

func (s *System) CurrentRecordOf(_ context.Context, project uint64) (external.IssuanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return external.IssuanceRecord{}, err
	}
	if len(p.Records) == 0 {
		return external.IssuanceRecord{}, ErrNoRecords
	}
	return p.Records[0], nil
}

func (s *System) RecordsOf(_ context.Context, project uint64, offset, limit uint64) ([]external.IssuanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return nil, err
	}
	n := uint64(len(p.Records))
	if offset >= n {
		return nil, nil
	}
	end := offset + limit
	if end > n {
		end = n
	}
	out := make([]external.IssuanceRecord, end-offset)
	copy(out, p.Records[offset:end])
	return out, nil
}

func (s *System) RecordCountOf(_ context.Context, project uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return 0, err
	}
	return uint64(len(p.Records)), nil
}

func (s *System) TokenOf(_ context.Context, project uint64) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return common.Address{}, err
	}
	return p.Token, nil
}

func (s *System) DecimalsOf(_ context.Context, token common.Address) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return 0, ErrUnknownToken
	}
	return t.Decimals, nil
}

func (s *System) CurrencyOf(_ context.Context, token common.Address) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return 0, ErrUnknownToken
	}
	return t.Currency, nil
}

func (s *System) PricePerUnitOf(_ context.Context, base, quote uint32, _ uint8) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[priceKey{base, quote}]
	if !ok {
		return nil, ErrNoPrice
	}
	return new(big.Int).Set(price), nil
}

func (s *System) Burn(_ context.Context, project uint64, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return err
	}
	if p.TreasuryBalance.Cmp(amount) < 0 {
		return ErrInsufficient
	}
	p.TreasuryBalance.Sub(p.TreasuryBalance, amount)
	p.Burned.Add(p.Burned, amount)
	return nil
}

func (s *System) CashOut(_ context.Context, project uint64, amount *big.Int, _ common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return nil, err
	}
	if p.TreasuryBalance.Cmp(amount) < 0 {
		return nil, ErrInsufficient
	}
	p.TreasuryBalance.Sub(p.TreasuryBalance, amount)
	out := new(big.Int).Mul(amount, p.CashOutNum)
	return out.Div(out, p.CashOutDen), nil
}

func (s *System) Pay(_ context.Context, project uint64, token common.Address, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return nil, err
	}
	bal, ok := p.Balances[token]
	if !ok {
		bal = new(big.Int)
		p.Balances[token] = bal
	}
	bal.Add(bal, amount)

	// One project token minted per token paid in.
	p.TreasuryBalance.Add(p.TreasuryBalance, amount)
	if p.MisreportPay {
		return new(big.Int), nil
	}
	return new(big.Int).Set(amount), nil
}

func (s *System) AddToBalance(_ context.Context, project uint64, token common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return err
	}
	bal, ok := p.Balances[token]
	if !ok {
		bal = new(big.Int)
		p.Balances[token] = bal
	}
	bal.Add(bal, amount)
	return nil
}

func (s *System) ReclaimableSurplusOf(_ context.Context, project uint64, amount *big.Int, _ common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return nil, err
	}
	if p.SurplusErr != nil {
		return nil, p.SurplusErr
	}
	out := new(big.Int).Mul(amount, p.CashOutNum)
	return out.Div(out, p.CashOutDen), nil
}

func (s *System) ProjectTokenBalanceOf(_ context.Context, project uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(p.TreasuryBalance), nil
}

func (s *System) TransferProjectTokens(_ context.Context, project uint64, to common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.project(project)
	if err != nil {
		return err
	}
	if p.TreasuryBalance.Cmp(amount) < 0 {
		return ErrInsufficient
	}
	p.TreasuryBalance.Sub(p.TreasuryBalance, amount)
	p.Transfers = append(p.Transfers, Transfer{To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

var (
	_ external.ProjectRegistry  = (*System)(nil)
	_ external.OperatorRegistry = (*System)(nil)
	_ external.IssuanceLedger   = (*System)(nil)
)
