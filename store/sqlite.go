package store

import (
	"database/sql"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"
)

// SQLite is a durable Store for daemon deployments. Balances are stored as
// decimal strings since they routinely exceed 64 bits.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so metrics scrapes can read while maintenance writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pools (
			project  INTEGER NOT NULL,
			pairing  TEXT    NOT NULL,
			pool     TEXT    NOT NULL,
			PRIMARY KEY (project, pairing)
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			pool     TEXT    PRIMARY KEY,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accumulated (
			project  INTEGER PRIMARY KEY,
			amount   TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS claimable (
			project  INTEGER PRIMARY KEY,
			amount   TEXT    NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) PoolOf(project uint64, pairing common.Address) (common.Address, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hexPool string
	err := s.db.QueryRow(
		"SELECT pool FROM pools WHERE project = ? AND pairing = ?",
		int64(project), pairing.Hex(),
	).Scan(&hexPool)
	if err == sql.ErrNoRows {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	return common.HexToAddress(hexPool), true, nil
}

func (s *SQLite) SetPool(project uint64, pairing common.Address, pool common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO pools (project, pairing, pool) VALUES (?, ?, ?)",
		int64(project), pairing.Hex(), pool.Hex(),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPoolExists
	}
	return nil
}

func (s *SQLite) PositionOf(pool common.Address) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var position int64
	err := s.db.QueryRow("SELECT position FROM positions WHERE pool = ?", pool.Hex()).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(position), true, nil
}

func (s *SQLite) SetPosition(pool common.Address, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO positions (pool, position) VALUES (?, ?)",
		pool.Hex(), int64(position),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPositionExists
	}
	return nil
}

func (s *SQLite) DeletePosition(pool common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM positions WHERE pool = ?", pool.Hex())
	return err
}

func (s *SQLite) balance(table string, project uint64) (*big.Int, error) {
	var amount string
	err := s.db.QueryRow("SELECT amount FROM "+table+" WHERE project = ?", int64(project)).Scan(&amount)
	if err == sql.ErrNoRows {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("store: corrupt %s amount %q for project %d", table, amount, project)
	}
	return value, nil
}

func (s *SQLite) setBalance(table string, project uint64, amount *big.Int) error {
	_, err := s.db.Exec(
		"INSERT INTO "+table+" (project, amount) VALUES (?, ?) ON CONFLICT(project) DO UPDATE SET amount = excluded.amount",
		int64(project), amount.String(),
	)
	return err
}

func (s *SQLite) Accumulated(project uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance("accumulated", project)
}

func (s *SQLite) SetAccumulated(project uint64, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBalance("accumulated", project, amount)
}

func (s *SQLite) Claimable(project uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance("claimable", project)
}

func (s *SQLite) SetClaimable(project uint64, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBalance("claimable", project, amount)
}

var _ Store = (*SQLite)(nil)
