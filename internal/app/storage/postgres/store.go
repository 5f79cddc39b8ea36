// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/pledge_layer/internal/app/domain/gas"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
)

// Store implements the storage interfaces over a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.PledgeStore = (*Store)(nil)
var _ storage.RandomnessStore = (*Store)(nil)
var _ storage.GasStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema returns the DDL for the tables the store expects. The daemon
// applies it at startup when bootstrap is enabled.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS pledge_accounts (
    address        TEXT PRIMARY KEY,
    has_generated  BOOLEAN NOT NULL DEFAULT FALSE,
    transfer_count INTEGER NOT NULL DEFAULT 0,
    given_count    INTEGER NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pledge_eggs (
    id         TEXT NOT NULL,
    address    TEXT NOT NULL,
    position   INTEGER NOT NULL,
    owner      TEXT NOT NULL,
    edit_count INTEGER NOT NULL,
    sent_at    TIMESTAMPTZ NOT NULL,
    wish       TEXT NOT NULL,
    colour     TEXT NOT NULL,
    PRIMARY KEY (address, position)
);

CREATE TABLE IF NOT EXISTS randomness_requests (
    id           TEXT PRIMARY KEY,
    account      TEXT NOT NULL,
    params       JSONB NOT NULL,
    status       TEXT NOT NULL,
    requested_at TIMESTAMPTZ NOT NULL,
    fulfilled_at TIMESTAMPTZ,
    words        JSONB,
    idx          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS gas_balances (
    address    TEXT PRIMARY KEY,
    amount     BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS gas_transfers (
    id         TEXT PRIMARY KEY,
    from_addr  TEXT,
    to_addr    TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    kind       TEXT NOT NULL,
    reference  TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
`
}

// --- PledgeStore ------------------------------------------------------------

func (s *Store) GetPledgeAccount(ctx context.Context, address string) (pledge.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, has_generated, transfer_count, given_count, created_at, updated_at
		FROM pledge_accounts
		WHERE address = $1
	`, address)

	var acct pledge.Account
	err := row.Scan(&acct.Address, &acct.HasGenerated, &acct.TransferCount, &acct.GivenCount, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pledge.Account{}, fmt.Errorf("pledge account %s: %w", address, storage.ErrNotFound)
	}
	if err != nil {
		return pledge.Account{}, err
	}
	return acct, nil
}

// SavePledgeUpdate upserts the account row and rewrites every touched egg
// collection inside a single transaction. Collections are written in address
// order so concurrent updates cannot deadlock on each other.
func (s *Store) SavePledgeUpdate(ctx context.Context, acct pledge.Account, collections map[string][]pledge.Egg) (pledge.Account, error) {
	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pledge.Account{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pledge_accounts (address, has_generated, transfer_count, given_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE
		SET has_generated = EXCLUDED.has_generated,
		    transfer_count = EXCLUDED.transfer_count,
		    given_count = EXCLUDED.given_count,
		    updated_at = EXCLUDED.updated_at
	`, acct.Address, acct.HasGenerated, acct.TransferCount, acct.GivenCount, acct.CreatedAt, acct.UpdatedAt); err != nil {
		return pledge.Account{}, err
	}

	addresses := make([]string, 0, len(collections))
	for address := range collections {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	for _, address := range addresses {
		if err := replaceEggs(ctx, tx, address, collections[address]); err != nil {
			return pledge.Account{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return pledge.Account{}, err
	}
	return acct, nil
}

func (s *Store) ListPledgeAccounts(ctx context.Context) ([]pledge.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, has_generated, transfer_count, given_count, created_at, updated_at
		FROM pledge_accounts
		ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pledge.Account
	for rows.Next() {
		var acct pledge.Account
		if err := rows.Scan(&acct.Address, &acct.HasGenerated, &acct.TransferCount, &acct.GivenCount, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (s *Store) GetEggs(ctx context.Context, address string) ([]pledge.Egg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, edit_count, sent_at, wish, colour
		FROM pledge_eggs
		WHERE address = $1
		ORDER BY position
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pledge.Egg
	for rows.Next() {
		var egg pledge.Egg
		if err := rows.Scan(&egg.ID, &egg.Owner, &egg.EditCount, &egg.SentAt, &egg.Wish, &egg.Colour); err != nil {
			return nil, err
		}
		out = append(out, egg)
	}
	return out, rows.Err()
}

// SaveEggs replaces the whole collection for an address in one transaction.
// Collections are small, so rewrite-on-save keeps the positional order
// authoritative without diffing.
func (s *Store) SaveEggs(ctx context.Context, address string, eggs []pledge.Egg) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := replaceEggs(ctx, tx, address, eggs); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceEggs(ctx context.Context, tx *sql.Tx, address string, eggs []pledge.Egg) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pledge_eggs WHERE address = $1`, address); err != nil {
		return err
	}
	for i, egg := range eggs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pledge_eggs (id, address, position, owner, edit_count, sent_at, wish, colour)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, egg.ID, address, i, egg.Owner, egg.EditCount, egg.SentAt, egg.Wish, egg.Colour); err != nil {
			return err
		}
	}
	return nil
}

// --- RandomnessStore --------------------------------------------------------

func (s *Store) CreateRandomnessRequest(ctx context.Context, req randomness.Request) (randomness.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = randomness.StatusPending
	}

	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return randomness.Request{}, err
	}
	wordsJSON, err := json.Marshal(req.Words)
	if err != nil {
		return randomness.Request{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO randomness_requests (id, account, params, status, requested_at, fulfilled_at, words, idx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.Account, paramsJSON, string(req.Status), req.RequestedAt, nullTime(req.FulfilledAt), wordsJSON, req.Index)
	if err != nil {
		return randomness.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRandomnessRequest(ctx context.Context, req randomness.Request) (randomness.Request, error) {
	wordsJSON, err := json.Marshal(req.Words)
	if err != nil {
		return randomness.Request{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE randomness_requests
		SET status = $2, fulfilled_at = $3, words = $4, idx = $5
		WHERE id = $1
	`, req.ID, string(req.Status), nullTime(req.FulfilledAt), wordsJSON, req.Index)
	if err != nil {
		return randomness.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return randomness.Request{}, fmt.Errorf("randomness request %s: %w", req.ID, storage.ErrNotFound)
	}
	return req, nil
}

func (s *Store) GetRandomnessRequest(ctx context.Context, id string) (randomness.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account, params, status, requested_at, fulfilled_at, words, idx
		FROM randomness_requests
		WHERE id = $1
	`, id)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return randomness.Request{}, fmt.Errorf("randomness request %s: %w", id, storage.ErrNotFound)
	}
	return req, err
}

func (s *Store) ListRandomnessRequests(ctx context.Context) ([]randomness.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, params, status, requested_at, fulfilled_at, words, idx
		FROM randomness_requests
		ORDER BY requested_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []randomness.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (randomness.Request, error) {
	var (
		req         randomness.Request
		status      string
		paramsRaw   []byte
		wordsRaw    []byte
		fulfilledAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.Account, &paramsRaw, &status, &req.RequestedAt, &fulfilledAt, &wordsRaw, &req.Index); err != nil {
		return randomness.Request{}, err
	}
	req.Status = randomness.Status(status)
	if fulfilledAt.Valid {
		req.FulfilledAt = fulfilledAt.Time
	}
	if len(paramsRaw) > 0 {
		_ = json.Unmarshal(paramsRaw, &req.Params)
	}
	if len(wordsRaw) > 0 {
		_ = json.Unmarshal(wordsRaw, &req.Words)
	}
	return req, nil
}

// --- GasStore ---------------------------------------------------------------

func (s *Store) GetGasBalance(ctx context.Context, address string) (gas.Balance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, amount, updated_at FROM gas_balances WHERE address = $1
	`, address)

	var bal gas.Balance
	err := row.Scan(&bal.Address, &bal.Amount, &bal.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return gas.Balance{}, fmt.Errorf("gas balance %s: %w", address, storage.ErrNotFound)
	}
	if err != nil {
		return gas.Balance{}, err
	}
	return bal, nil
}

func (s *Store) SaveGasBalance(ctx context.Context, bal gas.Balance) (gas.Balance, error) {
	bal.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gas_balances (address, amount, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
	`, bal.Address, bal.Amount, bal.UpdatedAt)
	if err != nil {
		return gas.Balance{}, err
	}
	return bal, nil
}

func (s *Store) CreateGasTransfer(ctx context.Context, tr gas.Transfer) (gas.Transfer, error) {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gas_transfers (id, from_addr, to_addr, amount, kind, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tr.ID, tr.From, tr.To, tr.Amount, tr.Kind, tr.Reference, tr.CreatedAt)
	if err != nil {
		return gas.Transfer{}, err
	}
	return tr, nil
}

func (s *Store) ListGasTransfers(ctx context.Context, address string) ([]gas.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_addr, to_addr, amount, kind, reference, created_at
		FROM gas_transfers
		WHERE from_addr = $1 OR to_addr = $1
		ORDER BY created_at
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gas.Transfer
	for rows.Next() {
		var tr gas.Transfer
		if err := rows.Scan(&tr.ID, &tr.From, &tr.To, &tr.Amount, &tr.Kind, &tr.Reference, &tr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
