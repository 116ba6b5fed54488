// Package store is the postgres persistence layer: accounts, bets and
// the referral chain, all amounts in the smallest currency unit.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wingo/internal/game"
	"wingo/internal/referral"
)

// Account is the persisted player row.
type Account struct {
	ID                string     `json:"id"`
	ReferralCode      string     `json:"referral_code"`
	ReferrerID        *string    `json:"referrer_id,omitempty"`
	Balance           int64      `json:"balance"`
	Experience        int64      `json:"experience"`
	Tier              int        `json:"tier"`
	CommissionBalance int64      `json:"commission_balance"`
	CommissionTotal   int64      `json:"commission_total"`
	MonthlyClaimedAt  *time.Time `json:"monthly_claimed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Store wraps a pgx pool with the query surface the rest of the system
// needs. It satisfies game.Ledger, progression.Store and
// referral.Store.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateAccount inserts a new account with a zero balance and a fresh
// referral code. ReferrerID may be nil.
func (s *Store) CreateAccount(ctx context.Context, id string, referrerID *string) (*Account, error) {
	a := &Account{
		ID:           id,
		ReferralCode: referral.NewCode(),
		ReferrerID:   referrerID,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, referral_code, referrer_id)
		VALUES ($1, $2, $3)
		RETURNING balance, experience, tier, commission_balance, commission_total, created_at`,
		a.ID, a.ReferralCode, a.ReferrerID,
	).Scan(&a.Balance, &a.Experience, &a.Tier, &a.CommissionBalance, &a.CommissionTotal, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// Account loads one account by id.
func (s *Store) Account(ctx context.Context, id string) (*Account, error) {
	a := &Account{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, referral_code, referrer_id, balance, experience, tier,
		       commission_balance, commission_total, monthly_claimed_at, created_at
		FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.ReferralCode, &a.ReferrerID, &a.Balance, &a.Experience,
		&a.Tier, &a.CommissionBalance, &a.CommissionTotal, &a.MonthlyClaimedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	return a, nil
}

// AccountByReferralCode resolves a referral code to its owner.
func (s *Store) AccountByReferralCode(ctx context.Context, code string) (*Account, error) {
	a := &Account{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, referral_code, referrer_id, balance, experience, tier,
		       commission_balance, commission_total, monthly_claimed_at, created_at
		FROM accounts WHERE referral_code = $1`, code,
	).Scan(&a.ID, &a.ReferralCode, &a.ReferrerID, &a.Balance, &a.Experience,
		&a.Tier, &a.CommissionBalance, &a.CommissionTotal, &a.MonthlyClaimedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account by code %s: %w", code, err)
	}
	return a, nil
}

// CreditBalance adds to the spendable balance as a single atomic
// increment.
func (s *Store) CreditBalance(ctx context.Context, accountID string, amount int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2 WHERE id = $1`,
		accountID, amount)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrAccountNotFound
	}
	return nil
}

// PlaceBet debits the stake and inserts the bet row in one
// transaction. The debit is conditional on sufficient balance, so an
// overdraw rolls the whole placement back.
func (s *Store) PlaceBet(ctx context.Context, bet *game.Bet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin placement: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE id = $1 AND balance >= $2`,
		bet.AccountID, bet.Stake)
	if err != nil {
		return fmt.Errorf("debit stake: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`,
			bet.AccountID).Scan(&exists); err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if !exists {
			return game.ErrAccountNotFound
		}
		return game.ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bets (id, account_id, mode, period_id, selection,
		                  stake, net_stake, status, payout, result_number, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		bet.ID, bet.AccountID, string(bet.Mode), bet.PeriodID, bet.Selection.String(),
		bet.Stake, bet.NetStake, string(bet.Status), bet.Payout, bet.ResultNumber, bet.PlacedAt)
	if err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}

	return tx.Commit(ctx)
}

// PendingBets loads every bet still pending for one round.
func (s *Store) PendingBets(ctx context.Context, mode game.Mode, periodID string) ([]*game.Bet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, mode, period_id, selection, stake, net_stake,
		       status, payout, result_number, placed_at
		FROM bets
		WHERE mode = $1 AND period_id = $2 AND status = $3
		ORDER BY placed_at`,
		string(mode), periodID, string(game.BetPending))
	if err != nil {
		return nil, fmt.Errorf("load pending bets: %w", err)
	}
	defer rows.Close()

	return scanBets(rows)
}

// PendingPeriods lists the rounds of one mode that still hold pending
// bets, oldest first. Used by the engine at startup to pick up rounds
// a previous process left unsettled.
func (s *Store) PendingPeriods(ctx context.Context, mode game.Mode) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT period_id FROM bets
		WHERE mode = $1 AND status = $2
		ORDER BY period_id`,
		string(mode), string(game.BetPending))
	if err != nil {
		return nil, fmt.Errorf("load pending periods: %w", err)
	}
	defer rows.Close()

	var periods []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan pending period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// SettleBet moves one pending bet to its terminal status. Bets already
// terminal are untouched, making settlement retries harmless.
func (s *Store) SettleBet(ctx context.Context, betID string, status game.BetStatus, payout int64, resultNumber int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE bets SET status = $2, payout = $3, result_number = $4
		WHERE id = $1 AND status = $5`,
		betID, string(status), payout, resultNumber, string(game.BetPending))
	if err != nil {
		return fmt.Errorf("settle bet %s: %w", betID, err)
	}
	return nil
}

// CreditPayout credits one winning bet's payout.
func (s *Store) CreditPayout(ctx context.Context, accountID string, amount int64) error {
	return s.CreditBalance(ctx, accountID, amount)
}

// AccountBets returns an account's most recent bets.
func (s *Store) AccountBets(ctx context.Context, accountID string, limit int) ([]*game.Bet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, mode, period_id, selection, stake, net_stake,
		       status, payout, result_number, placed_at
		FROM bets
		WHERE account_id = $1
		ORDER BY placed_at DESC
		LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("load account bets: %w", err)
	}
	defer rows.Close()

	return scanBets(rows)
}

func scanBets(rows pgx.Rows) ([]*game.Bet, error) {
	var bets []*game.Bet
	for rows.Next() {
		var (
			b         game.Bet
			mode      string
			selection string
			status    string
		)
		if err := rows.Scan(&b.ID, &b.AccountID, &mode, &b.PeriodID, &selection,
			&b.Stake, &b.NetStake, &status, &b.Payout, &b.ResultNumber, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		sel, err := game.ParseSelection(selection)
		if err != nil {
			return nil, fmt.Errorf("bet %s has invalid selection %q: %w", b.ID, selection, err)
		}
		b.Mode = game.Mode(mode)
		b.Selection = sel
		b.Status = game.BetStatus(status)
		bets = append(bets, &b)
	}
	return bets, rows.Err()
}

// AddExperience increments lifetime experience and returns the new
// total.
func (s *Store) AddExperience(ctx context.Context, accountID string, delta int64) (int64, error) {
	var experience int64
	err := s.pool.QueryRow(ctx, `
		UPDATE accounts SET experience = experience + $2
		WHERE id = $1
		RETURNING experience`,
		accountID, delta).Scan(&experience)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, game.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add experience: %w", err)
	}
	return experience, nil
}

// RaiseTier lifts the stored tier to at least the given level.
func (s *Store) RaiseTier(ctx context.Context, accountID string, level int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET tier = GREATEST(tier, $2) WHERE id = $1`,
		accountID, level)
	if err != nil {
		return fmt.Errorf("raise tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrAccountNotFound
	}
	return nil
}

// AccountTier returns the stored tier.
func (s *Store) AccountTier(ctx context.Context, accountID string) (int, error) {
	var tier int
	err := s.pool.QueryRow(ctx,
		`SELECT tier FROM accounts WHERE id = $1`, accountID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, game.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load tier: %w", err)
	}
	return tier, nil
}

// MarkTierClaimed records a tier claim, once per (account, tier). The
// unique row is the idempotency guard.
func (s *Store) MarkTierClaimed(ctx context.Context, accountID string, level int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tier_claims (account_id, tier)
		VALUES ($1, $2)
		ON CONFLICT (account_id, tier) DO NOTHING`,
		accountID, level)
	if err != nil {
		return false, fmt.Errorf("mark tier claimed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimedTiers lists the tiers an account has already claimed,
// ascending.
func (s *Store) ClaimedTiers(ctx context.Context, accountID string) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tier FROM tier_claims WHERE account_id = $1 ORDER BY tier`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("load claimed tiers: %w", err)
	}
	defer rows.Close()

	var tiers []int
	for rows.Next() {
		var tier int
		if err := rows.Scan(&tier); err != nil {
			return nil, fmt.Errorf("scan claimed tier: %w", err)
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

// MarkMonthlyClaimed stamps the monthly claim, once per calendar month.
func (s *Store) MarkMonthlyClaimed(ctx context.Context, accountID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET monthly_claimed_at = now()
		WHERE id = $1
		  AND (monthly_claimed_at IS NULL
		       OR date_trunc('month', monthly_claimed_at) < date_trunc('month', now()))`,
		accountID)
	if err != nil {
		return false, fmt.Errorf("mark monthly claimed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Ancestors walks the referrer chain upward, nearest first, cut off at
// maxDepth.
func (s *Store) Ancestors(ctx context.Context, accountID string, maxDepth int) ([]referral.Ancestor, error) {
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT referrer_id, 1 AS depth FROM accounts WHERE id = $1
			UNION ALL
			SELECT a.referrer_id, c.depth + 1
			FROM accounts a
			JOIN chain c ON a.id = c.referrer_id
			WHERE c.depth < $2
		)
		SELECT referrer_id, depth FROM chain
		WHERE referrer_id IS NOT NULL
		ORDER BY depth`,
		accountID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("load referrer chain: %w", err)
	}
	defer rows.Close()

	var ancestors []referral.Ancestor
	for rows.Next() {
		var a referral.Ancestor
		if err := rows.Scan(&a.AccountID, &a.Depth); err != nil {
			return nil, fmt.Errorf("scan ancestor: %w", err)
		}
		ancestors = append(ancestors, a)
	}
	return ancestors, rows.Err()
}

// CreditCommission accrues earned commission into the separate
// commission balance and the lifetime total in one statement. The
// spendable balance only moves on an explicit claim.
func (s *Store) CreditCommission(ctx context.Context, accountID string, amount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET commission_balance = commission_balance + $2,
		    commission_total = commission_total + $2
		WHERE id = $1`,
		accountID, amount)
	if err != nil {
		return fmt.Errorf("credit commission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrAccountNotFound
	}
	return nil
}

// ClaimCommission moves the whole accrued commission balance into the
// spendable balance and returns the amount moved. The row lock keeps a
// concurrent claim from paying the same pot twice.
func (s *Store) ClaimCommission(ctx context.Context, accountID string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin commission claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var amount int64
	err = tx.QueryRow(ctx,
		`SELECT commission_balance FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, game.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load commission balance: %w", err)
	}
	if amount == 0 {
		return 0, referral.ErrNothingToClaim
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + commission_balance, commission_balance = 0
		WHERE id = $1`,
		accountID)
	if err != nil {
		return 0, fmt.Errorf("claim commission: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit commission claim: %w", err)
	}
	return amount, nil
}
