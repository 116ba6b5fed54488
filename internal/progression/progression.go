// Package progression tracks cumulative wagering experience, derives
// the VIP tier from a fixed threshold table, and gates the one-time
// per-tier and per-calendar-month reward claims.
package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyClaimed marks a duplicate tier or monthly claim; it is
	// an explicit rejection, not a silent no-op, so callers can
	// surface it.
	ErrAlreadyClaimed = errors.New("reward already claimed")

	// ErrTierNotReached rejects a tier-reward claim above the
	// account's current tier.
	ErrTierNotReached = errors.New("tier not reached")

	// ErrNoReward rejects claims for tiers that carry no reward.
	ErrNoReward = errors.New("no reward at this tier")

	// ErrUnknownTier rejects a tier outside the table.
	ErrUnknownTier = errors.New("unknown tier")
)

// Tier is one row of the VIP table. Experience and reward amounts are
// in the smallest currency unit.
type Tier struct {
	Level         int     `json:"level"`
	Experience    int64   `json:"experience"`
	LevelReward   int64   `json:"level_reward"`
	MonthlyReward int64   `json:"monthly_reward"`
	RebateRate    float64 `json:"rebate_rate"`
}

// Tiers is the ascending threshold table. Experience equals lifetime
// stake, so the thresholds are the original rupee figures in paise.
var Tiers = []Tier{
	{Level: 0, Experience: 0, LevelReward: 0, MonthlyReward: 0, RebateRate: 0},
	{Level: 1, Experience: 300_000, LevelReward: 3_000, MonthlyReward: 1_500, RebateRate: 0.05},
	{Level: 2, Experience: 1_000_000, LevelReward: 8_000, MonthlyReward: 4_000, RebateRate: 0.10},
	{Level: 3, Experience: 5_000_000, LevelReward: 13_000, MonthlyReward: 6_500, RebateRate: 0.15},
	{Level: 4, Experience: 20_000_000, LevelReward: 18_000, MonthlyReward: 9_000, RebateRate: 0.20},
	{Level: 5, Experience: 100_000_000, LevelReward: 23_000, MonthlyReward: 11_500, RebateRate: 0.25},
	{Level: 6, Experience: 500_000_000, LevelReward: 28_000, MonthlyReward: 14_000, RebateRate: 0.30},
	{Level: 7, Experience: 1_000_000_000, LevelReward: 33_000, MonthlyReward: 16_500, RebateRate: 0.35},
}

// TierFor returns the highest level whose threshold is at or below the
// experience value.
func TierFor(experience int64) int {
	for i := len(Tiers) - 1; i >= 0; i-- {
		if experience >= Tiers[i].Experience {
			return Tiers[i].Level
		}
	}
	return 0
}

// TierByLevel looks a tier row up by level.
func TierByLevel(level int) (Tier, error) {
	if level < 0 || level >= len(Tiers) {
		return Tier{}, fmt.Errorf("%w: %d", ErrUnknownTier, level)
	}
	return Tiers[level], nil
}

// Store is the persistence the ledger needs. Every mutation is an
// atomic per-account operation so concurrent placements and
// settlements never lose updates.
type Store interface {
	// AddExperience increments experience and returns the new total.
	AddExperience(ctx context.Context, accountID string, delta int64) (int64, error)

	// RaiseTier raises the stored tier to at least the given level,
	// never lowering it.
	RaiseTier(ctx context.Context, accountID string, level int) error

	// AccountTier returns the current stored tier.
	AccountTier(ctx context.Context, accountID string) (int, error)

	// MarkTierClaimed records a tier claim; false means the tier was
	// already claimed for this account.
	MarkTierClaimed(ctx context.Context, accountID string, level int) (bool, error)

	// MarkMonthlyClaimed records a monthly claim; false means the
	// current calendar month was already claimed.
	MarkMonthlyClaimed(ctx context.Context, accountID string) (bool, error)

	// CreditBalance credits the spendable balance atomically.
	CreditBalance(ctx context.Context, accountID string, amount int64) error
}

// Service is the progression ledger.
type Service struct {
	store Store
	log   *logrus.Entry
}

func NewService(store Store) *Service {
	return &Service{store: store, log: logrus.WithField("component", "progression")}
}

// OnWager credits experience by the raw stake (no fee deduction) and
// raises the tier monotonically. A regressed experience value is
// tolerated: the tier only ever goes up.
func (s *Service) OnWager(ctx context.Context, accountID string, stake int64) error {
	experience, err := s.store.AddExperience(ctx, accountID, stake)
	if err != nil {
		return fmt.Errorf("add experience: %w", err)
	}
	if err := s.store.RaiseTier(ctx, accountID, TierFor(experience)); err != nil {
		return fmt.Errorf("raise tier: %w", err)
	}
	return nil
}

// ClaimTierReward grants the one-time reward for a reached tier,
// exactly once per (account, tier). Returns the credited amount.
func (s *Service) ClaimTierReward(ctx context.Context, accountID string, level int) (int64, error) {
	tier, err := TierByLevel(level)
	if err != nil {
		return 0, err
	}
	if tier.LevelReward == 0 {
		return 0, ErrNoReward
	}

	current, err := s.store.AccountTier(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if current < level {
		return 0, fmt.Errorf("%w: at tier %d, claimed %d", ErrTierNotReached, current, level)
	}

	granted, err := s.store.MarkTierClaimed(ctx, accountID, level)
	if err != nil {
		return 0, err
	}
	if !granted {
		return 0, ErrAlreadyClaimed
	}

	if err := s.store.CreditBalance(ctx, accountID, tier.LevelReward); err != nil {
		return 0, fmt.Errorf("credit tier reward: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"account": accountID,
		"tier":    level,
		"amount":  tier.LevelReward,
	}).Info("tier reward claimed")
	return tier.LevelReward, nil
}

// ClaimMonthlyReward grants the recurring reward for the account's
// current tier, at most once per calendar month.
func (s *Service) ClaimMonthlyReward(ctx context.Context, accountID string) (int64, error) {
	current, err := s.store.AccountTier(ctx, accountID)
	if err != nil {
		return 0, err
	}
	tier, err := TierByLevel(current)
	if err != nil {
		return 0, err
	}
	if tier.MonthlyReward == 0 {
		return 0, ErrNoReward
	}

	granted, err := s.store.MarkMonthlyClaimed(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !granted {
		return 0, ErrAlreadyClaimed
	}

	if err := s.store.CreditBalance(ctx, accountID, tier.MonthlyReward); err != nil {
		return 0, fmt.Errorf("credit monthly reward: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"account": accountID,
		"tier":    current,
		"amount":  tier.MonthlyReward,
	}).Info("monthly reward claimed")
	return tier.MonthlyReward, nil
}
