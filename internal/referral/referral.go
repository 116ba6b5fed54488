// Package referral credits commission up the referrer chain whenever a
// referred account wagers. Rates drop with distance and stop after six
// levels.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// MaxDepth is the deepest ancestor that still earns commission.
	MaxDepth = 6

	// rateScale is the denominator for the per-depth commission rates.
	rateScale = 10000

	codePrefix    = "NEO"
	codeSuffixLen = 8
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// rates holds the per-depth commission in units of 1/rateScale of the
// wagered stake: 1%, 0.5%, 0.2%, 0.1%, 0.05%, 0.01%.
var rates = [MaxDepth]int64{100, 50, 20, 10, 5, 1}

var (
	// ErrInvalidDepth rejects commission queries outside 1..MaxDepth.
	ErrInvalidDepth = errors.New("referral depth out of range")

	// ErrNothingToClaim is returned when a claim finds an empty
	// commission balance.
	ErrNothingToClaim = errors.New("no commission to claim")
)

// Commission returns the amount earned by the ancestor at the given
// depth (1 is the direct referrer) for a wagered stake, rounded half-up
// to the smallest currency unit.
func Commission(stake int64, depth int) (int64, error) {
	if depth < 1 || depth > MaxDepth {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	rate := rates[depth-1]
	return (stake*rate + rateScale/2) / rateScale, nil
}

// NewCode generates a referral code: a fixed prefix plus a random
// suffix drawn from an unambiguous alphabet.
func NewCode() string {
	buf := make([]byte, codeSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		panic("referral: crypto rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return codePrefix + string(buf)
}

// Ancestor is one entry in an account's referrer chain.
type Ancestor struct {
	AccountID string
	Depth     int // 1 is the direct referrer
}

// Store is the persistence the cascade needs.
type Store interface {
	// Ancestors returns the referrer chain for an account, nearest
	// first, cut off at maxDepth.
	Ancestors(ctx context.Context, accountID string, maxDepth int) ([]Ancestor, error)

	// CreditCommission accrues the amount into a referrer's commission
	// balance and lifetime commission total atomically. The spendable
	// balance is untouched until the referrer claims.
	CreditCommission(ctx context.Context, accountID string, amount int64) error

	// ClaimCommission moves the whole accrued commission balance into
	// the spendable balance and returns the amount moved, or
	// ErrNothingToClaim when the balance is zero.
	ClaimCommission(ctx context.Context, accountID string) (int64, error)
}

// Service walks the referrer chain on every wager and credits each
// ancestor their cut.
type Service struct {
	store Store
	log   *logrus.Entry
}

func NewService(store Store) *Service {
	return &Service{store: store, log: logrus.WithField("component", "referral")}
}

// OnWager credits commission to every ancestor of the wagering account.
// Each credit is an independent atomic increment; one failing referrer
// does not block the rest, but the first failure is reported so the
// caller can log it.
func (s *Service) OnWager(ctx context.Context, accountID string, stake int64) error {
	ancestors, err := s.store.Ancestors(ctx, accountID, MaxDepth)
	if err != nil {
		return fmt.Errorf("load referrer chain: %w", err)
	}

	var firstErr error
	for _, a := range ancestors {
		amount, err := Commission(stake, a.Depth)
		if err != nil {
			// A depth outside the table means corrupt chain data.
			s.log.WithError(err).WithField("account", a.AccountID).
				Error("skipping referrer with invalid depth")
			continue
		}
		if amount == 0 {
			continue
		}
		if err := s.store.CreditCommission(ctx, a.AccountID, amount); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("credit commission to %s: %w", a.AccountID, err)
			}
			continue
		}
		s.log.WithFields(logrus.Fields{
			"referrer": a.AccountID,
			"depth":    a.Depth,
			"amount":   amount,
		}).Debug("commission credited")
	}
	return firstErr
}

// Claim pays out an account's accrued commission into its spendable
// balance and returns the amount paid.
func (s *Service) Claim(ctx context.Context, accountID string) (int64, error) {
	amount, err := s.store.ClaimCommission(ctx, accountID)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"account": accountID,
		"amount":  amount,
	}).Info("commission claimed")
	return amount, nil
}
