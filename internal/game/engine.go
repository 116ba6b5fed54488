package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	TickInterval = 1 * time.Second

	// BettingCloseSeconds is the window before round end during which
	// new bets are rejected, eliminating the race between "about to
	// close" and "just placed".
	BettingCloseSeconds = 5

	MinStake int64 = 100 // smallest currency units
	MaxStake int64 = 1000000

	// maxSettleAttempts bounds retries for a round stuck in Closing
	// before the operator alarm fires.
	maxSettleAttempts = 5

	// HistoryLimit bounds the per-mode round history, most recent
	// first.
	HistoryLimit = 50
)

// Ledger is the persistence the engine needs: placement debits and bet
// rows, pending-bet lookup at settlement, and per-bet terminal updates
// with individual payout credits.
type Ledger interface {
	// PlaceBet debits the stake and inserts the bet atomically. It
	// returns ErrInsufficientBalance or ErrAccountNotFound unchanged.
	PlaceBet(ctx context.Context, bet *Bet) error

	// PendingBets returns every bet still Pending for a round.
	PendingBets(ctx context.Context, mode Mode, periodID string) ([]*Bet, error)

	// PendingPeriods returns every round of a mode that still holds
	// Pending bets, oldest first.
	PendingPeriods(ctx context.Context, mode Mode) ([]string, error)

	// SettleBet transitions one Pending bet to its terminal status,
	// recording the payout and outcome number. Bets already terminal
	// are left untouched.
	SettleBet(ctx context.Context, betID string, status BetStatus, payout int64, resultNumber int) error

	// CreditPayout credits a winning account by one bet's payout as an
	// individual atomic increment.
	CreditPayout(ctx context.Context, accountID string, amount int64) error
}

// HistorySink records settled outcomes, bounded and most-recent-first.
type HistorySink interface {
	AppendResult(ctx context.Context, out Outcome) error
	RecentResults(ctx context.Context, mode Mode, limit int) ([]Outcome, error)
}

// Broadcaster pushes fire-and-forget events to connected clients.
type Broadcaster interface {
	Broadcast(event Event)
}

// WagerListener reacts to accepted bet placements. Progression and
// referral commission hang off this hook; their failures are logged
// and never fail the placement.
type WagerListener interface {
	OnWager(ctx context.Context, accountID string, stake int64) error
}

// Engine runs one mode's round lifecycle: a 1-second ticker polls the
// round clock, and when a period expires the engine settles it exactly
// once. All placement and settlement activity for the mode is
// serialized through this single goroutine plus the engine mutex.
type Engine struct {
	mode      Mode
	ledger    Ledger
	history   HistorySink
	hub       Broadcaster
	resolver  *Resolver
	override  *OverrideCell
	listeners []WagerListener

	now func() time.Time
	log *logrus.Entry

	mu       sync.Mutex
	settled  map[string]bool
	closing  map[string]bool
	outcomes map[string]Outcome // resolved but not yet settled rounds
	attempts map[string]int

	lastPeriod string
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewEngine wires an engine for one mode. The listeners are invoked,
// in order, after every accepted placement.
func NewEngine(mode Mode, ledger Ledger, history HistorySink, hub Broadcaster, listeners ...WagerListener) *Engine {
	return &Engine{
		mode:      mode,
		ledger:    ledger,
		history:   history,
		hub:       hub,
		resolver:  NewResolver(),
		override:  &OverrideCell{},
		listeners: listeners,
		now:       time.Now,
		log:       logrus.WithField("mode", string(mode)),
		settled:   make(map[string]bool),
		closing:   make(map[string]bool),
		outcomes:  make(map[string]Outcome),
		attempts:  make(map[string]int),
		stopChan:  make(chan struct{}),
	}
}

func (e *Engine) Mode() Mode { return e.mode }

// Start settles rounds a previous process left behind, then launches
// the round loop.
func (e *Engine) Start(ctx context.Context) error {
	e.recoverStranded(ctx)
	go e.loop(ctx)
	e.log.Info("[ENGINE] round loop started")
	return nil
}

// recoverStranded settles expired rounds that still hold pending bets,
// typically after a crash or restart. The live round is left for the
// normal rollover; failures enter the regular retry path.
func (e *Engine) recoverStranded(ctx context.Context) {
	current, _, err := CurrentRound(e.mode, e.now())
	if err != nil {
		e.log.WithError(err).Error("[ENGINE] clock failure during recovery")
		return
	}

	periods, err := e.ledger.PendingPeriods(ctx, e.mode)
	if err != nil {
		e.log.WithError(err).Error("[ENGINE] failed to scan for stranded rounds")
		return
	}

	for _, p := range periods {
		// Period ids are fixed-width, so lexical order is round order.
		if p >= current {
			continue
		}
		e.log.WithField("period", p).Warn("[ENGINE] settling stranded round")
		if err := e.Settle(ctx, p); err != nil {
			e.noteFailure(p, err)
		}
	}
}

// Stop terminates the round loop. An in-flight settlement runs to
// completion; round timers themselves carry no state worth saving.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.log.Info("[ENGINE] round loop stopped")
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.SettleIfDue(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CurrentStatus reports the live round for polling callers.
func (e *Engine) CurrentStatus() (RoundStatus, error) {
	periodID, remaining, err := CurrentRound(e.mode, e.now())
	if err != nil {
		return RoundStatus{}, err
	}
	return RoundStatus{
		Mode:             e.mode,
		PeriodID:         periodID,
		SecondsRemaining: remaining,
		BettingOpen:      remaining > BettingCloseSeconds,
	}, nil
}

// SettleIfDue settles the just-expired round when the clock has rolled
// over, and retries any round still stuck in Closing. Idempotent: a
// period already Settled is never touched again.
func (e *Engine) SettleIfDue(ctx context.Context) {
	periodID, _, err := CurrentRound(e.mode, e.now())
	if err != nil {
		e.log.WithError(err).Error("[ENGINE] clock failure")
		return
	}

	e.mu.Lock()
	due := make([]string, 0, 2)
	if e.lastPeriod != "" && e.lastPeriod != periodID && !e.settled[e.lastPeriod] {
		due = append(due, e.lastPeriod)
	}
	// Rounds that failed settlement earlier stay queued for retry.
	for p := range e.attempts {
		if p != e.lastPeriod && !e.settled[p] {
			due = append(due, p)
		}
	}
	e.lastPeriod = periodID
	e.mu.Unlock()

	for _, p := range due {
		if err := e.Settle(ctx, p); err != nil {
			e.noteFailure(p, err)
		}
	}
}

func (e *Engine) noteFailure(periodID string, err error) {
	e.mu.Lock()
	e.attempts[periodID]++
	n := e.attempts[periodID]
	exhausted := n >= maxSettleAttempts
	if exhausted {
		delete(e.attempts, periodID)
		delete(e.outcomes, periodID)
	}
	e.mu.Unlock()

	if exhausted {
		// Operator alarm: the round has pending bets that automation
		// could not settle.
		e.log.WithError(err).WithFields(logrus.Fields{
			"period":   periodID,
			"attempts": n,
		}).Error("[ENGINE] settlement retries exhausted, manual intervention required")
		return
	}
	e.log.WithError(err).WithFields(logrus.Fields{
		"period":   periodID,
		"attempts": n,
	}).Warn("[ENGINE] settlement failed, will retry")
}

// Settle closes one round: resolve the outcome once (consuming any
// pending override atomically), transition every Pending bet to a
// terminal state with its individually credited payout, append the
// outcome to history and mark the period Settled. Calling it again for
// the same period is a no-op.
func (e *Engine) Settle(ctx context.Context, periodID string) error {
	e.mu.Lock()
	if e.settled[periodID] || e.closing[periodID] {
		e.mu.Unlock()
		return nil
	}
	e.closing[periodID] = true
	out, resolved := e.outcomes[periodID]
	if !resolved {
		// Read-and-clear of the override is atomic with respect to a
		// concurrent operator Set; the memo guarantees a retried
		// settlement never re-draws.
		out = e.resolver.Resolve(e.mode, periodID, e.override.Consume())
		e.outcomes[periodID] = out
	}
	e.mu.Unlock()

	err := e.settleBets(ctx, periodID, out)

	e.mu.Lock()
	delete(e.closing, periodID)
	if err == nil {
		e.settled[periodID] = true
		delete(e.outcomes, periodID)
		delete(e.attempts, periodID)
	}
	e.mu.Unlock()

	if err != nil {
		return err
	}

	if e.hub != nil {
		e.hub.Broadcast(Event{Type: "round_settled", Data: out})
	}
	e.log.WithFields(logrus.Fields{
		"period": periodID,
		"number": out.Number,
	}).Info("[ENGINE] round settled")
	return nil
}

func (e *Engine) settleBets(ctx context.Context, periodID string, out Outcome) error {
	bets, err := e.ledger.PendingBets(ctx, e.mode, periodID)
	if err != nil {
		return fmt.Errorf("load pending bets for %s: %w", periodID, err)
	}

	for _, bet := range bets {
		amount := Payout(bet.Selection, out.Number, bet.NetStake)
		status := BetLost
		if amount > 0 {
			status = BetWon
		}
		if err := e.ledger.SettleBet(ctx, bet.ID, status, amount, out.Number); err != nil {
			return fmt.Errorf("settle bet %s: %w", bet.ID, err)
		}
		if amount > 0 {
			if err := e.ledger.CreditPayout(ctx, bet.AccountID, amount); err != nil {
				return fmt.Errorf("credit payout for bet %s: %w", bet.ID, err)
			}
		}
	}

	if e.history != nil {
		if err := e.history.AppendResult(ctx, out); err != nil {
			// History is a display cache; losing one entry is better
			// than re-running settlement and duplicating it.
			e.log.WithError(err).Warn("[ENGINE] failed to append round history")
		}
	}
	return nil
}

// PlaceBet validates and records a wager against the live round. The
// stake is debited and the bet inserted in one ledger transaction;
// progression and commission listeners run afterwards as independent
// atomic increments.
func (e *Engine) PlaceBet(ctx context.Context, accountID string, sel Selection, stake int64) (*Bet, error) {
	if accountID == "" {
		return nil, ErrAccountNotFound
	}
	if !sel.Valid() {
		return nil, ErrInvalidSelection
	}
	if stake < MinStake || stake > MaxStake {
		return nil, fmt.Errorf("%w: stake must be between %d and %d", ErrInvalidStake, MinStake, MaxStake)
	}

	periodID, remaining, err := CurrentRound(e.mode, e.now())
	if err != nil {
		return nil, err
	}
	if remaining <= BettingCloseSeconds {
		return nil, ErrBettingClosed
	}
	e.mu.Lock()
	closed := e.settled[periodID] || e.closing[periodID]
	e.mu.Unlock()
	if closed {
		return nil, ErrBettingClosed
	}

	bet := &Bet{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Mode:         e.mode,
		PeriodID:     periodID,
		Selection:    sel,
		Stake:        stake,
		NetStake:     NetStake(stake),
		Status:       BetPending,
		ResultNumber: -1,
		PlacedAt:     e.now(),
	}

	if err := e.ledger.PlaceBet(ctx, bet); err != nil {
		return nil, err
	}

	for _, l := range e.listeners {
		if err := l.OnWager(ctx, accountID, stake); err != nil {
			e.log.WithError(err).WithField("account", accountID).
				Warn("[ENGINE] wager listener failed")
		}
	}

	if e.hub != nil {
		e.hub.Broadcast(Event{Type: "bet_placed", Data: bet})
	}
	e.log.WithFields(logrus.Fields{
		"account":   accountID,
		"period":    periodID,
		"selection": sel.String(),
		"stake":     stake,
	}).Info("[ENGINE] bet placed")
	return bet, nil
}

// SetOverride installs, replaces or (with nil) clears the pending
// operator override for the next settling round.
func (e *Engine) SetOverride(ov *Override) {
	e.override.Set(ov)
	if ov != nil {
		e.log.WithField("override", ov.String()).Info("[ENGINE] override set")
	} else {
		e.log.Info("[ENGINE] override cleared")
	}
}

// GetOverride returns the pending override without consuming it.
func (e *Engine) GetOverride() *Override {
	return e.override.Get()
}

// RecentResults returns the bounded round history, most recent first.
func (e *Engine) RecentResults(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	if e.history == nil {
		return nil, nil
	}
	return e.history.RecentResults(ctx, e.mode, limit)
}
