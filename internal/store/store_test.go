package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"wingo/internal/database"
	"wingo/internal/game"
	"wingo/internal/referral"
)

var testStore *Store

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "wingo"
		dbPwd  = "password"
		dbUser = "user"
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}
	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPwd, dbHost, dbPort.Port(), dbName)

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, "../../migrations"); err != nil {
		return dbContainer.Terminate, err
	}

	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}
	testStore = New(pool)

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() (available bool) {
	// testcontainers panics (rather than returning an error) when no
	// Docker host can be found; treat that as "not available".
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func createAccount(t *testing.T, id string, referrerID *string) *Account {
	t.Helper()
	a, err := testStore.CreateAccount(context.Background(), id, referrerID)
	require.NoError(t, err)
	return a
}

func placeBet(t *testing.T, accountID, periodID string, sel game.Selection, stake int64) *game.Bet {
	t.Helper()
	bet := &game.Bet{
		ID:           fmt.Sprintf("bet-%s-%d", accountID, time.Now().UnixNano()),
		AccountID:    accountID,
		Mode:         game.ModeThirtySeconds,
		PeriodID:     periodID,
		Selection:    sel,
		Stake:        stake,
		NetStake:     game.NetStake(stake),
		Status:       game.BetPending,
		ResultNumber: -1,
		PlacedAt:     time.Now().UTC(),
	}
	require.NoError(t, testStore.PlaceBet(context.Background(), bet))
	return bet
}

func TestStore_CreateAndLoadAccount(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-create", nil)

	assert.Equal(t, "acct-create", a.ID)
	assert.Regexp(t, `^NEO[A-Z2-9]{8}$`, a.ReferralCode)
	assert.Zero(t, a.Balance)
	assert.Zero(t, a.Tier)

	loaded, err := testStore.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ReferralCode, loaded.ReferralCode)
	assert.Nil(t, loaded.ReferrerID)

	byCode, err := testStore.AccountByReferralCode(ctx, a.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byCode.ID)
}

func TestStore_AccountNotFound(t *testing.T) {
	ctx := context.Background()

	_, err := testStore.Account(ctx, "acct-missing")
	assert.ErrorIs(t, err, game.ErrAccountNotFound)

	_, err = testStore.AccountByReferralCode(ctx, "NEOMISSING1")
	assert.ErrorIs(t, err, game.ErrAccountNotFound)

	err = testStore.CreditBalance(ctx, "acct-missing", 100)
	assert.ErrorIs(t, err, game.ErrAccountNotFound)
}

func TestStore_PlaceBet(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-place", nil)
	require.NoError(t, testStore.CreditBalance(ctx, a.ID, 50_000))

	bet := placeBet(t, a.ID, "202405010001", game.NumberSelection(7), 10_000)

	loaded, err := testStore.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40_000), loaded.Balance)

	pending, err := testStore.PendingBets(ctx, game.ModeThirtySeconds, "202405010001")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bet.ID, pending[0].ID)
	assert.Equal(t, game.NumberSelection(7), pending[0].Selection)
	assert.Equal(t, int64(9_800), pending[0].NetStake)
}

func TestStore_PlaceBet_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-broke", nil)
	require.NoError(t, testStore.CreditBalance(ctx, a.ID, 500))

	bet := &game.Bet{
		ID: "bet-broke", AccountID: a.ID, Mode: game.ModeThirtySeconds,
		PeriodID: "202405010002", Selection: game.NumberSelection(1),
		Stake: 1_000, NetStake: 980, Status: game.BetPending,
		ResultNumber: -1, PlacedAt: time.Now().UTC(),
	}
	err := testStore.PlaceBet(ctx, bet)
	assert.ErrorIs(t, err, game.ErrInsufficientBalance)

	// The failed placement must not leave a bet row behind.
	pending, err := testStore.PendingBets(ctx, game.ModeThirtySeconds, "202405010002")
	require.NoError(t, err)
	assert.Empty(t, pending)

	loaded, err := testStore.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), loaded.Balance)
}

func TestStore_PlaceBet_UnknownAccount(t *testing.T) {
	bet := &game.Bet{
		ID: "bet-ghost", AccountID: "acct-ghost", Mode: game.ModeThirtySeconds,
		PeriodID: "202405010003", Selection: game.NumberSelection(1),
		Stake: 1_000, NetStake: 980, Status: game.BetPending,
		ResultNumber: -1, PlacedAt: time.Now().UTC(),
	}
	err := testStore.PlaceBet(context.Background(), bet)
	assert.ErrorIs(t, err, game.ErrAccountNotFound)
}

func TestStore_SettleBet(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-settle", nil)
	require.NoError(t, testStore.CreditBalance(ctx, a.ID, 50_000))
	bet := placeBet(t, a.ID, "202405010004", game.NumberSelection(7), 10_000)

	require.NoError(t, testStore.SettleBet(ctx, bet.ID, game.BetWon, 88_200, 7))
	require.NoError(t, testStore.CreditPayout(ctx, a.ID, 88_200))

	// Re-settling a terminal bet changes nothing.
	require.NoError(t, testStore.SettleBet(ctx, bet.ID, game.BetLost, 0, 3))

	bets, err := testStore.AccountBets(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, game.BetWon, bets[0].Status)
	assert.Equal(t, int64(88_200), bets[0].Payout)
	assert.Equal(t, 7, bets[0].ResultNumber)

	loaded, err := testStore.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(128_200), loaded.Balance)

	pending, err := testStore.PendingBets(ctx, game.ModeThirtySeconds, "202405010004")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_ExperienceAndTier(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-exp", nil)

	total, err := testStore.AddExperience(ctx, a.ID, 200_000)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), total)

	total, err = testStore.AddExperience(ctx, a.ID, 150_000)
	require.NoError(t, err)
	assert.Equal(t, int64(350_000), total)

	require.NoError(t, testStore.RaiseTier(ctx, a.ID, 2))
	// A lower level never lowers the stored tier.
	require.NoError(t, testStore.RaiseTier(ctx, a.ID, 1))

	tier, err := testStore.AccountTier(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tier)
}

func TestStore_MarkTierClaimed(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-claim", nil)

	granted, err := testStore.MarkTierClaimed(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = testStore.MarkTierClaimed(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.False(t, granted)

	// A different tier claims independently.
	granted, err = testStore.MarkTierClaimed(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.True(t, granted)

	claimed, err := testStore.ClaimedTiers(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, claimed)
}

func TestStore_MarkMonthlyClaimed(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-monthly", nil)

	granted, err := testStore.MarkMonthlyClaimed(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = testStore.MarkMonthlyClaimed(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestStore_Ancestors(t *testing.T) {
	ctx := context.Background()

	// Chain of eight: r7 <- r6 <- ... <- r1 <- player.
	var prev *string
	for i := 7; i >= 1; i-- {
		id := fmt.Sprintf("acct-chain-r%d", i)
		createAccount(t, id, prev)
		prev = &id
	}
	createAccount(t, "acct-chain-player", prev)

	ancestors, err := testStore.Ancestors(ctx, "acct-chain-player", referral.MaxDepth)
	require.NoError(t, err)
	require.Len(t, ancestors, referral.MaxDepth)

	for i, a := range ancestors {
		assert.Equal(t, i+1, a.Depth)
		assert.Equal(t, fmt.Sprintf("acct-chain-r%d", i+1), a.AccountID)
	}
}

func TestStore_Ancestors_NoReferrer(t *testing.T) {
	a := createAccount(t, "acct-orphan", nil)

	ancestors, err := testStore.Ancestors(context.Background(), a.ID, referral.MaxDepth)
	require.NoError(t, err)
	assert.Empty(t, ancestors)
}

func TestStore_CreditCommission(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-commission", nil)

	require.NoError(t, testStore.CreditCommission(ctx, a.ID, 1_000))
	require.NoError(t, testStore.CreditCommission(ctx, a.ID, 500))

	// Commission accrues in its own pot; the spendable balance only
	// moves on a claim.
	loaded, err := testStore.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, loaded.Balance)
	assert.Equal(t, int64(1_500), loaded.CommissionBalance)
	assert.Equal(t, int64(1_500), loaded.CommissionTotal)

	err = testStore.CreditCommission(ctx, "acct-missing", 100)
	assert.ErrorIs(t, err, game.ErrAccountNotFound)
}

func TestStore_ClaimCommission(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-commission-claim", nil)
	require.NoError(t, testStore.CreditBalance(ctx, a.ID, 10_000))
	require.NoError(t, testStore.CreditCommission(ctx, a.ID, 2_500))

	amount, err := testStore.ClaimCommission(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), amount)

	loaded, err := testStore.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12_500), loaded.Balance)
	assert.Zero(t, loaded.CommissionBalance)
	// The lifetime total survives the claim.
	assert.Equal(t, int64(2_500), loaded.CommissionTotal)

	_, err = testStore.ClaimCommission(ctx, a.ID)
	assert.ErrorIs(t, err, referral.ErrNothingToClaim)

	_, err = testStore.ClaimCommission(ctx, "acct-missing")
	assert.ErrorIs(t, err, game.ErrAccountNotFound)
}

func TestStore_PendingPeriods(t *testing.T) {
	ctx := context.Background()
	a := createAccount(t, "acct-stranded", nil)
	require.NoError(t, testStore.CreditBalance(ctx, a.ID, 50_000))

	old := placeBet(t, a.ID, "202404300100", game.NumberSelection(1), 1_000)
	placeBet(t, a.ID, "202404300100", game.NumberSelection(2), 1_000)
	placeBet(t, a.ID, "202404300101", game.ColorSelection(game.ColorRed), 1_000)

	periods, err := testStore.PendingPeriods(ctx, game.ModeThirtySeconds)
	require.NoError(t, err)
	assert.Contains(t, periods, "202404300100")
	assert.Contains(t, periods, "202404300101")
	assert.IsIncreasing(t, periods)

	// Settling a round's bets removes its period from the pending set.
	require.NoError(t, testStore.SettleBet(ctx, old.ID, game.BetLost, 0, 5))
	for _, b := range mustPendingBets(t, "202404300100") {
		require.NoError(t, testStore.SettleBet(ctx, b.ID, game.BetLost, 0, 5))
	}

	periods, err = testStore.PendingPeriods(ctx, game.ModeThirtySeconds)
	require.NoError(t, err)
	assert.NotContains(t, periods, "202404300100")
	assert.Contains(t, periods, "202404300101")
}

func mustPendingBets(t *testing.T, periodID string) []*game.Bet {
	t.Helper()
	bets, err := testStore.PendingBets(context.Background(), game.ModeThirtySeconds, periodID)
	require.NoError(t, err)
	return bets
}
