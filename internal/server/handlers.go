package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"wingo/internal/game"
	"wingo/internal/progression"
	"wingo/internal/referral"
)

// engineFromParams resolves the :mode path parameter to its engine.
func (s *FiberServer) engineFromParams(c *fiber.Ctx) (*game.Engine, error) {
	mode, err := game.ParseMode(c.Params("mode"))
	if err != nil {
		return nil, err
	}
	engine, ok := s.gameManager.Engine(mode)
	if !ok {
		return nil, game.ErrUnknownMode
	}
	return engine, nil
}

// statusForError maps domain errors to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrAccountNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrBettingClosed):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrInsufficientBalance),
		errors.Is(err, game.ErrInvalidStake),
		errors.Is(err, game.ErrInvalidSelection),
		errors.Is(err, game.ErrInvalidOverride),
		errors.Is(err, game.ErrUnknownMode):
		return fiber.StatusBadRequest
	case errors.Is(err, progression.ErrAlreadyClaimed):
		return fiber.StatusConflict
	case errors.Is(err, progression.ErrTierNotReached),
		errors.Is(err, progression.ErrNoReward),
		errors.Is(err, progression.ErrUnknownTier),
		errors.Is(err, referral.ErrNothingToClaim):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// Round handlers

func (s *FiberServer) getRoundStateHandler(c *fiber.Ctx) error {
	engine, err := s.engineFromParams(c)
	if err != nil {
		return errorJSON(c, err)
	}

	status, err := engine.CurrentStatus()
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(status)
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	engine, err := s.engineFromParams(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req struct {
		AccountID string `json:"account_id"`
		Selection string `json:"selection"`
		Stake     int64  `json:"stake"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.AccountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	sel, err := game.ParseSelection(req.Selection)
	if err != nil {
		return errorJSON(c, err)
	}

	bet, err := engine.PlaceBet(c.Context(), req.AccountID, sel, req.Stake)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(bet)
}

func (s *FiberServer) getRoundHistoryHandler(c *fiber.Ctx) error {
	engine, err := s.engineFromParams(c)
	if err != nil {
		return errorJSON(c, err)
	}

	limit := c.QueryInt("limit", game.HistoryLimit)
	results, err := engine.RecentResults(c.Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"mode":    engine.Mode(),
		"results": results,
	})
}

// Override handlers

func (s *FiberServer) setOverrideHandler(c *fiber.Ctx) error {
	engine, err := s.engineFromParams(c)
	if err != nil {
		return errorJSON(c, err)
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// An empty value clears the pending directive.
	if req.Value == "" {
		engine.SetOverride(nil)
		return c.JSON(fiber.Map{"mode": engine.Mode(), "override": nil})
	}

	ov, err := game.ParseOverride(req.Value)
	if err != nil {
		return errorJSON(c, err)
	}
	engine.SetOverride(ov)
	return c.JSON(fiber.Map{"mode": engine.Mode(), "override": ov})
}

func (s *FiberServer) getOverrideHandler(c *fiber.Ctx) error {
	engine, err := s.engineFromParams(c)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"mode": engine.Mode(), "override": engine.GetOverride()})
}

// Account handlers

func (s *FiberServer) createAccountHandler(c *fiber.Ctx) error {
	var req struct {
		ID           string `json:"id"`
		ReferralCode string `json:"referral_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Account ID is required",
		})
	}

	var referrerID *string
	if req.ReferralCode != "" {
		referrer, err := s.store.AccountByReferralCode(c.Context(), req.ReferralCode)
		if err != nil {
			if errors.Is(err, game.ErrAccountNotFound) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Unknown referral code",
				})
			}
			return errorJSON(c, err)
		}
		referrerID = &referrer.ID
	}

	account, err := s.store.CreateAccount(c.Context(), req.ID, referrerID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (s *FiberServer) getAccountHandler(c *fiber.Ctx) error {
	account, err := s.store.Account(c.Context(), c.Params("accountId"))
	if err != nil {
		return errorJSON(c, err)
	}

	tier, err := progression.TierByLevel(account.Tier)
	if err != nil {
		return errorJSON(c, err)
	}
	claimed, err := s.store.ClaimedTiers(c.Context(), account.ID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"account":       account,
		"tier":          tier,
		"next_tier":     nextTier(account.Tier),
		"claimed_tiers": claimed,
	})
}

func nextTier(level int) *progression.Tier {
	next, err := progression.TierByLevel(level + 1)
	if err != nil {
		return nil
	}
	return &next
}

func (s *FiberServer) creditAccountHandler(c *fiber.Ctx) error {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Amount must be positive",
		})
	}

	accountID := c.Params("accountId")
	if err := s.store.CreditBalance(c.Context(), accountID, req.Amount); err != nil {
		return errorJSON(c, err)
	}

	account, err := s.store.Account(c.Context(), accountID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(account)
}

func (s *FiberServer) getAccountBetsHandler(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	if _, err := s.store.Account(c.Context(), accountID); err != nil {
		return errorJSON(c, err)
	}

	limit := c.QueryInt("limit", game.HistoryLimit)
	if limit <= 0 || limit > game.HistoryLimit {
		limit = game.HistoryLimit
	}

	bets, err := s.store.AccountBets(c.Context(), accountID, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"account_id": accountID,
		"bets":       bets,
	})
}

// Reward handlers

func (s *FiberServer) claimLevelRewardHandler(c *fiber.Ctx) error {
	var req struct {
		Level int `json:"level"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	accountID := c.Params("accountId")
	if _, err := s.store.Account(c.Context(), accountID); err != nil {
		return errorJSON(c, err)
	}

	amount, err := s.progression.ClaimTierReward(c.Context(), accountID, req.Level)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"account_id": accountID,
		"level":      req.Level,
		"amount":     amount,
	})
}

func (s *FiberServer) claimMonthlyRewardHandler(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	if _, err := s.store.Account(c.Context(), accountID); err != nil {
		return errorJSON(c, err)
	}

	amount, err := s.progression.ClaimMonthlyReward(c.Context(), accountID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"account_id": accountID,
		"amount":     amount,
	})
}

func (s *FiberServer) claimCommissionHandler(c *fiber.Ctx) error {
	accountID := c.Params("accountId")

	amount, err := s.referral.Claim(c.Context(), accountID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"account_id": accountID,
		"amount":     amount,
	})
}

// WebSocket handler

func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	accountID := conn.Query("account_id", "anonymous")

	logrus.WithField("account", accountID).Info("[WS] new connection")

	client := s.gameHub.RegisterClient(conn, accountID)

	// Send the live round of every mode as the initial snapshot.
	for _, mode := range game.Modes {
		engine, ok := s.gameManager.Engine(mode)
		if !ok {
			continue
		}
		status, err := engine.CurrentStatus()
		if err != nil {
			continue
		}
		client.SendEvent(game.Event{Type: "round_status", Data: status})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			logrus.WithError(err).WithField("account", accountID).Info("[WS] connection closed")
			s.gameHub.UnregisterClient(conn)
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var clientMsg struct {
			Type string `json:"type"`
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			continue
		}

		switch clientMsg.Type {
		case "round_status":
			mode, err := game.ParseMode(clientMsg.Mode)
			if err != nil {
				continue
			}
			engine, ok := s.gameManager.Engine(mode)
			if !ok {
				continue
			}
			status, err := engine.CurrentStatus()
			if err != nil {
				continue
			}
			client.SendEvent(game.Event{Type: "round_status", Data: status})

		case "ping":
			client.SendEvent(game.Event{Type: "pong"})
		}
	}
}
