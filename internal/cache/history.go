package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"wingo/internal/game"
)

const historyKeyPrefix = "wingo:history:"

// RoundHistory keeps the bounded per-mode list of settled outcomes in
// Redis, most recent first. It satisfies game.HistorySink.
type RoundHistory struct {
	client *redis.Client
	limit  int
}

func NewRoundHistory(client *redis.Client) *RoundHistory {
	return &RoundHistory{client: client, limit: game.HistoryLimit}
}

func historyKey(mode game.Mode) string {
	return historyKeyPrefix + string(mode)
}

// AppendResult pushes an outcome to the front of the mode's list and
// trims the tail beyond the retention limit.
func (h *RoundHistory) AppendResult(ctx context.Context, out game.Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	key := historyKey(out.Mode)
	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(h.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history for %s: %w", out.Mode, err)
	}
	return nil
}

// RecentResults returns up to limit outcomes for a mode, most recent
// first.
func (h *RoundHistory) RecentResults(ctx context.Context, mode game.Mode, limit int) ([]game.Outcome, error) {
	if limit <= 0 || limit > h.limit {
		limit = h.limit
	}

	raw, err := h.client.LRange(ctx, historyKey(mode), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", mode, err)
	}

	outcomes := make([]game.Outcome, 0, len(raw))
	for _, item := range raw {
		var out game.Outcome
		if err := json.Unmarshal([]byte(item), &out); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
