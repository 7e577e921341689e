package market

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"torchmarket/internal/models"
)

// Event types written to the market_events log.
const (
	EventBetPlaced            = "bet_placed"
	EventBetFinalized         = "bet_finalized"
	EventBetClaimed           = "bet_claimed"
	EventBatchProcessed       = "batch_processed"
	EventFeeCollected         = "fee_collected"
	EventAggregationCompleted = "aggregation_completed"
	EventBucketPriceSet       = "bucket_price_set"
)

// Payloads carry enough data to reconstruct the transition without a
// read-back; the projection may still re-fetch authoritative rows as a
// fallback.

type BetPlacedPayload struct {
	BetID           uint64          `json:"bet_id"`
	Bettor          string          `json:"bettor"`
	Bucket          int64           `json:"bucket"`
	BucketIndex     int             `json:"bucket_index"`
	Stake           decimal.Decimal `json:"stake"`
	StakeNet        decimal.Decimal `json:"stake_net"`
	PriceMin        int64           `json:"price_min"`
	PriceMax        int64           `json:"price_max"`
	TargetTimestamp int64           `json:"target_timestamp"`
	QualityBps      int64           `json:"quality_bps"`
	Weight          decimal.Decimal `json:"weight"`
}

type BetFinalizedPayload struct {
	BetID       uint64          `json:"bet_id"`
	Bettor      string          `json:"bettor"`
	Bucket      int64           `json:"bucket"`
	Won         bool            `json:"won"`
	ActualPrice int64           `json:"actual_price"`
	Weight      decimal.Decimal `json:"weight"`
}

type BetClaimedPayload struct {
	BetID  uint64          `json:"bet_id"`
	Bettor string          `json:"bettor"`
	Payout decimal.Decimal `json:"payout"`
}

type BatchProcessedPayload struct {
	Bucket             int64           `json:"bucket"`
	FromIndex          int             `json:"from_index"`
	ProcessedCount     int             `json:"processed_count"`
	WinningWeightDelta decimal.Decimal `json:"winning_weight_delta"`
}

type FeeCollectedPayload struct {
	BetID  uint64          `json:"bet_id"`
	Bettor string          `json:"bettor"`
	Amount decimal.Decimal `json:"amount"`
}

type AggregationCompletedPayload struct {
	Bucket    int64 `json:"bucket"`
	TotalBets int   `json:"total_bets"`
}

type BucketPriceSetPayload struct {
	Bucket int64 `json:"bucket"`
	Price  int64 `json:"price"`
}

func newEvent(eventType string, betID *uint64, bucket *int64, bettor string, payload any) (*models.MarketEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &models.MarketEvent{
		Type:    eventType,
		BetID:   betID,
		Bucket:  bucket,
		Bettor:  bettor,
		Payload: datatypes.JSON(raw),
	}, nil
}
