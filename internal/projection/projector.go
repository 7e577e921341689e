package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"torchmarket/internal/config"
	"torchmarket/internal/market"
	"torchmarket/internal/models"
	"torchmarket/internal/repository"
)

// Publisher receives each event after its projection transaction commits.
// A nil Publisher disables fan-out.
type Publisher interface {
	PublishEvent(evt models.MarketEvent)
}

// Projector tails the market_events log and folds each event into the read
// models. Delivery is at-least-once: the cursor is advanced after the
// event's transaction commits, so every handler must tolerate replay. The
// dedup source is the projected row itself, counters move only on a flag
// transition.
type Projector struct {
	Repo      repository.Repository
	Logger    *zap.Logger
	Config    config.ProjectionConfig
	Publisher Publisher
}

func (p *Projector) Run(ctx context.Context) {
	interval := p.Config.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.Logger.Warn("projection pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce drains up to one batch of events and returns how many were applied.
func (p *Projector) RunOnce(ctx context.Context) (int, error) {
	cursor, err := p.Repo.GetProjectionCursor(ctx, p.Config.CursorName)
	if err != nil {
		return 0, err
	}
	var last uint64
	if cursor != nil {
		last = cursor.LastEventID
	}

	limit := p.Config.BatchSize
	if limit <= 0 {
		limit = 200
	}
	events, err := p.Repo.ListEventsAfter(ctx, last, limit)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range events {
		evt := events[i]
		err := p.Repo.InTx(ctx, func(r repository.Repository) error {
			return p.apply(ctx, r, &evt)
		})
		if err != nil {
			return applied, fmt.Errorf("apply event %d (%s): %w", evt.ID, evt.Type, err)
		}
		if err := p.Repo.SaveProjectionCursor(ctx, &models.ProjectionCursor{
			Name:        p.Config.CursorName,
			LastEventID: evt.ID,
		}); err != nil {
			return applied, err
		}
		applied++
		if p.Publisher != nil {
			p.Publisher.PublishEvent(evt)
		}
	}
	return applied, nil
}

func (p *Projector) apply(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	switch evt.Type {
	case market.EventBetPlaced:
		return p.applyBetPlaced(ctx, r, evt)
	case market.EventBetFinalized:
		return p.applyBetFinalized(ctx, r, evt)
	case market.EventBetClaimed:
		return p.applyBetClaimed(ctx, r, evt)
	case market.EventBatchProcessed:
		return p.applyBatchProcessed(ctx, r, evt)
	case market.EventFeeCollected:
		return p.applyFeeCollected(ctx, r, evt)
	case market.EventAggregationCompleted:
		return p.applyAggregationCompleted(ctx, r, evt)
	case market.EventBucketPriceSet:
		return p.applyBucketPriceSet(ctx, r, evt)
	default:
		p.Logger.Warn("skipping unknown event type",
			zap.Uint64("event_id", evt.ID), zap.String("type", evt.Type))
		return nil
	}
}

func (p *Projector) applyBetPlaced(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	var payload market.BetPlacedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}

	existing, err := r.GetProjectedBet(ctx, payload.BetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := r.SaveProjectedBet(ctx, &models.ProjectedBet{
		BetID:           payload.BetID,
		Bettor:          payload.Bettor,
		Stake:           payload.Stake,
		PriceMin:        payload.PriceMin,
		PriceMax:        payload.PriceMax,
		TargetTimestamp: payload.TargetTimestamp,
		Bucket:          payload.Bucket,
		BucketIndex:     payload.BucketIndex,
		QualityBps:      payload.QualityBps,
		Weight:          payload.Weight,
		Payout:          zeroAmount(),
	}); err != nil {
		return err
	}

	bucket, err := loadProjectedBucket(ctx, r, payload.Bucket)
	if err != nil {
		return err
	}
	if payload.BucketIndex+1 > bucket.TotalBets {
		bucket.TotalBets = payload.BucketIndex + 1
	}
	if err := r.SaveProjectedBucket(ctx, bucket); err != nil {
		return err
	}

	stats, err := loadUserStats(ctx, r, payload.Bettor)
	if err != nil {
		return err
	}
	stats.TotalBets++
	stats.TotalStaked = stats.TotalStaked.Add(payload.Stake)
	return r.SaveUserStats(ctx, stats)
}

func (p *Projector) applyBetFinalized(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	var payload market.BetFinalizedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}

	pb, err := p.projectedBetOrFallback(ctx, r, payload.BetID)
	if err != nil {
		return err
	}
	if pb == nil {
		p.Logger.Warn("finalize event for unknown bet, skipping",
			zap.Uint64("event_id", evt.ID), zap.Uint64("bet_id", payload.BetID))
		return nil
	}
	if pb.Finalized {
		return nil
	}

	actual := payload.ActualPrice
	pb.Finalized = true
	pb.Won = payload.Won
	pb.ActualPrice = &actual
	if err := r.SaveProjectedBet(ctx, pb); err != nil {
		return err
	}

	if payload.Won {
		stats, err := loadUserStats(ctx, r, pb.Bettor)
		if err != nil {
			return err
		}
		stats.TotalWon++
		if err := r.SaveUserStats(ctx, stats); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) applyBetClaimed(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	var payload market.BetClaimedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}

	pb, err := p.projectedBetOrFallback(ctx, r, payload.BetID)
	if err != nil {
		return err
	}
	if pb == nil {
		p.Logger.Warn("claim event for unknown bet, skipping",
			zap.Uint64("event_id", evt.ID), zap.Uint64("bet_id", payload.BetID))
		return nil
	}
	if pb.Claimed {
		return nil
	}
	if !pb.Finalized {
		// Claims are logged after finalization; seeing one earlier means
		// the finalize event is still ahead or was lost. Skip, the batch
		// sweep restores the finalized state.
		p.Logger.Warn("claim event before finalize, skipping",
			zap.Uint64("event_id", evt.ID), zap.Uint64("bet_id", payload.BetID))
		return nil
	}

	pb.Claimed = true
	pb.Payout = payload.Payout
	if err := r.SaveProjectedBet(ctx, pb); err != nil {
		return err
	}

	stats, err := loadUserStats(ctx, r, pb.Bettor)
	if err != nil {
		return err
	}
	stats.TotalPayout = stats.TotalPayout.Add(payload.Payout)
	return r.SaveUserStats(ctx, stats)
}

func (p *Projector) applyBatchProcessed(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	var payload market.BatchProcessedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}

	bucket, err := loadProjectedBucket(ctx, r, payload.Bucket)
	if err != nil {
		return err
	}
	// A replayed batch event carries a FromIndex the cursor already passed.
	if bucket.NextProcessIndex != payload.FromIndex {
		return nil
	}
	bucket.NextProcessIndex = payload.FromIndex + payload.ProcessedCount
	bucket.TotalWinningWeight = bucket.TotalWinningWeight.Add(payload.WinningWeightDelta)
	if bucket.TotalBets > 0 && bucket.NextProcessIndex >= bucket.TotalBets {
		bucket.AggregationComplete = true
	}
	if err := r.SaveProjectedBucket(ctx, bucket); err != nil {
		return err
	}

	// Sweep the covered range for bets whose finalize event was missed.
	// A bet already finalized by its own event is left alone, so the win
	// is counted once no matter which event lands first.
	if bucket.ResolvedPrice == nil {
		return nil
	}
	price := *bucket.ResolvedPrice
	covered, err := r.ListProjectedBetsByBucketRange(ctx, payload.Bucket, payload.FromIndex, payload.FromIndex+payload.ProcessedCount)
	if err != nil {
		return err
	}
	for i := range covered {
		pb := &covered[i]
		if pb.Finalized {
			continue
		}
		won := price >= pb.PriceMin && price <= pb.PriceMax
		pb.Finalized = true
		pb.Won = won
		pb.ActualPrice = &price
		if err := r.SaveProjectedBet(ctx, pb); err != nil {
			return err
		}
		if won {
			stats, err := loadUserStats(ctx, r, pb.Bettor)
			if err != nil {
				return err
			}
			stats.TotalWon++
			if err := r.SaveUserStats(ctx, stats); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Projector) applyFeeCollected(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	var payload market.FeeCollectedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	return r.UpsertFee(ctx, &models.Fee{
		EventID: evt.ID,
		BetID:   payload.BetID,
		Bettor:  payload.Bettor,
		Amount:  payload.Amount,
	})
}

func (p *Projector) applyAggregationCompleted(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	var payload market.AggregationCompletedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	bucket, err := loadProjectedBucket(ctx, r, payload.Bucket)
	if err != nil {
		return err
	}
	bucket.AggregationComplete = true
	if payload.TotalBets > bucket.TotalBets {
		bucket.TotalBets = payload.TotalBets
	}
	return r.SaveProjectedBucket(ctx, bucket)
}

func (p *Projector) applyBucketPriceSet(ctx context.Context, r repository.Repository, evt *models.MarketEvent) error {
	var payload market.BucketPriceSetPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	bucket, err := loadProjectedBucket(ctx, r, payload.Bucket)
	if err != nil {
		return err
	}
	price := payload.Price
	bucket.ResolvedPrice = &price
	return r.SaveProjectedBucket(ctx, bucket)
}

// projectedBetOrFallback returns the projected row, reconstructing it from
// the authoritative bet when the placement event was lost or compacted away.
func (p *Projector) projectedBetOrFallback(ctx context.Context, r repository.Repository, betID uint64) (*models.ProjectedBet, error) {
	pb, err := r.GetProjectedBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if pb != nil {
		return pb, nil
	}

	bet, err := r.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet == nil {
		return nil, nil
	}
	pb = &models.ProjectedBet{
		BetID:           bet.ID,
		Bettor:          bet.Bettor,
		Stake:           bet.Stake,
		PriceMin:        bet.PriceMin,
		PriceMax:        bet.PriceMax,
		TargetTimestamp: bet.TargetTimestamp,
		Bucket:          bet.Bucket,
		BucketIndex:     bet.BucketIndex,
		QualityBps:      bet.QualityBps,
		Weight:          bet.Weight,
		Payout:          zeroAmount(),
	}
	if err := r.SaveProjectedBet(ctx, pb); err != nil {
		return nil, err
	}
	p.Logger.Info("rebuilt projected bet from authoritative row", zap.Uint64("bet_id", betID))
	return pb, nil
}

func loadProjectedBucket(ctx context.Context, r repository.Repository, id int64) (*models.ProjectedBucket, error) {
	bucket, err := r.GetProjectedBucket(ctx, id)
	if err != nil {
		return nil, err
	}
	if bucket == nil {
		bucket = &models.ProjectedBucket{ID: id, TotalWinningWeight: zeroAmount()}
	}
	return bucket, nil
}

func loadUserStats(ctx context.Context, r repository.Repository, address string) (*models.UserStats, error) {
	stats, err := r.GetUserStats(ctx, address)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &models.UserStats{
			Address:     address,
			TotalStaked: zeroAmount(),
			TotalPayout: zeroAmount(),
		}
	}
	return stats, nil
}

func zeroAmount() decimal.Decimal {
	return decimal.Zero
}
