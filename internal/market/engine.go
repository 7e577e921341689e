package market

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"torchmarket/internal/config"
	"torchmarket/internal/models"
	"torchmarket/internal/repository"
)

// Engine is the authoritative settlement core: bet placement, price
// resolution, batched winner aggregation, and claims. Every operation runs
// as one bounded transaction; racing external callers are serialized by row
// locks on the bucket or bet they touch.
type Engine struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.MarketConfig

	// Now is overridable for tests; defaults to wall clock UTC.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) params() QualityParams {
	return QualityParamsFromConfig(e.Config)
}

// BucketIndex discretizes a target timestamp into its settlement bucket.
func (e *Engine) BucketIndex(targetTimestamp int64) int64 {
	return targetTimestamp / e.Config.BucketSeconds
}

// bucketEnd is the first instant at which the bucket's window has elapsed.
func (e *Engine) bucketEnd(bucket int64) int64 {
	return (bucket + 1) * e.Config.BucketSeconds
}

// lockOrCreateBucket returns the bucket row under lock, creating it when
// absent. The create is conflict-tolerant and followed by a locked re-read,
// so two racing first bets on a new bucket both end up serialized on the
// same row instead of one failing on the unique key.
func lockOrCreateBucket(ctx context.Context, r repository.Repository, id int64) (*models.Bucket, error) {
	bucket, err := r.GetBucketForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if bucket != nil {
		return bucket, nil
	}
	if err := r.CreateBucket(ctx, &models.Bucket{
		ID:                 id,
		TotalStaked:        decimal.Zero,
		TotalWinningWeight: decimal.Zero,
	}); err != nil {
		return nil, err
	}
	bucket, err = r.GetBucketForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if bucket == nil {
		return nil, ErrBucketNotFound
	}
	return bucket, nil
}

type PlaceBetParams struct {
	Bettor          string
	TargetTimestamp int64
	PriceMin        int64
	PriceMax        int64
	Stake           decimal.Decimal
}

// placement is the shared evaluation used by both PlaceBet and
// SimulatePlaceBet, so the preview can never drift from execution.
type placement struct {
	Fee          decimal.Decimal
	StakeNet     decimal.Decimal
	SharpnessBps int64
	TimeBps      int64
	QualityBps   int64
	Weight       decimal.Decimal
	Bucket       int64
}

func (e *Engine) evaluate(now time.Time, targetTimestamp, priceMin, priceMax int64, stake decimal.Decimal) (placement, error) {
	if priceMin < 0 || priceMin >= priceMax {
		return placement{}, ErrPriceRangeInvalid
	}
	if stake.Sign() <= 0 || !stake.Equal(stake.Truncate(0)) {
		return placement{}, ErrStakeInvalid
	}
	lead := time.Duration(targetTimestamp-now.Unix()) * time.Second
	if lead < e.Config.MinLeadTime {
		return placement{}, ErrLeadTimeTooShort
	}

	p := e.params()
	fee := FeeFor(stake, e.Config.FeeBps)
	stakeNet := stake.Sub(fee)
	sharpness := p.SharpnessBps(priceMin, priceMax)
	timeBps := p.TimeBps(lead)
	quality := sharpness * timeBps / bpsScale

	return placement{
		Fee:          fee,
		StakeNet:     stakeNet,
		SharpnessBps: sharpness,
		TimeBps:      timeBps,
		QualityBps:   quality,
		Weight:       ComputeWeight(stakeNet, quality),
		Bucket:       e.BucketIndex(targetTimestamp),
	}, nil
}

// PlaceBet validates, charges the fee, appends the bet to its bucket and
// emits BetPlaced (+ FeeCollected). The bucket row lock makes the
// TotalBets read and the BucketIndex assignment atomic.
func (e *Engine) PlaceBet(ctx context.Context, params PlaceBetParams) (*models.Bet, error) {
	if strings.TrimSpace(params.Bettor) == "" {
		return nil, ErrBettorRequired
	}
	now := e.now()
	pl, err := e.evaluate(now, params.TargetTimestamp, params.PriceMin, params.PriceMax, params.Stake)
	if err != nil {
		return nil, err
	}

	var bet *models.Bet
	err = e.Repo.InTx(ctx, func(r repository.Repository) error {
		bucket, err := lockOrCreateBucket(ctx, r, pl.Bucket)
		if err != nil {
			return err
		}
		if bucket.ResolvedPrice != nil {
			// Unreachable while min lead time > bucket width, kept as a guard.
			return ErrPriceAlreadySet
		}

		bet = &models.Bet{
			Bettor:          strings.TrimSpace(params.Bettor),
			Stake:           params.Stake,
			Fee:             pl.Fee,
			StakeNet:        pl.StakeNet,
			PriceMin:        params.PriceMin,
			PriceMax:        params.PriceMax,
			TargetTimestamp: params.TargetTimestamp,
			PlacedAt:        now,
			Bucket:          pl.Bucket,
			BucketIndex:     bucket.TotalBets,
			SharpnessBps:    pl.SharpnessBps,
			TimeBps:         pl.TimeBps,
			QualityBps:      pl.QualityBps,
			Weight:          pl.Weight,
			Payout:          decimal.Zero,
		}
		if err := r.CreateBet(ctx, bet); err != nil {
			return err
		}

		bucket.TotalBets++
		bucket.TotalStaked = bucket.TotalStaked.Add(pl.StakeNet)
		if err := r.SaveBucket(ctx, bucket); err != nil {
			return err
		}

		placed, err := newEvent(EventBetPlaced, &bet.ID, &bet.Bucket, bet.Bettor, BetPlacedPayload{
			BetID:           bet.ID,
			Bettor:          bet.Bettor,
			Bucket:          bet.Bucket,
			BucketIndex:     bet.BucketIndex,
			Stake:           bet.Stake,
			StakeNet:        bet.StakeNet,
			PriceMin:        bet.PriceMin,
			PriceMax:        bet.PriceMax,
			TargetTimestamp: bet.TargetTimestamp,
			QualityBps:      bet.QualityBps,
			Weight:          bet.Weight,
		})
		if err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, placed); err != nil {
			return err
		}

		if pl.Fee.Sign() > 0 {
			feeEv, err := newEvent(EventFeeCollected, &bet.ID, &bet.Bucket, bet.Bettor, FeeCollectedPayload{
				BetID:  bet.ID,
				Bettor: bet.Bettor,
				Amount: pl.Fee,
			})
			if err != nil {
				return err
			}
			if err := r.AppendEvent(ctx, feeEv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("bet placed",
			zap.Uint64("bet_id", bet.ID),
			zap.String("bettor", bet.Bettor),
			zap.Int64("bucket", bet.Bucket),
			zap.String("stake", bet.Stake.String()),
		)
	}
	return bet, nil
}

// Simulation mirrors the placeBet math without committing funds.
type Simulation struct {
	Fee          decimal.Decimal `json:"fee"`
	StakeNet     decimal.Decimal `json:"stake_net"`
	SharpnessBps int64           `json:"sharpness_bps"`
	TimeBps      int64           `json:"time_bps"`
	QualityBps   int64           `json:"quality_bps"`
	Weight       decimal.Decimal `json:"weight"`
	Bucket       int64           `json:"bucket"`
	IsValid      bool            `json:"is_valid"`
	ErrorMessage string          `json:"error_message"`
}

// SimulatePlaceBet previews a placement using the exact execution path.
// Invalid inputs come back as IsValid=false with the rejection reason
// instead of an error.
func (e *Engine) SimulatePlaceBet(targetTimestamp, priceMin, priceMax int64, stake decimal.Decimal) Simulation {
	pl, err := e.evaluate(e.now(), targetTimestamp, priceMin, priceMax, stake)
	if err != nil {
		return Simulation{
			Fee:      decimal.Zero,
			StakeNet: decimal.Zero,
			Weight:   decimal.Zero,

			IsValid:      false,
			ErrorMessage: err.Error(),
		}
	}
	return Simulation{
		Fee:          pl.Fee,
		StakeNet:     pl.StakeNet,
		SharpnessBps: pl.SharpnessBps,
		TimeBps:      pl.TimeBps,
		QualityBps:   pl.QualityBps,
		Weight:       pl.Weight,
		Bucket:       pl.Bucket,
		IsValid:      true,
	}
}

// SetResolvedPrice attaches the oracle price to a bucket, once, after its
// window has elapsed. A retried call fails with price_already_set rather
// than silently overwriting. An empty bucket completes immediately.
func (e *Engine) SetResolvedPrice(ctx context.Context, bucketID int64, price int64) error {
	if price < 0 {
		return ErrPriceInvalid
	}
	now := e.now()
	if now.Unix() < e.bucketEnd(bucketID) {
		return ErrWindowNotElapsed
	}

	return e.Repo.InTx(ctx, func(r repository.Repository) error {
		bucket, err := lockOrCreateBucket(ctx, r, bucketID)
		if err != nil {
			return err
		}
		if bucket.ResolvedPrice != nil {
			return ErrPriceAlreadySet
		}

		bucket.ResolvedPrice = &price
		bucket.ResolvedAt = &now
		if bucket.TotalBets == 0 {
			// 0 >= 0: nothing to aggregate.
			bucket.AggregationComplete = true
		}
		if err := r.SaveBucket(ctx, bucket); err != nil {
			return err
		}

		ev, err := newEvent(EventBucketPriceSet, nil, &bucket.ID, "", BucketPriceSetPayload{
			Bucket: bucket.ID,
			Price:  price,
		})
		if err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, ev); err != nil {
			return err
		}

		if bucket.AggregationComplete {
			done, err := newEvent(EventAggregationCompleted, nil, &bucket.ID, "", AggregationCompletedPayload{
				Bucket:    bucket.ID,
				TotalBets: bucket.TotalBets,
			})
			if err != nil {
				return err
			}
			return r.AppendEvent(ctx, done)
		}
		return nil
	})
}

// SetResolvedPriceForTimestamp resolves the bucket for a raw target
// timestamp, matching the original by-timestamp admin surface.
func (e *Engine) SetResolvedPriceForTimestamp(ctx context.Context, targetTimestamp int64, price int64) (int64, error) {
	bucket := e.BucketIndex(targetTimestamp)
	return bucket, e.SetResolvedPrice(ctx, bucket, price)
}

type BatchResult struct {
	Bucket             int64           `json:"bucket"`
	ProcessedCount     int             `json:"processed_count"`
	WinningWeightDelta decimal.Decimal `json:"winning_weight_delta"`
	NextProcessIndex   int             `json:"next_process_index"`
	Complete           bool            `json:"complete"`
}

// ProcessBatch finalizes up to maxCount bets starting at the bucket's
// cursor. Bounded per call and resumable: partial progress is durable, a
// racing caller observes the advanced cursor, and a completed bucket
// no-ops. Callable by anyone.
func (e *Engine) ProcessBatch(ctx context.Context, bucketID int64, maxCount int) (BatchResult, error) {
	if maxCount <= 0 {
		maxCount = e.Config.DefaultBatchSize
	}
	if e.Config.MaxBatchSize > 0 && maxCount > e.Config.MaxBatchSize {
		maxCount = e.Config.MaxBatchSize
	}

	var result BatchResult
	err := e.Repo.InTx(ctx, func(r repository.Repository) error {
		bucket, err := r.GetBucketForUpdate(ctx, bucketID)
		if err != nil {
			return err
		}
		if bucket == nil {
			return ErrBucketNotFound
		}
		if bucket.ResolvedPrice == nil {
			return ErrPriceNotSet
		}
		if bucket.AggregationComplete {
			result = BatchResult{
				Bucket:             bucketID,
				WinningWeightDelta: decimal.Zero,
				NextProcessIndex:   bucket.NextProcessIndex,
				Complete:           true,
			}
			return nil
		}

		from := bucket.NextProcessIndex
		to := from + maxCount
		if to > bucket.TotalBets {
			to = bucket.TotalBets
		}

		bets, err := r.ListBetsByBucketRange(ctx, bucket.ID, from, to)
		if err != nil {
			return err
		}

		price := *bucket.ResolvedPrice
		delta := decimal.Zero
		for i := range bets {
			bet := &bets[i]
			won := price >= bet.PriceMin && price <= bet.PriceMax
			bet.Finalized = true
			bet.Won = won
			bet.ActualPrice = &price
			if won {
				delta = delta.Add(bet.Weight)
			}
			if err := r.SaveBet(ctx, bet); err != nil {
				return err
			}
			fin, err := newEvent(EventBetFinalized, &bet.ID, &bet.Bucket, bet.Bettor, BetFinalizedPayload{
				BetID:       bet.ID,
				Bettor:      bet.Bettor,
				Bucket:      bet.Bucket,
				Won:         won,
				ActualPrice: price,
				Weight:      bet.Weight,
			})
			if err != nil {
				return err
			}
			if err := r.AppendEvent(ctx, fin); err != nil {
				return err
			}
		}

		bucket.NextProcessIndex = to
		bucket.TotalWinningWeight = bucket.TotalWinningWeight.Add(delta)
		if bucket.NextProcessIndex >= bucket.TotalBets {
			bucket.AggregationComplete = true
		}
		if err := r.SaveBucket(ctx, bucket); err != nil {
			return err
		}

		batch, err := newEvent(EventBatchProcessed, nil, &bucket.ID, "", BatchProcessedPayload{
			Bucket:             bucket.ID,
			FromIndex:          from,
			ProcessedCount:     to - from,
			WinningWeightDelta: delta,
		})
		if err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, batch); err != nil {
			return err
		}

		if bucket.AggregationComplete {
			done, err := newEvent(EventAggregationCompleted, nil, &bucket.ID, "", AggregationCompletedPayload{
				Bucket:    bucket.ID,
				TotalBets: bucket.TotalBets,
			})
			if err != nil {
				return err
			}
			if err := r.AppendEvent(ctx, done); err != nil {
				return err
			}
		}

		result = BatchResult{
			Bucket:             bucketID,
			ProcessedCount:     to - from,
			WinningWeightDelta: delta,
			NextProcessIndex:   bucket.NextProcessIndex,
			Complete:           bucket.AggregationComplete,
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	if e.Logger != nil && result.ProcessedCount > 0 {
		e.Logger.Info("batch processed",
			zap.Int64("bucket", result.Bucket),
			zap.Int("processed", result.ProcessedCount),
			zap.Bool("complete", result.Complete),
		)
	}
	return result, nil
}

// ClaimBet pays out a finalized, won, unclaimed bet exactly once:
// payout = weight * totalStaked / totalWinningWeight, truncated toward zero.
// Truncation dust stays in the pool. The claimed flag is set before any
// transfer concern, and the bet row lock makes the check-and-set atomic so
// a racing second claim fails with already_claimed.
func (e *Engine) ClaimBet(ctx context.Context, betID uint64, claimant string) (decimal.Decimal, error) {
	payout := decimal.Zero
	err := e.Repo.InTx(ctx, func(r repository.Repository) error {
		bet, err := r.GetBetForUpdate(ctx, betID)
		if err != nil {
			return err
		}
		if bet == nil {
			return ErrBetNotFound
		}
		if claimant != "" && bet.Bettor != strings.TrimSpace(claimant) {
			return ErrNotBetOwner
		}
		if !bet.Finalized {
			return ErrBetNotResolved
		}
		if !bet.Won {
			return ErrBetLost
		}
		if bet.Claimed {
			return ErrAlreadyClaimed
		}

		bucket, err := r.GetBucket(ctx, bet.Bucket)
		if err != nil {
			return err
		}
		if bucket == nil {
			return ErrBucketNotFound
		}
		if !bucket.AggregationComplete {
			// TotalWinningWeight is still growing; the share is not final.
			return ErrBetNotResolved
		}

		// TotalWinningWeight > 0 is structural here: a won bet contributed
		// its own weight, and weights are floored at 1.
		payout, _ = bet.Weight.Mul(bucket.TotalStaked).QuoRem(bucket.TotalWinningWeight, 0)

		bet.Claimed = true
		bet.Payout = payout
		if err := r.SaveBet(ctx, bet); err != nil {
			return err
		}

		ev, err := newEvent(EventBetClaimed, &bet.ID, &bet.Bucket, bet.Bettor, BetClaimedPayload{
			BetID:  bet.ID,
			Bettor: bet.Bettor,
			Payout: payout,
		})
		if err != nil {
			return err
		}
		return r.AppendEvent(ctx, ev)
	})
	if err != nil {
		return decimal.Zero, err
	}

	if e.Logger != nil {
		e.Logger.Info("bet claimed",
			zap.Uint64("bet_id", betID),
			zap.String("payout", payout.String()),
		)
	}
	return payout, nil
}

// GetBet returns the full authoritative bet record.
func (e *Engine) GetBet(ctx context.Context, betID uint64) (*models.Bet, error) {
	bet, err := e.Repo.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet == nil {
		return nil, ErrBetNotFound
	}
	return bet, nil
}

// GetBucketInfo returns the bucket's aggregation state.
func (e *Engine) GetBucketInfo(ctx context.Context, bucketID int64) (*models.Bucket, error) {
	bucket, err := e.Repo.GetBucket(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	if bucket == nil {
		return nil, ErrBucketNotFound
	}
	return bucket, nil
}

type BucketStats struct {
	Bucket             int64           `json:"bucket"`
	TotalBets          int             `json:"total_bets"`
	TotalStaked        decimal.Decimal `json:"total_staked"`
	TotalWinningWeight decimal.Decimal `json:"total_winning_weight"`
	ResolvedPrice      *int64          `json:"resolved_price"`
	WindowStart        int64           `json:"window_start"`
	WindowEnd          int64           `json:"window_end"`
}

// GetBucketStats returns the bucket's pool aggregates.
func (e *Engine) GetBucketStats(ctx context.Context, bucketID int64) (BucketStats, error) {
	bucket, err := e.GetBucketInfo(ctx, bucketID)
	if err != nil {
		return BucketStats{}, err
	}
	return BucketStats{
		Bucket:             bucket.ID,
		TotalBets:          bucket.TotalBets,
		TotalStaked:        bucket.TotalStaked,
		TotalWinningWeight: bucket.TotalWinningWeight,
		ResolvedPrice:      bucket.ResolvedPrice,
		WindowStart:        bucket.ID * e.Config.BucketSeconds,
		WindowEnd:          e.bucketEnd(bucket.ID),
	}, nil
}
