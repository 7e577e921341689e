package market

import (
	"time"

	"github.com/shopspring/decimal"

	"torchmarket/internal/config"
)

const bpsScale = 10000

// QualityParams are the fixed-point inputs of the weight formula. There is
// exactly one formula; placement and simulation both go through it.
type QualityParams struct {
	SharpnessRefBps int64
	SharpnessMaxBps int64
	SharpnessMinBps int64
	TimeBaseBps     int64
	TimePerDayBps   int64
	TimeMaxBps      int64
}

func QualityParamsFromConfig(cfg config.MarketConfig) QualityParams {
	return QualityParams{
		SharpnessRefBps: cfg.SharpnessRefBps,
		SharpnessMaxBps: cfg.SharpnessMaxBps,
		SharpnessMinBps: cfg.SharpnessMinBps,
		TimeBaseBps:     cfg.TimeBaseBps,
		TimePerDayBps:   cfg.TimePerDayBps,
		TimeMaxBps:      cfg.TimeMaxBps,
	}
}

// SharpnessBps rewards narrow ranges: maxBps * refBps / (refBps + width),
// clamped to [SharpnessMinBps, SharpnessMaxBps]. Monotonically decreasing in
// the range width; integer math truncates.
func (p QualityParams) SharpnessBps(priceMin, priceMax int64) int64 {
	width := priceMax - priceMin
	if width < 0 {
		width = 0
	}
	s := p.SharpnessMaxBps * p.SharpnessRefBps / (p.SharpnessRefBps + width)
	if s < p.SharpnessMinBps {
		return p.SharpnessMinBps
	}
	if s > p.SharpnessMaxBps {
		return p.SharpnessMaxBps
	}
	return s
}

// TimeBps rewards long lead times: baseBps + leadSeconds*perDayBps/86400,
// capped at TimeMaxBps. Leads below the policy minimum are rejected at
// placement, not scored here.
func (p QualityParams) TimeBps(lead time.Duration) int64 {
	secs := int64(lead / time.Second)
	if secs < 0 {
		secs = 0
	}
	t := p.TimeBaseBps + secs*p.TimePerDayBps/86400
	if t > p.TimeMaxBps {
		return p.TimeMaxBps
	}
	return t
}

// QualityBps combines sharpness and lead time multiplicatively, truncating
// toward zero so rounding always favors the pool.
func (p QualityParams) QualityBps(priceMin, priceMax int64, lead time.Duration) int64 {
	return p.SharpnessBps(priceMin, priceMax) * p.TimeBps(lead) / bpsScale
}

// ComputeWeight maps the net stake and quality score to the bet's share of
// the losing pool: stakeNet * quality / 10000 truncated, floored at 1 so a
// valid positive stake can never carry zero weight (a sole winner must not
// divide by zero at claim time).
func ComputeWeight(stakeNet decimal.Decimal, qualityBps int64) decimal.Decimal {
	w, _ := stakeNet.Mul(decimal.NewFromInt(qualityBps)).QuoRem(decimal.NewFromInt(bpsScale), 0)
	if w.Sign() <= 0 && stakeNet.Sign() > 0 {
		return decimal.NewFromInt(1)
	}
	return w
}

// FeeFor computes the placement fee: stake * feeBps / 10000, truncated.
func FeeFor(stake decimal.Decimal, feeBps int64) decimal.Decimal {
	f, _ := stake.Mul(decimal.NewFromInt(feeBps)).QuoRem(decimal.NewFromInt(bpsScale), 0)
	return f
}
