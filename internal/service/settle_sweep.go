package service

import (
	"context"

	"go.uber.org/zap"

	"torchmarket/internal/config"
	"torchmarket/internal/market"
	"torchmarket/internal/repository"
)

// SettleSweepService drives batch aggregation forward on priced buckets so
// settlement finishes even when nobody calls the process endpoint. Each
// sweep touches a bounded number of buckets; a racing manual call is
// harmless because ProcessBatch no-ops once the bucket is complete.
type SettleSweepService struct {
	Repo   repository.Repository
	Engine *market.Engine
	Logger *zap.Logger
	Config config.SettlementConfig
}

func (s *SettleSweepService) SweepOnce(ctx context.Context) {
	if s == nil || s.Repo == nil || s.Engine == nil {
		return
	}
	buckets, err := s.Repo.ListPricedIncompleteBuckets(ctx, s.Config.SweepBuckets)
	if err != nil {
		s.Logger.Warn("sweep bucket scan failed", zap.Error(err))
		return
	}
	for _, bucket := range buckets {
		result, err := s.Engine.ProcessBatch(ctx, bucket.ID, s.Config.SweepMaxCount)
		if err != nil {
			s.Logger.Warn("sweep batch failed",
				zap.Int64("bucket", bucket.ID), zap.Error(err))
			continue
		}
		if result.ProcessedCount > 0 {
			s.Logger.Info("sweep advanced bucket",
				zap.Int64("bucket", bucket.ID),
				zap.Int("processed", result.ProcessedCount),
				zap.Bool("complete", result.Complete),
			)
		}
	}
}
