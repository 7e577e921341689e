package projection

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"torchmarket/internal/models"
	"torchmarket/internal/repository"
)

// stubRepo is a test-only in-memory repository.Repository. It backs both
// the settlement engine producing events and the projector consuming them,
// so the tests exercise the real log round trip.
type stubRepo struct {
	bets        map[uint64]models.Bet
	nextBetID   uint64
	buckets     map[int64]models.Bucket
	events      []models.MarketEvent
	cursors     map[string]models.ProjectionCursor
	projBets    map[uint64]models.ProjectedBet
	projBuckets map[int64]models.ProjectedBucket
	stats       map[string]models.UserStats
	fees        map[uint64]models.Fee
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		bets:        map[uint64]models.Bet{},
		buckets:     map[int64]models.Bucket{},
		cursors:     map[string]models.ProjectionCursor{},
		projBets:    map[uint64]models.ProjectedBet{},
		projBuckets: map[int64]models.ProjectedBucket{},
		stats:       map[string]models.UserStats{},
		fees:        map[uint64]models.Fee{},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(r repository.Repository) error) error {
	return fn(s)
}

func (s *stubRepo) CreateBet(ctx context.Context, item *models.Bet) error {
	s.nextBetID++
	item.ID = s.nextBetID
	s.bets[item.ID] = *item
	return nil
}

func (s *stubRepo) SaveBet(ctx context.Context, item *models.Bet) error {
	s.bets[item.ID] = *item
	return nil
}

func (s *stubRepo) GetBet(ctx context.Context, id uint64) (*models.Bet, error) {
	item, ok := s.bets[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *stubRepo) GetBetForUpdate(ctx context.Context, id uint64) (*models.Bet, error) {
	return s.GetBet(ctx, id)
}

func (s *stubRepo) ListBetsByBucketRange(ctx context.Context, bucket int64, fromIndex, toIndex int) ([]models.Bet, error) {
	var out []models.Bet
	for _, item := range s.bets {
		if item.Bucket == bucket && item.BucketIndex >= fromIndex && item.BucketIndex < toIndex {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketIndex < out[j].BucketIndex })
	return out, nil
}

func (s *stubRepo) CreateBucket(ctx context.Context, item *models.Bucket) error {
	if _, ok := s.buckets[item.ID]; ok {
		return nil
	}
	s.buckets[item.ID] = *item
	return nil
}

func (s *stubRepo) SaveBucket(ctx context.Context, item *models.Bucket) error {
	s.buckets[item.ID] = *item
	return nil
}

func (s *stubRepo) GetBucket(ctx context.Context, id int64) (*models.Bucket, error) {
	item, ok := s.buckets[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *stubRepo) GetBucketForUpdate(ctx context.Context, id int64) (*models.Bucket, error) {
	return s.GetBucket(ctx, id)
}

func (s *stubRepo) ListPricedIncompleteBuckets(ctx context.Context, limit int) ([]models.Bucket, error) {
	return nil, nil
}

func (s *stubRepo) AppendEvent(ctx context.Context, item *models.MarketEvent) error {
	item.ID = uint64(len(s.events) + 1)
	s.events = append(s.events, *item)
	return nil
}

func (s *stubRepo) ListEventsAfter(ctx context.Context, afterID uint64, limit int) ([]models.MarketEvent, error) {
	var out []models.MarketEvent
	for _, item := range s.events {
		if item.ID > afterID {
			out = append(out, item)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) GetProjectionCursor(ctx context.Context, name string) (*models.ProjectionCursor, error) {
	item, ok := s.cursors[name]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *stubRepo) SaveProjectionCursor(ctx context.Context, item *models.ProjectionCursor) error {
	s.cursors[item.Name] = *item
	return nil
}

func (s *stubRepo) GetProjectedBet(ctx context.Context, betID uint64) (*models.ProjectedBet, error) {
	item, ok := s.projBets[betID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *stubRepo) SaveProjectedBet(ctx context.Context, item *models.ProjectedBet) error {
	s.projBets[item.BetID] = *item
	return nil
}

func (s *stubRepo) ListProjectedBetsByBucketRange(ctx context.Context, bucket int64, fromIndex, toIndex int) ([]models.ProjectedBet, error) {
	var out []models.ProjectedBet
	for _, item := range s.projBets {
		if item.Bucket == bucket && item.BucketIndex >= fromIndex && item.BucketIndex < toIndex {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketIndex < out[j].BucketIndex })
	return out, nil
}

func (s *stubRepo) ListProjectedBets(ctx context.Context, params repository.ListProjectedBetsParams) ([]models.ProjectedBet, error) {
	return nil, nil
}

func (s *stubRepo) CountProjectedBets(ctx context.Context, params repository.ListProjectedBetsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetProjectedBucket(ctx context.Context, id int64) (*models.ProjectedBucket, error) {
	item, ok := s.projBuckets[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *stubRepo) SaveProjectedBucket(ctx context.Context, item *models.ProjectedBucket) error {
	s.projBuckets[item.ID] = *item
	return nil
}

func (s *stubRepo) ListProjectedBucketsByIDs(ctx context.Context, ids []int64) ([]models.ProjectedBucket, error) {
	return nil, nil
}

func (s *stubRepo) GetUserStats(ctx context.Context, address string) (*models.UserStats, error) {
	item, ok := s.stats[address]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *stubRepo) SaveUserStats(ctx context.Context, item *models.UserStats) error {
	s.stats[item.Address] = *item
	return nil
}

func (s *stubRepo) UpsertFee(ctx context.Context, item *models.Fee) error {
	if _, ok := s.fees[item.EventID]; ok {
		return nil
	}
	s.fees[item.EventID] = *item
	return nil
}

func (s *stubRepo) SumFees(ctx context.Context) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, item := range s.fees {
		sum = sum.Add(item.Amount)
	}
	return sum, nil
}

func (s *stubRepo) Overview(ctx context.Context) (repository.Overview, error) {
	return repository.Overview{}, nil
}
