package gormrepository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"torchmarket/internal/models"
	"torchmarket/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InTx binds a fresh Store to the transaction so nested repository calls
// share it; row locks taken inside are held until commit.
func (s *Store) InTx(ctx context.Context, fn func(r repository.Repository) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// --- Bet registry -----------------------------------------------------------

func (s *Store) CreateBet(ctx context.Context, item *models.Bet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) SaveBet(ctx context.Context, item *models.Bet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) GetBet(ctx context.Context, id uint64) (*models.Bet, error) {
	return s.getBet(ctx, id, false)
}

func (s *Store) GetBetForUpdate(ctx context.Context, id uint64) (*models.Bet, error) {
	return s.getBet(ctx, id, true)
}

func (s *Store) getBet(ctx context.Context, id uint64, lock bool) (*models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item models.Bet
	if err := query.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListBetsByBucketRange(ctx context.Context, bucket int64, fromIndex, toIndex int) ([]models.Bet, error) {
	if s == nil || s.db == nil || toIndex <= fromIndex {
		return nil, nil
	}
	var items []models.Bet
	if err := s.db.WithContext(ctx).
		Where("bucket = ?", bucket).
		Where("bucket_index >= ? AND bucket_index < ?", fromIndex, toIndex).
		Order("bucket_index asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Bucket ledger ----------------------------------------------------------

// CreateBucket tolerates a concurrent create of the same bucket; callers
// re-read under lock afterwards.
func (s *Store) CreateBucket(ctx context.Context, item *models.Bucket) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) SaveBucket(ctx context.Context, item *models.Bucket) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) GetBucket(ctx context.Context, id int64) (*models.Bucket, error) {
	return s.getBucket(ctx, id, false)
}

func (s *Store) GetBucketForUpdate(ctx context.Context, id int64) (*models.Bucket, error) {
	return s.getBucket(ctx, id, true)
}

func (s *Store) getBucket(ctx context.Context, id int64, lock bool) (*models.Bucket, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item models.Bucket
	if err := query.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPricedIncompleteBuckets(ctx context.Context, limit int) ([]models.Bucket, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var items []models.Bucket
	if err := s.db.WithContext(ctx).
		Where("resolved_price IS NOT NULL").
		Where("aggregation_complete = ?", false).
		Order("id asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Event log --------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, item *models.MarketEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListEventsAfter(ctx context.Context, afterID uint64, limit int) ([]models.MarketEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 200
	}
	var items []models.MarketEvent
	if err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Projection cursor ------------------------------------------------------

func (s *Store) GetProjectionCursor(ctx context.Context, name string) (*models.ProjectionCursor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ProjectionCursor
	if err := s.db.WithContext(ctx).First(&item, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveProjectionCursor(ctx context.Context, item *models.ProjectionCursor) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_event_id", "updated_at"}),
	}).Create(item).Error
}

// --- Projection read models -------------------------------------------------

func (s *Store) GetProjectedBet(ctx context.Context, betID uint64) (*models.ProjectedBet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ProjectedBet
	if err := s.db.WithContext(ctx).First(&item, "bet_id = ?", betID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveProjectedBet(ctx context.Context, item *models.ProjectedBet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bet_id"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) ListProjectedBetsByBucketRange(ctx context.Context, bucket int64, fromIndex, toIndex int) ([]models.ProjectedBet, error) {
	if s == nil || s.db == nil || toIndex <= fromIndex {
		return nil, nil
	}
	var items []models.ProjectedBet
	if err := s.db.WithContext(ctx).
		Where("bucket = ?", bucket).
		Where("bucket_index >= ? AND bucket_index < ?", fromIndex, toIndex).
		Order("bucket_index asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListProjectedBets(ctx context.Context, params repository.ListProjectedBetsParams) ([]models.ProjectedBet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.applyProjectedBetFilters(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "bet_id")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.ProjectedBet
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountProjectedBets(ctx context.Context, params repository.ListProjectedBetsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	if err := s.applyProjectedBetFilters(ctx, params).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) applyProjectedBetFilters(ctx context.Context, params repository.ListProjectedBetsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.ProjectedBet{})
	if params.Bettor != nil && strings.TrimSpace(*params.Bettor) != "" {
		query = query.Where("bettor = ?", strings.TrimSpace(*params.Bettor))
	}
	if params.FromTs != nil {
		query = query.Where("target_timestamp >= ?", *params.FromTs)
	}
	if params.ToTs != nil {
		query = query.Where("target_timestamp < ?", *params.ToTs)
	}
	return query
}

func (s *Store) GetProjectedBucket(ctx context.Context, id int64) (*models.ProjectedBucket, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ProjectedBucket
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveProjectedBucket(ctx context.Context, item *models.ProjectedBucket) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) ListProjectedBucketsByIDs(ctx context.Context, ids []int64) ([]models.ProjectedBucket, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.ProjectedBucket
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetUserStats(ctx context.Context, address string) (*models.UserStats, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.UserStats
	if err := s.db.WithContext(ctx).First(&item, "address = ?", address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveUserStats(ctx context.Context, item *models.UserStats) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Address) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		UpdateAll: true,
	}).Create(item).Error
}

func (s *Store) UpsertFee(ctx context.Context, item *models.Fee) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) SumFees(ctx context.Context) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var raw *string
	if err := s.db.WithContext(ctx).
		Model(&models.Fee{}).
		Select("SUM(amount)").
		Scan(&raw).Error; err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	sum, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (s *Store) Overview(ctx context.Context) (repository.Overview, error) {
	if s == nil || s.db == nil {
		return repository.Overview{}, nil
	}
	out := repository.Overview{
		TotalStaked: decimal.Zero,
		TotalPayout: decimal.Zero,
		TotalFees:   decimal.Zero,
	}

	if err := s.db.WithContext(ctx).Model(&models.ProjectedBet{}).Count(&out.TotalBets).Error; err != nil {
		return out, err
	}
	if err := s.db.WithContext(ctx).Model(&models.UserStats{}).Count(&out.TotalUsers).Error; err != nil {
		return out, err
	}
	if err := s.db.WithContext(ctx).Model(&models.ProjectedBucket{}).Count(&out.TotalBuckets).Error; err != nil {
		return out, err
	}
	if err := s.db.WithContext(ctx).
		Model(&models.ProjectedBucket{}).
		Where("aggregation_complete = ?", true).
		Count(&out.CompleteBuckets).Error; err != nil {
		return out, err
	}

	var staked, payout *string
	if err := s.db.WithContext(ctx).
		Model(&models.UserStats{}).
		Select("SUM(total_staked)").
		Scan(&staked).Error; err != nil {
		return out, err
	}
	if staked != nil {
		if v, err := decimal.NewFromString(*staked); err == nil {
			out.TotalStaked = v
		}
	}
	if err := s.db.WithContext(ctx).
		Model(&models.UserStats{}).
		Select("SUM(total_payout)").
		Scan(&payout).Error; err != nil {
		return out, err
	}
	if payout != nil {
		if v, err := decimal.NewFromString(*payout); err == nil {
			out.TotalPayout = v
		}
	}

	fees, err := s.SumFees(ctx)
	if err != nil {
		return out, err
	}
	out.TotalFees = fees
	return out, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	switch column {
	case "bet_id", "target_timestamp", "bucket", "created_at", "updated_at":
	default:
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
