package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"torchmarket/internal/models"
)

// Repository is the persistence contract shared by the settlement engine and
// the projection. Getters return (nil, nil) when the row does not exist.
//
// InTx runs fn against a transaction-bound repository; every settlement
// operation executes inside one transaction so its check-and-update sequence
// is atomic. The ForUpdate getters take a row lock for the duration of the
// transaction, which serializes racing external callers on the same bucket
// or bet.
type Repository interface {
	InTx(ctx context.Context, fn func(r Repository) error) error

	// Bet registry (authoritative).
	CreateBet(ctx context.Context, item *models.Bet) error
	SaveBet(ctx context.Context, item *models.Bet) error
	GetBet(ctx context.Context, id uint64) (*models.Bet, error)
	GetBetForUpdate(ctx context.Context, id uint64) (*models.Bet, error)
	ListBetsByBucketRange(ctx context.Context, bucket int64, fromIndex, toIndex int) ([]models.Bet, error)

	// Bucket ledger (authoritative).
	CreateBucket(ctx context.Context, item *models.Bucket) error
	SaveBucket(ctx context.Context, item *models.Bucket) error
	GetBucket(ctx context.Context, id int64) (*models.Bucket, error)
	GetBucketForUpdate(ctx context.Context, id int64) (*models.Bucket, error)
	ListPricedIncompleteBuckets(ctx context.Context, limit int) ([]models.Bucket, error)

	// Event log (append-only; ID order is log order).
	AppendEvent(ctx context.Context, item *models.MarketEvent) error
	ListEventsAfter(ctx context.Context, afterID uint64, limit int) ([]models.MarketEvent, error)

	// Projection cursor.
	GetProjectionCursor(ctx context.Context, name string) (*models.ProjectionCursor, error)
	SaveProjectionCursor(ctx context.Context, item *models.ProjectionCursor) error

	// Projection read models.
	GetProjectedBet(ctx context.Context, betID uint64) (*models.ProjectedBet, error)
	SaveProjectedBet(ctx context.Context, item *models.ProjectedBet) error
	ListProjectedBetsByBucketRange(ctx context.Context, bucket int64, fromIndex, toIndex int) ([]models.ProjectedBet, error)
	ListProjectedBets(ctx context.Context, params ListProjectedBetsParams) ([]models.ProjectedBet, error)
	CountProjectedBets(ctx context.Context, params ListProjectedBetsParams) (int64, error)

	GetProjectedBucket(ctx context.Context, id int64) (*models.ProjectedBucket, error)
	SaveProjectedBucket(ctx context.Context, item *models.ProjectedBucket) error
	ListProjectedBucketsByIDs(ctx context.Context, ids []int64) ([]models.ProjectedBucket, error)

	GetUserStats(ctx context.Context, address string) (*models.UserStats, error)
	SaveUserStats(ctx context.Context, item *models.UserStats) error

	UpsertFee(ctx context.Context, item *models.Fee) error
	SumFees(ctx context.Context) (decimal.Decimal, error)

	Overview(ctx context.Context) (Overview, error)
}

type ListProjectedBetsParams struct {
	Bettor *string
	FromTs *int64
	ToTs   *int64

	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

// Overview is the aggregate-counts read for the UI dashboard.
type Overview struct {
	TotalBets       int64           `json:"total_bets"`
	TotalUsers      int64           `json:"total_users"`
	TotalBuckets    int64           `json:"total_buckets"`
	CompleteBuckets int64           `json:"complete_buckets"`
	TotalStaked     decimal.Decimal `json:"total_staked"`
	TotalPayout     decimal.Decimal `json:"total_payout"`
	TotalFees       decimal.Decimal `json:"total_fees"`
}
