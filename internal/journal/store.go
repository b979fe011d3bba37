package journal

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists order snapshots and fills.
type Store interface {
	SaveOrder(ctx context.Context, row OrderRow) error
	SaveFill(ctx context.Context, row FillRow) error
}

// GormStore writes rows through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the journal tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&OrderRow{}, &FillRow{}); err != nil {
		return errors.Wrap(err, "migrate journal tables")
	}
	return nil
}

// SaveOrder upserts the snapshot keyed by client order id. A row already
// holding a newer Seq is left untouched.
func (s *GormStore) SaveOrder(ctx context.Context, row OrderRow) error {
	err := s.orderUpsert(s.db.WithContext(ctx)).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "upsert order").With("client_order_id", row.ClientOrderID)
	}
	return nil
}

// SaveFill inserts the fill once. Redelivered fills are ignored.
func (s *GormStore) SaveFill(ctx context.Context, row FillRow) error {
	err := s.fillInsert(s.db.WithContext(ctx)).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "insert fill").With("fill_id", row.FillID)
	}
	return nil
}

func (s *GormStore) orderUpsert(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "client_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"venue_order_id", "filled_qty", "avg_price", "fees", "state", "reason", "updated_at", "seq",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: `"exec_orders"."seq" < "excluded"."seq"`},
		}},
	})
}

func (s *GormStore) fillInsert(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.OnConflict{DoNothing: true})
}
