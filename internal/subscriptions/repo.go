package subscriptions

import (
	"context"

	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles entitlement persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID string) (*models.UserSubscription, error)
	FindByUserIDForUpdate(ctx context.Context, userID string) (*models.UserSubscription, error)
	Create(ctx context.Context, sub *models.UserSubscription) error
	Update(ctx context.Context, sub *models.UserSubscription) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an entitlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserID(ctx context.Context, userID string) (*models.UserSubscription, error) {
	return r.find(r.db.WithContext(ctx), userID)
}

func (r *repository) FindByUserIDForUpdate(ctx context.Context, userID string) (*models.UserSubscription, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *repository) find(db *gorm.DB, userID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	res := db.Where("user_id = ?", userID).Limit(1).Find(&sub)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repository) Create(ctx context.Context, sub *models.UserSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Update(ctx context.Context, sub *models.UserSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}
