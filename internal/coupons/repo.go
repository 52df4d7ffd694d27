package coupons

import (
	"context"
	"strings"

	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles coupon persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*models.Coupon, error)
	CountRedemptions(ctx context.Context, couponID uuid.UUID) (int64, error)
	CountUserRedemptions(ctx context.Context, couponID uuid.UUID, userID string) (int64, error)
	CreateRedemption(ctx context.Context, redemption *models.CouponRedemption) error
	FindRedemptionByReference(ctx context.Context, reference string) (*models.CouponRedemption, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a coupon repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	coupon.Code = NormalizeCode(coupon.Code)
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.findByCode(r.db.WithContext(ctx), code)
}

// FindByCodeForUpdate locks the coupon row for the rest of the transaction.
func (r *repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.Coupon, error) {
	return r.findByCode(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), code)
}

func (r *repository) findByCode(db *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	res := db.Where("code = ?", NormalizeCode(code)).Limit(1).Find(&coupon)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repository) CountRedemptions(ctx context.Context, couponID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponRedemption{}).
		Where("coupon_id = ?", couponID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUserRedemptions(ctx context.Context, couponID uuid.UUID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponRedemption{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateRedemption(ctx context.Context, redemption *models.CouponRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *repository) FindRedemptionByReference(ctx context.Context, reference string) (*models.CouponRedemption, error) {
	var redemption models.CouponRedemption
	res := r.db.WithContext(ctx).Where("payment_reference = ?", reference).Limit(1).Find(&redemption)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &redemption, nil
}

// NormalizeCode upper-cases and trims a user supplied coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
