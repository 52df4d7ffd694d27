package payments

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cyberbrief/cyberbrief-backend/internal/coupons"
	"github.com/cyberbrief/cyberbrief-backend/pkg/db"
	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
	"github.com/cyberbrief/cyberbrief-backend/pkg/wallet"
)

type fakeProvider struct {
	mu       sync.Mutex
	requests []wallet.LinkRequest
	link     *wallet.Link
	err      error
}

func (f *fakeProvider) CreatePaymentLink(_ context.Context, req wallet.LinkRequest) (*wallet.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.link, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type serviceFixture struct {
	conn     *gorm.DB
	store    Store
	provider *fakeProvider
	coupons  *coupons.Service
	svc      Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	conn := setupPaymentsTestDB(t)
	st := NewStore(conn)
	provider := &fakeProvider{link: &wallet.Link{URL: "https://pay.example/link/1", OrderID: "ord-1"}}
	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repo: coupons.NewRepository(conn),
		DB:   db.NewFromGorm(conn),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Store:        st,
		Provider:     provider,
		Coupons:      couponSvc,
		RedirectURL:  func(ref string) string { return "https://cyberbrief.news/payment/success?ref=" + ref },
		Logger:       testLogger(),
		NewReference: func() string { return "ref-fixed" },
	})
	require.NoError(t, err)
	return &serviceFixture{conn: conn, store: st, provider: provider, coupons: couponSvc, svc: svc}
}

func validInput() CreateIntentInput {
	return CreateIntentInput{
		Amount: decimal.RequireFromString("9.99"),
		Email:  "reader@example.com",
		UserID: "user-1",
	}
}

func TestCreateIntentPersistsPendingThenRecordsURL(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateIntent(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, "ref-fixed", res.Reference)
	assert.Equal(t, "https://pay.example/link/1", res.PaymentURL)

	require.Len(t, f.provider.requests, 1)
	req := f.provider.requests[0]
	assert.Equal(t, "9.99", req.Amount)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, "ref-fixed", req.Ref)
	assert.Equal(t, "https://cyberbrief.news/payment/success?ref=ref-fixed", req.RedirectURL)

	row, err := f.store.GetByReference(ctx, "ref-fixed")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.PaymentStatusPending, row.Status)
	require.NotNil(t, row.PaymentURL)
	assert.Equal(t, "https://pay.example/link/1", *row.PaymentURL)
	require.NotNil(t, row.OrderID)
	assert.Equal(t, "ord-1", *row.OrderID)
}

func TestCreateIntentValidation(t *testing.T) {
	cases := map[string]func(*CreateIntentInput){
		"zero amount":      func(in *CreateIntentInput) { in.Amount = decimal.Zero },
		"negative amount":  func(in *CreateIntentInput) { in.Amount = decimal.NewFromInt(-5) },
		"fractional cents": func(in *CreateIntentInput) { in.Amount = decimal.RequireFromString("1.005") },
		"missing email":    func(in *CreateIntentInput) { in.Email = " " },
		"bad email":        func(in *CreateIntentInput) { in.Email = "not-an-email" },
		"missing user":     func(in *CreateIntentInput) { in.UserID = "" },
		"bad currency":     func(in *CreateIntentInput) { in.Currency = "DOGE" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newServiceFixture(t)
			in := validInput()
			mutate(&in)

			_, err := f.svc.CreateIntent(context.Background(), in)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
			assert.Empty(t, f.provider.requests)

			var count int64
			require.NoError(t, f.conn.Model(&models.PaymentIntent{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestCreateIntentProviderFailureLeavesPendingRow(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.err = &wallet.ProviderError{StatusCode: 502, Message: "bad gateway"}
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, validInput())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, map[string]any{"ref": "ref-fixed"}, pkgerrors.As(err).Details())

	row, err := f.store.GetByReference(ctx, "ref-fixed")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.PaymentStatusPending, row.Status)
	assert.Nil(t, row.PaymentURL)
}

func TestCreateIntentDuplicateReferenceIsConflict(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.CreateIntent(ctx, validInput())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
	assert.Len(t, f.provider.requests, 1)
}

func TestCreateIntentAppliesAndRedeemsCoupon(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, coupons.NewRepository(f.conn).Create(ctx, &models.Coupon{
		Code:          "HALF",
		DiscountType:  enums.DiscountTypePercent,
		DiscountValue: decimal.NewFromInt(50),
		Active:        true,
		PerUserLimit:  1,
	}))

	in := validInput()
	in.Amount = decimal.NewFromInt(20)
	in.CouponCode = "half"
	_, err := f.svc.CreateIntent(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "10", f.provider.requests[0].Amount)

	row, err := f.store.GetByReference(ctx, "ref-fixed")
	require.NoError(t, err)
	assert.True(t, row.Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, row.OriginalAmount.Equal(decimal.NewFromInt(20)))
	assert.True(t, row.DiscountAmount.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, row.CouponCode)
	assert.Equal(t, "HALF", *row.CouponCode)

	redemption, err := coupons.NewRepository(f.conn).FindRedemptionByReference(ctx, "ref-fixed")
	require.NoError(t, err)
	require.NotNil(t, redemption)
}

func TestCreateIntentDoesNotRedeemCouponOnProviderFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.err = errors.New("dial tcp: timeout")
	ctx := context.Background()
	require.NoError(t, coupons.NewRepository(f.conn).Create(ctx, &models.Coupon{
		Code:          "FIVE",
		DiscountType:  enums.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(5),
		Active:        true,
		PerUserLimit:  1,
	}))

	in := validInput()
	in.Amount = decimal.NewFromInt(20)
	in.CouponCode = "FIVE"
	_, err := f.svc.CreateIntent(ctx, in)
	require.Error(t, err)

	redemption, err := coupons.NewRepository(f.conn).FindRedemptionByReference(ctx, "ref-fixed")
	require.NoError(t, err)
	assert.Nil(t, redemption)
}

func TestStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Status(ctx, "ref-fixed")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Status(ctx, "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateIntent(ctx, validInput())
	require.NoError(t, err)

	res, err := f.svc.Status(ctx, "ref-fixed")
	require.NoError(t, err)
	assert.Equal(t, "ref-fixed", res.Reference)
	assert.Equal(t, enums.PaymentStatusPending, res.Status)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewService(ServiceParams{
		Store:       NewStore(setupPaymentsTestDB(t)),
		Provider:    &fakeProvider{},
		RedirectURL: func(string) string { return "" },
		Logger:      testLogger(),
		Now:         func() time.Time { return time.Unix(0, 0) },
	})
	require.NoError(t, err)
}
