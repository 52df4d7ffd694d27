package subscriptions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cyberbrief/cyberbrief-backend/pkg/db/models"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
)

const period = 30 * 24 * time.Hour

func setupSubscriptionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.UserSubscription{}))
	return conn
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T, conn *gorm.DB, c *clock) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Period: period, Now: c.Now})
	require.NoError(t, err)
	return svc
}

func TestGrantCreatesAndExtends(t *testing.T) {
	conn := setupSubscriptionsTestDB(t)
	c := &clock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	svc := newTestService(t, conn, c)
	ctx := context.Background()

	sub, err := svc.Grant(ctx, nil, GrantInput{UserID: "u1", UserEmail: "a@b.com", PaymentReference: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodEnd.Equal(c.now.Add(period)))

	c.now = c.now.Add(10 * 24 * time.Hour)
	sub, err = svc.Grant(ctx, nil, GrantInput{UserID: "u1", PaymentReference: "ref-2"})
	require.NoError(t, err)
	assert.True(t, sub.CurrentPeriodEnd.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(2*period)),
		"renewal before expiry extends from the existing end, got %s", sub.CurrentPeriodEnd)
	assert.Equal(t, "a@b.com", sub.UserEmail)
}

func TestGrantIsIdempotentPerPayment(t *testing.T) {
	conn := setupSubscriptionsTestDB(t)
	c := &clock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	svc := newTestService(t, conn, c)
	ctx := context.Background()

	first, err := svc.Grant(ctx, nil, GrantInput{UserID: "u1", PaymentReference: "ref-1"})
	require.NoError(t, err)
	second, err := svc.Grant(ctx, nil, GrantInput{UserID: "u1", PaymentReference: "ref-1"})
	require.NoError(t, err)
	assert.True(t, first.CurrentPeriodEnd.Equal(second.CurrentPeriodEnd))

	var count int64
	require.NoError(t, conn.Model(&models.UserSubscription{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGrantAfterExpiryRestartsFromNow(t *testing.T) {
	conn := setupSubscriptionsTestDB(t)
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := newTestService(t, conn, c)
	ctx := context.Background()

	_, err := svc.Grant(ctx, nil, GrantInput{UserID: "u1", PaymentReference: "ref-1"})
	require.NoError(t, err)

	c.now = c.now.Add(90 * 24 * time.Hour)
	ent, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ent.Active)
	assert.Equal(t, enums.SubscriptionStatusExpired, ent.Status)

	sub, err := svc.Grant(ctx, nil, GrantInput{UserID: "u1", PaymentReference: "ref-2"})
	require.NoError(t, err)
	assert.True(t, sub.CurrentPeriodEnd.Equal(c.now.Add(period)))
}

func TestGrantInsideCallerTransactionRollsBack(t *testing.T) {
	conn := setupSubscriptionsTestDB(t)
	svc := newTestService(t, conn, &clock{now: time.Now().UTC()})

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Grant(context.Background(), tx, GrantInput{UserID: "u1", PaymentReference: "ref-1"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	_, err = svc.Get(context.Background(), "u1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGrantValidatesInput(t *testing.T) {
	svc := newTestService(t, setupSubscriptionsTestDB(t), &clock{now: time.Now()})
	_, err := svc.Grant(context.Background(), nil, GrantInput{PaymentReference: "ref"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.Grant(context.Background(), nil, GrantInput{UserID: "u1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
