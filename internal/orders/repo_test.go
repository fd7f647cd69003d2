package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: dbpkg.UTCNow})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.OutboxEvent{}))
	return db
}

func sequenceCodes(codes ...string) codeGenerator {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func newTestRepository(db *gorm.DB, gen codeGenerator) *repository {
	return &repository{db: db, newCode: gen, attempts: maxOrderCodeAttempts}
}

func draftOrder(method enums.PaymentMethod, totals map[string]string) *models.Order {
	merchantTotals := models.MerchantTotals{}
	grand := decimal.Zero
	for merchantID, amount := range totals {
		value := decimal.RequireFromString(amount)
		merchantTotals[merchantID] = models.CurrencyTotals{"HKD": value}
		grand = grand.Add(value)
	}
	return &models.Order{
		CustomerName:    "Chan Tai Man",
		CustomerEmail:   "chan@example.com",
		CustomerPhone:   "+85291234567",
		ShippingAddress: types.ShippingAddress{Country: "HK", City: "Hong Kong", Address: "1 Queen's Road"},
		PaymentMethod:   method,
		PaymentStatus:   method.InitialStatus(),
		Currency:        "HKD",
		CurrencyTotals:  models.CurrencyTotals{"HKD": grand},
		MerchantTotals:  merchantTotals,
	}
}

func itemsFor(merchantID string, mediaIDs ...string) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(mediaIDs))
	for _, mediaID := range mediaIDs {
		items = append(items, models.OrderItem{
			MerchantID: merchantID,
			MediaID:    mediaID,
			Title:      "Item " + mediaID,
			UnitPrice:  decimal.RequireFromString("10"),
			Currency:   "HKD",
			Quantity:   1,
		})
	}
	return items
}

func createOrder(t *testing.T, db *gorm.DB, code string, order *models.Order, items []models.OrderItem) *models.Order {
	t.Helper()
	repo := newTestRepository(db, sequenceCodes(code))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		if err := txRepo.CreateOrder(context.Background(), order); err != nil {
			return err
		}
		return txRepo.AttachItems(context.Background(), order.ID, items)
	}))
	return order
}

func TestCreateOrderRetriesOnCodeCollision(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "AAAA2222", draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"}), itemsFor("m1", "a"))

	repo := newTestRepository(db, sequenceCodes("AAAA2222", "AAAA2222", "BBBB3333"))
	order := draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "20"})
	err := db.Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		if err := txRepo.CreateOrder(context.Background(), order); err != nil {
			return err
		}
		return txRepo.AttachItems(context.Background(), order.ID, itemsFor("m1", "a", "b"))
	})
	require.NoError(t, err)
	assert.Equal(t, "BBBB3333", order.OrderCode)

	stored, err := repo.FindByCode(context.Background(), "bbbb3333")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "a", stored.Items[0].MediaID)
	assert.True(t, stored.CurrencyTotals["HKD"].Equal(decimal.RequireFromString("20")))
}

func TestCreateOrderExhaustsCodes(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "AAAA2222", draftOrder(enums.PaymentMethodOffline, map[string]string{"m1": "10"}), itemsFor("m1", "a"))

	repo := newTestRepository(db, sequenceCodes("AAAA2222"))
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).CreateOrder(context.Background(), draftOrder(enums.PaymentMethodOffline, map[string]string{"m1": "5"}))
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindOrderCodeExhausted))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateOrderRollsBackWithItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := newTestRepository(db, sequenceCodes("CCCC4444"))

	boom := errors.New("session bookkeeping failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		order := draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"})
		if err := txRepo.CreateOrder(context.Background(), order); err != nil {
			return err
		}
		if err := txRepo.AttachItems(context.Background(), order.ID, itemsFor("m1", "a")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var orders, items int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&items).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestUpdateStatusDuplicateSuccessIsNoop(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "DDDD5555", draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"}), itemsFor("m1", "a"))
	repo := NewRepository(db)

	intent := "pi_123"
	first, err := repo.UpdateStatus(context.Background(), "DDDD5555", StatusPatch{Status: enums.PaymentStatusPaid, PaymentIntentID: &intent})
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, first.Outcome)
	require.NotNil(t, first.Order.PaidAt)
	require.NotNil(t, first.Order.PaymentIntentID)
	assert.Equal(t, "pi_123", *first.Order.PaymentIntentID)

	second, err := repo.UpdateStatus(context.Background(), "DDDD5555", StatusPatch{
		Status:          enums.PaymentStatusPaid,
		PaymentIntentID: &intent,
		At:              time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, TransitionAlreadyApplied, second.Outcome)
	assert.Equal(t, enums.PaymentStatusPaid, second.Order.PaymentStatus)
	assert.True(t, first.Order.PaidAt.Equal(*second.Order.PaidAt))
	assert.True(t, first.Order.UpdatedAt.Equal(second.Order.UpdatedAt))
}

func TestUpdateStatusNeverRegressesRefunded(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "EEEE6666", draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"}), itemsFor("m1", "a"))
	repo := NewRepository(db)
	ctx := context.Background()

	for _, status := range []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusRefunded} {
		res, err := repo.UpdateStatus(ctx, "EEEE6666", StatusPatch{Status: status})
		require.NoError(t, err)
		require.Equal(t, TransitionApplied, res.Outcome)
	}

	for _, status := range []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusFailed, enums.PaymentStatusDisputed} {
		res, err := repo.UpdateStatus(ctx, "EEEE6666", StatusPatch{Status: status})
		require.NoError(t, err)
		assert.Equal(t, TransitionRejected, res.Outcome, "target %s", status)
		assert.Equal(t, enums.PaymentStatusRefunded, res.Order.PaymentStatus)
	}
}

func TestUpdateStatusBackfillsChargeWithoutTransition(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "FFFF7777", draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"}), itemsFor("m1", "a"))
	repo := NewRepository(db)

	_, err := repo.UpdateStatus(context.Background(), "FFFF7777", StatusPatch{Status: enums.PaymentStatusPaid})
	require.NoError(t, err)

	charge := "ch_1"
	res, err := repo.UpdateStatus(context.Background(), "FFFF7777", StatusPatch{Status: enums.PaymentStatusPaid, ChargeID: &charge})
	require.NoError(t, err)
	assert.Equal(t, TransitionAlreadyApplied, res.Outcome)

	stored, err := repo.FindByCode(context.Background(), "FFFF7777")
	require.NoError(t, err)
	require.NotNil(t, stored.ChargeID)
	assert.Equal(t, "ch_1", *stored.ChargeID)

	byIntent, err := repo.FindByPaymentIntent(context.Background(), "pi_missing")
	assert.Nil(t, byIntent)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	repo := NewRepository(setupOrdersTestDB(t))

	_, err := repo.UpdateStatus(context.Background(), "ZZZZ9999", StatusPatch{Status: enums.PaymentStatusPaid})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindByCode(context.Background(), "  ")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSetPaymentSessionOnlyWhilePending(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "GGGG8888", draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"}), itemsFor("m1", "a"))
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SetPaymentSession(ctx, "GGGG8888", "cs_first"))
	require.NoError(t, repo.SetPaymentSession(ctx, "GGGG8888", "cs_retry"))
	_, err := repo.UpdateStatus(ctx, "GGGG8888", StatusPatch{Status: enums.PaymentStatusPaid})
	require.NoError(t, err)
	require.NoError(t, repo.SetPaymentSession(ctx, "GGGG8888", "cs_late"))

	stored, err := repo.FindByCode(ctx, "GGGG8888")
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentSessionID)
	assert.Equal(t, "cs_retry", *stored.PaymentSessionID)
}

func TestUpdateStatusIgnoresFailureFromReplacedSession(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "KKKK4444", draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"}), itemsFor("m1", "a"))
	repo := NewRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.SetPaymentSession(ctx, "KKKK4444", "cs_new"))

	old := "cs_old"
	res, err := repo.UpdateStatus(ctx, "KKKK4444", StatusPatch{Status: enums.PaymentStatusFailed, SessionID: &old})
	require.NoError(t, err)
	assert.Equal(t, TransitionSuperseded, res.Outcome)

	stored, err := repo.FindByCode(ctx, "KKKK4444")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentSessionID)
	assert.Equal(t, "cs_new", *stored.PaymentSessionID)

	current := "cs_new"
	res, err = repo.UpdateStatus(ctx, "KKKK4444", StatusPatch{Status: enums.PaymentStatusFailed, SessionID: &current})
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, res.Outcome)
	assert.Equal(t, enums.PaymentStatusFailed, res.Order.PaymentStatus)
}

func TestReplacePaymentSession(t *testing.T) {
	db := setupOrdersTestDB(t)
	createOrder(t, db, "MMMM5555", draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"}), itemsFor("m1", "a"))
	repo := NewRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.SetPaymentSession(ctx, "MMMM5555", "cs_old"))

	old, other := "cs_old", "cs_other"
	moved, err := repo.ReplacePaymentSession(ctx, "MMMM5555", &other, nil)
	require.NoError(t, err)
	assert.False(t, moved, "stored session no longer matches")

	moved, err = repo.ReplacePaymentSession(ctx, "MMMM5555", &old, nil)
	require.NoError(t, err)
	assert.True(t, moved)
	stored, err := repo.FindByCode(ctx, "MMMM5555")
	require.NoError(t, err)
	assert.Nil(t, stored.PaymentSessionID)

	// An expiry for the detached session is not applied while no session is attached.
	res, err := repo.UpdateStatus(ctx, "MMMM5555", StatusPatch{Status: enums.PaymentStatusFailed, SessionID: &old})
	require.NoError(t, err)
	assert.Equal(t, TransitionSuperseded, res.Outcome)

	moved, err = repo.ReplacePaymentSession(ctx, "MMMM5555", nil, &old)
	require.NoError(t, err)
	assert.True(t, moved)
	stored, err = repo.FindByCode(ctx, "MMMM5555")
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentSessionID)
	assert.Equal(t, "cs_old", *stored.PaymentSessionID)

	_, err = repo.UpdateStatus(ctx, "MMMM5555", StatusPatch{Status: enums.PaymentStatusPaid})
	require.NoError(t, err)
	moved, err = repo.ReplacePaymentSession(ctx, "MMMM5555", &old, nil)
	require.NoError(t, err)
	assert.False(t, moved, "settled orders keep their session")
}

func TestSweepQueries(t *testing.T) {
	db := setupOrdersTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	stale := draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"})
	stale.CreatedAt = now.Add(-48 * time.Hour)
	createOrder(t, db, "HHHH2222", stale, itemsFor("m1", "a"))

	fresh := draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10"})
	fresh.CreatedAt = now
	createOrder(t, db, "HHHH3333", fresh, itemsFor("m1", "a"))

	split := draftOrder(enums.PaymentMethodOnlineSplit, map[string]string{"m1": "10", "m2": "5"})
	createOrder(t, db, "JJJJ2222", split, append(itemsFor("m1", "a"), itemsFor("m2", "b")...))

	repo := NewRepository(db)
	pending, err := repo.FindPendingBefore(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "HHHH2222", pending[0].OrderCode)

	_, err = repo.UpdateStatus(ctx, "JJJJ2222", StatusPatch{Status: enums.PaymentStatusPaid})
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, "HHHH3333", StatusPatch{Status: enums.PaymentStatusPaid})
	require.NoError(t, err)

	awaiting, err := repo.FindAwaitingPayouts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, awaiting, "transfers wait for the charge id")

	charge := "ch_split"
	_, err = repo.UpdateStatus(ctx, "JJJJ2222", StatusPatch{Status: enums.PaymentStatusPaid, ChargeID: &charge})
	require.NoError(t, err)
	awaiting, err = repo.FindAwaitingPayouts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, "JJJJ2222", awaiting[0].OrderCode)
	assert.Len(t, awaiting[0].Items, 2)

	stamped, err := repo.MarkPayoutsDispatched(ctx, "JJJJ2222", now)
	require.NoError(t, err)
	assert.True(t, stamped)
	stamped, err = repo.MarkPayoutsDispatched(ctx, "JJJJ2222", now)
	require.NoError(t, err)
	assert.False(t, stamped)
	awaiting, err = repo.FindAwaitingPayouts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	owns, err := repo.HasMerchantItems(ctx, split.ID, "m2")
	require.NoError(t, err)
	assert.True(t, owns)
	owns, err = repo.HasMerchantItems(ctx, split.ID, "m3")
	require.NoError(t, err)
	assert.False(t, owns)
}

func TestListByMerchantPaginates(t *testing.T) {
	db := setupOrdersTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, code := range []string{"KKKK2222", "KKKK3333", "KKKK4444"} {
		order := draftOrder(enums.PaymentMethodOffline, map[string]string{"m1": "10", "m2": "7"})
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		createOrder(t, db, code, order, append(itemsFor("m1", "a", "b"), itemsFor("m2", "c")...))
	}
	other := draftOrder(enums.PaymentMethodOffline, map[string]string{"m3": "1"})
	createOrder(t, db, "KKKK5555", other, itemsFor("m3", "z"))

	repo := NewRepository(db)
	first, err := repo.ListByMerchant(ctx, "m1", "", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.Equal(t, "KKKK4444", first.Orders[0].OrderCode)
	assert.Equal(t, "KKKK3333", first.Orders[1].OrderCode)
	assert.Equal(t, 2, first.Orders[0].ItemCount)
	assert.True(t, first.Orders[0].MerchantTotal.Equal(decimal.RequireFromString("10")))
	require.NotEmpty(t, first.NextCursor)

	second, err := repo.ListByMerchant(ctx, "m1", "", pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, "KKKK2222", second.Orders[0].OrderCode)
	assert.Empty(t, second.NextCursor)

	require.NoError(t, db.Model(&models.Order{}).Where("order_code = ?", "KKKK3333").
		Update("payment_status", enums.PaymentStatusPaid).Error)
	paid, err := repo.ListByMerchant(ctx, "m1", enums.PaymentStatusPaid, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, paid.Orders, 1)
	assert.Equal(t, "KKKK3333", paid.Orders[0].OrderCode)

	_, err = repo.ListByMerchant(ctx, "m1", "", pagination.Params{Cursor: "%%%"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestOrderCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateOrderCode()
		require.NoError(t, err)
		assert.True(t, IsValidOrderCode(code), "generated %q", code)
	}
	assert.False(t, IsValidOrderCode("ABCD1234"))
	assert.False(t, IsValidOrderCode("ABC"))
	assert.Equal(t, "ABCD2345", NormalizeOrderCode(" abcd2345 "))
}
