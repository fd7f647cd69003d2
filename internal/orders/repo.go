package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type repository struct {
	db       *gorm.DB
	inTx     bool
	newCode  codeGenerator
	attempts int
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, newCode: GenerateOrderCode, attempts: maxOrderCodeAttempts}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, inTx: true, newCode: r.newCode, attempts: r.attempts}
}

// CreateOrder inserts the order row under a fresh code. Inside a transaction every
// attempt runs behind a savepoint so a code collision does not abort the outer tx.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	for attempt := 1; attempt <= r.attempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return fmt.Errorf("generate order code: %w", err)
		}
		order.OrderCode = code

		err = r.insertOrder(ctx, order, attempt)
		if err == nil {
			return nil
		}
		if !dbpkg.IsUniqueViolation(err, uniqueOrderCodeConstraint) {
			return err
		}
	}
	order.OrderCode = ""
	return pkgerrors.Newf(pkgerrors.CodeInternal, pkgerrors.KindOrderCodeExhausted,
		"could not allocate a unique order code after %d attempts", r.attempts)
}

func (r *repository) insertOrder(ctx context.Context, order *models.Order, attempt int) error {
	db := r.db.WithContext(ctx)
	if !r.inTx {
		return db.Omit(clause.Associations).Create(order).Error
	}
	savepoint := fmt.Sprintf("order_code_%d", attempt)
	if err := db.SavePoint(savepoint).Error; err != nil {
		return err
	}
	if err := db.Omit(clause.Associations).Create(order).Error; err != nil {
		if rbErr := db.RollbackTo(savepoint).Error; rbErr != nil {
			return fmt.Errorf("rollback to %s: %w", savepoint, rbErr)
		}
		return err
	}
	return nil
}

func (r *repository) AttachItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// UpdateStatus moves the order to patch.Status only when its current status is an
// allowed source. A zero-row update is classified by reloading the order.
func (r *repository) UpdateStatus(ctx context.Context, code string, patch StatusPatch) (*TransitionResult, error) {
	code = NormalizeOrderCode(code)
	if code == "" {
		return nil, gorm.ErrRecordNotFound
	}
	sources := patch.Status.TransitionSources()
	if len(sources) == 0 {
		return nil, fmt.Errorf("status %s cannot be entered by transition", patch.Status)
	}
	at := patch.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := map[string]any{"payment_status": patch.Status}
	if patch.Status == enums.PaymentStatusPaid {
		updates["paid_at"] = gorm.Expr("COALESCE(paid_at, ?)", at)
	}
	if patch.PaymentIntentID != nil {
		updates["payment_intent_id"] = *patch.PaymentIntentID
	}
	if patch.ChargeID != nil {
		updates["charge_id"] = *patch.ChargeID
	}

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_code = ? AND payment_status IN ?", code, statusStrings(sources))
	if patch.SessionID != nil {
		query = query.Where("payment_session_id = ?", *patch.SessionID)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	order, err := r.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected > 0 {
		return &TransitionResult{Outcome: TransitionApplied, Order: order}, nil
	}
	if patch.SessionID != nil && (order.PaymentSessionID == nil || *order.PaymentSessionID != *patch.SessionID) {
		return &TransitionResult{Outcome: TransitionSuperseded, Order: order}, nil
	}

	if err := r.backfillReferences(ctx, order, patch); err != nil {
		return nil, err
	}
	if order.PaymentStatus == patch.Status {
		return &TransitionResult{Outcome: TransitionAlreadyApplied, Order: order}, nil
	}
	return &TransitionResult{Outcome: TransitionRejected, Order: order}, nil
}

// backfillReferences stores processor ids that arrived on an event that did not change status.
// Columns that are already set are left alone.
func (r *repository) backfillReferences(ctx context.Context, order *models.Order, patch StatusPatch) error {
	updates := map[string]any{}
	if patch.PaymentIntentID != nil && order.PaymentIntentID == nil {
		updates["payment_intent_id"] = *patch.PaymentIntentID
		order.PaymentIntentID = patch.PaymentIntentID
	}
	if patch.ChargeID != nil && order.ChargeID == nil {
		updates["charge_id"] = *patch.ChargeID
		order.ChargeID = patch.ChargeID
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		UpdateColumns(updates).Error
}

// SetPaymentSession records the latest processor session of an order still awaiting online
// payment. Settled orders keep the session that paid them.
func (r *repository) SetPaymentSession(ctx context.Context, code, sessionID string) error {
	code = NormalizeOrderCode(code)
	if code == "" || strings.TrimSpace(sessionID) == "" {
		return errors.New("order code and session id required")
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_code = ?", code).
		Where("payment_status = ?", enums.PaymentStatusPending).
		Update("payment_session_id", sessionID).Error
}

// ReplacePaymentSession moves a PENDING order from one payment session to another; nil
// stands for no session. It reports false when the stored session is no longer from.
func (r *repository) ReplacePaymentSession(ctx context.Context, code string, from, to *string) (bool, error) {
	code = NormalizeOrderCode(code)
	if code == "" {
		return false, errors.New("order code required")
	}
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_code = ? AND payment_status = ?", code, enums.PaymentStatusPending)
	if from == nil {
		query = query.Where("payment_session_id IS NULL")
	} else {
		query = query.Where("payment_session_id = ?", *from)
	}
	var value any = gorm.Expr("NULL")
	if to != nil {
		value = *to
	}
	res := query.Update("payment_session_id", value)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	code = NormalizeOrderCode(code)
	if code == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var order models.Order
	err := r.withItems(ctx).
		Where("order_code = ?", code).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var order models.Order
	err := r.withItems(ctx).
		Where("payment_intent_id = ?", intentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("payment_status = ?", enums.PaymentStatusPending).
		Where("created_at < ?", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindAwaitingPayouts returns PAID split orders with a known charge whose transfers have not
// been stamped.
func (r *repository) FindAwaitingPayouts(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.withItems(ctx).
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Where("payment_method = ?", enums.PaymentMethodOnlineSplit).
		Where("payouts_dispatched_at IS NULL").
		Where("charge_id IS NOT NULL").
		Order("paid_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	filtered := orders[:0]
	for _, order := range orders {
		if order.IsMultiMerchant() {
			filtered = append(filtered, order)
		}
	}
	return filtered, nil
}

// MarkPayoutsDispatched stamps the order once; it reports false when another run got there first.
func (r *repository) MarkPayoutsDispatched(ctx context.Context, code string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_code = ? AND payouts_dispatched_at IS NULL", NormalizeOrderCode(code)).
		Update("payouts_dispatched_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) HasMerchantItems(ctx context.Context, orderID uuid.UUID, merchantID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND merchant_id = ?", orderID, merchantID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByMerchant pages newest first. A blank status lists every order.
func (r *repository) ListByMerchant(ctx context.Context, merchantID string, status enums.PaymentStatus, params pagination.Params) (*MerchantOrderList, error) {
	cursor, err := params.After()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.db.WithContext(ctx).
		Preload("Items", "merchant_id = ?", merchantID).
		Where("id IN (?)", r.db.Model(&models.OrderItem{}).Select("order_id").Where("merchant_id = ?", merchantID))
	if status != "" {
		query = query.Where("payment_status = ?", status)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.FetchSize()).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	page, more := pagination.Cut(rows, params)
	list := &MerchantOrderList{Orders: make([]MerchantOrderSummary, 0, len(page))}
	for _, order := range page {
		count := 0
		for _, item := range order.Items {
			count += item.Quantity
		}
		list.Orders = append(list.Orders, MerchantOrderSummary{
			OrderCode:     order.OrderCode,
			CustomerName:  order.CustomerName,
			CustomerEmail: order.CustomerEmail,
			PaymentMethod: order.PaymentMethod,
			PaymentStatus: order.PaymentStatus,
			Currency:      order.Currency,
			MerchantTotal: order.MerchantTotals[merchantID][order.Currency],
			ItemCount:     count,
			CreatedAt:     order.CreatedAt,
			PaidAt:        order.PaidAt,
		})
	}
	if more && len(page) > 0 {
		last := page[len(page)-1]
		list.NextCursor = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return list, nil
}

func (r *repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("merchant_id ASC").Order("media_id ASC")
	})
}

func statusStrings(statuses []enums.PaymentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
