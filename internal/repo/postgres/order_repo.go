package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storycraft/billing/internal/domain/enums"
	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
)

var ErrOrderIDConflict = errors.New("order id already exists")

const orderColumns = `id, user_id, plan_type, cycle, price, duration_days, status, payment_method, payment_data, created_at, updated_at, expires_at, activated_at`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Create(ctx context.Context, order model.Order) (model.Order, error) {
	if r.pool == nil {
		return model.Order{}, errPoolNil
	}
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.UserID) == "" {
		return model.Order{}, fmt.Errorf("invalid order create payload")
	}

	created, err := scanOrder(r.pool.QueryRow(ctx, `
INSERT INTO orders (
	id,
	user_id,
	plan_type,
	cycle,
	price,
	duration_days,
	status,
	created_at,
	updated_at,
	expires_at
) VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $7, $8)
RETURNING `+orderColumns+`
`, order.ID, order.UserID, string(order.PlanType), string(order.Cycle), order.Price, order.DurationDays, order.CreatedAt, order.ExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Order{}, ErrOrderIDConflict
		}
		return model.Order{}, storeErr("create pending order", err)
	}

	return created, nil
}

func (r *OrderRepo) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	if r.pool == nil {
		return model.Order{}, errPoolNil
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return model.Order{}, errs.ErrOrderNotFound
	}

	order, err := scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE id = $1
LIMIT 1
`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrOrderNotFound
		}
		return model.Order{}, storeErr("find order by id", err)
	}

	return order, nil
}

// FindByIDForUser hides foreign orders behind the same not-found error as absent ones.
func (r *OrderRepo) FindByIDForUser(ctx context.Context, orderID, userID string) (model.Order, error) {
	if r.pool == nil {
		return model.Order{}, errPoolNil
	}
	orderID = strings.TrimSpace(orderID)
	userID = strings.TrimSpace(userID)
	if orderID == "" || userID == "" {
		return model.Order{}, errs.ErrOrderNotFound
	}

	order, err := scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE id = $1
  AND user_id = $2
LIMIT 1
`, orderID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrOrderNotFound
		}
		return model.Order{}, storeErr("find order for user", err)
	}

	return order, nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	if r.pool == nil {
		return nil, errPoolNil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, storeErr("list orders by user", err)
	}
	defer rows.Close()

	return collectOrders(rows, "list orders by user")
}

// MarkTerminal moves a pending order to paid or failed. An order that is
// already terminal is returned as stored with changed=false.
func (r *OrderRepo) MarkTerminal(ctx context.Context, orderID string, status enums.OrderStatus, method enums.PaymentMethod, paymentData map[string]any) (model.Order, bool, error) {
	if r.pool == nil {
		return model.Order{}, false, errPoolNil
	}
	if !status.Terminal() {
		return model.Order{}, false, fmt.Errorf("status %q is not terminal", status)
	}

	dataJSON, err := marshalPaymentData(paymentData)
	if err != nil {
		return model.Order{}, false, err
	}

	updated, err := scanOrder(r.pool.QueryRow(ctx, `
UPDATE orders
SET
	status = $2,
	payment_method = NULLIF($3, ''),
	payment_data = $4::jsonb,
	updated_at = NOW()
WHERE id = $1
  AND status = 'pending'
RETURNING `+orderColumns+`
`, strings.TrimSpace(orderID), string(status), string(method), dataJSON))
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, false, storeErr("mark order terminal", err)
	}

	existing, err := r.FindByID(ctx, orderID)
	if err != nil {
		return model.Order{}, false, err
	}
	return existing, false, nil
}

// MarkActivated records that the subscription and projection writes for a paid order finished.
func (r *OrderRepo) MarkActivated(ctx context.Context, orderID string) error {
	if r.pool == nil {
		return errPoolNil
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE orders
SET
	activated_at = COALESCE(activated_at, NOW()),
	updated_at = NOW()
WHERE id = $1
  AND status = 'paid'
`, strings.TrimSpace(orderID))
	if err != nil {
		return storeErr("mark order activated", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrOrderNotFound
	}
	return nil
}

// ListUnactivated returns paid orders whose activation never completed and
// that were last touched before the cutoff.
func (r *OrderRepo) ListUnactivated(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	if r.pool == nil {
		return nil, errPoolNil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE status = 'paid'
  AND activated_at IS NULL
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2
`, before.UTC(), limit)
	if err != nil {
		return nil, storeErr("list unactivated orders", err)
	}
	defer rows.Close()

	return collectOrders(rows, "list unactivated orders")
}

func collectOrders(rows pgx.Rows, op string) ([]model.Order, error) {
	out := make([]model.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, storeErr(op+" scan", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op+" rows", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		order   model.Order
		method  *string
		rawData []byte
	)
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.PlanType,
		&order.Cycle,
		&order.Price,
		&order.DurationDays,
		&order.Status,
		&method,
		&rawData,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.ExpiresAt,
		&order.ActivatedAt,
	); err != nil {
		return model.Order{}, err
	}
	if method != nil {
		order.PaymentMethod = enums.PaymentMethod(*method)
	}
	order.PaymentData = decodePaymentData(rawData)
	return order, nil
}

func marshalPaymentData(data map[string]any) (*string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payment data: %w", err)
	}
	s := string(raw)
	return &s, nil
}

func decodePaymentData(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}
