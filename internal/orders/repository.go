package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists orders in PostgreSQL. Item lines live in a jsonb
// column since they are immutable once the order is placed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = "id, pharmacy_id, patient_id, items, status, pickup, address, note, created_at, updated_at, confirmed_at, rejected_at, ready_at, completed_at"

// Create inserts a new order.
func (r *Repository) Create(ctx context.Context, order Order) (Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return Order{}, fmt.Errorf("orders: encode items: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO orders (id, pharmacy_id, patient_id, items, status, pickup, address, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING %s`, orderColumns)
	row := r.pool.QueryRow(ctx, query,
		order.ID,
		order.PharmacyID,
		order.PatientID,
		items,
		order.Status,
		order.Pickup,
		textOrNull(order.Address),
		textOrNull(order.Note),
	)
	return scanOrder(row)
}

// Get fetches one order by id.
func (r *Repository) Get(ctx context.Context, orderID string) (Order, error) {
	query := fmt.Sprintf("SELECT %s FROM orders WHERE id = $1", orderColumns)
	order, err := scanOrder(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return order, nil
}

// UpdateStatus moves the order from to to in one conditional statement.
// The matching status timestamp column is stamped alongside. A miss is
// disambiguated with a follow-up Get so callers can tell a stale
// transition from a missing order.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, from, to Status) (Order, error) {
	col, ok := statusColumn(to)
	if !ok {
		return Order{}, ErrInvalidTransition
	}
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = $1, %s = now(), updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING %s`, col, orderColumns)
	order, err := scanOrder(r.pool.QueryRow(ctx, query, to, orderID, from))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, err
	}
	if _, getErr := r.Get(ctx, orderID); getErr != nil {
		return Order{}, getErr
	}
	return Order{}, ErrInvalidTransition
}

// List returns orders matching filter, newest first, plus the unpaged
// total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.PharmacyID != "" {
		args = append(args, filter.PharmacyID)
		where += fmt.Sprintf(" AND pharmacy_id = $%d", len(args))
	}
	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		where += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, max(filter.Offset, 0))
	query := fmt.Sprintf("SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		orderColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, order)
	}
	return result, total, rows.Err()
}

func statusColumn(to Status) (string, bool) {
	switch to {
	case StatusConfirmed:
		return "confirmed_at", true
	case StatusRejected:
		return "rejected_at", true
	case StatusReady:
		return "ready_at", true
	case StatusCompleted:
		return "completed_at", true
	default:
		return "", false
	}
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		order       Order
		items       []byte
		address     pgtype.Text
		note        pgtype.Text
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
		confirmedAt pgtype.Timestamptz
		rejectedAt  pgtype.Timestamptz
		readyAt     pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(&order.ID, &order.PharmacyID, &order.PatientID, &items, &order.Status, &order.Pickup,
		&address, &note, &createdAt, &updatedAt, &confirmedAt, &rejectedAt, &readyAt, &completedAt)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return Order{}, fmt.Errorf("orders: decode items: %w", err)
	}
	if address.Valid {
		order.Address = address.String
	}
	if note.Valid {
		order.Note = note.String
	}
	order.CreatedAt = createdAt.Time
	order.UpdatedAt = updatedAt.Time
	order.ConfirmedAt = tsOrNil(confirmedAt)
	order.RejectedAt = tsOrNil(rejectedAt)
	order.ReadyAt = tsOrNil(readyAt)
	order.CompletedAt = tsOrNil(completedAt)
	return order, nil
}

func tsOrNil(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
