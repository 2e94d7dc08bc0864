package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalog items in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = "id, pharmacy_id, name, brand, category, price, quantity, expiry_date, created_at, updated_at"

// Upsert creates or replaces an item by id within its pharmacy.
func (r *Repository) Upsert(ctx context.Context, item CatalogItem) (CatalogItem, error) {
	query := fmt.Sprintf(`
		INSERT INTO catalog_items (id, pharmacy_id, name, brand, category, price, quantity, expiry_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			quantity = EXCLUDED.quantity,
			expiry_date = EXCLUDED.expiry_date,
			updated_at = now()
		WHERE catalog_items.pharmacy_id = EXCLUDED.pharmacy_id
		RETURNING %s`, itemColumns)

	row := r.pool.QueryRow(ctx, query,
		item.ID,
		item.PharmacyID,
		item.Name,
		textOrNull(item.Brand),
		textOrNull(item.Category),
		floatToNumeric(item.Price),
		item.Quantity,
		dateOrNull(item.ExpiryDate),
	)
	saved, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflicting id owned by another pharmacy.
			return CatalogItem{}, ErrItemNotFound
		}
		return CatalogItem{}, err
	}
	return saved, nil
}

// Get fetches a single batch by id, scoped to the pharmacy.
func (r *Repository) Get(ctx context.Context, pharmacyID, itemID string) (CatalogItem, error) {
	query := fmt.Sprintf("SELECT %s FROM catalog_items WHERE pharmacy_id = $1 AND id = $2", itemColumns)
	item, err := scanItem(r.pool.QueryRow(ctx, query, pharmacyID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CatalogItem{}, ErrItemNotFound
		}
		return CatalogItem{}, err
	}
	return item, nil
}

// List returns all batches for the pharmacy.
func (r *Repository) List(ctx context.Context, pharmacyID string) ([]CatalogItem, error) {
	query := fmt.Sprintf("SELECT %s FROM catalog_items WHERE pharmacy_id = $1 ORDER BY name, brand, created_at", itemColumns)
	rows, err := r.pool.Query(ctx, query, pharmacyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteByNameBrand removes every batch matching name (and brand when
// given), case-insensitively. Returns the number of deleted batches.
func (r *Repository) DeleteByNameBrand(ctx context.Context, pharmacyID, name, brand string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM catalog_items
		WHERE pharmacy_id = $1
		  AND lower(name) = lower($2)
		  AND ($3 = '' OR lower(coalesce(brand, '')) = lower($3))`,
		pharmacyID, name, brand)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AdjustQuantity applies delta to the batch quantity, flooring at zero, as a
// single atomic statement. The previous quantity is captured under row lock
// so the returned applied delta is exact even under concurrent adjustments.
func (r *Repository) AdjustQuantity(ctx context.Context, pharmacyID, itemID string, delta int64) (CatalogItem, int64, error) {
	query := fmt.Sprintf(`
		UPDATE catalog_items c
		SET quantity = GREATEST(c.quantity + $3, 0), updated_at = now()
		FROM (
			SELECT id, quantity AS prev
			FROM catalog_items
			WHERE pharmacy_id = $1 AND id = $2
			FOR UPDATE
		) p
		WHERE c.id = p.id
		RETURNING %s, p.prev`, qualifiedItemColumns("c"))

	var prev int64
	row := r.pool.QueryRow(ctx, query, pharmacyID, itemID, delta)
	item, err := scanItemWith(row, &prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CatalogItem{}, 0, ErrItemNotFound
		}
		return CatalogItem{}, 0, err
	}
	return item, item.Quantity - prev, nil
}

// SetQuantity stores an absolute quantity. Validation happens in the service.
func (r *Repository) SetQuantity(ctx context.Context, pharmacyID, itemID string, quantity int64) (CatalogItem, error) {
	query := fmt.Sprintf(`
		UPDATE catalog_items
		SET quantity = $3, updated_at = now()
		WHERE pharmacy_id = $1 AND id = $2
		RETURNING %s`, itemColumns)
	item, err := scanItem(r.pool.QueryRow(ctx, query, pharmacyID, itemID, quantity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CatalogItem{}, ErrItemNotFound
		}
		return CatalogItem{}, err
	}
	return item, nil
}

// DeleteExpired removes batches whose expiry date has passed.
func (r *Repository) DeleteExpired(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM catalog_items WHERE expiry_date IS NOT NULL AND expiry_date < $1", asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListLowStock returns aggregated rows at or below threshold across all
// pharmacies.
func (r *Repository) ListLowStock(ctx context.Context, threshold int64) ([]LowStockRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pharmacy_id, min(name) AS name, coalesce(min(brand), '') AS brand, sum(quantity) AS total
		FROM catalog_items
		GROUP BY pharmacy_id, lower(name), lower(coalesce(brand, ''))
		HAVING sum(quantity) <= $1
		ORDER BY pharmacy_id, name`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LowStockRow
	for rows.Next() {
		var row LowStockRow
		if err := rows.Scan(&row.PharmacyID, &row.Name, &row.Brand, &row.Quantity); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func qualifiedItemColumns(alias string) string {
	return fmt.Sprintf("%[1]s.id, %[1]s.pharmacy_id, %[1]s.name, %[1]s.brand, %[1]s.category, %[1]s.price, %[1]s.quantity, %[1]s.expiry_date, %[1]s.created_at, %[1]s.updated_at", alias)
}

func scanItem(row pgx.Row) (CatalogItem, error) {
	return scanItemWith(row)
}

func scanItemWith(row pgx.Row, extra ...any) (CatalogItem, error) {
	var (
		item      CatalogItem
		brand     pgtype.Text
		category  pgtype.Text
		price     pgtype.Numeric
		expiry    pgtype.Date
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	dest := []any{&item.ID, &item.PharmacyID, &item.Name, &brand, &category, &price, &item.Quantity, &expiry, &createdAt, &updatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return CatalogItem{}, err
	}
	if brand.Valid {
		item.Brand = brand.String
	}
	if category.Valid {
		item.Category = category.String
	}
	item.Price = numericToFloat(price)
	if expiry.Valid {
		expiryDate := expiry.Time
		item.ExpiryDate = &expiryDate
	}
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time
	return item, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func dateOrNull(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func numericToFloat(n pgtype.Numeric) float64 {
	f, _ := n.Float64Value()
	return f.Float64
}

func floatToNumeric(f float64) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(fmt.Sprintf("%f", f))
	return n
}
