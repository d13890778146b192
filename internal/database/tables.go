package database

import (
	"context"

	"github.com/google/uuid"
)

const tableColumns = `id, table_number, capacity, location, is_available`

func scanTable(row interface{ Scan(dest ...any) error }) (RestaurantTable, error) {
	var t RestaurantTable
	err := row.Scan(&t.ID, &t.TableNumber, &t.Capacity, &t.Location, &t.IsAvailable)
	return t, err
}

const getTable = `SELECT ` + tableColumns + ` FROM restaurant_tables WHERE id = $1`

func (q *Queries) GetTable(ctx context.Context, id uuid.UUID) (RestaurantTable, error) {
	return scanTable(q.db.QueryRow(ctx, getTable, id))
}

// ReserveTable is an atomic check-and-set: it only succeeds when the
// table is currently available, so concurrent order creation against
// the same table cannot double-book. No rows means taken or absent.
const reserveTable = `
UPDATE restaurant_tables
SET is_available = false
WHERE id = $1 AND is_available = true
RETURNING ` + tableColumns

func (q *Queries) ReserveTable(ctx context.Context, id uuid.UUID) (RestaurantTable, error) {
	return scanTable(q.db.QueryRow(ctx, reserveTable, id))
}

// ReleaseTable is idempotent: releasing an already-available table is
// a no-op, not an error.
const releaseTable = `UPDATE restaurant_tables SET is_available = true WHERE id = $1`

func (q *Queries) ReleaseTable(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, releaseTable, id)
	return err
}
