package repository

import (
	"context"
)

// RebuildCounters recomputes shift_counters and the shifts' cached totals
// from the sales log in one transaction. The counters are a materialized
// aggregate; this routine is the proof they stay rebuildable, and it is
// idempotent: running it on a consistent ledger changes nothing.
func (r *PostgresRepository) RebuildCounters(ctx context.Context) (countersRebuilt, shiftsUpdated int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM shift_counters`)
	if err != nil {
		return 0, 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO shift_counters (shift_id, number, amount, count)
		SELECT shift_id, number, SUM(amount), COUNT(*)
		FROM sales
		GROUP BY shift_id, number
	`)
	if err != nil {
		return 0, 0, err
	}
	countersRebuilt, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		UPDATE shifts
		SET total_sales = COALESCE((SELECT SUM(amount) FROM sales WHERE sales.shift_id = shifts.id), 0),
		    ticket_count = COALESCE((SELECT COUNT(*) FROM tickets WHERE tickets.shift_id = shifts.id), 0)
	`)
	if err != nil {
		return 0, 0, err
	}
	shiftsUpdated, _ = res.RowsAffected()

	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	return countersRebuilt, shiftsUpdated, nil
}
