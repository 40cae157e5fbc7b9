package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"loteria-pos/internal/limits"
	"loteria-pos/internal/models"
)

// maxTicketInsertRetries bounds how often a whole submission is replayed
// after losing a ticket-id race at insert time.
const maxTicketInsertRetries = 3

// SubmitSaleBatch runs one bulk-sale submission as a single atomic unit:
// shift lookup, limit evaluation against counters read under the shift's
// row lock, ticket issuance, and all inserts and counter updates. Either
// everything commits or nothing does.
//
// A refused batch is not an error: the result carries the structured
// rejection and the transaction rolls back with zero side effects.
func (r *PostgresRepository) SubmitSaleBatch(ctx context.Context, shiftID int64, items []models.SaleItem) (*models.SaleBatchResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := r.submitSaleBatchOnce(ctx, shiftID, items)
		if err != nil && isUniqueViolation(err, "tickets_pkey") && attempt < maxTicketInsertRetries {
			// Another submission claimed the same ticket id between our
			// existence check and the insert; replay with a fresh id.
			continue
		}
		return result, err
	}
}

func (r *PostgresRepository) submitSaleBatchOnce(ctx context.Context, shiftID int64, items []models.SaleItem) (result *models.SaleBatchResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil || (result != nil && result.Rejection != nil) {
			tx.Rollback()
			return
		}
	}()

	// The shift row lock serializes every submission touching this shift:
	// counters and the running total read below cannot go stale before we
	// write them back.
	shift, err := lockShift(ctx, tx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.Status != models.ShiftOpen {
		return nil, ErrShiftNotOpen
	}

	// The limits in force are part of the atomic unit: read them in the
	// same transaction as the counters they gate.
	cfg, err := readConfig(ctx, tx)
	if err != nil {
		return nil, err
	}

	counters, err := countersForItems(ctx, tx, shiftID, items)
	if err != nil {
		return nil, err
	}

	plan, rejection := limits.Evaluate(items, counters, shift.TotalSales, cfg.LimitPerNumber, cfg.LimitTotal)
	if rejection != nil {
		return &models.SaleBatchResult{Rejection: rejection}, nil
	}

	ticketID, err := issueTicketID(ctx, tx)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tickets (id, shift_id, total) VALUES ($1, $2, $3)`,
		ticketID, shiftID, plan.Total)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sales (shift_id, ticket_id, number, amount, prize) VALUES ($1, $2, $3, $4, $5)`,
			shiftID, ticketID, item.Number, item.Amount, item.Amount*models.PrizeMultiplier)
		if err != nil {
			return nil, err
		}
	}

	for _, number := range plan.Numbers {
		err = upsertCounter(ctx, tx, shiftID, number, plan.Amounts[number], plan.Counts[number])
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE shifts SET total_sales = total_sales + $1, ticket_count = ticket_count + 1 WHERE id = $2`,
		plan.Total, shiftID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &models.SaleBatchResult{TicketID: ticketID, LineCount: len(items)}, nil
}

// SubmitSingleSale records one ticketless bet line under the same limit
// discipline as the bulk path.
func (r *PostgresRepository) SubmitSingleSale(ctx context.Context, shiftID int64, item models.SaleItem) (result *models.SingleSaleResult, err error) {
	if msg := limits.ValidateLine(item); msg != "" {
		return &models.SingleSaleResult{Rejection: &models.Rejection{
			Kind:       models.RejectValidation,
			LineErrors: []models.LineError{{Number: item.Number, Error: msg}},
		}}, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil || (result != nil && result.Rejection != nil) {
			tx.Rollback()
			return
		}
	}()

	shift, err := lockShift(ctx, tx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.Status != models.ShiftOpen {
		return nil, ErrShiftNotOpen
	}

	cfg, err := readConfig(ctx, tx)
	if err != nil {
		return nil, err
	}

	counters, err := countersForItems(ctx, tx, shiftID, []models.SaleItem{item})
	if err != nil {
		return nil, err
	}

	current := counters[item.Number]
	if current+item.Amount > cfg.LimitPerNumber {
		available := cfg.LimitPerNumber - current
		if available < 0 {
			available = 0
		}
		return &models.SingleSaleResult{Rejection: &models.Rejection{
			Kind:        models.RejectNumberLimit,
			FailedItems: []models.FailedNumber{{Number: item.Number, Requested: item.Amount, Available: available}},
		}}, nil
	}

	if cfg.LimitTotal > 0 && shift.TotalSales+item.Amount > cfg.LimitTotal {
		available := cfg.LimitTotal - shift.TotalSales
		if available < 0 {
			available = 0
		}
		return &models.SingleSaleResult{Rejection: &models.Rejection{
			Kind:      models.RejectGlobalLimit,
			Available: available,
			Requested: item.Amount,
		}}, nil
	}

	prize := item.Amount * models.PrizeMultiplier
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sales (shift_id, number, amount, prize) VALUES ($1, $2, $3, $4)`,
		shiftID, item.Number, item.Amount, prize)
	if err != nil {
		return nil, err
	}

	if err = upsertCounter(ctx, tx, shiftID, item.Number, item.Amount, 1); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE shifts SET total_sales = total_sales + $1 WHERE id = $2`, item.Amount, shiftID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &models.SingleSaleResult{
		Prize:     prize,
		Remaining: cfg.LimitPerNumber - (current + item.Amount),
	}, nil
}

// readConfig loads the singleton config row inside the caller's transaction.
func readConfig(ctx context.Context, tx *sqlx.Tx) (*models.Config, error) {
	var cfg models.Config
	if err := tx.GetContext(ctx, &cfg, `SELECT * FROM config WHERE id = 1`); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// lockShift loads a shift under FOR UPDATE, mapping absence to
// ErrShiftNotFound.
func lockShift(ctx context.Context, tx *sqlx.Tx, shiftID int64) (*models.Shift, error) {
	var shift models.Shift
	err := tx.GetContext(ctx, &shift, `SELECT * FROM shifts WHERE id = $1 FOR UPDATE`, shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShiftNotFound
		}
		return nil, err
	}
	return &shift, nil
}

// countersForItems reads the current per-number amounts for every number in
// the batch. Missing counters read as zero.
func countersForItems(ctx context.Context, tx *sqlx.Tx, shiftID int64, items []models.SaleItem) (map[string]int64, error) {
	numbers := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if !seen[item.Number] {
			seen[item.Number] = true
			numbers = append(numbers, item.Number)
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT number, amount FROM shift_counters WHERE shift_id = $1 AND number = ANY($2)`,
		shiftID, pq.Array(numbers))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counters := make(map[string]int64, len(numbers))
	for rows.Next() {
		var number string
		var amount int64
		if err := rows.Scan(&number, &amount); err != nil {
			return nil, err
		}
		counters[number] = amount
	}
	return counters, rows.Err()
}

// upsertCounter adds a batch's aggregated amount and line count to the
// (shift, number) counter.
func upsertCounter(ctx context.Context, tx *sqlx.Tx, shiftID int64, number string, amount int64, count int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO shift_counters (shift_id, number, amount, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shift_id, number) DO UPDATE
		SET amount = shift_counters.amount + EXCLUDED.amount,
		    count = shift_counters.count + EXCLUDED.count
	`, shiftID, number, amount, count)
	return err
}

// Ticket reads

func (r *PostgresRepository) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.GetContext(ctx, &ticket, `SELECT * FROM tickets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *PostgresRepository) TicketSales(ctx context.Context, ticketID string) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.SelectContext(ctx, &sales,
		`SELECT * FROM sales WHERE ticket_id = $1 ORDER BY id`, ticketID)
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// AnnulTicket deletes a ticket and its lines, permitted only while the
// owning shift is still OPEN. Counters and the shift's cached totals are
// decremented in the same transaction so the counter-equality invariant
// survives annulment.
func (r *PostgresRepository) AnnulTicket(ctx context.Context, ticketID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	// Resolve the owning shift first; the ticket row only becomes
	// authoritative once the shift lock is held.
	var shiftID int64
	err = tx.GetContext(ctx, &shiftID, `SELECT shift_id FROM tickets WHERE id = $1`, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrTicketNotFound
		}
		return err
	}

	shift, err := lockShift(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	if shift.Status != models.ShiftOpen {
		err = ErrTicketShiftClosed
		return err
	}

	// Re-read under the lock: a concurrent annulment may have deleted the
	// ticket while we waited. Without this check the decrements below would
	// apply twice and desync total_sales from the sales log.
	var ticket models.Ticket
	err = tx.GetContext(ctx, &ticket, `SELECT * FROM tickets WHERE id = $1`, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrTicketNotFound
		}
		return err
	}

	// Aggregate the ticket's lines per number so each counter is
	// decremented by exactly what the ticket contributed.
	rows, err := tx.QueryContext(ctx,
		`SELECT number, SUM(amount), COUNT(*) FROM sales WHERE ticket_id = $1 GROUP BY number`,
		ticketID)
	if err != nil {
		return err
	}
	type contribution struct {
		number string
		amount int64
		count  int
	}
	var contribs []contribution
	for rows.Next() {
		var c contribution
		if err = rows.Scan(&c.number, &c.amount, &c.count); err != nil {
			rows.Close()
			return err
		}
		contribs = append(contribs, c)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	for _, c := range contribs {
		_, err = tx.ExecContext(ctx, `
			UPDATE shift_counters
			SET amount = amount - $1, count = count - $2
			WHERE shift_id = $3 AND number = $4
		`, c.amount, c.count, ticket.ShiftID, c.number)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM shift_counters WHERE shift_id = $1 AND count <= 0`, ticket.ShiftID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE shifts
		SET total_sales = total_sales - $1,
		    ticket_count = ticket_count - 1
		WHERE id = $2
	`, ticket.Total, ticket.ShiftID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM sales WHERE ticket_id = $1`, ticketID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, ticketID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Reporting reads

func (r *PostgresRepository) RecentSales(ctx context.Context, shiftID int64, limit int) ([]models.Sale, error) {
	if limit <= 0 {
		limit = 10
	}
	var sales []models.Sale
	err := r.db.SelectContext(ctx, &sales,
		`SELECT * FROM sales WHERE shift_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		shiftID, limit)
	if err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *PostgresRepository) SalesStats(ctx context.Context, shiftID int64) (*models.SalesStatsResponse, error) {
	var stats models.SalesStatsResponse
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM sales WHERE shift_id = $1`,
		shiftID).Scan(&stats.Total, &stats.Count)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Usage returns the number -> sold-amount map for a shift, served from the
// materialized counters rather than re-aggregating the sales log.
func (r *PostgresRepository) Usage(ctx context.Context, shiftID int64) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT number, amount FROM shift_counters WHERE shift_id = $1`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := make(map[string]int64)
	for rows.Next() {
		var number string
		var amount int64
		if err := rows.Scan(&number, &amount); err != nil {
			return nil, err
		}
		usage[number] = amount
	}
	return usage, rows.Err()
}

func (r *PostgresRepository) ClientsCount(ctx context.Context, shiftID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM tickets WHERE shift_id = $1`, shiftID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

