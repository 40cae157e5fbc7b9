package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"loteria-pos/internal/models"
)

const maxShiftsPerDay = 3

// OpenShift opens the (date, type) shift slot, creating it when absent.
// Opening an already-OPEN slot is idempotent and returns the existing shift
// with resumed=true. A slot that was already closed or settled, or a date
// that exhausted its quota of three shifts, is refused.
func (r *PostgresRepository) OpenShift(ctx context.Context, shiftType, date string) (shift *models.Shift, resumed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	var existing models.Shift
	err = tx.GetContext(ctx, &existing,
		`SELECT * FROM shifts WHERE date = $1 AND type = $2 FOR UPDATE`, date, shiftType)
	if err == nil {
		if existing.Status == models.ShiftOpen {
			err = tx.Commit()
			return &existing, true, err
		}
		err = fmt.Errorf("%w: %s shift of %s is already %s",
			ErrShiftSlotTaken, shiftType, date, existing.Status)
		return nil, false, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	var count int
	err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM shifts WHERE date = $1`, date)
	if err != nil {
		return nil, false, err
	}
	if count >= maxShiftsPerDay {
		err = ErrDailyQuotaReached
		return nil, false, err
	}

	created := &models.Shift{Type: shiftType, Date: date, Status: models.ShiftOpen}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO shifts (type, date, status) VALUES ($1, $2, $3) RETURNING id, created_at`,
		shiftType, date, models.ShiftOpen).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		// The UNIQUE(date, type) index backstops a concurrent open of the
		// same slot.
		if isUniqueViolation(err, "") {
			err = fmt.Errorf("%w: %s shift of %s", ErrShiftSlotTaken, shiftType, date)
		}
		return nil, false, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, false, err
	}
	return created, false, nil
}

func (r *PostgresRepository) GetShift(ctx context.Context, id int64) (*models.Shift, error) {
	var shift models.Shift
	err := r.db.GetContext(ctx, &shift, `SELECT * FROM shifts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &shift, nil
}

// CurrentShift returns the latest open shift, or nil when none is open.
func (r *PostgresRepository) CurrentShift(ctx context.Context) (*models.Shift, error) {
	var shift models.Shift
	err := r.db.GetContext(ctx, &shift,
		`SELECT * FROM shifts WHERE status = $1 ORDER BY id DESC LIMIT 1`, models.ShiftOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &shift, nil
}

// DayStatus returns the three shift slots of a business date, nil where a
// slot has not been opened.
func (r *PostgresRepository) DayStatus(ctx context.Context, date string) (map[string]*models.Shift, error) {
	var shifts []models.Shift
	err := r.db.SelectContext(ctx, &shifts, `SELECT * FROM shifts WHERE date = $1`, date)
	if err != nil {
		return nil, err
	}

	status := make(map[string]*models.Shift, len(models.ShiftTypes))
	for _, t := range models.ShiftTypes {
		status[t] = nil
	}
	for i := range shifts {
		status[shifts[i].Type] = &shifts[i]
	}
	return status, nil
}

// CloseShift moves an OPEN shift to CLOSED, or straight to SETTLED when a
// winning number is supplied.
func (r *PostgresRepository) CloseShift(ctx context.Context, id int64, winningNumber string) (err error) {
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

	var shift models.Shift
	err = tx.GetContext(ctx, &shift, `SELECT * FROM shifts WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrShiftNotFound
		}
		return err
	}
	if shift.Status != models.ShiftOpen {
		err = ErrShiftNotOpen
		return err
	}

	status := models.ShiftClosed
	var winner interface{}
	if winningNumber != "" {
		status = models.ShiftSettled
		winner = winningNumber
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE shifts SET status = $1, winning_number = $2, closed_at = $3 WHERE id = $4`,
		status, winner, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SetWinner registers (or overwrites) the winning number and forces the
// shift to SETTLED. This is the only path that moves CLOSED to SETTLED.
func (r *PostgresRepository) SetWinner(ctx context.Context, id int64, number string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shifts SET winning_number = $1, status = $2,
		        closed_at = COALESCE(closed_at, $3)
		 WHERE id = $4`,
		number, models.ShiftSettled, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrShiftNotFound
	}
	return nil
}

// SimulateWinner projects the payout exposure of a candidate number without
// mutating anything.
func (r *PostgresRepository) SimulateWinner(ctx context.Context, id int64, number string) (*models.SimulateWinnerResponse, error) {
	var out models.SimulateWinnerResponse
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(prize), 0), COALESCE(SUM(amount), 0)
		 FROM sales WHERE shift_id = $1 AND number = $2`,
		id, number).Scan(&out.WinnerCount, &out.TotalPrizes, &out.TotalSold)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ShiftReport aggregates sold amounts per number for a shift.
func (r *PostgresRepository) ShiftReport(ctx context.Context, id int64) (*models.ShiftReportResponse, error) {
	shift, err := r.GetShift(ctx, id)
	if err != nil {
		return nil, err
	}
	if shift == nil {
		return nil, ErrShiftNotFound
	}

	var totals []models.NumberTotal
	err = r.db.SelectContext(ctx, &totals,
		`SELECT number, SUM(amount) AS total FROM sales WHERE shift_id = $1 GROUP BY number ORDER BY number`,
		id)
	if err != nil {
		return nil, err
	}

	report := &models.ShiftReportResponse{Shift: shift, Sales: totals}
	for _, row := range totals {
		report.TotalSold += row.Total
	}
	return report, nil
}

// HistorySummary returns per-day aggregates for the last 30 business days.
func (r *PostgresRepository) HistorySummary(ctx context.Context) ([]models.DaySummary, error) {
	query := `
		SELECT s.date,
		       COALESCE(SUM(sa.amount), 0) AS total_sales,
		       COUNT(sa.id) AS total_tickets,
		       string_agg(DISTINCT s.type || ':' || COALESCE(s.winning_number, '-'), ',') AS winners_summary
		FROM shifts s
		LEFT JOIN sales sa ON s.id = sa.shift_id
		GROUP BY s.date
		ORDER BY s.date DESC
		LIMIT 30
	`

	var rows []models.DaySummary
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// DayHistory returns every shift of a date with its settlement aggregates.
func (r *PostgresRepository) DayHistory(ctx context.Context, date string) ([]models.ShiftHistory, error) {
	query := `
		SELECT s.*,
		       COALESCE((SELECT COUNT(*) FROM sales WHERE shift_id = s.id AND number = s.winning_number), 0) AS winner_count,
		       COALESCE((SELECT SUM(prize) FROM sales WHERE shift_id = s.id AND number = s.winning_number), 0) AS total_payout,
		       COALESCE((SELECT SUM(amount) FROM sales WHERE shift_id = s.id), 0) AS total_sold
		FROM shifts s
		WHERE s.date = $1
		ORDER BY s.id
	`

	var rows []models.ShiftHistory
	if err := r.db.SelectContext(ctx, &rows, query, date); err != nil {
		return nil, err
	}
	return rows, nil
}
