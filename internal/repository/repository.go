package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"loteria-pos/internal/models"
)

// Domain errors surfaced by the repository. Handlers map these to HTTP
// statuses; anything else is an internal storage failure.
var (
	ErrShiftNotFound     = errors.New("shift not found")
	ErrShiftNotOpen      = errors.New("shift is not open")
	ErrShiftSlotTaken    = errors.New("shift slot already taken")
	ErrDailyQuotaReached = errors.New("daily shift quota (3) reached")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrTicketShiftClosed = errors.New("cannot annul a ticket of a closed shift")
	ErrUsernameTaken     = errors.New("username already exists")
	ErrUserNotFound      = errors.New("user not found")
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error

	// Configuration (singleton row)
	GetConfig(ctx context.Context) (*models.Config, error)
	UpdateConfig(ctx context.Context, cfg *models.Config) error

	// Shift lifecycle
	OpenShift(ctx context.Context, shiftType, date string) (*models.Shift, bool, error)
	GetShift(ctx context.Context, id int64) (*models.Shift, error)
	CurrentShift(ctx context.Context) (*models.Shift, error)
	DayStatus(ctx context.Context, date string) (map[string]*models.Shift, error)
	CloseShift(ctx context.Context, id int64, winningNumber string) error
	SetWinner(ctx context.Context, id int64, number string) error
	SimulateWinner(ctx context.Context, id int64, number string) (*models.SimulateWinnerResponse, error)
	ShiftReport(ctx context.Context, id int64) (*models.ShiftReportResponse, error)

	// Sales. Submissions read the config row inside their own transaction;
	// callers never pass limits in.
	SubmitSaleBatch(ctx context.Context, shiftID int64, items []models.SaleItem) (*models.SaleBatchResult, error)
	SubmitSingleSale(ctx context.Context, shiftID int64, item models.SaleItem) (*models.SingleSaleResult, error)
	RecentSales(ctx context.Context, shiftID int64, limit int) ([]models.Sale, error)
	SalesStats(ctx context.Context, shiftID int64) (*models.SalesStatsResponse, error)
	Usage(ctx context.Context, shiftID int64) (map[string]int64, error)
	ClientsCount(ctx context.Context, shiftID int64) (int64, error)

	// Tickets
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	TicketSales(ctx context.Context, ticketID string) ([]models.Sale, error)
	AnnulTicket(ctx context.Context, ticketID string) error

	// History
	HistorySummary(ctx context.Context) ([]models.DaySummary, error)
	DayHistory(ctx context.Context, date string) ([]models.ShiftHistory, error)

	// Maintenance
	RebuildCounters(ctx context.Context) (countersRebuilt, shiftsUpdated int64, err error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (optionally on a specific constraint).
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// User repository methods

func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = "admin"
	}
	user.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO users (id, username, password, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Password, user.Role, user.CreatedAt)
	if isUniqueViolation(err, "") {
		return ErrUsernameTaken
	}
	return err
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT * FROM users WHERE username = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT id, username, '' AS password, role, created_at FROM users ORDER BY created_at`

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *PostgresRepository) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Config repository methods

func (r *PostgresRepository) GetConfig(ctx context.Context) (*models.Config, error) {
	var cfg models.Config
	if err := r.db.GetContext(ctx, &cfg, `SELECT * FROM config WHERE id = 1`); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *PostgresRepository) UpdateConfig(ctx context.Context, cfg *models.Config) error {
	query := `
		UPDATE config SET
			limit_per_number = $1,
			limit_total_shift = $2,
			system_retention = $3,
			shift_schedule = $4,
			whatsapp_number = $5
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query,
		cfg.LimitPerNumber, cfg.LimitTotal, cfg.Retention, cfg.ShiftSchedule, cfg.WhatsappNumber)
	return err
}
