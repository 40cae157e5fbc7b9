package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"loteria-pos/internal/models"
	"loteria-pos/internal/repository"
)

// Errors raised by the service on top of the repository's domain errors.
var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrInvalidShiftType     = errors.New("invalid shift type")
	ErrInvalidWinningNumber = errors.New("winning number must be exactly two digits")
	ErrSelfDeletion         = errors.New("cannot delete your own user")
)

// Service defines all the business logic operations
type Service interface {
	// Authentication and user management
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ChangePassword(ctx context.Context, userID, password string) error
	DeleteUser(ctx context.Context, callerID, userID string) error
	EnsureAdminUser(ctx context.Context, username, password string) error

	// Configuration
	GetConfig(ctx context.Context) (*models.ConfigResponse, error)
	UpdateConfig(ctx context.Context, req models.UpdateConfigRequest) error

	// Shift lifecycle
	OpenShift(ctx context.Context, shiftType string) (*models.OpenShiftResponse, error)
	CloseShift(ctx context.Context, req models.CloseShiftRequest) error
	SetWinner(ctx context.Context, shiftID int64, number string) error
	SimulateWinner(ctx context.Context, shiftID int64, number string) (*models.SimulateWinnerResponse, error)
	DayStatus(ctx context.Context, date string) (*models.DayStatusResponse, error)
	CurrentShift(ctx context.Context) (*models.Shift, error)
	ShiftReport(ctx context.Context, shiftID int64) (*models.ShiftReportResponse, error)

	// Sales
	SubmitSaleBatch(ctx context.Context, req models.BulkSaleRequest) (*models.SaleBatchResult, error)
	SubmitSingleSale(ctx context.Context, req models.SingleSaleRequest) (*models.SingleSaleResult, error)
	RecentSales(ctx context.Context, shiftID int64) ([]models.Sale, error)
	SalesStats(ctx context.Context, shiftID int64) (*models.SalesStatsResponse, error)
	Usage(ctx context.Context, shiftID int64) (map[string]int64, error)
	ClientsCount(ctx context.Context, shiftID int64) (int64, error)

	// Tickets
	VerifyTicket(ctx context.Context, ticketID string) (*models.VerifyTicketResponse, error)
	AnnulTicket(ctx context.Context, ticketID string) error

	// Reporting
	HistorySummary(ctx context.Context) ([]models.DaySummary, error)
	DayHistory(ctx context.Context, date string) (*models.DayHistoryResponse, error)

	// Maintenance
	Reconcile(ctx context.Context) (*models.ReconcileResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	jwtSecret     []byte
	tokenDuration time.Duration
	businessTZ    *time.Location
}

// NewDefaultService creates a new DefaultService. businessTimeZone is the
// fixed commercial timezone for business-date computation.
func NewDefaultService(repo repository.Repository, jwtSecret, businessTimeZone string) (Service, error) {
	loc, err := time.LoadLocation(businessTimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid business timezone %q: %w", businessTimeZone, err)
	}
	return &DefaultService{
		repo:          repo,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 12 * time.Hour,
		businessTZ:    loc,
	}, nil
}

// Authentication methods

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

func (s *DefaultService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Username: req.Username,
		Password: string(hashedPassword),
		Role:     req.Role,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	user.Password = ""
	return user, nil
}

func (s *DefaultService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *DefaultService) ChangePassword(ctx context.Context, userID, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	return s.repo.UpdateUserPassword(ctx, userID, string(hashedPassword))
}

func (s *DefaultService) DeleteUser(ctx context.Context, callerID, userID string) error {
	if callerID == userID {
		return ErrSelfDeletion
	}
	return s.repo.DeleteUser(ctx, userID)
}

// EnsureAdminUser seeds the initial admin account when it does not exist.
func (s *DefaultService) EnsureAdminUser(ctx context.Context, username, password string) error {
	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.CreateUser(ctx, models.CreateUserRequest{
		Username: username,
		Password: password,
		Role:     "admin",
	})
	if errors.Is(err, repository.ErrUsernameTaken) {
		// Lost a seeding race to another instance; the account exists.
		return nil
	}
	return err
}

// Configuration

func (s *DefaultService) GetConfig(ctx context.Context) (*models.ConfigResponse, error) {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	schedule := map[string]string{}
	if cfg.ShiftSchedule != "" {
		if err := json.Unmarshal([]byte(cfg.ShiftSchedule), &schedule); err != nil {
			return nil, fmt.Errorf("corrupt shift schedule: %w", err)
		}
	}

	return &models.ConfigResponse{
		LimitPerNumber: cfg.LimitPerNumber,
		LimitTotal:     cfg.LimitTotal,
		Retention:      cfg.Retention,
		ShiftSchedule:  schedule,
		WhatsappNumber: cfg.WhatsappNumber,
	}, nil
}

func (s *DefaultService) UpdateConfig(ctx context.Context, req models.UpdateConfigRequest) error {
	schedule, err := json.Marshal(req.ShiftSchedule)
	if err != nil {
		return fmt.Errorf("error encoding shift schedule: %w", err)
	}
	return s.repo.UpdateConfig(ctx, &models.Config{
		LimitPerNumber: req.LimitPerNumber,
		LimitTotal:     req.LimitTotal,
		Retention:      req.Retention,
		ShiftSchedule:  string(schedule),
		WhatsappNumber: req.WhatsappNumber,
	})
}

// Shift lifecycle

func (s *DefaultService) OpenShift(ctx context.Context, shiftType string) (*models.OpenShiftResponse, error) {
	if !models.ValidShiftType(shiftType) {
		return nil, ErrInvalidShiftType
	}

	shift, resumed, err := s.repo.OpenShift(ctx, shiftType, s.businessDate())
	if err != nil {
		return nil, err
	}
	return &models.OpenShiftResponse{Status: "success", ShiftID: shift.ID, Resumed: resumed}, nil
}

func (s *DefaultService) CloseShift(ctx context.Context, req models.CloseShiftRequest) error {
	if req.WinningNumber != "" && len(req.WinningNumber) != 2 {
		return ErrInvalidWinningNumber
	}
	return s.repo.CloseShift(ctx, req.ShiftID, req.WinningNumber)
}

func (s *DefaultService) SetWinner(ctx context.Context, shiftID int64, number string) error {
	if len(number) != 2 {
		return ErrInvalidWinningNumber
	}
	return s.repo.SetWinner(ctx, shiftID, number)
}

func (s *DefaultService) SimulateWinner(ctx context.Context, shiftID int64, number string) (*models.SimulateWinnerResponse, error) {
	if number == "" {
		return &models.SimulateWinnerResponse{}, nil
	}
	return s.repo.SimulateWinner(ctx, shiftID, number)
}

// DayStatus reports the three shift slots of a date; an empty date means
// today's business date.
func (s *DefaultService) DayStatus(ctx context.Context, date string) (*models.DayStatusResponse, error) {
	if date == "" {
		date = s.businessDate()
	}
	shifts, err := s.repo.DayStatus(ctx, date)
	if err != nil {
		return nil, err
	}
	return &models.DayStatusResponse{Date: date, Shifts: shifts}, nil
}

func (s *DefaultService) CurrentShift(ctx context.Context) (*models.Shift, error) {
	return s.repo.CurrentShift(ctx)
}

func (s *DefaultService) ShiftReport(ctx context.Context, shiftID int64) (*models.ShiftReportResponse, error) {
	return s.repo.ShiftReport(ctx, shiftID)
}

// Sales

func (s *DefaultService) SubmitSaleBatch(ctx context.Context, req models.BulkSaleRequest) (*models.SaleBatchResult, error) {
	return s.repo.SubmitSaleBatch(ctx, req.ShiftID, req.Items)
}

func (s *DefaultService) SubmitSingleSale(ctx context.Context, req models.SingleSaleRequest) (*models.SingleSaleResult, error) {
	item := models.SaleItem{Number: req.Number, Amount: req.Amount}
	return s.repo.SubmitSingleSale(ctx, req.ShiftID, item)
}

func (s *DefaultService) RecentSales(ctx context.Context, shiftID int64) ([]models.Sale, error) {
	return s.repo.RecentSales(ctx, shiftID, 10)
}

func (s *DefaultService) SalesStats(ctx context.Context, shiftID int64) (*models.SalesStatsResponse, error) {
	return s.repo.SalesStats(ctx, shiftID)
}

func (s *DefaultService) Usage(ctx context.Context, shiftID int64) (map[string]int64, error) {
	return s.repo.Usage(ctx, shiftID)
}

func (s *DefaultService) ClientsCount(ctx context.Context, shiftID int64) (int64, error) {
	return s.repo.ClientsCount(ctx, shiftID)
}

// Tickets

// VerifyTicket classifies a ticket against its shift's settlement state.
func (s *DefaultService) VerifyTicket(ctx context.Context, ticketID string) (*models.VerifyTicketResponse, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, repository.ErrTicketNotFound
	}

	shift, err := s.repo.GetShift(ctx, ticket.ShiftID)
	if err != nil {
		return nil, err
	}
	if shift == nil {
		return nil, repository.ErrShiftNotFound
	}

	sales, err := s.repo.TicketSales(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	resp := &models.VerifyTicketResponse{
		Ticket: ticket,
		Shift:  models.VerifyTicketShift{Type: shift.Type, Date: shift.Date, Status: shift.Status},
		Sales:  sales,
		Status: models.TicketPending,
	}

	if shift.Status == models.ShiftSettled || shift.Status == models.ShiftClosed {
		resp.WinningNumber = shift.WinningNumber
		if shift.WinningNumber != nil {
			resp.Status = models.TicketNotAwarded
			for _, sale := range sales {
				if sale.Number == *shift.WinningNumber {
					resp.Status = models.TicketWinner
					resp.TotalWon = sale.Prize
					break
				}
			}
		} else {
			// Closed but the draw result has not been registered yet.
			resp.Status = models.TicketPendingDraw
		}
	}

	return resp, nil
}

func (s *DefaultService) AnnulTicket(ctx context.Context, ticketID string) error {
	return s.repo.AnnulTicket(ctx, ticketID)
}

// Reporting

func (s *DefaultService) HistorySummary(ctx context.Context) ([]models.DaySummary, error) {
	return s.repo.HistorySummary(ctx)
}

func (s *DefaultService) DayHistory(ctx context.Context, date string) (*models.DayHistoryResponse, error) {
	shifts, err := s.repo.DayHistory(ctx, date)
	if err != nil {
		return nil, err
	}

	resp := &models.DayHistoryResponse{Shifts: shifts}
	for _, shift := range shifts {
		resp.Totals.TotalSales += shift.TotalSold
		resp.Totals.TotalPrizes += shift.TotalPayout
	}
	return resp, nil
}

// Maintenance

func (s *DefaultService) Reconcile(ctx context.Context) (*models.ReconcileResponse, error) {
	counters, shifts, err := s.repo.RebuildCounters(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ReconcileResponse{
		Status:          "success",
		CountersRebuilt: counters,
		ShiftsUpdated:   shifts,
	}, nil
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	expirationTime := time.Now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      expirationTime.Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
