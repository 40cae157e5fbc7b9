package models

// Rejection kinds for a refused sale batch.
const (
	RejectValidation  = "VALIDATION"
	RejectGlobalLimit = "GLOBAL_LIMIT"
	RejectNumberLimit = "NUMBER_LIMIT"
)

// LineError describes one malformed line in a VALIDATION rejection.
type LineError struct {
	Number string `json:"number"`
	Error  string `json:"error"`
}

// FailedNumber describes one number over its headroom in a NUMBER_LIMIT
// rejection. Available is clamped to zero.
type FailedNumber struct {
	Number    string `json:"number"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// Rejection is the structured outcome of a refused sale batch. Exactly one
// of the detail fields is populated, according to Kind. A rejection is a
// normal result, not an error: the transaction rolls back with no side
// effects and the caller resubmits a corrected batch.
type Rejection struct {
	Kind        string         `json:"kind"`
	LineErrors  []LineError    `json:"details,omitempty"`
	Available   int64          `json:"available,omitempty"`
	Requested   int64          `json:"requested,omitempty"`
	FailedItems []FailedNumber `json:"failedItems,omitempty"`
}

// SaleBatchResult is the outcome of a bulk-sale submission. Rejection is
// non-nil when the batch was refused; the success fields are only valid
// when it is nil.
type SaleBatchResult struct {
	TicketID  string
	LineCount int
	Rejection *Rejection
}

// SingleSaleResult is the outcome of the single-line sale path.
type SingleSaleResult struct {
	Prize     int64
	Remaining int64 // per-number headroom left after this sale
	Rejection *Rejection
}

// Request models

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

type ChangePasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

type UpdateConfigRequest struct {
	LimitPerNumber int64             `json:"limit_per_number" binding:"required,gt=0"`
	LimitTotal     int64             `json:"limit_total_shift" binding:"gte=0"`
	Retention      int               `json:"system_retention" binding:"gte=0,lte=100"`
	ShiftSchedule  map[string]string `json:"shift_schedule" binding:"required"`
	WhatsappNumber string            `json:"whatsapp_number"`
}

type OpenShiftRequest struct {
	Type string `json:"type" binding:"required"`
}

type CloseShiftRequest struct {
	ShiftID       int64  `json:"shift_id" binding:"required"`
	WinningNumber string `json:"winning_number"`
}

type SetWinnerRequest struct {
	Number string `json:"number" binding:"required"`
}

// SaleItem is one proposed bet line in a submission.
type SaleItem struct {
	Number string `json:"number" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
}

type BulkSaleRequest struct {
	ShiftID int64      `json:"shift_id" binding:"required"`
	Items   []SaleItem `json:"items" binding:"required,min=1"`
}

type SingleSaleRequest struct {
	ShiftID int64  `json:"shift_id" binding:"required"`
	Number  string `json:"number" binding:"required"`
	Amount  int64  `json:"amount" binding:"required"`
}

// Response models

type AuthResponse struct {
	Status    string `json:"status"`
	Token     string `json:"token,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type ConfigResponse struct {
	LimitPerNumber int64             `json:"limit_per_number"`
	LimitTotal     int64             `json:"limit_total_shift"`
	Retention      int               `json:"system_retention"`
	ShiftSchedule  map[string]string `json:"shift_schedule"`
	WhatsappNumber string            `json:"whatsapp_number"`
}

type OpenShiftResponse struct {
	Status  string `json:"status"`
	ShiftID int64  `json:"shiftId"`
	Resumed bool   `json:"resumed"`
}

type DayStatusResponse struct {
	Date   string            `json:"date"`
	Shifts map[string]*Shift `json:"shifts"`
}

type SimulateWinnerResponse struct {
	WinnerCount int64 `json:"winnerCount"`
	TotalPrizes int64 `json:"totalPrizes"`
	TotalSold   int64 `json:"totalSold"`
}

// NumberTotal is one row of a per-number aggregation.
type NumberTotal struct {
	Number string `db:"number" json:"number"`
	Total  int64  `db:"total" json:"total_amount"`
}

type ShiftReportResponse struct {
	Shift     *Shift        `json:"shift"`
	Sales     []NumberTotal `json:"sales"`
	TotalSold int64         `json:"totalSold"`
}

type BulkSaleResponse struct {
	Status   string `json:"status"`
	TicketID string `json:"ticketId"`
	Count    int    `json:"count"`
}

type SingleSaleResponse struct {
	Status    string `json:"status"`
	Prize     int64  `json:"prize"`
	Remaining int64  `json:"remaining"`
}

type SalesStatsResponse struct {
	Total int64 `json:"total"`
	Count int64 `json:"count"`
}

type ClientsCountResponse struct {
	Count int64 `json:"count"`
}

// VerifyTicketShift is the shift subset returned by ticket verification.
type VerifyTicketShift struct {
	Type   string `json:"type"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

type VerifyTicketResponse struct {
	Ticket        *Ticket           `json:"ticket"`
	Shift         VerifyTicketShift `json:"shift"`
	Sales         []Sale            `json:"sales"`
	Status        string            `json:"status"`
	WinningNumber *string           `json:"winningNumber"`
	TotalWon      int64             `json:"totalWon"`
}

// DaySummary is one row of the history summary (last 30 business days).
type DaySummary struct {
	Date           string  `db:"date" json:"date"`
	TotalSales     int64   `db:"total_sales" json:"total_sales"`
	TotalTickets   int64   `db:"total_tickets" json:"total_tickets"`
	WinnersSummary *string `db:"winners_summary" json:"winners_summary"`
}

// ShiftHistory is a shift with its settlement aggregates.
type ShiftHistory struct {
	Shift
	WinnerCount int64 `db:"winner_count" json:"winner_count"`
	TotalPayout int64 `db:"total_payout" json:"total_payout"`
	TotalSold   int64 `db:"total_sold" json:"total_sold"`
}

type DayTotals struct {
	TotalSales  int64 `json:"total_sales"`
	TotalPrizes int64 `json:"total_prizes"`
}

type DayHistoryResponse struct {
	Shifts []ShiftHistory `json:"shifts"`
	Totals DayTotals      `json:"totals"`
}

type ReconcileResponse struct {
	Status          string `json:"status"`
	CountersRebuilt int64  `json:"countersRebuilt"`
	ShiftsUpdated   int64  `json:"shiftsUpdated"`
}

type OKResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
