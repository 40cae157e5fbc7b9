package models

import (
	"time"
)

// Shift types (three sales windows per business day).
const (
	ShiftMorning   = "Morning"
	ShiftAfternoon = "Afternoon"
	ShiftNight     = "Night"
)

// ShiftTypes lists the valid shift types in schedule order.
var ShiftTypes = []string{ShiftMorning, ShiftAfternoon, ShiftNight}

// Shift statuses. CLOSED and SETTLED are terminal for new sales.
const (
	ShiftOpen    = "OPEN"
	ShiftClosed  = "CLOSED"
	ShiftSettled = "SETTLED"
)

// Ticket verification statuses.
const (
	TicketPending     = "PENDIENTE"
	TicketWinner      = "GANADOR"
	TicketNotAwarded  = "NO_PREMIADO"
	TicketPendingDraw = "PENDIENTE_SORTEO" // shift closed but winner not yet registered
)

// PrizeMultiplier is the fixed payout factor: a winning line pays amount * 80.
const PrizeMultiplier = 80

// Config is the singleton system configuration row.
type Config struct {
	ID             int    `db:"id" json:"-"`
	LimitPerNumber int64  `db:"limit_per_number" json:"limit_per_number"`
	LimitTotal     int64  `db:"limit_total_shift" json:"limit_total_shift"` // 0 = unlimited
	Retention      int    `db:"system_retention" json:"system_retention"`
	ShiftSchedule  string `db:"shift_schedule" json:"-"`
	WhatsappNumber string `db:"whatsapp_number" json:"whatsapp_number"`
}

// Shift is one daily sales window. TotalSales and TicketCount are cached
// running totals maintained by the sale transactions; the sales table is
// the authoritative log.
type Shift struct {
	ID            int64      `db:"id" json:"id"`
	Type          string     `db:"type" json:"type"`
	Date          string     `db:"date" json:"date"`
	Status        string     `db:"status" json:"status"`
	WinningNumber *string    `db:"winning_number" json:"winningNumber"`
	TotalSales    int64      `db:"total_sales" json:"totalSales"`
	TicketCount   int        `db:"ticket_count" json:"ticketCount"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	ClosedAt      *time.Time `db:"closed_at" json:"closedAt"`
}

// Ticket groups the sale lines of one bulk submission.
type Ticket struct {
	ID        string    `db:"id" json:"id"`
	ShiftID   int64     `db:"shift_id" json:"shiftId"`
	Total     int64     `db:"total" json:"total"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Sale is one bet line on a two-digit number. TicketID is null only for
// the single-sale path.
type Sale struct {
	ID        int64     `db:"id" json:"id"`
	ShiftID   int64     `db:"shift_id" json:"shiftId"`
	TicketID  *string   `db:"ticket_id" json:"ticketId"`
	Number    string    `db:"number" json:"number"`
	Amount    int64     `db:"amount" json:"amount"`
	Prize     int64     `db:"prize" json:"prize"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ShiftCounter is the materialized per-(shift, number) aggregate of sales.
// Invariant: amount/count always equal SUM(amount)/COUNT(*) over the
// matching sale lines.
type ShiftCounter struct {
	ShiftID int64  `db:"shift_id" json:"shiftId"`
	Number  string `db:"number" json:"number"`
	Amount  int64  `db:"amount" json:"amount"`
	Count   int    `db:"count" json:"count"`
}

// User is an operator account. Only administrative operations care about
// identity; sales are anonymous.
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ValidShiftType reports whether t is one of the three shift types.
func ValidShiftType(t string) bool {
	for _, s := range ShiftTypes {
		if s == t {
			return true
		}
	}
	return false
}
