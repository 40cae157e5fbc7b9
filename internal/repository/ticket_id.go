package repository

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// ticketIDAttempts bounds how many short candidate ids are tried before
// falling back to the long, virtually collision-free form.
const ticketIDAttempts = 5

// issueTicketID mints a ticket id inside the caller's transaction. Short
// candidates are favored because cashiers read ids aloud; each one is
// checked for existence under the same isolation scope as the upcoming
// insert.
func issueTicketID(ctx context.Context, tx *sqlx.Tx) (string, error) {
	for attempt := 0; attempt < ticketIDAttempts; attempt++ {
		candidate := newTicketCandidate(time.Now())

		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM tickets WHERE id = $1)`, candidate).Scan(&exists)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return fallbackTicketID(time.Now()), nil
}

// newTicketCandidate builds the short human-speakable form
// T-<4 random digits>-<last 4 digits of the millisecond clock>.
func newTicketCandidate(now time.Time) string {
	random := 1000 + rand.Intn(9000)
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	return fmt.Sprintf("T-%d-%s", random, ms[len(ms)-4:])
}

// fallbackTicketID builds the long form used when the short candidates keep
// colliding: the full millisecond clock plus a random suffix.
func fallbackTicketID(now time.Time) string {
	return fmt.Sprintf("T-%d-%d", now.UnixMilli(), rand.Intn(1000))
}
