package service

import (
	"time"
)

// BusinessDateIn formats the business date of an instant in the commercial
// timezone. Shift bookkeeping follows this clock, not the server's: a sale
// recorded after local midnight still belongs to the commercial day until
// that timezone rolls over.
func BusinessDateIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// businessDate returns today's business date. Computed per call, never
// cached across requests.
func (s *DefaultService) businessDate() string {
	return BusinessDateIn(time.Now(), s.businessTZ)
}
