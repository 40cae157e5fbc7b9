package repository

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTicketCandidateFormat(t *testing.T) {
	now := time.UnixMilli(1700000123456)
	re := regexp.MustCompile(`^T-[1-9]\d{3}-3456$`)

	for i := 0; i < 100; i++ {
		id := newTicketCandidate(now)
		assert.Regexp(t, re, id)
	}
}

func TestFallbackTicketIDFormat(t *testing.T) {
	now := time.UnixMilli(1700000123456)
	re := regexp.MustCompile(`^T-1700000123456-\d{1,3}$`)

	for i := 0; i < 100; i++ {
		assert.Regexp(t, re, fallbackTicketID(now))
	}
}

func TestFallbackTicketIDLongerThanCandidate(t *testing.T) {
	now := time.Now()
	assert.Greater(t, len(fallbackTicketID(now)), len(newTicketCandidate(now)))
}
