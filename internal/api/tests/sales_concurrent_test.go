package api_test

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"loteria-pos/internal/api/testutils"
	"loteria-pos/internal/models"
)

// Ten cashiers hammering the same number at once: the per-number limit
// must hold no matter how the submissions interleave.
func TestConcurrentSalesRespectNumberLimit(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.SetLimits(t, 350, 0)
	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	const workers = 10
	results := make([]int, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/sales/bulk",
				models.BulkSaleRequest{
					ShiftID: shiftID,
					Items:   []models.SaleItem{{Number: "07", Amount: 50}},
				}, nil)
			results[idx] = w.Code
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, code := range results {
		switch code {
		case http.StatusOK:
			accepted++
		case http.StatusConflict:
			// over the limit, expected for the losers
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}

	// 350 of headroom at 50 apiece admits exactly 7 submissions.
	assert.Equal(t, 7, accepted)

	amount, count := testCtx.CounterRow(t, shiftID, "07")
	assert.Equal(t, int64(350), amount)
	assert.Equal(t, 7, count)

	logAmount, logCount := testCtx.SalesAggregate(t, shiftID, "07")
	assert.Equal(t, amount, logAmount)
	assert.Equal(t, count, logCount)

	var shift models.Shift
	err := testCtx.DB.Get(&shift, `SELECT * FROM shifts WHERE id = $1`, shiftID)
	assert.NoError(t, err)
	assert.Equal(t, int64(350), shift.TotalSales)
	assert.Equal(t, 7, shift.TicketCount)
}

// Distinct numbers racing against the shift-wide limit.
func TestConcurrentSalesRespectGlobalLimit(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.SetLimits(t, 10000, 1000)
	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	const workers = 10
	results := make([]int, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			number := fmt.Sprintf("%02d", idx)
			w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/sales/bulk",
				models.BulkSaleRequest{
					ShiftID: shiftID,
					Items:   []models.SaleItem{{Number: number, Amount: 200}},
				}, nil)
			results[idx] = w.Code
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, code := range results {
		if code == http.StatusOK {
			accepted++
		}
	}
	assert.Equal(t, 5, accepted)

	var shift models.Shift
	err := testCtx.DB.Get(&shift, `SELECT * FROM shifts WHERE id = $1`, shiftID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1000), shift.TotalSales)

	// The cached total agrees with the sales log.
	var logged int64
	err = testCtx.DB.Get(&logged, `SELECT COALESCE(SUM(amount), 0) FROM sales WHERE shift_id = $1`, shiftID)
	assert.NoError(t, err)
	assert.Equal(t, shift.TotalSales, logged)
}
