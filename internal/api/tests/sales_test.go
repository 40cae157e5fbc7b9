package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"loteria-pos/internal/api/testutils"
	"loteria-pos/internal/models"
)

// rejectionBody mirrors the wire shape of a refused sale batch.
type rejectionBody struct {
	Status      string                `json:"status"`
	Code        string                `json:"code"`
	Message     string                `json:"message"`
	Kind        string                `json:"kind"`
	Details     []models.LineError    `json:"details"`
	Available   int64                 `json:"available"`
	Requested   int64                 `json:"requested"`
	FailedItems []models.FailedNumber `json:"failedItems"`
}

func bulkSale(t *testing.T, testCtx *testutils.TestContext, shiftID int64, items []models.SaleItem) *rejectionBody {
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/sales/bulk",
		models.BulkSaleRequest{ShiftID: shiftID, Items: items},
		nil,
	)

	if w.Code == http.StatusOK {
		return nil
	}

	var rej rejectionBody
	err := json.Unmarshal(w.Body.Bytes(), &rej)
	assert.NoError(t, err)
	return &rej
}

func TestBulkSaleSuccess(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/sales/bulk",
		models.BulkSaleRequest{ShiftID: shiftID, Items: []models.SaleItem{
			{Number: "07", Amount: 100},
			{Number: "23", Amount: 50},
			{Number: "07", Amount: 25},
		}},
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.BulkSaleResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.TicketID)
	assert.Equal(t, 3, resp.Count)

	// Duplicate numbers in one cart merge into one counter.
	amount, count := testCtx.CounterRow(t, shiftID, "07")
	assert.Equal(t, int64(125), amount)
	assert.Equal(t, 2, count)

	// Counter equality: the cache must match the sales log.
	logAmount, logCount := testCtx.SalesAggregate(t, shiftID, "07")
	assert.Equal(t, amount, logAmount)
	assert.Equal(t, count, logCount)
}

func TestBulkSaleValidationListsEveryBadLine(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodPost,
		"/api/sales/bulk",
		models.BulkSaleRequest{ShiftID: shiftID, Items: []models.SaleItem{
			{Number: "07", Amount: 13},
			{Number: "08", Amount: 20},
			{Number: "09", Amount: 7},
		}},
		nil,
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var rej rejectionBody
	err := json.Unmarshal(w.Body.Bytes(), &rej)
	assert.NoError(t, err)
	assert.Equal(t, models.RejectValidation, rej.Kind)
	assert.Len(t, rej.Details, 2)

	// Atomicity: a rejected batch leaves no trace.
	amount, count := testCtx.SalesAggregate(t, shiftID, "08")
	assert.Zero(t, amount)
	assert.Zero(t, count)

	var tickets int
	err = testCtx.DB.Get(&tickets, `SELECT COUNT(*) FROM tickets WHERE shift_id = $1`, shiftID)
	assert.NoError(t, err)
	assert.Zero(t, tickets)
}

func TestBulkSalePerNumberLimitLadder(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.SetLimits(t, 350, 0)
	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	// 300 fits.
	rej := bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "07", Amount: 300}})
	assert.Nil(t, rej)
	amount, _ := testCtx.CounterRow(t, shiftID, "07")
	assert.Equal(t, int64(300), amount)

	// 100 exceeds: 50 available.
	rej = bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "07", Amount: 100}})
	assert.NotNil(t, rej)
	assert.Equal(t, models.RejectNumberLimit, rej.Kind)
	assert.Equal(t, "LIMIT_EXCEEDED", rej.Code)
	assert.Len(t, rej.FailedItems, 1)
	assert.Equal(t, int64(50), rej.FailedItems[0].Available)

	// Exactly the headroom fits.
	rej = bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "07", Amount: 50}})
	assert.Nil(t, rej)
	amount, _ = testCtx.CounterRow(t, shiftID, "07")
	assert.Equal(t, int64(350), amount)

	// Nothing more fits, available reported as 0.
	rej = bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "07", Amount: 5}})
	assert.NotNil(t, rej)
	assert.Equal(t, int64(0), rej.FailedItems[0].Available)
}

// Each submission decides against the limits in force when it runs; a
// mid-shift config edit binds the very next batch.
func TestBulkSaleHonorsLatestLimits(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.SetLimits(t, 350, 0)
	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	rej := bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "07", Amount: 200}})
	assert.Nil(t, rej)

	testCtx.SetLimits(t, 250, 0)

	rej = bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "07", Amount: 100}})
	assert.NotNil(t, rej)
	assert.Equal(t, models.RejectNumberLimit, rej.Kind)
	assert.Equal(t, int64(50), rej.FailedItems[0].Available)

	// Raising the limit back re-admits immediately.
	testCtx.SetLimits(t, 350, 0)

	rej = bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "07", Amount: 100}})
	assert.Nil(t, rej)
}

func TestBulkSaleReportsAllExceededNumbers(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.SetLimits(t, 100, 0)
	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	rej := bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "11", Amount: 90}, {Number: "22", Amount: 95}})
	assert.Nil(t, rej)

	rej = bulkSale(t, testCtx, shiftID, []models.SaleItem{
		{Number: "11", Amount: 20},
		{Number: "22", Amount: 20},
		{Number: "33", Amount: 20},
	})
	assert.NotNil(t, rej)
	assert.Equal(t, models.RejectNumberLimit, rej.Kind)
	assert.Len(t, rej.FailedItems, 2)
	assert.Equal(t, "11", rej.FailedItems[0].Number)
	assert.Equal(t, int64(10), rej.FailedItems[0].Available)
	assert.Equal(t, "22", rej.FailedItems[1].Number)
	assert.Equal(t, int64(5), rej.FailedItems[1].Available)

	// The admissible line "33" must not have been committed either.
	amount, _ := testCtx.CounterRow(t, shiftID, "33")
	assert.Zero(t, amount)
}

func TestBulkSaleGlobalLimit(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.SetLimits(t, 1000, 1000)
	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	rej := bulkSale(t, testCtx, shiftID, []models.SaleItem{{Number: "50", Amount: 950}})
	assert.Nil(t, rej)

	// Batch total 60 against 50 of shift-wide headroom: refused wholesale
	// even though neither number is near its own limit.
	rej = bulkSale(t, testCtx, shiftID, []models.SaleItem{
		{Number: "01", Amount: 30},
		{Number: "02", Amount: 30},
	})
	assert.NotNil(t, rej)
	assert.Equal(t, models.RejectGlobalLimit, rej.Kind)
	assert.Equal(t, int64(50), rej.Available)
	assert.Equal(t, int64(60), rej.Requested)

	amount, _ := testCtx.CounterRow(t, shiftID, "01")
	assert.Zero(t, amount)
}

func TestBulkSaleAgainstClosedShift(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/shifts/close",
		models.CloseShiftRequest{ShiftID: shiftID}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/sales/bulk",
		models.BulkSaleRequest{ShiftID: shiftID, Items: []models.SaleItem{{Number: "07", Amount: 10}}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp models.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &errResp)
	assert.NoError(t, err)
	assert.Equal(t, "SHIFT_NOT_OPEN", errResp.Code)
}

func TestBulkSaleUnknownShift(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/sales/bulk",
		models.BulkSaleRequest{ShiftID: 999999, Items: []models.SaleItem{{Number: "07", Amount: 10}}}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSingleSalePath(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testCtx.SetLimits(t, 350, 0)
	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/sales",
		models.SingleSaleRequest{ShiftID: shiftID, Number: "42", Amount: 100}, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SingleSaleResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, int64(8000), resp.Prize)
	assert.Equal(t, int64(250), resp.Remaining)

	// The single path maintains the same counters as the bulk path.
	amount, count := testCtx.CounterRow(t, shiftID, "42")
	assert.Equal(t, int64(100), amount)
	assert.Equal(t, 1, count)

	// Non-multiple-of-5 refused.
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/sales",
		models.SingleSaleRequest{ShiftID: shiftID, Number: "42", Amount: 13}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageAndStatsEndpoints(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	shiftID := testutils.OpenShift(t, testCtx.Router, models.ShiftMorning)

	rej := bulkSale(t, testCtx, shiftID, []models.SaleItem{
		{Number: "07", Amount: 100},
		{Number: "23", Amount: 50},
	})
	assert.Nil(t, rej)

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet,
		"/api/sales/usage?shift_id="+itoa(shiftID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var usage map[string]int64
	err := json.Unmarshal(w.Body.Bytes(), &usage)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), usage["07"])
	assert.Equal(t, int64(50), usage["23"])

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet,
		"/api/sales/stats?shift_id="+itoa(shiftID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var stats models.SalesStatsResponse
	err = json.Unmarshal(w.Body.Bytes(), &stats)
	assert.NoError(t, err)
	assert.Equal(t, int64(150), stats.Total)
	assert.Equal(t, int64(2), stats.Count)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet,
		"/api/stats/clients?shift_id="+itoa(shiftID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var clients models.ClientsCountResponse
	err = json.Unmarshal(w.Body.Bytes(), &clients)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), clients.Count)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet,
		"/api/sales/recent?shift_id="+itoa(shiftID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var recent []models.Sale
	err = json.Unmarshal(w.Body.Bytes(), &recent)
	assert.NoError(t, err)
	assert.Len(t, recent, 2)
}
