package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loteria-pos/internal/models"
)

func items(pairs ...interface{}) []models.SaleItem {
	var out []models.SaleItem
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, models.SaleItem{
			Number: pairs[i].(string),
			Amount: int64(pairs[i+1].(int)),
		})
	}
	return out
}

func TestEvaluateAdmitsSimpleBatch(t *testing.T) {
	plan, rej := Evaluate(items("07", 300), map[string]int64{}, 0, 350, 0)

	assert.Nil(t, rej)
	assert.Equal(t, int64(300), plan.Total)
	assert.Equal(t, int64(300), plan.Amounts["07"])
	assert.Equal(t, 1, plan.Counts["07"])
}

func TestEvaluateAggregatesDuplicateNumbers(t *testing.T) {
	plan, rej := Evaluate(items("05", 100, "05", 50, "10", 20), map[string]int64{}, 0, 350, 0)

	assert.Nil(t, rej)
	assert.Equal(t, int64(170), plan.Total)
	assert.Equal(t, int64(150), plan.Amounts["05"])
	assert.Equal(t, 2, plan.Counts["05"])
	assert.Equal(t, 1, plan.Counts["10"])
	assert.Equal(t, []string{"05", "10"}, plan.Numbers)
}

func TestEvaluateValidationListsEveryOffendingLine(t *testing.T) {
	plan, rej := Evaluate(items("07", 13, "08", 20, "09", -5, "1", 10), map[string]int64{}, 0, 350, 0)

	assert.Nil(t, plan)
	assert.Equal(t, models.RejectValidation, rej.Kind)
	assert.Len(t, rej.LineErrors, 3)
	assert.Equal(t, "07", rej.LineErrors[0].Number)
	assert.Equal(t, "09", rej.LineErrors[1].Number)
	assert.Equal(t, "1", rej.LineErrors[2].Number)
}

func TestEvaluateValidationShortCircuitsLimits(t *testing.T) {
	// The batch would also blow both limits, but malformed lines win.
	_, rej := Evaluate(items("07", 13), map[string]int64{"07": 350}, 5000, 350, 1000)

	assert.Equal(t, models.RejectValidation, rej.Kind)
}

func TestEvaluateGlobalLimit(t *testing.T) {
	// limit_total_shift = 1000, current total = 950: a 60-lempira batch is
	// refused wholesale even though no single number is over its own limit.
	_, rej := Evaluate(items("01", 30, "02", 30), map[string]int64{}, 950, 350, 1000)

	assert.Equal(t, models.RejectGlobalLimit, rej.Kind)
	assert.Equal(t, int64(50), rej.Available)
	assert.Equal(t, int64(60), rej.Requested)
}

func TestEvaluateGlobalLimitUnsetMeansUnlimited(t *testing.T) {
	plan, rej := Evaluate(items("01", 30), map[string]int64{}, 1_000_000, 350, 0)

	assert.Nil(t, rej)
	assert.NotNil(t, plan)
}

func TestEvaluateGlobalLimitPrecedesNumberLimit(t *testing.T) {
	_, rej := Evaluate(items("07", 500), map[string]int64{"07": 300}, 950, 350, 1000)

	assert.Equal(t, models.RejectGlobalLimit, rej.Kind)
}

func TestEvaluatePerNumberHeadroomLadder(t *testing.T) {
	// limit_per_number = 350: 300 fits, then 100 is refused with 50
	// available, 50 fits, then even 5 is refused with 0 available.
	plan, rej := Evaluate(items("07", 300), map[string]int64{}, 0, 350, 0)
	assert.Nil(t, rej)
	assert.Equal(t, int64(300), plan.Total)

	_, rej = Evaluate(items("07", 100), map[string]int64{"07": 300}, 300, 350, 0)
	assert.Equal(t, models.RejectNumberLimit, rej.Kind)
	assert.Len(t, rej.FailedItems, 1)
	assert.Equal(t, int64(50), rej.FailedItems[0].Available)
	assert.Equal(t, int64(100), rej.FailedItems[0].Requested)

	plan, rej = Evaluate(items("07", 50), map[string]int64{"07": 300}, 300, 350, 0)
	assert.Nil(t, rej)
	assert.Equal(t, int64(50), plan.Total)

	_, rej = Evaluate(items("07", 5), map[string]int64{"07": 350}, 350, 350, 0)
	assert.Equal(t, models.RejectNumberLimit, rej.Kind)
	assert.Equal(t, int64(0), rej.FailedItems[0].Available)
}

func TestEvaluateReportsEveryExceededNumber(t *testing.T) {
	counters := map[string]int64{"07": 300, "08": 340, "09": 100}
	_, rej := Evaluate(items("09", 50, "07", 100, "08", 20), counters, 740, 350, 0)

	assert.Equal(t, models.RejectNumberLimit, rej.Kind)
	assert.Len(t, rej.FailedItems, 2)
	// Sorted by number so callers get a stable report.
	assert.Equal(t, "07", rej.FailedItems[0].Number)
	assert.Equal(t, int64(50), rej.FailedItems[0].Available)
	assert.Equal(t, "08", rej.FailedItems[1].Number)
	assert.Equal(t, int64(10), rej.FailedItems[1].Available)
}

func TestEvaluateDuplicatesCountTowardOneNumberLimit(t *testing.T) {
	// Two 200-lempira lines on the same number merge to 400 > 350.
	_, rej := Evaluate(items("15", 200, "15", 200), map[string]int64{}, 0, 350, 0)

	assert.Equal(t, models.RejectNumberLimit, rej.Kind)
	assert.Equal(t, int64(400), rej.FailedItems[0].Requested)
	assert.Equal(t, int64(350), rej.FailedItems[0].Available)
}

func TestValidateLine(t *testing.T) {
	assert.Empty(t, ValidateLine(models.SaleItem{Number: "00", Amount: 5}))
	assert.NotEmpty(t, ValidateLine(models.SaleItem{Number: "000", Amount: 5}))
	assert.NotEmpty(t, ValidateLine(models.SaleItem{Number: "00", Amount: 0}))
	assert.NotEmpty(t, ValidateLine(models.SaleItem{Number: "00", Amount: 7}))
}
