package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"loteria-pos/internal/api"
	"loteria-pos/internal/config"
	"loteria-pos/internal/models"
	"loteria-pos/internal/repository"
	"loteria-pos/internal/service"
	"loteria-pos/internal/utils"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    service.Service
	JWTSecret  []byte
	DB         *sqlx.DB
	AdminJWT   string
}

// SetupTestContext creates a new test context with initialized dependencies
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg := config.LoadConfig()

	// Override with test-specific config
	if cfg.Database.TestDBName != "" {
		cfg.Database.DBName = cfg.Database.TestDBName
	} else {
		cfg.Database.DBName = "loteria_test"
	}
	cfg.Auth.JWTSecret = "test-secret-key"

	// Set up database
	db, err := config.SetupDatabase(cfg)
	assert.NoError(t, err, "Failed to set up test database")

	// Create repository
	repo := repository.NewPostgresRepository(db)
	cleanupTestDatabase(t, repo)

	// Create service
	svc, err := service.NewDefaultService(repo, cfg.Auth.JWTSecret, cfg.Business.TimeZone)
	assert.NoError(t, err, "Failed to create service")

	// Create API handler
	handler := api.NewHandler(svc, utils.NewLogger("error"), []byte(cfg.Auth.JWTSecret))

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.Default()

	// Set up routes
	handler.SetupRoutes(router)

	// Seed an admin account and log in to get a token for protected routes
	token := createAdminUser(t, svc)

	return &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		JWTSecret:  []byte(cfg.Auth.JWTSecret),
		DB:         db,
		AdminJWT:   token,
	}
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	if t.DB != nil {
		cleanupTestDatabase(nil, t.Repository)
		t.DB.Close()
	}
}

// SetLimits updates the config row directly for a test scenario.
// limitTotal = 0 means the shift-wide limit is unset.
func (tc *TestContext) SetLimits(t *testing.T, limitPerNumber, limitTotal int64) {
	_, err := tc.DB.Exec(
		`UPDATE config SET limit_per_number = $1, limit_total_shift = $2 WHERE id = 1`,
		limitPerNumber, limitTotal)
	assert.NoError(t, err, "Failed to update limits")
}

// CounterRow reads a shift counter directly for invariant checks.
func (tc *TestContext) CounterRow(t *testing.T, shiftID int64, number string) (amount int64, count int) {
	err := tc.DB.QueryRow(
		`SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(count), 0)
		 FROM shift_counters WHERE shift_id = $1 AND number = $2`,
		shiftID, number).Scan(&amount, &count)
	assert.NoError(t, err)
	return amount, count
}

// SalesAggregate re-aggregates the sales log for a (shift, number) so tests
// can assert the counter-equality invariant.
func (tc *TestContext) SalesAggregate(t *testing.T, shiftID int64, number string) (amount int64, count int) {
	err := tc.DB.QueryRow(
		`SELECT COALESCE(SUM(amount), 0), COUNT(*)
		 FROM sales WHERE shift_id = $1 AND number = $2`,
		shiftID, number).Scan(&amount, &count)
	assert.NoError(t, err)
	return amount, count
}

// cleanupTestDatabase removes all ledger data between tests
func cleanupTestDatabase(t *testing.T, repo repository.Repository) {
	if pgRepo, ok := repo.(*repository.PostgresRepository); ok {
		db := pgRepo.GetDB()

		for _, table := range []string{"shift_counters", "sales", "tickets", "shifts", "users"} {
			_, err := db.Exec("DELETE FROM " + table)
			if t != nil && err != nil {
				t.Logf("Warning: Failed to clean %s: %v", table, err)
			}
		}

		// Restore default limits
		_, err := db.Exec(`UPDATE config SET limit_per_number = 350, limit_total_shift = 5000 WHERE id = 1`)
		if t != nil && err != nil {
			t.Logf("Warning: Failed to reset config: %v", err)
		}
	}
}

// Helper functions
func createAdminUser(t *testing.T, svc service.Service) string {
	ctx := context.Background()
	err := svc.EnsureAdminUser(ctx, "admin", "testpassword")
	assert.NoError(t, err, "Failed to seed admin user")

	resp, err := svc.Login(ctx, models.LoginRequest{Username: "admin", Password: "testpassword"})
	assert.NoError(t, err, "Failed to log in admin user")

	return resp.Token
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// OpenShift opens (or resumes) a shift of the given type and returns its id.
func OpenShift(t *testing.T, router http.Handler, shiftType string) int64 {
	w := PerformRequest(router, http.MethodPost, "/api/shifts/open",
		models.OpenShiftRequest{Type: shiftType}, nil)
	assert.Equal(t, http.StatusOK, w.Code, "open shift failed: %s", w.Body.String())

	var resp models.OpenShiftResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.NotZero(t, resp.ShiftID)
	return resp.ShiftID
}
