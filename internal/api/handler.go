package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"loteria-pos/internal/models"
	"loteria-pos/internal/repository"
	"loteria-pos/internal/service"
)

// Handler wires the HTTP surface to the service layer.
type Handler struct {
	service   service.Service
	log       *logrus.Logger
	jwtSecret []byte
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service, log *logrus.Logger, jwtSecret []byte) *Handler {
	return &Handler{service: svc, log: log, jwtSecret: jwtSecret}
}

// SetupRoutes registers all API routes on the router.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.POST("/auth/login", h.Login)

	api.GET("/config", h.GetConfig)

	api.GET("/shifts/day-status", h.DayStatus)
	api.GET("/shifts/current", h.CurrentShift)
	api.POST("/shifts/open", h.OpenShift)
	api.POST("/shifts/close", h.CloseShift)
	api.GET("/shifts/:id/simulate-winner", h.SimulateWinner)
	api.PUT("/shifts/:id/winner", h.SetWinner)
	api.GET("/shifts/:id/report", h.ShiftReport)

	api.POST("/sales/bulk", h.BulkSale)
	api.POST("/sales", h.SingleSale)
	api.GET("/sales/recent", h.RecentSales)
	api.GET("/sales/stats", h.SalesStats)
	api.GET("/sales/usage", h.Usage)
	api.GET("/stats/clients", h.ClientsCount)

	api.GET("/tickets/:id/verify", h.VerifyTicket)

	api.GET("/history/summary", h.HistorySummary)
	api.GET("/history/:date", h.DayHistory)

	// Administrative operations require an authenticated caller.
	admin := api.Group("")
	admin.Use(AuthMiddleware(h.jwtSecret))
	admin.PUT("/config", h.UpdateConfig)
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.PUT("/users/:id/password", h.ChangePassword)
	admin.DELETE("/users/:id", h.DeleteUser)
	admin.DELETE("/tickets/:id", h.AnnulTicket)
	admin.POST("/admin/reconcile", h.Reconcile)
}

// Authentication

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Status:  "error",
				Code:    "UNAUTHORIZED",
				Message: "Invalid username or password",
			})
			return
		}
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Users

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), c.Param("id"), req.Password); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{Status: "success"})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	callerID := c.GetString("userId")
	if err := h.service.DeleteUser(c.Request.Context(), callerID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{Status: "success"})
}

// Configuration

func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.service.GetConfig(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var req models.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid config payload")
		return
	}

	if err := h.service.UpdateConfig(c.Request.Context(), req); err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{Status: "success"})
}

// Shifts

func (h *Handler) DayStatus(c *gin.Context) {
	status, err := h.service.DayStatus(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) CurrentShift(c *gin.Context) {
	shift, err := h.service.CurrentShift(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, shift)
}

func (h *Handler) OpenShift(c *gin.Context) {
	var req models.OpenShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	resp, err := h.service.OpenShift(c.Request.Context(), req.Type)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CloseShift(c *gin.Context) {
	var req models.CloseShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Shift ID required")
		return
	}

	if err := h.service.CloseShift(c.Request.Context(), req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{Status: "success"})
}

func (h *Handler) SimulateWinner(c *gin.Context) {
	shiftID, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.SimulateWinner(c.Request.Context(), shiftID, c.Query("number"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SetWinner(c *gin.Context) {
	shiftID, ok := pathID(c)
	if !ok {
		return
	}

	var req models.SetWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.service.SetWinner(c.Request.Context(), shiftID, req.Number); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{Status: "success"})
}

func (h *Handler) ShiftReport(c *gin.Context) {
	shiftID, ok := pathID(c)
	if !ok {
		return
	}

	report, err := h.service.ShiftReport(c.Request.Context(), shiftID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Sales

func (h *Handler) BulkSale(c *gin.Context) {
	var req models.BulkSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Shift ID and a non-empty item list are required")
		return
	}

	result, err := h.service.SubmitSaleBatch(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.Rejection != nil {
		respondRejection(c, result.Rejection)
		return
	}

	c.JSON(http.StatusOK, models.BulkSaleResponse{
		Status:   "success",
		TicketID: result.TicketID,
		Count:    result.LineCount,
	})
}

func (h *Handler) SingleSale(c *gin.Context) {
	var req models.SingleSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Shift ID, number and amount are required")
		return
	}

	result, err := h.service.SubmitSingleSale(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.Rejection != nil {
		respondRejection(c, result.Rejection)
		return
	}

	c.JSON(http.StatusOK, models.SingleSaleResponse{
		Status:    "success",
		Prize:     result.Prize,
		Remaining: result.Remaining,
	})
}

func (h *Handler) RecentSales(c *gin.Context) {
	shiftID, ok := queryShiftID(c)
	if !ok {
		return
	}

	sales, err := h.service.RecentSales(c.Request.Context(), shiftID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) SalesStats(c *gin.Context) {
	shiftID, ok := queryShiftID(c)
	if !ok {
		return
	}

	stats, err := h.service.SalesStats(c.Request.Context(), shiftID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Usage(c *gin.Context) {
	shiftID, ok := queryShiftID(c)
	if !ok {
		return
	}

	usage, err := h.service.Usage(c.Request.Context(), shiftID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *Handler) ClientsCount(c *gin.Context) {
	shiftID, ok := queryShiftID(c)
	if !ok {
		return
	}

	count, err := h.service.ClientsCount(c.Request.Context(), shiftID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ClientsCountResponse{Count: count})
}

// Tickets

func (h *Handler) VerifyTicket(c *gin.Context) {
	resp, err := h.service.VerifyTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AnnulTicket(c *gin.Context) {
	if err := h.service.AnnulTicket(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{Status: "success", Message: "Ticket annulled"})
}

// History

func (h *Handler) HistorySummary(c *gin.Context) {
	rows, err := h.service.HistorySummary(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) DayHistory(c *gin.Context) {
	resp, err := h.service.DayHistory(c.Request.Context(), c.Param("date"))
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Maintenance

func (h *Handler) Reconcile(c *gin.Context) {
	resp, err := h.service.Reconcile(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Helpers

// rejectionPayload wraps a batch rejection in the error envelope.
type rejectionPayload struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	*models.Rejection
}

// respondRejection maps a refused batch to its HTTP shape. Per-number limit
// conflicts use 409 so the caller can present a resolution dialog.
func respondRejection(c *gin.Context, rej *models.Rejection) {
	status := http.StatusBadRequest
	code := rej.Kind
	message := "Validation error"

	switch rej.Kind {
	case models.RejectGlobalLimit:
		message = "Shift global limit exceeded"
	case models.RejectNumberLimit:
		status = http.StatusConflict
		code = "LIMIT_EXCEEDED"
		message = "Number limits exceeded"
	}

	c.JSON(status, rejectionPayload{
		Status:    "error",
		Code:      code,
		Message:   message,
		Rejection: rej,
	})
}

// respondError maps domain errors to HTTP statuses; anything unknown is an
// internal error.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrShiftNotFound),
		errors.Is(err, repository.ErrTicketNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status: "error", Code: "NOT_FOUND", Message: err.Error(),
		})
	case errors.Is(err, repository.ErrShiftNotOpen),
		errors.Is(err, repository.ErrTicketShiftClosed):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status: "error", Code: "SHIFT_NOT_OPEN", Message: err.Error(),
		})
	case errors.Is(err, repository.ErrShiftSlotTaken):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status: "error", Code: "SHIFT_SLOT_TAKEN", Message: err.Error(),
		})
	case errors.Is(err, repository.ErrDailyQuotaReached):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status: "error", Code: "DAILY_QUOTA", Message: err.Error(),
		})
	case errors.Is(err, repository.ErrUsernameTaken),
		errors.Is(err, service.ErrInvalidShiftType),
		errors.Is(err, service.ErrInvalidWinningNumber),
		errors.Is(err, service.ErrSelfDeletion):
		badRequest(c, err.Error())
	default:
		h.internalError(c, err)
	}
}

func (h *Handler) internalError(c *gin.Context, err error) {
	h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Status:  "error",
		Code:    "INTERNAL",
		Message: "Internal server error",
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

// pathID parses the :id path parameter as a shift id.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid shift id")
		return 0, false
	}
	return id, true
}

// queryShiftID parses the shift_id query parameter.
func queryShiftID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("shift_id"), 10, 64)
	if err != nil {
		badRequest(c, "shift_id query parameter required")
		return 0, false
	}
	return id, true
}
