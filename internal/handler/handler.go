// Package handler exposes the records service over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"schoolrecords/internal/apperrors"
	"schoolrecords/internal/auth"
	"schoolrecords/internal/backup"
	"schoolrecords/internal/logger"
	"schoolrecords/internal/media"
	"schoolrecords/internal/records"
)

// Handler holds the dependencies of every route.
type Handler struct {
	svc     *records.Service
	tokens  *auth.Issuer
	backups *backup.Manager
	uploads *media.Uploader
}

// Option configures optional subsystems.
type Option func(*Handler)

// WithBackups enables the /backups routes.
func WithBackups(m *backup.Manager) Option {
	return func(h *Handler) { h.backups = m }
}

// WithUploader enables POST /uploads.
func WithUploader(u *media.Uploader) Option {
	return func(h *Handler) { h.uploads = u }
}

// New creates a handler.
func New(svc *records.Service, tokens *auth.Issuer, opts ...Option) *Handler {
	h := &Handler{svc: svc, tokens: tokens}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers all endpoints on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.POST("/accounts/login", h.login)
	r.GET("/accounts", h.listAccounts)
	r.POST("/accounts", h.createAccount)
	r.GET("/staff", h.listStaff)

	r.GET("/enrollees", h.listEnrollees)
	r.POST("/enrollees", h.createEnrollee)
	r.GET("/enrollees/:id", h.getEnrollee)
	r.PUT("/enrollees/:id", h.replaceEnrollee)
	r.GET("/enrollees/:id/presence", h.enrolleePresence)
	r.GET("/enrollees/:id/obligations", h.enrolleeObligations)

	r.GET("/presence", h.listPresence)
	r.POST("/presence", h.markPresence)
	r.GET("/presence/roll", h.dailyRoll)

	r.GET("/obligations", h.listObligations)
	r.POST("/obligations", h.createObligation)
	r.POST("/obligations/:id/settle", h.settleObligation)

	r.GET("/announcements", h.listAnnouncements)
	r.POST("/announcements", h.createAnnouncement)

	r.GET("/stats", h.dashboardStats)
	r.GET("/system-stats", h.systemStats)
	r.GET("/reports", h.reports)

	r.GET("/settings", h.getSettings)
	r.PUT("/settings", h.updateSettings)
	r.GET("/activity-log", h.listActivity)

	r.GET("/backups", h.listBackups)
	r.POST("/backups", h.createBackup)
	r.POST("/backups/:id/restore", h.restoreBackup)

	r.POST("/uploads", h.upload)
}

// accountView is an account without its password.
type accountView struct {
	ID          int          `json:"id"`
	Username    string       `json:"username"`
	Role        records.Role `json:"role"`
	DisplayName string       `json:"displayName"`
}

func viewAccount(a records.Account) accountView {
	return accountView{ID: a.ID, Username: a.Username, Role: a.Role, DisplayName: a.DisplayName}
}

func viewAccounts(in []records.Account) []accountView {
	out := make([]accountView, 0, len(in))
	for _, a := range in {
		out = append(out, viewAccount(a))
	}
	return out
}

// writeError maps domain errors to status codes with a {"error": msg} body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidationFailed):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": err.Error()}
	if field := apperrors.FieldOf(err); field != "" {
		body["field"] = field
	}
	c.JSON(status, body)
}

func badJSON(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	account, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	tok, err := h.tokens.Issue(account.ID, account.Username, string(account.Role), account.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          account.ID,
		"username":    account.Username,
		"role":        account.Role,
		"displayName": account.DisplayName,
		"accessToken": tok.AccessToken,
		"expiresAt":   tok.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) listAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, viewAccounts(h.svc.Store().ListAccounts()))
}

func (h *Handler) createAccount(c *gin.Context) {
	var input records.AccountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badJSON(c, err)
		return
	}
	account, err := h.svc.CreateAccount(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewAccount(account))
}

func (h *Handler) listStaff(c *gin.Context) {
	c.JSON(http.StatusOK, viewAccounts(h.svc.Store().ListAccountsByRole(records.RoleInstructor)))
}

func (h *Handler) listEnrollees(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Store().ListEnrollees())
}

func (h *Handler) createEnrollee(c *gin.Context) {
	var input records.EnrolleeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badJSON(c, err)
		return
	}
	e, err := h.svc.Enroll(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) getEnrollee(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	e, err := h.svc.Store().GetEnrollee(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) replaceEnrollee(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input records.EnrolleeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badJSON(c, err)
		return
	}
	e, err := h.svc.ReplaceEnrollee(c.Request.Context(), id, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) enrolleePresence(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Store().ListPresenceForEnrollee(id))
}

func (h *Handler) enrolleeObligations(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Store().ListObligationsForEnrollee(id))
}

func (h *Handler) listPresence(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Store().ListPresence(c.Query("date")))
}

func (h *Handler) markPresence(c *gin.Context) {
	var req struct {
		EnrolleeID int    `json:"enrolleeId"`
		Date       string `json:"date"`
		Present    *bool  `json:"present"`
		MarkedBy   string `json:"markedBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	if req.Present == nil {
		writeError(c, apperrors.Validation("present", "present is required"))
		return
	}
	record, err := h.svc.MarkPresence(c.Request.Context(), req.EnrolleeID, req.Date, *req.Present, req.MarkedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *Handler) dailyRoll(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.DailyRoll(c.Query("date")))
}

func (h *Handler) listObligations(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Store().ListObligations())
}

// obligationRequest takes dates as plain days or RFC 3339 timestamps.
type obligationRequest struct {
	EnrolleeID int                      `json:"enrolleeId"`
	Amount     int                      `json:"amount"`
	Period     string                   `json:"period"`
	Status     records.ObligationStatus `json:"status"`
	DueDate    string                   `json:"dueDate"`
	PaidDate   *string                  `json:"paidDate"`
}

func (r obligationRequest) input() (records.ObligationInput, error) {
	in := records.ObligationInput{
		EnrolleeID: r.EnrolleeID,
		Amount:     r.Amount,
		Period:     r.Period,
		Status:     r.Status,
	}
	due, err := records.ParseDay("dueDate", r.DueDate)
	if err != nil {
		return records.ObligationInput{}, err
	}
	in.DueDate = due
	if r.PaidDate != nil {
		paid, err := records.ParseDay("paidDate", *r.PaidDate)
		if err != nil {
			return records.ObligationInput{}, err
		}
		in.PaidDate = &paid
	}
	return in, nil
}

func (h *Handler) createObligation(c *gin.Context) {
	var req obligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	input, err := req.input()
	if err != nil {
		writeError(c, err)
		return
	}
	o, err := h.svc.CreateObligation(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handler) settleObligation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		PaidDate *string `json:"paidDate"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badJSON(c, err)
			return
		}
	}
	var paidAt time.Time
	if req.PaidDate != nil {
		parsed, err := records.ParseDay("paidDate", *req.PaidDate)
		if err != nil {
			writeError(c, err)
			return
		}
		paidAt = parsed
	}
	o, err := h.svc.SettleObligation(c.Request.Context(), id, paidAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) listAnnouncements(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Store().ListAnnouncements())
}

func (h *Handler) createAnnouncement(c *gin.Context) {
	var input records.AnnouncementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badJSON(c, err)
		return
	}
	a, err := h.svc.PublishAnnouncement(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) dashboardStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.DashboardStats())
}

func (h *Handler) systemStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.SystemStats())
}

func (h *Handler) reports(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Store().Reports(c.Query("date")))
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Store().GetSettings())
}

func (h *Handler) updateSettings(c *gin.Context) {
	var patch records.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badJSON(c, err)
		return
	}
	profile, err := h.svc.UpdateSettings(c.Request.Context(), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) listActivity(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Store().ListActivity())
}
