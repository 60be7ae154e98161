// Package handler exposes the attendance services over HTTP (gin) and the lecturer live channel (WebSocket).
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"cheqr/backend/internal/attendance/domain"
	"cheqr/backend/internal/attendance/service"
	"cheqr/backend/internal/notify"
	"cheqr/backend/internal/security"
	"cheqr/backend/internal/server/middleware"
)

const (
	defaultQRSize = 320
	minQRSize     = 128
	maxQRSize     = 1024
)

// Handler serves the /attendance routes.
type Handler struct {
	generator *service.Generator
	validator *service.Validator
	reader    *service.Reader
	hub       *notify.Hub
	upgrader  websocket.Upgrader
}

// NewHandler returns a Handler. allowedOrigins restricts WebSocket upgrades; empty allows any origin.
func NewHandler(g *service.Generator, v *service.Validator, r *service.Reader, hub *notify.Hub, allowedOrigins []string) *Handler {
	return &Handler{
		generator: g,
		validator: v,
		reader:    r,
		hub:       hub,
		upgrader:  websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

// Register mounts the routes on rg. rg must already run middleware.Auth.
func (h *Handler) Register(rg *gin.RouterGroup) {
	staff := middleware.RequireRole(security.RoleLecturer, security.RoleAdmin)

	rg.POST("/generate-qr", middleware.RequireRole(security.RoleLecturer), h.Generate)
	rg.POST("/scan", middleware.RequireRole(security.RoleStudent), h.Scan)
	rg.GET("/course/:courseId", staff, h.ListAttendance)
	rg.GET("/course/:courseId/recent", staff, h.RecentScans)
	rg.GET("/live/:courseId", staff, h.Live)
	rg.GET("/sessions/:sessionId/qr.png", staff, h.QRImage)
}

type generateRequest struct {
	CourseID string `json:"courseId" binding:"required"`
	// LecturerID is optional; when present it must match the token subject.
	LecturerID      string `json:"lecturerId"`
	DurationMinutes int    `json:"durationMinutes"`
}

type sessionResponse struct {
	SessionID        string `json:"sessionId"`
	CourseID         string `json:"courseId"`
	CourseCode       string `json:"courseCode"`
	CourseName       string `json:"courseName"`
	GeneratedAt      string `json:"generatedAt"`
	ExpiresAt        string `json:"expiresAt"`
	QRData           string `json:"qrData"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	Reused           bool   `json:"reused"`
}

// Generate handles POST /generate-qr.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_argument", "courseId is required")
		return
	}
	ctx := c.Request.Context()
	userID, _ := middleware.GetUserID(ctx)
	if req.LecturerID != "" && req.LecturerID != userID {
		writeError(c, http.StatusForbidden, "forbidden", "lecturerId does not match the authenticated user")
		return
	}

	res, err := h.generator.Generate(ctx, service.GenerateRequest{
		CourseID:   req.CourseID,
		LecturerID: userID,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	s := res.Session
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	c.JSON(status, sessionResponse{
		SessionID:        s.ID,
		CourseID:         s.CourseID,
		CourseCode:       s.CourseCode,
		CourseName:       s.CourseName,
		GeneratedAt:      formatTime(s.IssuedAt),
		ExpiresAt:        formatTime(s.ExpiresAt),
		QRData:           res.Encoded,
		RemainingSeconds: int64(s.Remaining(h.reader.Now()) / time.Second),
		Reused:           res.Reused,
	})
}

type scanRequest struct {
	QRData     string `json:"qrData"`
	CourseID   string `json:"courseId" binding:"required"`
	CourseCode string `json:"courseCode"`
}

type scanResponse struct {
	State     domain.ScanState    `json:"state"`
	Reason    domain.RejectReason `json:"reason,omitempty"`
	Message   string              `json:"message"`
	SessionID string              `json:"sessionId,omitempty"`
	ScannedAt string              `json:"scannedAt,omitempty"`
}

// Scan handles POST /scan. Accepted scans return 200; rejections return 422 with the reason.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_argument", "courseId is required")
		return
	}
	ctx := c.Request.Context()
	studentID, _ := middleware.GetUserID(ctx)

	res, err := h.validator.Validate(ctx, service.ScanRequest{
		RawPayload:         req.QRData,
		StudentID:          studentID,
		IntendedCourseID:   req.CourseID,
		IntendedCourseCode: req.CourseCode,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	body := scanResponse{State: res.State(), Reason: res.Reason, Message: res.Message}
	if !res.Accepted {
		c.JSON(http.StatusUnprocessableEntity, body)
		return
	}
	body.SessionID = res.Record.SessionID
	body.ScannedAt = formatTime(res.Record.ScannedAt)
	c.JSON(http.StatusOK, body)
}

type scanEntry struct {
	StudentID string `json:"studentId"`
	ScannedAt string `json:"scannedAt"`
}

type sessionEntry struct {
	SessionID   string      `json:"sessionId"`
	CourseCode  string      `json:"courseCode"`
	GeneratedAt string      `json:"generatedAt"`
	ExpiresAt   string      `json:"expiresAt"`
	Live        bool        `json:"live"`
	Scans       []scanEntry `json:"scans"`
}

// ListAttendance handles GET /course/:courseId.
func (h *Handler) ListAttendance(c *gin.Context) {
	courseID := c.Param("courseId")
	if !h.authorizeView(c, courseID) {
		return
	}
	sessions, err := h.reader.ListAttendance(c.Request.Context(), courseID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	now := h.reader.Now()
	out := make([]sessionEntry, 0, len(sessions))
	for _, s := range sessions {
		scans := make([]scanEntry, 0, len(s.Scans))
		for _, rec := range s.Scans {
			scans = append(scans, scanEntry{StudentID: rec.StudentID, ScannedAt: formatTime(rec.ScannedAt)})
		}
		out = append(out, sessionEntry{
			SessionID:   s.ID,
			CourseCode:  s.CourseCode,
			GeneratedAt: formatTime(s.IssuedAt),
			ExpiresAt:   formatTime(s.ExpiresAt),
			Live:        s.IsLive(now),
			Scans:       scans,
		})
	}
	c.JSON(http.StatusOK, gin.H{"courseId": courseID, "sessions": out})
}

// RecentScans handles GET /course/:courseId/recent?window=5m.
func (h *Handler) RecentScans(c *gin.Context) {
	courseID := c.Param("courseId")
	var window time.Duration
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_argument", "window must be a duration such as 5m")
			return
		}
		window = d
	}
	if !h.authorizeView(c, courseID) {
		return
	}
	n, err := h.reader.RecentScanCount(c.Request.Context(), courseID, window)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if window == 0 {
		window = service.DefaultRecentWindow
	}
	c.JSON(http.StatusOK, gin.H{"courseId": courseID, "window": window.String(), "count": n})
}

// QRImage handles GET /sessions/:sessionId/qr.png?size=320.
func (h *Handler) QRImage(c *gin.Context) {
	ctx := c.Request.Context()
	s, err := h.reader.Session(ctx, c.Param("sessionId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !h.authorizeView(c, s.CourseID) {
		return
	}
	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			writeError(c, http.StatusBadRequest, "invalid_argument", "size must be between 128 and 1024")
			return
		}
		size = n
	}
	text, err := h.reader.Encode(s)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// authorizeView runs the view policy for courseID and writes the error response when it fails.
func (h *Handler) authorizeView(c *gin.Context, courseID string) bool {
	ctx := c.Request.Context()
	userID, _ := middleware.GetUserID(ctx)
	role, _ := middleware.GetRole(ctx)
	if err := h.reader.CheckAccess(ctx, userID, role, courseID); err != nil {
		writeServiceError(c, err)
		return false
	}
	return true
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// writeServiceError maps service sentinels to HTTP status codes. Anything unmapped is a 500 and is logged.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(c, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", err.Error())
	default:
		_ = c.Error(err)
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("attendance: request failed")
		writeError(c, http.StatusInternalServerError, "internal", "temporary failure, please retry")
	}
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "msg": msg})
}
