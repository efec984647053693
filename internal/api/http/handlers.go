package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/session"
	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/providers/ability"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// Sessions is the read side of the input method service
type Sessions interface {
	Users() []int32
	ForegroundUserID() int32
	DumpUser(userID int32) (session.Dump, error)
}

// ImeLister lists the IMEs installed for a user
type ImeLister interface {
	ListInputMethods(userID int32) []protocol.Property
}

// AbilityLister lists live IME process connections
type AbilityLister interface {
	Connections() []ability.Connection
}

// Handlers serves the admin API.
type Handlers struct {
	sessions  Sessions
	imes      ImeLister
	abilities AbilityLister
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	started   time.Time
}

// NewHandlers creates the handler set. abilities may be nil.
func NewHandlers(sessions Sessions, imes ImeLister, abilities AbilityLister, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions:  sessions,
		imes:      imes,
		abilities: abilities,
		metrics:   metrics,
		logger:    logger.Named("admin"),
		started:   time.Now(),
	}
}

// Health reports liveness and the foreground user
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"service":         "imsa",
		"foreground_user": h.sessions.ForegroundUserID(),
		"users":           len(h.sessions.Users()),
		"uptime_seconds":  time.Since(h.started).Seconds(),
	})
}

// MetricsJSON returns the metric counters as JSON.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// ListUsers lists the users with a session
func (h *Handlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"foreground": h.sessions.ForegroundUserID(),
		"users":      h.sessions.Users(),
	})
}

func userParam(c *gin.Context) (int32, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return int32(id), true
}

// DumpUser returns the session snapshot of one user
func (h *Handlers) DumpUser(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	dump, err := h.sessions.DumpUser(userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errs.Is(err, errs.ErrorUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": errs.From(err).Error()})
		return
	}

	body, err := sonic.Marshal(dump)
	if err != nil {
		h.logger.Error("dump not encoded", zap.Int32("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dump not encoded"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// ListImes lists the IMEs installed for one user
func (h *Handlers) ListImes(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "input_methods": h.imes.ListInputMethods(userID)})
}

// ListAbilities lists the live IME process connections
func (h *Handlers) ListAbilities(c *gin.Context) {
	conns := []ability.Connection{}
	if h.abilities != nil {
		conns = h.abilities.Connections()
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}
