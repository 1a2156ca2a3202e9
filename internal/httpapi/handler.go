// Package httpapi exposes the roster and attendance operations as a JSON
// API for a thin presentation layer.
package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"rollcall/internal/attendance"
	"rollcall/internal/logger"
	"rollcall/internal/roster"
	"rollcall/internal/tracker"
)

type Handler struct {
	tr *tracker.Tracker
}

func New(tr *tracker.Tracker) *Handler {
	return &Handler{tr: tr}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.tr.KV.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": true})
}

// ---------- Students ----------

type studentRequest struct {
	Name string   `json:"name"`
	Roll rollText `json:"roll"`
}

// rollText accepts a roll sent either as a string or as a bare number.
type rollText string

func (r *rollText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = rollText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("roll must be a string or a number")
	}
	*r = rollText(n.String())
	return nil
}

func (h *Handler) ListStudents(c *gin.Context) {
	c.JSON(http.StatusOK, h.tr.Roster.List())
}

func (h *Handler) AddStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.tr.Roster.Add(c.Request.Context(), req.Name, string(req.Roll))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.tr.Roster.Update(c.Request.Context(), c.Param("id"), req.Name, string(req.Roll))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// RemoveStudent deletes without asking; confirming is up to the caller.
func (h *Handler) RemoveStudent(c *gin.Context) {
	if err := h.tr.Roster.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Attendance ----------

type markRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) Sheet(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "rows": h.tr.Sheet(date)})
}

func (h *Handler) StatusOf(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	id := c.Param("studentId")
	c.JSON(http.StatusOK, gin.H{
		"date":       date,
		"student_id": id,
		"status":     h.tr.Attendance.StatusOf(date, id),
	})
}

func (h *Handler) Mark(c *gin.Context) {
	date, ok := dateParam(c)
	if !ok {
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.tr.Mark(c.Request.Context(), date, c.Param("studentId"), status); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Change stream ----------

// Events streams store changes as Server-Sent Events until the client
// goes away.
func (h *Handler) Events(c *gin.Context) {
	if h.tr.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "change events not configured"})
		return
	}
	ctx := c.Request.Context()
	ch, err := h.tr.Bus.Subscribe(ctx)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("subscribe to changes failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "change events unavailable"})
		return
	}
	c.Stream(func(io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(msg.Type, string(msg.Body))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// dateParam resolves :date, accepting "today". It writes the 400 itself.
func dateParam(c *gin.Context) (string, bool) {
	date := c.Param("date")
	if date == "today" {
		return attendance.Today(), true
	}
	if !attendance.ValidDate(date) {
		writeError(c, attendance.ErrInvalidDate)
		return "", false
	}
	return date, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roster.ErrInvalidStudent),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidDate),
		errors.Is(err, attendance.ErrMissingStudent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, roster.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
