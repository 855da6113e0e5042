package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"timesync-agent/internal/model"
	"timesync-agent/internal/parse"
	"timesync-agent/internal/tracker"
)

type startTimeRequest struct {
	ProjectID   string          `json:"projectId" binding:"required"`
	SegmentType string          `json:"segmentType"`
	Description string          `json:"description"`
	Location    *model.Location `json:"location"`
	Timestamp   string          `json:"timestamp"`
}

type stopTimeRequest struct {
	Notes     string          `json:"notes"`
	Location  *model.Location `json:"location"`
	Timestamp string          `json:"timestamp"`
}

type switchTimeRequest struct {
	ProjectID   string          `json:"projectId" binding:"required"`
	SegmentType string          `json:"segmentType"`
	Description string          `json:"description"`
	Notes       string          `json:"notes"`
	Location    *model.Location `json:"location"`
	Timestamp   string          `json:"timestamp"`
}

type outcomeResponse struct {
	Action model.TimeAction `json:"action"`
	Status tracker.Status   `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// StartTime handles POST /api/time/start.
func (h *Handler) StartTime(c *gin.Context) {
	var req startTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ts, ok := timestamp(c, req.Timestamp)
	if !ok {
		return
	}

	out, err := h.tracker.Start(c.Request.Context(), tracker.StartInput{
		ProjectID:   req.ProjectID,
		SegmentType: model.SegmentType(req.SegmentType),
		Description: req.Description,
		Location:    req.Location,
		Timestamp:   ts,
	})
	respondOutcome(c, out, err)
}

// StopTime handles POST /api/time/stop. An empty body is allowed.
func (h *Handler) StopTime(c *gin.Context) {
	var req stopTimeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	ts, ok := timestamp(c, req.Timestamp)
	if !ok {
		return
	}

	out, err := h.tracker.Stop(c.Request.Context(), tracker.StopInput{
		Notes:     req.Notes,
		Location:  req.Location,
		Timestamp: ts,
	})
	respondOutcome(c, out, err)
}

// SwitchTime handles POST /api/time/switch.
func (h *Handler) SwitchTime(c *gin.Context) {
	var req switchTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ts, ok := timestamp(c, req.Timestamp)
	if !ok {
		return
	}

	out, err := h.tracker.Switch(c.Request.Context(), tracker.SwitchInput{
		ProjectID:   req.ProjectID,
		SegmentType: model.SegmentType(req.SegmentType),
		Description: req.Description,
		Notes:       req.Notes,
		Location:    req.Location,
		Timestamp:   ts,
	})
	respondOutcome(c, out, err)
}

// GetActiveTime handles GET /api/time/active.
func (h *Handler) GetActiveTime(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Status())
}

func timestamp(c *gin.Context, raw string) (time.Time, bool) {
	ts, err := parse.Timestamp(raw, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, false
	}
	return ts, true
}

func respondOutcome(c *gin.Context, out tracker.Outcome, err error) {
	if errors.Is(err, tracker.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := outcomeResponse{Action: out.Action, Status: out.Status}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	code := http.StatusAccepted
	if out.Status == tracker.StatusSynced {
		code = http.StatusCreated
	}
	c.JSON(code, resp)
}
