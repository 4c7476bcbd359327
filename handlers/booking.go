package handlers

import (
	"errors"
	"net/http"
	"time"

	"sereno/models"
	booking "sereno/services/booking"
	"sereno/services/tasks"
	"sereno/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetBookingHandler returns one booking by ID.
func (hb *HandlerBundle) GetBookingHandler(c *gin.Context) {
	b, err := hb.BookingRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBookingHandler cancels a booking, cascading to children for
// package/bundle parents. Rejections name their cause.
func (hb *HandlerBundle) CancelBookingHandler(c *gin.Context) {
	var input struct {
		CanceledBy string `json:"canceledBy" binding:"required"`
		Reason     string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	b, err := hb.Bookings.Cancel(c.Request.Context(), c.Param("id"), input.CanceledBy, input.Reason)
	if err != nil {
		status, msg := cancelErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, b)
}

func cancelErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		return http.StatusNotFound, "booking not found"
	case errors.Is(err, booking.ErrBookingTerminal):
		return http.StatusConflict, "booking is already in a terminal state"
	case errors.Is(err, booking.ErrCancelWindowClosed):
		return http.StatusUnprocessableEntity, "cancellation window has closed"
	case booking.IsInvalidTransition(err):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "cancellation failed"
	}
}

// ScheduleCreditHandler schedules a session against a package or bundle
// parent's remaining credits and starts its lifecycle.
func (hb *HandlerBundle) ScheduleCreditHandler(c *gin.Context) {
	var input struct {
		StartTime time.Time `json:"startTime" binding:"required"`
		EndTime   time.Time `json:"endTime" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	child, err := hb.Bookings.ScheduleFromCredits(c.Request.Context(), c.Param("id"), input.StartTime, input.EndTime)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "parent booking not found"})
		case errors.Is(err, booking.ErrCreditsExhausted):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no credits remaining"})
		case errors.Is(err, booking.ErrConflictingBooking):
			c.JSON(http.StatusConflict, gin.H{"error": "practitioner has a conflicting booking"})
		case errors.Is(err, booking.ErrBookingTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": "parent booking is in a terminal state"})
		case errors.Is(err, models.ErrInvalidTimeRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": "end time must be after start time"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "scheduling failed"})
		}
		return
	}

	if err := hb.Engine.Start(c.Request.Context(), child.ID); err != nil {
		hb.Logger.Error("lifecycle start failed", zap.String("bookingId", child.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, child)
}

// RescheduleClassHandler enqueues the fan-out that moves every booking tied
// to a class session to a new time. The move itself runs on the worker.
func (hb *HandlerBundle) RescheduleClassHandler(c *gin.Context) {
	var input struct {
		NewStart time.Time `json:"newStart" binding:"required"`
		NewEnd   time.Time `json:"newEnd" binding:"required"`
		Reason   string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	if !input.NewEnd.After(input.NewStart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end time must be after start time"})
		return
	}

	payload := models.ReschedulePayload{
		ClassSessionID: c.Param("id"),
		NewStart:       input.NewStart,
		NewEnd:         input.NewEnd,
		Reason:         input.Reason,
	}
	task, opts, err := tasks.NewRescheduleTask(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build reschedule task"})
		return
	}
	if _, err := hb.Queue.EnqueueContext(c.Request.Context(), task, opts...); err != nil {
		hb.Logger.Error("reschedule enqueue failed", zap.String("classSessionId", payload.ClassSessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue reschedule"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "classSessionId": payload.ClassSessionID})
}

// HealthzHandler reports process liveness plus the last dependency probe.
func (hb *HandlerBundle) HealthzHandler(c *gin.Context) {
	health := utils.GetHealthStatus()
	status := http.StatusOK
	if !health.CheckedAt.IsZero() && !health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "time": time.Now().UTC(), "dependencies": health})
}
