package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"sereno/config"
	"sereno/models"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = int64(65536)

// StripeWebhookHandler receives checkout completion events and materializes
// bookings from the paid order. Redeliveries are safe end to end: the order
// completion flip and the materialization are both idempotent, so every
// delivery of the same event converges on the same booking set.
func (hb *HandlerBundle) StripeWebhookHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), config.AppConfig.StripeWebhookSecret)
	if err != nil {
		hb.Logger.Warn("stripe signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		hb.handleCheckoutCompleted(c, event.Data.Raw)
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (hb *HandlerBundle) handleCheckoutCompleted(c *gin.Context, raw json.RawMessage) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		hb.Logger.Error("malformed checkout session payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
		return
	}

	orderID := sess.Metadata["orderId"]
	if orderID == "" {
		hb.Logger.Warn("checkout session without orderId metadata", zap.String("sessionId", sess.ID))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	ctx := c.Request.Context()
	if _, err := hb.Orders.MarkCompleted(ctx, orderID, time.Now()); err != nil {
		hb.Logger.Error("order completion flip failed", zap.String("orderId", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order update failed"})
		return
	}

	details := detailsFromMetadata(sess.Metadata)
	pay := models.PaymentData{
		GrossCents:         metaInt(sess.Metadata, "grossCents", sess.AmountTotal),
		DiscountCents:      metaInt(sess.Metadata, "discountCents", 0),
		CreditsApplied:     metaInt(sess.Metadata, "creditsApplied", 0),
		AmountChargedCents: sess.AmountTotal,
	}

	result, err := hb.Materializer.Materialize(ctx, orderID, details, pay)
	if err != nil {
		hb.Logger.Error("materialization failed", zap.String("orderId", orderID), zap.Error(err))
		// 5xx makes Stripe redeliver; the next attempt retries safely.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "materialization failed"})
		return
	}

	if !result.AlreadyExisted {
		hb.startLifecycles(c, result)
	}

	hb.Logger.Info("order materialized",
		zap.String("orderId", orderID),
		zap.String("serviceType", string(result.ServiceType)),
		zap.Int("bookings", len(result.BookingIDs)),
		zap.Bool("alreadyExisted", result.AlreadyExisted),
	)
	c.JSON(http.StatusOK, gin.H{"received": true, "result": result})
}

// startLifecycles enqueues the confirm step for every scheduled booking the
// order produced. Unscheduled credits and course enrollments have no session
// to orchestrate.
func (hb *HandlerBundle) startLifecycles(c *gin.Context, result *models.MaterializationResult) {
	ctx := c.Request.Context()
	for _, id := range result.BookingIDs {
		b, err := hb.BookingRepo.GetByID(ctx, id)
		if err != nil {
			hb.Logger.Warn("lifecycle start fetch failed", zap.String("bookingId", id), zap.Error(err))
			continue
		}
		if b.Status != models.BookingStatusConfirmed || b.StartTime.IsZero() {
			continue
		}
		if err := hb.Engine.Start(ctx, b.ID); err != nil {
			hb.Logger.Error("lifecycle start failed", zap.String("bookingId", b.ID), zap.Error(err))
		}
	}
}

func detailsFromMetadata(meta map[string]string) models.BookingDetails {
	details := models.BookingDetails{
		ClassSessionID: meta["classSessionId"],
		Notes:          meta["notes"],
	}
	if t, err := time.Parse(time.RFC3339, meta["startTime"]); err == nil {
		details.StartTime = &t
	}
	if t, err := time.Parse(time.RFC3339, meta["endTime"]); err == nil {
		details.EndTime = &t
	}
	return details
}

func metaInt(meta map[string]string, key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(meta[key], 10, 64); err == nil {
		return v
	}
	return fallback
}
