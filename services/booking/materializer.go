package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sereno/database/repository"
	"sereno/models"
	"sereno/services/notification"
	"sereno/services/room"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaterializerService turns a completed order into one or more bookings.
// It is safe to invoke more than once for the same order: a redelivered
// completion event returns the first invocation's result unchanged.
type MaterializerService interface {
	Materialize(ctx context.Context, orderID string, details models.BookingDetails, pay models.PaymentData) (*models.MaterializationResult, error)
}

// DefaultMaterializer implements MaterializerService.
type DefaultMaterializer struct {
	Bookings repository.BookingRepository
	Orders   repository.OrderRepository
	Catalog  repository.CatalogRepository
	Rooms    room.RoomService
	Notifier notification.NotificationService
	Logger   *zap.Logger
}

func (m *DefaultMaterializer) Materialize(ctx context.Context, orderID string, details models.BookingDetails, pay models.PaymentData) (*models.MaterializationResult, error) {
	order, err := m.Orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, Transient("order fetch", err)
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, fmt.Errorf("order %s is %s, not completed", orderID, order.Status)
	}

	// Idempotency pre-check: a booking set for this order already exists on
	// redelivery; hand back what the first invocation produced.
	existing, err := m.Bookings.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, Transient("existing booking lookup", err)
	}
	if len(existing) > 0 {
		return existingResult(orderID, existing), nil
	}

	svc, err := m.Catalog.GetService(ctx, order.ServiceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("service %s referenced by order %s: %w", order.ServiceID, orderID, err)
	}
	if err != nil {
		return nil, Transient("service fetch", err)
	}

	var result *models.MaterializationResult
	switch svc.Type {
	case models.ServiceTypeSession:
		result, err = m.materializeSession(ctx, order, svc, details, pay)
	case models.ServiceTypeWorkshop:
		result, err = m.materializeWorkshop(ctx, order, svc, details, pay)
	case models.ServiceTypeCourse:
		result, err = m.materializeCourse(ctx, order, svc, pay)
	case models.ServiceTypePackage:
		result, err = m.materializePackage(ctx, order, svc, details, pay)
	case models.ServiceTypeBundle:
		result, err = m.materializeBundle(ctx, order, svc, details, pay)
	default:
		// A service type the dispatch does not know about indicates a
		// catalogue/dispatch gap; fall back to a plain booking so the paid
		// order is not lost.
		m.Logger.Warn("unknown service type, falling back to plain booking",
			zap.String("orderId", orderID),
			zap.String("serviceType", string(svc.Type)),
		)
		result, err = m.materializeSession(ctx, order, svc, details, pay)
	}
	if errors.Is(err, repository.ErrDuplicateKey) {
		// Lost a materialization race against a concurrent duplicate
		// delivery; the winner's bookings are authoritative.
		winners, lerr := m.Bookings.GetByOrderID(ctx, orderID)
		if lerr != nil || len(winners) == 0 {
			return nil, Transient("duplicate materialization re-read", lerr)
		}
		return existingResult(orderID, winners), nil
	}
	if err != nil {
		return nil, err
	}
	result.ServiceType = svc.Type

	m.afterCreate(ctx, result, svc)
	return result, nil
}

// materializeSession creates exactly one confirmed, paid booking at the
// caller-supplied times.
func (m *DefaultMaterializer) materializeSession(ctx context.Context, order *models.Order, svc *models.Service, details models.BookingDetails, pay models.PaymentData) (*models.MaterializationResult, error) {
	start, end, err := sessionTimes(svc, details)
	if err != nil {
		return nil, err
	}
	overlapping, err := m.Bookings.FindOverlapping(ctx, svc.PractitionerID, start, end)
	if err != nil {
		return nil, Transient("overlap check", err)
	}
	if len(overlapping) > 0 {
		return nil, ErrConflictingBooking
	}

	b := m.newBooking(order, svc, pay)
	b.StartTime = start
	b.EndTime = end
	b.Status = models.BookingStatusConfirmed
	now := time.Now()
	b.ConfirmedAt = &now
	b.PaymentStatus = models.PaymentStatusPaid
	b.Notes = details.Notes

	if err := m.Bookings.Create(ctx, b); err != nil {
		return nil, err
	}
	return &models.MaterializationResult{OrderID: order.ID, BookingIDs: []string{b.ID}}, nil
}

// materializeWorkshop links the booking to the shared class session; times
// come from that slot, never from the caller.
func (m *DefaultMaterializer) materializeWorkshop(ctx context.Context, order *models.Order, svc *models.Service, details models.BookingDetails, pay models.PaymentData) (*models.MaterializationResult, error) {
	if details.ClassSessionID == "" {
		return nil, fmt.Errorf("workshop order %s has no class session", order.ID)
	}
	slot, err := m.Catalog.GetClassSession(ctx, details.ClassSessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("class session %s: %w", details.ClassSessionID, err)
	}
	if err != nil {
		return nil, Transient("class session fetch", err)
	}

	b := m.newBooking(order, svc, pay)
	b.ClassSessionID = slot.ID
	b.RoomID = slot.RoomID // attendees share the class room
	b.StartTime = slot.StartTime
	b.EndTime = slot.EndTime
	b.MaxParticipants = slot.MaxParticipants
	b.Status = models.BookingStatusConfirmed
	now := time.Now()
	b.ConfirmedAt = &now
	b.PaymentStatus = models.PaymentStatusPaid
	b.Notes = details.Notes

	if err := m.Bookings.Create(ctx, b); err != nil {
		return nil, err
	}
	return &models.MaterializationResult{OrderID: order.ID, BookingIDs: []string{b.ID}}, nil
}

// materializeCourse creates one enrollment-level booking spanning the whole
// course; per-class attendance is tracked on class sessions, not here.
func (m *DefaultMaterializer) materializeCourse(ctx context.Context, order *models.Order, svc *models.Service, pay models.PaymentData) (*models.MaterializationResult, error) {
	b := m.newBooking(order, svc, pay)
	b.Status = models.BookingStatusConfirmed
	now := time.Now()
	b.ConfirmedAt = &now
	b.PaymentStatus = models.PaymentStatusPaid

	if err := m.Bookings.Create(ctx, b); err != nil {
		return nil, err
	}
	return &models.MaterializationResult{OrderID: order.ID, BookingIDs: []string{b.ID}}, nil
}

// materializePackage creates one confirmed parent plus one draft child per
// included sub-service unit: unscheduled credits. A caller-supplied start
// time schedules the first child immediately.
func (m *DefaultMaterializer) materializePackage(ctx context.Context, order *models.Order, svc *models.Service, details models.BookingDetails, pay models.PaymentData) (*models.MaterializationResult, error) {
	parent := m.newBooking(order, svc, pay)
	parent.IsPackagePurchase = true
	parent.Status = models.BookingStatusConfirmed
	now := time.Now()
	parent.ConfirmedAt = &now
	parent.PaymentStatus = models.PaymentStatusPaid

	var children []*models.Booking
	for _, item := range svc.PackageItems {
		for q := 0; q < item.Quantity; q++ {
			child := &models.Booking{
				ID:             uuid.New().String(),
				UserID:         order.UserID,
				PractitionerID: svc.PractitionerID,
				ServiceID:      item.ServiceID,
				ParentID:       parent.ID,
				Status:         models.BookingStatusDraft,
				PaymentStatus:  models.PaymentStatusPaid,
				Snapshot: models.ServiceSnapshot{
					ServiceID:        item.ServiceID,
					Name:             item.Name,
					DurationMinutes:  item.DurationMinutes,
					PractitionerName: svc.PractitionerName,
					Type:             models.ServiceTypeSession,
					LocationMode:     svc.LocationMode,
					CommissionRate:   svc.CommissionRate,
				},
			}
			children = append(children, child)
		}
	}
	parent.CreditsAllocated = len(children)
	parent.CreditsRemaining = len(children)

	// An initial start time schedules the first credit right away. The
	// closed status model has no separate "scheduled" state; a credit-funded
	// scheduled child goes straight to confirmed+paid.
	if details.StartTime != nil && len(children) > 0 {
		first := children[0]
		first.StartTime = *details.StartTime
		first.EndTime = first.StartTime.Add(time.Duration(first.Snapshot.DurationMinutes) * time.Minute)
		if details.EndTime != nil {
			first.EndTime = *details.EndTime
		}
		first.Status = models.BookingStatusConfirmed
		first.ConfirmedAt = &now
		parent.CreditsRemaining--
	}

	all := append([]*models.Booking{parent}, children...)
	if err := m.Bookings.CreateMany(ctx, all); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return &models.MaterializationResult{
		OrderID:         order.ID,
		ParentBookingID: parent.ID,
		BookingIDs:      ids,
	}, nil
}

// materializeBundle creates one credit-grant parent; an initial start time
// additionally schedules one zero-price child, consuming a credit.
func (m *DefaultMaterializer) materializeBundle(ctx context.Context, order *models.Order, svc *models.Service, details models.BookingDetails, pay models.PaymentData) (*models.MaterializationResult, error) {
	parent := m.newBooking(order, svc, pay)
	parent.IsBundlePurchase = true
	parent.Status = models.BookingStatusConfirmed
	now := time.Now()
	parent.ConfirmedAt = &now
	parent.PaymentStatus = models.PaymentStatusPaid
	parent.CreditsAllocated = svc.BundleCredits
	parent.CreditsRemaining = svc.BundleCredits

	if err := m.Bookings.Create(ctx, parent); err != nil {
		return nil, err
	}

	result := &models.MaterializationResult{
		OrderID:         order.ID,
		ParentBookingID: parent.ID,
	}

	if details.StartTime != nil {
		end := details.StartTime.Add(time.Duration(svc.DurationMinutes) * time.Minute)
		if details.EndTime != nil {
			end = *details.EndTime
		}
		child := newBundleChild(parent, *details.StartTime, end)
		child.Notes = details.Notes
		if err := m.Bookings.CreateScheduledChild(ctx, parent.ID, child); err != nil {
			return nil, err
		}
		result.BookingIDs = []string{child.ID}
	}
	return result, nil
}

// newBooking builds the common booking fields shared by every service type,
// snapshotting the catalogue entry at creation time.
func (m *DefaultMaterializer) newBooking(order *models.Order, svc *models.Service, pay models.PaymentData) *models.Booking {
	return &models.Booking{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		UserID:          order.UserID,
		PractitionerID:  svc.PractitionerID,
		ServiceID:       svc.ID,
		PriceCharged:    pay.GrossCents,
		DiscountAmount:  pay.DiscountCents,
		FinalAmount:     pay.GrossCents - pay.DiscountCents,
		Snapshot:        svc.Snapshot(),
		MaxParticipants: svc.MaxParticipants,
	}
}

// newBundleChild builds a zero-price child booking scheduled against a
// bundle parent's credits.
func newBundleChild(parent *models.Booking, start, end time.Time) *models.Booking {
	now := time.Now()
	return &models.Booking{
		ID:             uuid.New().String(),
		UserID:         parent.UserID,
		PractitionerID: parent.PractitionerID,
		ServiceID:      parent.ServiceID,
		ParentID:       parent.ID,
		StartTime:      start,
		EndTime:        end,
		Status:         models.BookingStatusConfirmed,
		ConfirmedAt:    &now,
		PaymentStatus:  models.PaymentStatusPaid,
		Snapshot:       parent.Snapshot,
	}
}

// afterCreate fires the non-fatal side effects: room creation for virtual
// services and the confirmation notification for bookings that never enter
// the lifecycle sequence (course enrollments and credit parents carry no
// start time; scheduled bookings are notified by their confirm step).
// Failures here never fail the materialization; the reconciliation sweep
// picks up missing rooms.
func (m *DefaultMaterializer) afterCreate(ctx context.Context, result *models.MaterializationResult, svc *models.Service) {
	ids := append([]string{}, result.BookingIDs...)
	if result.ParentBookingID != "" {
		ids = append(ids, result.ParentBookingID)
	}
	for _, id := range ids {
		b, err := m.Bookings.GetByID(ctx, id)
		if err != nil {
			m.Logger.Warn("post-create fetch failed", zap.String("bookingId", id), zap.Error(err))
			continue
		}
		if b.Status != models.BookingStatusConfirmed {
			continue
		}
		if svc.LocationMode.NeedsRoom() && !b.IsParent() && b.ClassSessionID == "" && b.RoomID == "" {
			roomID, err := m.Rooms.CreateRoom(ctx, b)
			if err != nil {
				m.Logger.Warn("room creation failed, deferring to reconciliation sweep",
					zap.String("bookingId", b.ID), zap.Error(err))
			} else if _, err := m.Bookings.SetRoom(ctx, b.ID, roomID); err != nil {
				m.Logger.Warn("room link failed", zap.String("bookingId", b.ID), zap.Error(err))
			}
		}
		if b.StartTime.IsZero() {
			if err := m.Notifier.SendUserPushNotification(ctx, b.UserID,
				notification.BookingConfirmedTitle,
				notification.BookingConfirmedBody(b),
				map[string]string{"type": "booking_confirmed", "bookingId": b.ID},
			); err != nil {
				m.Logger.Warn("confirmation notification failed", zap.String("bookingId", b.ID), zap.Error(err))
			}
		}
	}
}

func existingResult(orderID string, bs []models.Booking) *models.MaterializationResult {
	result := &models.MaterializationResult{OrderID: orderID, AlreadyExisted: true}
	for _, b := range bs {
		if b.IsParent() {
			result.ParentBookingID = b.ID
			result.ServiceType = b.Snapshot.Type
			continue
		}
		result.BookingIDs = append(result.BookingIDs, b.ID)
		if result.ServiceType == "" {
			result.ServiceType = b.Snapshot.Type
		}
	}
	return result
}

func sessionTimes(svc *models.Service, details models.BookingDetails) (time.Time, time.Time, error) {
	if details.StartTime == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("session booking requires a start time")
	}
	start := *details.StartTime
	end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)
	if details.EndTime != nil {
		end = *details.EndTime
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, models.ErrInvalidTimeRange
	}
	return start, end, nil
}
