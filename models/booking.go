package models

import (
	"errors"
	"time"
)

// BookingStatus is the finite set of states a booking can be in.
type BookingStatus string

const (
	BookingStatusDraft          BookingStatus = "draft"
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusInProgress     BookingStatus = "in_progress"
	BookingStatusCompleted      BookingStatus = "completed"
	BookingStatusCanceled       BookingStatus = "canceled"
	BookingStatusNoShow         BookingStatus = "no_show"
)

// Terminal reports whether no further transition is allowed out of s.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCanceled, BookingStatusNoShow:
		return true
	}
	return false
}

// PaymentStatus tracks money state independently of the booking status.
type PaymentStatus string

const (
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

// ReminderAudience distinguishes who a reminder is addressed to.
type ReminderAudience string

const (
	AudienceClient       ReminderAudience = "client"
	AudiencePractitioner ReminderAudience = "practitioner"
)

// ReminderWindow names the two reminder lookahead windows.
type ReminderWindow string

const (
	ReminderWindow24h ReminderWindow = "24h"
	ReminderWindow30m ReminderWindow = "30m"
)

// ReminderState holds the sent-at timestamps for every (audience, window)
// reminder. A nil field means not sent yet. Typed fields instead of a
// free-form map so the "don't resend" checks are compile-time safe.
type ReminderState struct {
	Client24hSentAt       *time.Time `bson:"client24hSentAt,omitempty" json:"client24hSentAt,omitempty"`
	Client30mSentAt       *time.Time `bson:"client30mSentAt,omitempty" json:"client30mSentAt,omitempty"`
	Practitioner24hSentAt *time.Time `bson:"practitioner24hSentAt,omitempty" json:"practitioner24hSentAt,omitempty"`
	Practitioner30mSentAt *time.Time `bson:"practitioner30mSentAt,omitempty" json:"practitioner30mSentAt,omitempty"`
}

// ReminderField returns the bson field name backing one (audience, window)
// flag. Repositories use it for compare-and-set marking.
func ReminderField(aud ReminderAudience, win ReminderWindow) string {
	switch {
	case aud == AudienceClient && win == ReminderWindow24h:
		return "reminders.client24hSentAt"
	case aud == AudienceClient && win == ReminderWindow30m:
		return "reminders.client30mSentAt"
	case aud == AudiencePractitioner && win == ReminderWindow24h:
		return "reminders.practitioner24hSentAt"
	default:
		return "reminders.practitioner30mSentAt"
	}
}

// Sent reports whether the (audience, window) reminder has been dispatched.
func (r *ReminderState) Sent(aud ReminderAudience, win ReminderWindow) bool {
	switch {
	case aud == AudienceClient && win == ReminderWindow24h:
		return r.Client24hSentAt != nil
	case aud == AudienceClient && win == ReminderWindow30m:
		return r.Client30mSentAt != nil
	case aud == AudiencePractitioner && win == ReminderWindow24h:
		return r.Practitioner24hSentAt != nil
	default:
		return r.Practitioner30mSentAt != nil
	}
}

// RescheduleAudit records one time change applied to a booking.
type RescheduleAudit struct {
	OldStart time.Time `bson:"oldStart" json:"oldStart"`
	OldEnd   time.Time `bson:"oldEnd" json:"oldEnd"`
	NewStart time.Time `bson:"newStart" json:"newStart"`
	NewEnd   time.Time `bson:"newEnd" json:"newEnd"`
	Reason   string    `bson:"reason" json:"reason"`
	At       time.Time `bson:"at" json:"at"`
}

// ServiceSnapshot is captured from the Service at booking-creation time and
// never recomputed, so later edits to the catalogue do not rewrite history.
type ServiceSnapshot struct {
	ServiceID        string                `bson:"serviceId" json:"serviceId"`
	Name             string                `bson:"name" json:"name"`
	Description      string                `bson:"description" json:"description"`
	DurationMinutes  int                   `bson:"durationMinutes" json:"durationMinutes"`
	PractitionerName string                `bson:"practitionerName" json:"practitionerName"`
	Type             ServiceType           `bson:"type" json:"type"`
	LocationMode     LocationMode          `bson:"locationMode" json:"locationMode"`
	CommissionRate   float64               `bson:"commissionRate" json:"commissionRate"`
	PackageItems     []PackageItemSnapshot `bson:"packageItems,omitempty" json:"packageItems,omitempty"`
}

// Booking represents one booking row. It is never hard-deleted; canceled
// bookings are retained with status=canceled.
type Booking struct {
	ID              string `bson:"id" json:"id"` // UUID, public-facing
	OrderID         string `bson:"orderId,omitempty" json:"orderId,omitempty"`
	UserID          string `bson:"userId" json:"userId"`
	PractitionerID  string `bson:"practitionerId" json:"practitionerId"`
	ServiceID       string `bson:"serviceId" json:"serviceId"`
	RoomID          string `bson:"roomId,omitempty" json:"roomId,omitempty"`
	ParentID        string `bson:"parentId,omitempty" json:"parentId,omitempty"`
	ClassSessionID  string `bson:"classSessionId,omitempty" json:"classSessionId,omitempty"`
	RescheduledFrom string `bson:"rescheduledFrom,omitempty" json:"rescheduledFrom,omitempty"`

	StartTime       time.Time  `bson:"startTime" json:"startTime"`
	EndTime         time.Time  `bson:"endTime" json:"endTime"`
	ActualStartTime *time.Time `bson:"actualStartTime,omitempty" json:"actualStartTime,omitempty"`
	ActualEndTime   *time.Time `bson:"actualEndTime,omitempty" json:"actualEndTime,omitempty"`

	Status        BookingStatus `bson:"status" json:"status"`
	PaymentStatus PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`

	// Money, integer minor units. FinalAmount = PriceCharged - DiscountAmount.
	PriceCharged   int64 `bson:"priceCharged" json:"priceCharged"`
	DiscountAmount int64 `bson:"discountAmount" json:"discountAmount"`
	FinalAmount    int64 `bson:"finalAmount" json:"finalAmount"`

	Snapshot ServiceSnapshot `bson:"snapshot" json:"snapshot"`

	IsPackagePurchase bool `bson:"isPackagePurchase,omitempty" json:"isPackagePurchase,omitempty"`
	IsBundlePurchase  bool `bson:"isBundlePurchase,omitempty" json:"isBundlePurchase,omitempty"`
	MaxParticipants   int  `bson:"maxParticipants,omitempty" json:"maxParticipants,omitempty"`

	// Credit ledger fields, meaningful on package/bundle parents only.
	CreditsAllocated int `bson:"creditsAllocated,omitempty" json:"creditsAllocated,omitempty"`
	CreditsRemaining int `bson:"creditsRemaining,omitempty" json:"creditsRemaining,omitempty"`

	Reminders         ReminderState     `bson:"reminders" json:"reminders"`
	RescheduleHistory []RescheduleAudit `bson:"rescheduleHistory,omitempty" json:"rescheduleHistory,omitempty"`

	StatusChangedAt    *time.Time `bson:"statusChangedAt,omitempty" json:"statusChangedAt,omitempty"`
	ConfirmedAt        *time.Time `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	StartedAt          *time.Time `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt        *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CanceledAt         *time.Time `bson:"canceledAt,omitempty" json:"canceledAt,omitempty"`
	NoShowAt           *time.Time `bson:"noShowAt,omitempty" json:"noShowAt,omitempty"`
	CanceledBy         string     `bson:"canceledBy,omitempty" json:"canceledBy,omitempty"`
	CancellationReason string     `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`

	Notes     string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

var (
	ErrInvalidTimeRange = errors.New("booking end time must be after start time")
	ErrNegativeAmount   = errors.New("booking final amount must not be negative")
	ErrAmountMismatch   = errors.New("booking final amount must equal price charged minus discount")
)

// Validate enforces the write-time invariants on temporal and money fields.
// Course enrollments and unscheduled package credits carry zero times, which
// are exempt from the range check.
func (b *Booking) Validate() error {
	if !b.StartTime.IsZero() || !b.EndTime.IsZero() {
		if !b.EndTime.After(b.StartTime) {
			return ErrInvalidTimeRange
		}
	}
	if b.FinalAmount != b.PriceCharged-b.DiscountAmount {
		return ErrAmountMismatch
	}
	if b.FinalAmount < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// IsTerminal reports whether the booking has reached a terminal status.
func (b *Booking) IsTerminal() bool {
	return b.Status.Terminal()
}

// IsParent reports whether this booking heads a package or bundle.
func (b *Booking) IsParent() bool {
	return b.IsPackagePurchase || b.IsBundlePurchase
}

// Duration returns the scheduled session length, falling back to the
// snapshotted service duration when explicit times are absent.
func (b *Booking) Duration() time.Duration {
	if !b.EndTime.IsZero() && b.EndTime.After(b.StartTime) {
		return b.EndTime.Sub(b.StartTime)
	}
	return time.Duration(b.Snapshot.DurationMinutes) * time.Minute
}
