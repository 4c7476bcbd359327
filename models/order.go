package models

import "time"

// OrderStatus tracks the upstream payment order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Order is the paid upstream trigger for booking materialization.
type Order struct {
	ID             string      `bson:"id" json:"id"`
	UserID         string      `bson:"userId" json:"userId"`
	ServiceID      string      `bson:"serviceId,omitempty" json:"serviceId,omitempty"`
	PractitionerID string      `bson:"practitionerId,omitempty" json:"practitionerId,omitempty"`
	AmountCents    int64       `bson:"amountCents" json:"amountCents"`
	Currency       string      `bson:"currency" json:"currency"`
	Status         OrderStatus `bson:"status" json:"status"`
	CreatedAt      time.Time   `bson:"createdAt" json:"createdAt"`
	CompletedAt    *time.Time  `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// BookingDetails carries caller-proposed scheduling fields for
// materialization. Times are optional for package/bundle purchases.
type BookingDetails struct {
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	ClassSessionID string     `json:"classSessionId,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// PaymentData carries the money facts of a completed order.
type PaymentData struct {
	GrossCents         int64 `json:"grossCents"`
	DiscountCents      int64 `json:"discountCents"`
	CreditsApplied     int64 `json:"creditsApplied"`
	AmountChargedCents int64 `json:"amountChargedCents"`
}

// MaterializationResult describes what an order produced.
type MaterializationResult struct {
	OrderID         string      `json:"orderId"`
	ParentBookingID string      `json:"parentBookingId,omitempty"`
	BookingIDs      []string    `json:"bookingIds"`
	ServiceType     ServiceType `json:"serviceType"`
	AlreadyExisted  bool        `json:"alreadyExisted"`
}
