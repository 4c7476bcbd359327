package models

import "time"

// EarningsStatus tracks an earnings transaction through its lock period.
type EarningsStatus string

const (
	EarningsStatusPending   EarningsStatus = "pending"
	EarningsStatusAvailable EarningsStatus = "available"
	EarningsStatusPaidOut   EarningsStatus = "paid_out"
)

// EarningsTransaction records a practitioner's cut of one booking.
// CommissionRate is an immutable copy taken at transaction time; later
// changes to the practitioner's rate never touch historical rows.
type EarningsTransaction struct {
	ID              string         `bson:"id" json:"id"`
	PractitionerID  string         `bson:"practitionerId" json:"practitionerId"`
	BookingID       string         `bson:"bookingId" json:"bookingId"`
	GrossCents      int64          `bson:"grossCents" json:"grossCents"`
	CommissionRate  float64        `bson:"commissionRate" json:"commissionRate"`
	CommissionCents int64          `bson:"commissionCents" json:"commissionCents"`
	NetCents        int64          `bson:"netCents" json:"netCents"`
	Status          EarningsStatus `bson:"status" json:"status"`
	AvailableAfter  time.Time      `bson:"availableAfter" json:"availableAfter"`
	PayoutID        string         `bson:"payoutId,omitempty" json:"payoutId,omitempty"`
	CreatedAt       time.Time      `bson:"createdAt" json:"createdAt"`
}

// PayoutBatch groups ready transactions into one practitioner payout.
type PayoutBatch struct {
	ID             string    `bson:"id" json:"id"`
	PractitionerID string    `bson:"practitionerId" json:"practitionerId"`
	TotalNetCents  int64     `bson:"totalNetCents" json:"totalNetCents"`
	TransactionIDs []string  `bson:"transactionIds" json:"transactionIds"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
}

// PackageCompletion carries the progressive-payout watermark for one package
// purchase. LastPayoutPercentage only ever increases; a payout for a
// percentage at or below it must no-op.
type PackageCompletion struct {
	ID                   string    `bson:"id" json:"id"`
	ParentBookingID      string    `bson:"parentBookingId" json:"parentBookingId"`
	PractitionerID       string    `bson:"practitionerId" json:"practitionerId"`
	GrossCents           int64     `bson:"grossCents" json:"grossCents"`
	CommissionRate       float64   `bson:"commissionRate" json:"commissionRate"`
	CompletedSessions    int       `bson:"completedSessions" json:"completedSessions"`
	CompletedBookingIDs  []string  `bson:"completedBookingIds,omitempty" json:"completedBookingIds,omitempty"`
	TotalSessions        int       `bson:"totalSessions" json:"totalSessions"`
	LastPayoutPercentage float64   `bson:"lastPayoutPercentage" json:"lastPayoutPercentage"`
	FinalPaidOut         bool      `bson:"finalPaidOut" json:"finalPaidOut"`
	UpdatedAt            time.Time `bson:"updatedAt" json:"updatedAt"`
}

// CompletionPercentage computes progress from a plain completed/total count;
// session completion order is deliberately not considered.
func (p *PackageCompletion) CompletionPercentage() float64 {
	if p.TotalSessions <= 0 {
		return 0
	}
	return float64(p.CompletedSessions) / float64(p.TotalSessions) * 100
}
