package models

import (
	"errors"
	"testing"
	"time"
)

func TestBookingValidate(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		booking Booking
		wantErr error
	}{
		{
			name: "valid scheduled booking",
			booking: Booking{
				StartTime: start, EndTime: start.Add(time.Hour),
				PriceCharged: 10000, DiscountAmount: 1000, FinalAmount: 9000,
			},
		},
		{
			name:    "unscheduled credit is exempt from the range check",
			booking: Booking{},
		},
		{
			name:    "end before start",
			booking: Booking{StartTime: start, EndTime: start.Add(-time.Hour)},
			wantErr: ErrInvalidTimeRange,
		},
		{
			name:    "zero-length session",
			booking: Booking{StartTime: start, EndTime: start},
			wantErr: ErrInvalidTimeRange,
		},
		{
			name: "final amount drifts from price minus discount",
			booking: Booking{
				StartTime: start, EndTime: start.Add(time.Hour),
				PriceCharged: 10000, DiscountAmount: 1000, FinalAmount: 10000,
			},
			wantErr: ErrAmountMismatch,
		},
		{
			name: "negative final amount",
			booking: Booking{
				StartTime: start, EndTime: start.Add(time.Hour),
				PriceCharged: 1000, DiscountAmount: 2000, FinalAmount: -1000,
			},
			wantErr: ErrNegativeAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.booking.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
