package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"sereno/database/repository"
	"sereno/models"

	"go.uber.org/zap"
)

func TestCancelRejectsInsideNoticeWindow(t *testing.T) {
	t.Parallel()

	repo := &mockBookingRepo{
		GetByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return &models.Booking{
				ID:        id,
				Status:    models.BookingStatusConfirmed,
				StartTime: time.Now().Add(2 * time.Hour),
			}, nil
		},
	}
	status := &DefaultStatusService{Repo: repo, MinNoticeHours: 24, Logger: zap.NewNop()}
	svc := &DefaultBookingService{Repo: repo, Status: status, Logger: zap.NewNop()}

	_, err := svc.Cancel(context.Background(), "b1", "client", "changed my mind")
	if !errors.Is(err, ErrCancelWindowClosed) {
		t.Fatalf("expected ErrCancelWindowClosed, got %v", err)
	}
}

func TestCancelStampsAndPersists(t *testing.T) {
	t.Parallel()

	var persisted *models.Booking
	repo := &mockBookingRepo{
		GetByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
			return &models.Booking{
				ID:        id,
				Status:    models.BookingStatusConfirmed,
				StartTime: time.Now().Add(72 * time.Hour),
			}, nil
		},
		UpdateWithStatusGuardFn: func(ctx context.Context, b *models.Booking, expected models.BookingStatus) error {
			persisted = b
			if expected != models.BookingStatusConfirmed {
				t.Errorf("guard expected %s, want confirmed", expected)
			}
			return nil
		},
	}
	status := &DefaultStatusService{Repo: repo, MinNoticeHours: 24, Logger: zap.NewNop()}
	svc := &DefaultBookingService{Repo: repo, Status: status, Logger: zap.NewNop()}

	b, err := svc.Cancel(context.Background(), "b1", "client", "feeling unwell")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if persisted == nil || b.Status != models.BookingStatusCanceled {
		t.Fatalf("booking not canceled: %+v", b)
	}
	if b.CanceledBy != "client" || b.CancellationReason != "feeling unwell" {
		t.Errorf("attribution = %q/%q", b.CanceledBy, b.CancellationReason)
	}
}

func TestScheduleFromCredits(t *testing.T) {
	t.Parallel()

	start := time.Now().Add(96 * time.Hour)
	end := start.Add(time.Hour)

	parent := func() *models.Booking {
		return &models.Booking{
			ID:               "p1",
			UserID:           "user1",
			PractitionerID:   "prac1",
			ServiceID:        "svc1",
			Status:           models.BookingStatusConfirmed,
			IsBundlePurchase: true,
			CreditsAllocated: 5,
			CreditsRemaining: 2,
			Snapshot:         models.ServiceSnapshot{Name: "Yoga", DurationMinutes: 60},
		}
	}

	t.Run("consumes a credit", func(t *testing.T) {
		t.Parallel()
		var child *models.Booking
		repo := &mockBookingRepo{
			GetByIDFn: func(ctx context.Context, id string) (*models.Booking, error) { return parent(), nil },
			CreateScheduledChildFn: func(ctx context.Context, parentID string, c *models.Booking) error {
				child = c
				return nil
			},
		}
		svc := &DefaultBookingService{Repo: repo, Status: &DefaultStatusService{Repo: repo, Logger: zap.NewNop()}, Logger: zap.NewNop()}

		got, err := svc.ScheduleFromCredits(context.Background(), "p1", start, end)
		if err != nil {
			t.Fatalf("ScheduleFromCredits: %v", err)
		}
		if got != child {
			t.Fatal("returned booking is not the persisted child")
		}
		if child.ParentID != "p1" || child.Status != models.BookingStatusConfirmed || child.FinalAmount != 0 {
			t.Errorf("child = %+v, want confirmed zero-price child of p1", child)
		}
	})

	t.Run("exhausted credits", func(t *testing.T) {
		t.Parallel()
		repo := &mockBookingRepo{
			GetByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
				p := parent()
				p.CreditsRemaining = 0
				return p, nil
			},
			CreateScheduledChildFn: func(ctx context.Context, parentID string, c *models.Booking) error {
				return repository.ErrCreditsExhausted
			},
		}
		svc := &DefaultBookingService{Repo: repo, Status: &DefaultStatusService{Repo: repo, Logger: zap.NewNop()}, Logger: zap.NewNop()}

		_, err := svc.ScheduleFromCredits(context.Background(), "p1", start, end)
		if !errors.Is(err, ErrCreditsExhausted) {
			t.Fatalf("expected ErrCreditsExhausted, got %v", err)
		}
	})

	t.Run("rejects non-parent", func(t *testing.T) {
		t.Parallel()
		repo := &mockBookingRepo{
			GetByIDFn: func(ctx context.Context, id string) (*models.Booking, error) {
				return &models.Booking{ID: id, Status: models.BookingStatusConfirmed}, nil
			},
		}
		svc := &DefaultBookingService{Repo: repo, Status: &DefaultStatusService{Repo: repo, Logger: zap.NewNop()}, Logger: zap.NewNop()}

		if _, err := svc.ScheduleFromCredits(context.Background(), "b1", start, end); err == nil {
			t.Fatal("expected error for non-parent booking")
		}
	})

	t.Run("rejects overlap", func(t *testing.T) {
		t.Parallel()
		repo := &mockBookingRepo{
			GetByIDFn: func(ctx context.Context, id string) (*models.Booking, error) { return parent(), nil },
			FindOverlappingFn: func(ctx context.Context, practitionerID string, s, e time.Time) ([]models.Booking, error) {
				return []models.Booking{{ID: "other"}}, nil
			},
		}
		svc := &DefaultBookingService{Repo: repo, Status: &DefaultStatusService{Repo: repo, Logger: zap.NewNop()}, Logger: zap.NewNop()}

		if _, err := svc.ScheduleFromCredits(context.Background(), "p1", start, end); !errors.Is(err, ErrConflictingBooking) {
			t.Fatalf("expected ErrConflictingBooking, got %v", err)
		}
	})
}
