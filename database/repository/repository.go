package repository

import (
	"context"
	"errors"
	"time"

	"sereno/models"
)

// Sentinel errors repositories return so callers can distinguish a missing
// row from a lost optimistic-concurrency race or a transient I/O failure.
var (
	ErrNotFound         = errors.New("repository: not found")
	ErrConflict         = errors.New("repository: concurrent update conflict")
	ErrDuplicateKey     = errors.New("repository: duplicate key")
	ErrCreditsExhausted = errors.New("repository: no credits remaining")
)

// BookingRepository defines the interface for booking data access.
// Status writes go through the guarded update so concurrent transition
// attempts serialize: one wins, the other gets ErrConflict.
type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByOrderID(ctx context.Context, orderID string) ([]models.Booking, error)
	Create(ctx context.Context, b *models.Booking) error
	CreateMany(ctx context.Context, bs []*models.Booking) error

	// UpdateWithStatusGuard persists b only if the stored status still equals
	// expected. Returns ErrConflict when another writer got there first.
	UpdateWithStatusGuard(ctx context.Context, b *models.Booking, expected models.BookingStatus) error

	// CancelCascade atomically persists a canceled parent together with its
	// canceled children. Either all rows change or none do.
	CancelCascade(ctx context.Context, parent *models.Booking, children []*models.Booking, expectedParent models.BookingStatus) error

	FindNonTerminalChildren(ctx context.Context, parentID string) ([]models.Booking, error)

	// CreateScheduledChild inserts a zero-price child booking and decrements
	// the parent's remaining credits in one transaction. The decrement is
	// guarded by creditsRemaining >= 1; ErrCreditsExhausted otherwise.
	CreateScheduledChild(ctx context.Context, parentID string, child *models.Booking) error

	FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)

	// FindOpenCourseEnrollments returns confirmed course enrollments, which
	// carry no times of their own; completion is derived from the course's
	// final class-session end.
	FindOpenCourseEnrollments(ctx context.Context) ([]models.Booking, error)
	FindVirtualWithoutRoom(ctx context.Context, createdSince time.Time) ([]models.Booking, error)
	FindByClassSession(ctx context.Context, classSessionID string) ([]models.Booking, error)
	FindOverlapping(ctx context.Context, practitionerID string, start, end time.Time) ([]models.Booking, error)

	// SetRoom links a room only if no room is linked yet; reports whether
	// this call did the linking.
	SetRoom(ctx context.Context, id, roomID string) (bool, error)

	// MarkReminderSent flips one typed reminder flag if currently unset;
	// reports whether this call won the flip.
	MarkReminderSent(ctx context.Context, id, field string, at time.Time) (bool, error)

	// ApplyReschedule moves the booking to new times, clears every reminder
	// flag, and appends the audit entry.
	ApplyReschedule(ctx context.Context, id string, newStart, newEnd time.Time, audit models.RescheduleAudit) error
}

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, o *models.Order) error

	// MarkCompleted flips status pending->completed; reports whether this
	// call did the flip (false on redelivery).
	MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error)
}

// CatalogRepository reads the service catalogue and class-session slots.
type CatalogRepository interface {
	GetService(ctx context.Context, id string) (*models.Service, error)
	GetClassSession(ctx context.Context, id string) (*models.ClassSession, error)
	LatestClassSessionEnd(ctx context.Context, serviceID string) (time.Time, error)
	UpdateClassSessionTimes(ctx context.Context, id string, start, end time.Time) error
}

// EarningsRepository persists earnings transactions, payout batches and the
// package-completion watermark records.
type EarningsRepository interface {
	CreateTransaction(ctx context.Context, t *models.EarningsTransaction) error
	GetTransaction(ctx context.Context, id string) (*models.EarningsTransaction, error)
	FindReadyForPayout(ctx context.Context, practitionerID string, now time.Time) ([]models.EarningsTransaction, error)

	// CommitPayout creates the batch and marks its source transactions paid
	// out in one transaction: all or nothing.
	CommitPayout(ctx context.Context, batch *models.PayoutBatch) error

	GetPackageCompletion(ctx context.Context, parentBookingID string) (*models.PackageCompletion, error)

	// MarkPackageSessionCompleted counts childBookingID toward the parent's
	// completed sessions exactly once, creating the record from seed on
	// first use. Returns ErrDuplicateKey when the child was already counted.
	MarkPackageSessionCompleted(ctx context.Context, seed *models.PackageCompletion, childBookingID string) error

	// AdvanceWatermark raises LastPayoutPercentage from->to; reports whether
	// this call won (false when a replay already advanced it).
	AdvanceWatermark(ctx context.Context, id string, from, to float64, final bool) (bool, error)

	// ReleasePending flips pending transactions whose lock period has passed
	// to available, returning how many changed.
	ReleasePending(ctx context.Context, now time.Time) (int64, error)
}

// ContactRepository resolves push tokens for notification delivery.
type ContactRepository interface {
	UserToken(ctx context.Context, userID string) (string, error)
	PractitionerToken(ctx context.Context, practitionerID string) (string, error)
}
