package booking

import (
	"context"
	"time"

	"sereno/database/repository"
	"sereno/models"
)

// mockBookingRepo implements repository.BookingRepository with overridable
// func fields. Unset funcs return zero values.
type mockBookingRepo struct {
	GetByIDFn                      func(ctx context.Context, id string) (*models.Booking, error)
	GetByOrderIDFn                 func(ctx context.Context, orderID string) ([]models.Booking, error)
	CreateFn                       func(ctx context.Context, b *models.Booking) error
	CreateManyFn                   func(ctx context.Context, bs []*models.Booking) error
	UpdateWithStatusGuardFn        func(ctx context.Context, b *models.Booking, expected models.BookingStatus) error
	CancelCascadeFn                func(ctx context.Context, parent *models.Booking, children []*models.Booking, expected models.BookingStatus) error
	FindNonTerminalChildrenFn      func(ctx context.Context, parentID string) ([]models.Booking, error)
	CreateScheduledChildFn         func(ctx context.Context, parentID string, child *models.Booking) error
	FindConfirmedStartingBetweenFn func(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	FindActiveStartedBeforeFn      func(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	FindOpenCourseEnrollmentsFn    func(ctx context.Context) ([]models.Booking, error)
	FindVirtualWithoutRoomFn       func(ctx context.Context, createdSince time.Time) ([]models.Booking, error)
	FindByClassSessionFn           func(ctx context.Context, classSessionID string) ([]models.Booking, error)
	FindOverlappingFn              func(ctx context.Context, practitionerID string, start, end time.Time) ([]models.Booking, error)
	SetRoomFn                      func(ctx context.Context, id, roomID string) (bool, error)
	MarkReminderSentFn             func(ctx context.Context, id, field string, at time.Time) (bool, error)
	ApplyRescheduleFn              func(ctx context.Context, id string, newStart, newEnd time.Time, audit models.RescheduleAudit) error
}

func (m *mockBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockBookingRepo) GetByOrderID(ctx context.Context, orderID string) ([]models.Booking, error) {
	if m.GetByOrderIDFn != nil {
		return m.GetByOrderIDFn(ctx, orderID)
	}
	return nil, nil
}

func (m *mockBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, b)
	}
	return nil
}

func (m *mockBookingRepo) CreateMany(ctx context.Context, bs []*models.Booking) error {
	if m.CreateManyFn != nil {
		return m.CreateManyFn(ctx, bs)
	}
	return nil
}

func (m *mockBookingRepo) UpdateWithStatusGuard(ctx context.Context, b *models.Booking, expected models.BookingStatus) error {
	if m.UpdateWithStatusGuardFn != nil {
		return m.UpdateWithStatusGuardFn(ctx, b, expected)
	}
	return nil
}

func (m *mockBookingRepo) CancelCascade(ctx context.Context, parent *models.Booking, children []*models.Booking, expected models.BookingStatus) error {
	if m.CancelCascadeFn != nil {
		return m.CancelCascadeFn(ctx, parent, children, expected)
	}
	return nil
}

func (m *mockBookingRepo) FindNonTerminalChildren(ctx context.Context, parentID string) ([]models.Booking, error) {
	if m.FindNonTerminalChildrenFn != nil {
		return m.FindNonTerminalChildrenFn(ctx, parentID)
	}
	return nil, nil
}

func (m *mockBookingRepo) CreateScheduledChild(ctx context.Context, parentID string, child *models.Booking) error {
	if m.CreateScheduledChildFn != nil {
		return m.CreateScheduledChildFn(ctx, parentID, child)
	}
	return nil
}

func (m *mockBookingRepo) FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	if m.FindConfirmedStartingBetweenFn != nil {
		return m.FindConfirmedStartingBetweenFn(ctx, from, to)
	}
	return nil, nil
}

func (m *mockBookingRepo) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	if m.FindActiveStartedBeforeFn != nil {
		return m.FindActiveStartedBeforeFn(ctx, cutoff)
	}
	return nil, nil
}

func (m *mockBookingRepo) FindOpenCourseEnrollments(ctx context.Context) ([]models.Booking, error) {
	if m.FindOpenCourseEnrollmentsFn != nil {
		return m.FindOpenCourseEnrollmentsFn(ctx)
	}
	return nil, nil
}

func (m *mockBookingRepo) FindVirtualWithoutRoom(ctx context.Context, createdSince time.Time) ([]models.Booking, error) {
	if m.FindVirtualWithoutRoomFn != nil {
		return m.FindVirtualWithoutRoomFn(ctx, createdSince)
	}
	return nil, nil
}

func (m *mockBookingRepo) FindByClassSession(ctx context.Context, classSessionID string) ([]models.Booking, error) {
	if m.FindByClassSessionFn != nil {
		return m.FindByClassSessionFn(ctx, classSessionID)
	}
	return nil, nil
}

func (m *mockBookingRepo) FindOverlapping(ctx context.Context, practitionerID string, start, end time.Time) ([]models.Booking, error) {
	if m.FindOverlappingFn != nil {
		return m.FindOverlappingFn(ctx, practitionerID, start, end)
	}
	return nil, nil
}

func (m *mockBookingRepo) SetRoom(ctx context.Context, id, roomID string) (bool, error) {
	if m.SetRoomFn != nil {
		return m.SetRoomFn(ctx, id, roomID)
	}
	return true, nil
}

func (m *mockBookingRepo) MarkReminderSent(ctx context.Context, id, field string, at time.Time) (bool, error) {
	if m.MarkReminderSentFn != nil {
		return m.MarkReminderSentFn(ctx, id, field, at)
	}
	return true, nil
}

func (m *mockBookingRepo) ApplyReschedule(ctx context.Context, id string, newStart, newEnd time.Time, audit models.RescheduleAudit) error {
	if m.ApplyRescheduleFn != nil {
		return m.ApplyRescheduleFn(ctx, id, newStart, newEnd, audit)
	}
	return nil
}

// mockOrderRepo implements repository.OrderRepository.
type mockOrderRepo struct {
	GetByIDFn       func(ctx context.Context, id string) (*models.Order, error)
	CreateFn        func(ctx context.Context, o *models.Order) error
	MarkCompletedFn func(ctx context.Context, id string, at time.Time) (bool, error)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockOrderRepo) Create(ctx context.Context, o *models.Order) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, o)
	}
	return nil
}

func (m *mockOrderRepo) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	if m.MarkCompletedFn != nil {
		return m.MarkCompletedFn(ctx, id, at)
	}
	return true, nil
}

// mockCatalogRepo implements repository.CatalogRepository.
type mockCatalogRepo struct {
	GetServiceFn              func(ctx context.Context, id string) (*models.Service, error)
	GetClassSessionFn         func(ctx context.Context, id string) (*models.ClassSession, error)
	LatestClassSessionEndFn   func(ctx context.Context, serviceID string) (time.Time, error)
	UpdateClassSessionTimesFn func(ctx context.Context, id string, start, end time.Time) error
}

func (m *mockCatalogRepo) GetService(ctx context.Context, id string) (*models.Service, error) {
	if m.GetServiceFn != nil {
		return m.GetServiceFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCatalogRepo) GetClassSession(ctx context.Context, id string) (*models.ClassSession, error) {
	if m.GetClassSessionFn != nil {
		return m.GetClassSessionFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCatalogRepo) LatestClassSessionEnd(ctx context.Context, serviceID string) (time.Time, error) {
	if m.LatestClassSessionEndFn != nil {
		return m.LatestClassSessionEndFn(ctx, serviceID)
	}
	return time.Time{}, repository.ErrNotFound
}

func (m *mockCatalogRepo) UpdateClassSessionTimes(ctx context.Context, id string, start, end time.Time) error {
	if m.UpdateClassSessionTimesFn != nil {
		return m.UpdateClassSessionTimesFn(ctx, id, start, end)
	}
	return nil
}

// mockEarningsRepo implements repository.EarningsRepository.
type mockEarningsRepo struct {
	CreateTransactionFn           func(ctx context.Context, t *models.EarningsTransaction) error
	GetTransactionFn              func(ctx context.Context, id string) (*models.EarningsTransaction, error)
	FindReadyForPayoutFn          func(ctx context.Context, practitionerID string, now time.Time) ([]models.EarningsTransaction, error)
	CommitPayoutFn                func(ctx context.Context, batch *models.PayoutBatch) error
	GetPackageCompletionFn        func(ctx context.Context, parentBookingID string) (*models.PackageCompletion, error)
	MarkPackageSessionCompletedFn func(ctx context.Context, seed *models.PackageCompletion, childBookingID string) error
	AdvanceWatermarkFn            func(ctx context.Context, id string, from, to float64, final bool) (bool, error)
	ReleasePendingFn              func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockEarningsRepo) CreateTransaction(ctx context.Context, t *models.EarningsTransaction) error {
	if m.CreateTransactionFn != nil {
		return m.CreateTransactionFn(ctx, t)
	}
	return nil
}

func (m *mockEarningsRepo) GetTransaction(ctx context.Context, id string) (*models.EarningsTransaction, error) {
	if m.GetTransactionFn != nil {
		return m.GetTransactionFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockEarningsRepo) FindReadyForPayout(ctx context.Context, practitionerID string, now time.Time) ([]models.EarningsTransaction, error) {
	if m.FindReadyForPayoutFn != nil {
		return m.FindReadyForPayoutFn(ctx, practitionerID, now)
	}
	return nil, nil
}

func (m *mockEarningsRepo) CommitPayout(ctx context.Context, batch *models.PayoutBatch) error {
	if m.CommitPayoutFn != nil {
		return m.CommitPayoutFn(ctx, batch)
	}
	return nil
}

func (m *mockEarningsRepo) GetPackageCompletion(ctx context.Context, parentBookingID string) (*models.PackageCompletion, error) {
	if m.GetPackageCompletionFn != nil {
		return m.GetPackageCompletionFn(ctx, parentBookingID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockEarningsRepo) MarkPackageSessionCompleted(ctx context.Context, seed *models.PackageCompletion, childBookingID string) error {
	if m.MarkPackageSessionCompletedFn != nil {
		return m.MarkPackageSessionCompletedFn(ctx, seed, childBookingID)
	}
	return nil
}

func (m *mockEarningsRepo) AdvanceWatermark(ctx context.Context, id string, from, to float64, final bool) (bool, error) {
	if m.AdvanceWatermarkFn != nil {
		return m.AdvanceWatermarkFn(ctx, id, from, to, final)
	}
	return true, nil
}

func (m *mockEarningsRepo) ReleasePending(ctx context.Context, now time.Time) (int64, error) {
	if m.ReleasePendingFn != nil {
		return m.ReleasePendingFn(ctx, now)
	}
	return 0, nil
}

// mockNotifier records pushes instead of sending them.
type mockNotifier struct {
	userPushes         []string
	practitionerPushes []string
}

func (m *mockNotifier) SendUserPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error {
	m.userPushes = append(m.userPushes, title)
	return nil
}

func (m *mockNotifier) SendPractitionerPushNotification(ctx context.Context, practitionerID, title, body string, data map[string]string) error {
	m.practitionerPushes = append(m.practitionerPushes, title)
	return nil
}

// mockRoomService records room calls.
type mockRoomService struct {
	created  int
	ended    []string
	joinedFn func(roomID, participantID string) (bool, error)
	createFn func(b *models.Booking) (string, error)
}

func (m *mockRoomService) CreateRoom(ctx context.Context, b *models.Booking) (string, error) {
	m.created++
	if m.createFn != nil {
		return m.createFn(b)
	}
	return "room-" + b.ID, nil
}

func (m *mockRoomService) EndRoom(ctx context.Context, roomID string) error {
	m.ended = append(m.ended, roomID)
	return nil
}

func (m *mockRoomService) ParticipantJoined(ctx context.Context, roomID, participantID string) (bool, error) {
	if m.joinedFn != nil {
		return m.joinedFn(roomID, participantID)
	}
	return false, nil
}
