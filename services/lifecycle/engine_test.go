package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sereno/database/repository"
	"sereno/models"
	booking "sereno/services/booking"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// fakeBookingRepo embeds the interface so only the methods the engine touches
// need implementations; calling anything else panics the test.
type fakeBookingRepo struct {
	repository.BookingRepository
	booking      *models.Booking
	reminderWon  bool
	markedFields []string
}

func (f *fakeBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if f.booking == nil || f.booking.ID != id {
		return nil, repository.ErrNotFound
	}
	cp := *f.booking
	return &cp, nil
}

func (f *fakeBookingRepo) MarkReminderSent(ctx context.Context, id, field string, at time.Time) (bool, error) {
	f.markedFields = append(f.markedFields, field)
	return f.reminderWon, nil
}

func (f *fakeBookingRepo) SetRoom(ctx context.Context, id, roomID string) (bool, error) {
	f.booking.RoomID = roomID
	return true, nil
}

type fakeStatus struct {
	transitions []models.BookingStatus
	err         error
}

func (f *fakeStatus) Transition(ctx context.Context, b *models.Booking, to models.BookingStatus, tc booking.TransitionContext) error {
	if f.err != nil {
		return f.err
	}
	f.transitions = append(f.transitions, to)
	b.Status = to
	return nil
}

func (f *fakeStatus) CanCancel(b *models.Booking, now time.Time) error { return nil }

type fakeEarnings struct {
	recorded        []string
	packageReleases []string
	recordErr       error
}

func (f *fakeEarnings) Record(ctx context.Context, b *models.Booking) (*models.EarningsTransaction, error) {
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	// One transaction per booking, like the real deterministic-id recording.
	for _, id := range f.recorded {
		if id == b.ID {
			return nil, booking.Transient("earnings write", repository.ErrDuplicateKey)
		}
	}
	f.recorded = append(f.recorded, b.ID)
	return &models.EarningsTransaction{BookingID: b.ID}, nil
}

func (f *fakeEarnings) BatchPayout(ctx context.Context, practitionerID string) (*models.PayoutBatch, error) {
	return nil, nil
}

func (f *fakeEarnings) ReleasePackagePayout(ctx context.Context, parentBookingID string) (*models.EarningsTransaction, error) {
	f.packageReleases = append(f.packageReleases, parentBookingID)
	return nil, nil
}

func (f *fakeEarnings) RecordPackageSessionCompleted(ctx context.Context, parent *models.Booking, childBookingID string) error {
	return nil
}

func (f *fakeEarnings) ReleaseEligible(ctx context.Context) (int64, error) { return 0, nil }

type fakeRooms struct {
	joined    bool
	joinErr   error
	created   int
	ended     []string
	createErr error
}

func (f *fakeRooms) CreateRoom(ctx context.Context, b *models.Booking) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return "room-" + b.ID, nil
}

func (f *fakeRooms) EndRoom(ctx context.Context, roomID string) error {
	f.ended = append(f.ended, roomID)
	return nil
}

func (f *fakeRooms) ParticipantJoined(ctx context.Context, roomID, participantID string) (bool, error) {
	return f.joined, f.joinErr
}

type fakeNotifier struct {
	userTitles         []string
	practitionerTitles []string
}

func (f *fakeNotifier) SendUserPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error {
	f.userTitles = append(f.userTitles, title)
	return nil
}

func (f *fakeNotifier) SendPractitionerPushNotification(ctx context.Context, practitionerID, title, body string, data map[string]string) error {
	f.practitionerTitles = append(f.practitionerTitles, title)
	return nil
}

type scheduled struct {
	bookingID string
	step      Step
	at        time.Time
}

type fakeScheduler struct {
	calls []scheduled
}

func (f *fakeScheduler) ScheduleAdvance(ctx context.Context, bookingID string, step Step, at time.Time) error {
	f.calls = append(f.calls, scheduled{bookingID, step, at})
	return nil
}

type engineFixture struct {
	engine   *Engine
	repo     *fakeBookingRepo
	status   *fakeStatus
	earnings *fakeEarnings
	rooms    *fakeRooms
	notifier *fakeNotifier
	sched    *fakeScheduler
}

func newFixture(b *models.Booking) *engineFixture {
	f := &engineFixture{
		repo:     &fakeBookingRepo{booking: b, reminderWon: true},
		status:   &fakeStatus{},
		earnings: &fakeEarnings{},
		rooms:    &fakeRooms{},
		notifier: &fakeNotifier{},
		sched:    &fakeScheduler{},
	}
	f.engine = NewEngine(f.repo, f.status, f.earnings, f.rooms, f.notifier, f.sched, zap.NewNop())
	return f
}

func advanceTask(t *testing.T, bookingID string, step Step) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(models.LifecycleAdvancePayload{BookingID: bookingID, Step: string(step)})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask("lifecycle:advance", payload)
}

func scheduledBooking(status models.BookingStatus) *models.Booking {
	start := time.Now().Add(72 * time.Hour)
	return &models.Booking{
		ID:             "b1",
		UserID:         "user1",
		PractitionerID: "prac1",
		Status:         status,
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Snapshot: models.ServiceSnapshot{
			Name:             "Therapy Session",
			PractitionerName: "Dana",
			LocationMode:     models.LocationVirtual,
			DurationMinutes:  60,
		},
	}
}

func TestHandleAdvanceHaltsOnTerminalStatus(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusCanceled)
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepReminder)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.sched.calls) != 0 {
		t.Errorf("terminal booking scheduled %d successors, want none", len(f.sched.calls))
	}
	if len(f.notifier.userTitles) != 0 {
		t.Error("terminal booking sent notifications")
	}
}

func TestHandleAdvanceMissingBookingHalts(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "ghost", StepConfirm)); err != nil {
		t.Fatalf("missing booking should halt cleanly, got %v", err)
	}
}

func TestHandleAdvanceBadPayloadSkipsRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	err := f.engine.HandleAdvance(context.Background(), asynq.NewTask("lifecycle:advance", []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestStepConfirmNotifiesAndSchedulesReminder(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusConfirmed)
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepConfirm)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.notifier.userTitles) != 1 || len(f.notifier.practitionerTitles) != 1 {
		t.Errorf("confirmations = %d user / %d practitioner, want 1/1",
			len(f.notifier.userTitles), len(f.notifier.practitionerTitles))
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepReminder {
		t.Fatalf("scheduled = %+v, want one reminder step", f.sched.calls)
	}
	wantAt := b.StartTime.Add(-48 * time.Hour)
	if !f.sched.calls[0].at.Equal(wantAt) {
		t.Errorf("reminder at %v, want %v", f.sched.calls[0].at, wantAt)
	}
}

func TestStepReminderSkipsWhenFlagAlreadySet(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusConfirmed)
	b.StartTime = time.Now().Add(47 * time.Hour) // task woke inside its window
	b.EndTime = b.StartTime.Add(time.Hour)
	f := newFixture(b)
	f.repo.reminderWon = false // sweep got there first

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepReminder)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.notifier.userTitles) != 0 || len(f.notifier.practitionerTitles) != 0 {
		t.Error("reminder resent after losing the flag race")
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepRoomSetup {
		t.Errorf("scheduled = %+v, want room setup regardless", f.sched.calls)
	}
}

func TestStepReminderSendsBothAudiences(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusConfirmed)
	b.StartTime = time.Now().Add(47 * time.Hour) // task woke inside its window
	b.EndTime = b.StartTime.Add(time.Hour)
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepReminder)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.notifier.userTitles) != 1 || len(f.notifier.practitionerTitles) != 1 {
		t.Errorf("reminders = %d user / %d practitioner, want 1/1",
			len(f.notifier.userTitles), len(f.notifier.practitionerTitles))
	}
	if len(f.repo.markedFields) != 2 {
		t.Errorf("marked %d reminder flags, want 2", len(f.repo.markedFields))
	}
}

func TestStepRoomSetupCreatesRoomOnce(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusConfirmed)
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepRoomSetup)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if f.rooms.created != 1 {
		t.Errorf("created %d rooms, want 1", f.rooms.created)
	}
	if f.repo.booking.RoomID == "" {
		t.Error("room not linked to booking")
	}

	// Replay: room exists now, no second creation.
	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepRoomSetup)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if f.rooms.created != 1 {
		t.Errorf("replay created another room: %d total", f.rooms.created)
	}
}

func TestStepRoomSetupFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusConfirmed)
	f := newFixture(b)
	f.rooms.createErr = errors.New("provisioner down")

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepRoomSetup)); err != nil {
		t.Fatalf("room failure must not fail the step: %v", err)
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepSessionStart {
		t.Errorf("scheduled = %+v, want session start", f.sched.calls)
	}
}

func TestStepSessionStartTransitions(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusConfirmed)
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepSessionStart)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.status.transitions) != 1 || f.status.transitions[0] != models.BookingStatusInProgress {
		t.Errorf("transitions = %v, want [in_progress]", f.status.transitions)
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepAttendanceCheck {
		t.Errorf("scheduled = %+v, want attendance check", f.sched.calls)
	}
	wantAt := b.StartTime.Add(15 * time.Minute)
	if !f.sched.calls[0].at.Equal(wantAt) {
		t.Errorf("attendance check at %v, want start + grace %v", f.sched.calls[0].at, wantAt)
	}
}

func TestAttendanceCheckPresentClient(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusInProgress)
	b.RoomID = "room-b1"
	f := newFixture(b)
	f.rooms.joined = true

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepAttendanceCheck)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepComplete {
		t.Fatalf("scheduled = %+v, want completion", f.sched.calls)
	}
	if !f.sched.calls[0].at.Equal(b.EndTime) {
		t.Errorf("completion at %v, want session end %v", f.sched.calls[0].at, b.EndTime)
	}
	if len(f.notifier.userTitles) != 0 {
		t.Error("present client got a recovery notification")
	}
}

func TestAttendanceCheckAbsentClientEntersRecovery(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusInProgress)
	b.RoomID = "room-b1"
	f := newFixture(b)
	f.rooms.joined = false

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepAttendanceCheck)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.notifier.userTitles) != 1 {
		t.Errorf("recovery notifications = %d, want 1", len(f.notifier.userTitles))
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepRecoveryCheck {
		t.Fatalf("scheduled = %+v, want recovery check", f.sched.calls)
	}
}

func TestRecoveryCheckClientRecovered(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusInProgress)
	b.RoomID = "room-b1"
	f := newFixture(b)
	f.rooms.joined = true

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepRecoveryCheck)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.status.transitions) != 0 {
		t.Errorf("recovered client still transitioned: %v", f.status.transitions)
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepComplete {
		t.Errorf("scheduled = %+v, want resumed completion", f.sched.calls)
	}
}

func TestRecoveryCheckMarksNoShow(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusInProgress)
	b.RoomID = "room-b1"
	f := newFixture(b)
	f.rooms.joined = false

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepRecoveryCheck)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.status.transitions) != 1 || f.status.transitions[0] != models.BookingStatusNoShow {
		t.Errorf("transitions = %v, want [no_show]", f.status.transitions)
	}
	if len(f.sched.calls) != 0 {
		t.Errorf("no-show scheduled successors: %+v", f.sched.calls)
	}
	if len(f.rooms.ended) != 1 {
		t.Errorf("room not torn down after no-show")
	}
	if len(f.notifier.userTitles) != 1 {
		t.Errorf("no-show reschedule notice not sent")
	}
}

func TestStepCompleteTransitionsAndSchedulesEarnings(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusInProgress)
	b.RoomID = "room-b1"
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepComplete)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.status.transitions) != 1 || f.status.transitions[0] != models.BookingStatusCompleted {
		t.Errorf("transitions = %v, want [completed]", f.status.transitions)
	}
	if len(f.rooms.ended) != 1 {
		t.Error("room not ended on completion")
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepEarnings {
		t.Errorf("scheduled = %+v, want earnings", f.sched.calls)
	}
}

func TestStepEarningsRecordsAndSchedulesSurvey(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusCompleted)
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepEarnings)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.earnings.recorded) != 1 {
		t.Errorf("recorded %d earnings, want 1", len(f.earnings.recorded))
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepSurvey {
		t.Errorf("scheduled = %+v, want survey", f.sched.calls)
	}
}

func TestStepEarningsRedeliveryRecordsOnce(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusCompleted)
	f := newFixture(b)

	// The queue delivers at least once; a crash after the write and before
	// the ack replays the whole step.
	for i := 0; i < 2; i++ {
		if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepEarnings)); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}
	if len(f.earnings.recorded) != 1 {
		t.Errorf("earnings recorded %d times for one booking, want 1", len(f.earnings.recorded))
	}
	if len(f.sched.calls) != 2 || f.sched.calls[1].step != StepSurvey {
		t.Errorf("scheduled = %+v, want the survey scheduled on each delivery", f.sched.calls)
	}
}

func TestAttendanceCheckClassBookingNeverNoShows(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusInProgress)
	b.ClassSessionID = "cs1" // shared room lives on the class session
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepAttendanceCheck)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if f.rooms.created != 0 {
		t.Errorf("created %d private rooms for a class-session booking, want 0", f.rooms.created)
	}
	if len(f.notifier.userTitles) != 0 {
		t.Error("class attendee got a recovery notification")
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepComplete {
		t.Fatalf("scheduled = %+v, want completion, never the no-show path", f.sched.calls)
	}
}

func TestRecoveryCheckClassBookingResumesCompletion(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusInProgress)
	b.ClassSessionID = "cs1"
	f := newFixture(b)
	f.rooms.joined = false

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepRecoveryCheck)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.status.transitions) != 0 {
		t.Errorf("class attendee transitioned: %v, want no no_show", f.status.transitions)
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepComplete {
		t.Errorf("scheduled = %+v, want resumed completion", f.sched.calls)
	}
}

func TestStepReminderDefersAfterReschedule(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusConfirmed)
	b.StartTime = time.Now().Add(120 * time.Hour) // moved out after the task was enqueued
	b.EndTime = b.StartTime.Add(time.Hour)
	f := newFixture(b)

	if err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepReminder)); err != nil {
		t.Fatalf("HandleAdvance: %v", err)
	}
	if len(f.repo.markedFields) != 0 {
		t.Errorf("premature wake consumed %d reminder flags, want 0", len(f.repo.markedFields))
	}
	if len(f.notifier.userTitles) != 0 || len(f.notifier.practitionerTitles) != 0 {
		t.Error("premature wake sent reminders for the old schedule")
	}
	if len(f.sched.calls) != 1 || f.sched.calls[0].step != StepRoomSetup {
		t.Fatalf("scheduled = %+v, want room setup only", f.sched.calls)
	}
	wantAt := b.StartTime.Add(-15 * time.Minute)
	if !f.sched.calls[0].at.Equal(wantAt) {
		t.Errorf("room setup at %v, want the new start minus lead %v", f.sched.calls[0].at, wantAt)
	}
}

func TestStepEarningsFailureRetries(t *testing.T) {
	t.Parallel()

	b := scheduledBooking(models.BookingStatusCompleted)
	f := newFixture(b)
	f.earnings.recordErr = errors.New("mongo unavailable")

	err := f.engine.HandleAdvance(context.Background(), advanceTask(t, "b1", StepEarnings))
	if err == nil {
		t.Fatal("expected retryable error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Error("persistence failure must not skip retry")
	}
	if len(f.sched.calls) != 0 {
		t.Errorf("failed earnings step scheduled survey anyway: %+v", f.sched.calls)
	}
}
