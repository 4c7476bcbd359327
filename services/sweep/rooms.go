package sweep

import (
	"context"
	"time"

	"sereno/database/repository"
	"sereno/services/room"

	"go.uber.org/zap"
)

// RoomSweeper reconciles virtual bookings whose room creation failed at the
// lifecycle room-setup step. It re-reads each candidate before acting so a
// room created between the query and the fix is not duplicated; the SetRoom
// compare-and-set catches the remaining race.
type RoomSweeper struct {
	Bookings repository.BookingRepository
	Rooms    room.RoomService
	Logger   *zap.Logger
}

// Only bookings created in the last week are reconciled; anything older with
// no room is stale data, not a transient provisioning failure.
const roomLookback = 7 * 24 * time.Hour

// Run executes one reconciliation tick and reports how many rooms it created.
func (s *RoomSweeper) Run(ctx context.Context) (int, error) {
	candidates, err := s.Bookings.FindVirtualWithoutRoom(ctx, time.Now().Add(-roomLookback))
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range candidates {
		b, err := s.Bookings.GetByID(ctx, candidates[i].ID)
		if err != nil {
			s.Logger.Error("room sweep re-read failed", zap.String("bookingId", candidates[i].ID), zap.Error(err))
			continue
		}
		if b.RoomID != "" || b.IsTerminal() {
			continue
		}

		roomID, err := s.Rooms.CreateRoom(ctx, b)
		if err != nil {
			s.Logger.Warn("room sweep creation failed, will retry next tick",
				zap.String("bookingId", b.ID), zap.Error(err))
			continue
		}
		linked, err := s.Bookings.SetRoom(ctx, b.ID, roomID)
		if err != nil {
			s.Logger.Error("room sweep link failed", zap.String("bookingId", b.ID), zap.Error(err))
			continue
		}
		if !linked {
			// Lost the race to the lifecycle step; drop the orphan room.
			if err := s.Rooms.EndRoom(ctx, roomID); err != nil {
				s.Logger.Warn("orphan room teardown failed", zap.String("roomId", roomID), zap.Error(err))
			}
			continue
		}
		created++
	}
	if created > 0 {
		s.Logger.Info("room sweep reconciled bookings", zap.Int("created", created))
	}
	return created, nil
}
