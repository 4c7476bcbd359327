package handlers

import (
	"sereno/database/repository"
	booking "sereno/services/booking"
	"sereno/services/lifecycle"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandlerBundle carries the services the HTTP layer dispatches to.
type HandlerBundle struct {
	Materializer booking.MaterializerService
	Bookings     booking.BookingService
	Orders       repository.OrderRepository
	BookingRepo  repository.BookingRepository
	Engine       *lifecycle.Engine
	Queue        *asynq.Client
	Logger       *zap.Logger
}
