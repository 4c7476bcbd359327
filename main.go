// File: sereno/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sereno/config"
	"sereno/cron"
	"sereno/database"
	bookingRepoPkg "sereno/database/repository/booking"
	catalogRepoPkg "sereno/database/repository/catalog"
	contactRepoPkg "sereno/database/repository/contact"
	earningsRepoPkg "sereno/database/repository/earnings"
	orderRepoPkg "sereno/database/repository/order"
	"sereno/handlers"
	"sereno/routes"
	booking "sereno/services/booking"
	"sereno/services/lifecycle"
	"sereno/services/notification"
	"sereno/services/room"
	"sereno/services/sweep"
	"sereno/utils"

	"github.com/stripe/stripe-go/v76"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitLifecycleQueueClient()
	utils.FirebaseInit()
	utils.StartHealthMonitor(utils.GetCacheClient(), utils.GetLifecycleQueueClient(), database.MongoClient)
	stripe.Key = config.AppConfig.StripeKey

	// repositories.
	bookingRepo := bookingRepoPkg.NewMongoBookingRepo()
	orderRepo := orderRepoPkg.NewMongoOrderRepo()
	catalogRepo := catalogRepoPkg.NewMongoCatalogRepo()
	earningsRepo := earningsRepoPkg.NewMongoEarningsRepo()
	contactRepo := contactRepoPkg.NewMongoContactRepo()

	// services.
	notifier, err := notification.NewDefaultNotificationService(contactRepo)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize notification service: %v", err)
	}
	rooms := room.NewHTTPRoomService(config.AppConfig.RoomServiceURL, config.AppConfig.RoomServiceAPIKey, logger)

	statusService := &booking.DefaultStatusService{
		Repo:           bookingRepo,
		MinNoticeHours: config.AppConfig.MinCancelNoticeHours,
		Logger:         logger,
	}
	earningsService := &booking.DefaultEarningsService{
		Repo:           earningsRepo,
		FundsLock:      time.Duration(config.AppConfig.FundsLockHours) * time.Hour,
		MinPayoutCents: config.AppConfig.MinPayoutCents,
		Logger:         logger,
	}
	materializer := &booking.DefaultMaterializer{
		Bookings: bookingRepo,
		Orders:   orderRepo,
		Catalog:  catalogRepo,
		Rooms:    rooms,
		Notifier: notifier,
		Logger:   logger,
	}
	bookingService := &booking.DefaultBookingService{
		Repo:   bookingRepo,
		Status: statusService,
		Logger: logger,
	}

	queueClient := cron.NewQueueClient()
	defer queueClient.Close()
	scheduler := &lifecycle.AsynqScheduler{Client: queueClient}

	engine := lifecycle.NewEngine(bookingRepo, statusService, earningsService, rooms, notifier, scheduler, logger)

	// background workers.
	cron.InitWorker(&cron.Workers{
		Engine: engine,
		Reminders: &sweep.ReminderSweeper{
			Bookings: bookingRepo,
			Notifier: notifier,
			Gate:     &sweep.RedisGate{Client: utils.GetCacheClient()},
			Logger:   logger,
		},
		Completion: &sweep.CompletionSweeper{
			Bookings: bookingRepo,
			Catalog:  catalogRepo,
			Status:   statusService,
			Schedule: scheduler,
			Notifier: notifier,
			Logger:   logger,
		},
		Rooms: &sweep.RoomSweeper{
			Bookings: bookingRepo,
			Rooms:    rooms,
			Logger:   logger,
		},
		Reschedule: &sweep.RescheduleFanout{
			Bookings: bookingRepo,
			Catalog:  catalogRepo,
			Notifier: notifier,
			Logger:   logger,
		},
		Earnings: earningsService,
		Logger:   logger,
	})
	cron.InitScheduler(logger)

	// HTTP surface.
	hb := &handlers.HandlerBundle{
		Materializer: materializer,
		Bookings:     bookingService,
		Orders:       orderRepo,
		BookingRepo:  bookingRepo,
		Engine:       engine,
		Queue:        queueClient,
		Logger:       logger,
	}
	router := routes.SetupRouter(hb)

	srv := &http.Server{
		Addr:         ":" + config.AppConfig.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Sugar().Infof("main: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server error: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("main: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: forced shutdown: %v", err)
	}
	logger.Info("main: bye")
}
