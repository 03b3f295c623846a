package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/infrastructure/persistence"
	"github.com/groveops/grove/modules/tenure/presentation/controllers"
	"github.com/groveops/grove/modules/tenure/services"
	"github.com/groveops/grove/pkg/composables"
	"github.com/groveops/grove/pkg/configuration"
	"github.com/groveops/grove/pkg/eventbus"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if conf.MigrateOnStart {
		if err := persistence.RunMigrations(ctx, conf.Database.Opts, logger); err != nil {
			logger.WithError(err).Fatal("migrations failed")
		}
	}

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		logger.WithError(err).Fatal("failed to create connection pool")
	}
	defer pool.Close()

	bus := eventbus.NewEventPublisher(logger)
	subscribeAuditLog(bus, logger)

	intervals := persistence.NewIntervalRepository()
	checkIns := persistence.NewCheckInRepository()
	snapshots := persistence.NewSnapshotRepository()
	milestones := persistence.NewMilestoneRepository()

	tenureService := services.NewTenureService(intervals)
	checkInService := services.NewCheckInService(checkIns, bus)
	resolver := services.NewPendingChangeResolver(snapshots)
	snapshotService := services.NewSnapshotService(snapshots, intervals, checkIns, milestones, resolver)
	executionService := services.NewExecutionService(snapshots, tenureService, checkIns, milestones, bus)

	router := mux.NewRouter()
	router.Use(provideAppContext(pool, logger))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if conf.Prometheus.Enabled {
		router.Handle(conf.Prometheus.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	for _, c := range []interface{ Register(*mux.Router) }{
		controllers.NewTenureAPIController(tenureService),
		controllers.NewCheckInAPIController(checkInService),
		controllers.NewChangeAPIController(snapshotService, executionService),
	} {
		c.Register(router)
	}

	srv := &http.Server{
		Addr:              conf.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("address", conf.Address).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

// provideAppContext injects the pool and logger into every request context so
// services can open transactions without holding a pool reference themselves.
func provideAppContext(pool *pgxpool.Pool, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithPool(r.Context(), pool)
			ctx = composables.WithLogger(ctx, logrus.NewEntry(logger))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func subscribeAuditLog(bus eventbus.EventBus, logger *logrus.Logger) {
	bus.Subscribe(func(ev changeset.ExecutedEvent) {
		logger.WithFields(logrus.Fields{
			"snapshot_id":    ev.SnapshotID,
			"subject_id":     ev.SubjectID,
			"executed_by":    ev.ExecutedByID,
			"effective_date": ev.EffectiveDate.Format("2006-01-02"),
		}).Info("change snapshot executed")
	})
	bus.Subscribe(func(ev checkin.FinalizedEvent) {
		logger.WithFields(logrus.Fields{
			"check_in_id":  ev.CheckInID,
			"subject_id":   ev.SubjectID,
			"finalized_by": ev.FinalizedByID,
		}).Info("check-in finalized")
	})
}
