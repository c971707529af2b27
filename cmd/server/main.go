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

	"github.com/shepherdhq/shepherd/migrations"
	iamhandlers "github.com/shepherdhq/shepherd/modules/iam/handlers"
	"github.com/shepherdhq/shepherd/modules/iam/infrastructure/persistence"
	"github.com/shepherdhq/shepherd/modules/iam/presentation/controllers"
	iammiddleware "github.com/shepherdhq/shepherd/modules/iam/presentation/middleware"
	"github.com/shepherdhq/shepherd/modules/iam/services"
	"github.com/shepherdhq/shepherd/pkg/configuration"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
	"github.com/shepherdhq/shepherd/pkg/metrics"
	"github.com/shepherdhq/shepherd/pkg/middleware"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	if err := migrations.Up(context.Background(), conf.Database.Opts); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	bus := eventbus.NewEventPublisher(logger)

	orgUnitRepo := persistence.NewOrgUnitRepository()
	roleRepo := persistence.NewRoleRepository()
	permissionRepo := persistence.NewPermissionRepository()
	assignmentRepo := persistence.NewAssignmentRepository()
	auditLogRepo := persistence.NewAuditLogRepository()

	hierarchy := services.NewHierarchyService(orgUnitRepo)
	access := services.NewAccessService(assignmentRepo, orgUnitRepo, hierarchy, bus)
	sessions := services.NewSessionService(assignmentRepo)
	orgUnits := services.NewOrgUnitService(orgUnitRepo, hierarchy, access, assignmentRepo, bus)
	roles := services.NewRoleService(roleRepo, permissionRepo, assignmentRepo, bus)
	perms := services.NewPermissionService(permissionRepo, roleRepo)
	assignments := services.NewAssignmentService(assignmentRepo, orgUnitRepo, roleRepo, access, bus)
	audit := services.NewAuditService(auditLogRepo)

	iamhandlers.NewAuditHandler(pool, auditLogRepo, logger).Register(bus)

	router := mux.NewRouter()
	router.Use(
		middleware.WithPool(pool),
		middleware.RequestParams(),
		middleware.WithLogger(logger),
	)

	if conf.Prometheus.Enabled {
		metrics.NewPrometheusController(conf.Prometheus.Path).Register(router)
	}

	// Writes open their own transactions via composables.InTenantTx, so a
	// failed operation rolls back in full instead of riding a request-wide
	// transaction that commits regardless.
	api := router.PathPrefix("/").Subrouter()
	api.Use(
		iammiddleware.Authorize(iammiddleware.HeaderPrincipalResolver{}, sessions),
	)
	controllers.NewIAMAPIController(orgUnits, roles, perms, assignments, access, audit).Register(api)

	srv := &http.Server{
		Addr:         conf.SocketAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Listening on: %s\n", conf.SocketAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-shutdownCtx.Done()
	log.Println("shutting down")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	configuration.Use().Unload()
}
