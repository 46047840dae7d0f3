package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/center-ops-api/internal/dispatch"
	"github.com/noah-isme/center-ops-api/internal/handler"
	"github.com/noah-isme/center-ops-api/internal/middleware"
	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/reconciler"
	"github.com/noah-isme/center-ops-api/internal/service"
	"github.com/noah-isme/center-ops-api/internal/store"
	"github.com/noah-isme/center-ops-api/pkg/cache"
	"github.com/noah-isme/center-ops-api/pkg/config"
	"github.com/noah-isme/center-ops-api/pkg/database"
	"github.com/noah-isme/center-ops-api/pkg/jobs"
	"github.com/noah-isme/center-ops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/center-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/center-ops-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()

	backing, err := openStore(ctx, cfg)
	if err != nil {
		logr.Sugar().Fatalw("failed to open store", "driver", cfg.Store.Driver, "error", err)
	}

	bus := store.NewBus(backing, cfg.Jobs.DispatchBuffer)
	bus.SetRecorder(metrics)
	exec := store.NewExecutor(bus, logr)
	exec.SetRecorder(metrics)

	var salaryCache *cache.SalaryCache
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, salary cache disabled", "error", err)
	} else {
		salaryCache = cache.NewSalaryCache(client, 0)
	}

	validate := validator.New()
	salaries := service.NewSalaryService(bus, exec, salaryCache, service.SalaryConfig{
		TeachingRate:     cfg.Billing.TeachingRate,
		WorkDaysPerMonth: cfg.Billing.WorkDaysPerMonth,
		Positions:        positionTable(cfg.Salary.Positions),
		Default: service.PositionRate{
			Multiplier:        cfg.Salary.Default.Multiplier,
			DefaultBaseSalary: cfg.Salary.Default.DefaultBaseSalary,
		},
	}, validate, logr)
	staff := service.NewStaffService(bus, validate, logr)

	dispatcher := buildDispatcher(cfg, bus, exec, salaries, metrics, logr)
	go dispatcher.Run(ctx, bus.Events())

	scheduler := jobs.NewScheduler(logr)
	if cfg.Jobs.DailyRecomputeEnabled {
		daily := reconciler.NewDailyRecompute(bus, exec, cfg.Statuses, logr)
		scheduler.Register(jobs.Task{
			Name:     "daily-recompute",
			Interval: cfg.Jobs.DailyRecomputeInterval,
			Run: func(ctx context.Context) error {
				_, err := daily.Run(ctx)
				return err
			},
		})
	}
	if cfg.Jobs.MonthlySalaryEnabled {
		scheduler.Register(jobs.Task{
			Name:     "monthly-salary",
			Interval: cfg.Jobs.MonthlySalaryInterval,
			Run: func(ctx context.Context) error {
				_, err := salaries.RunMonthly(ctx)
				return err
			},
		})
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	router := buildRouter(cfg, logr, metrics, salaries, staff)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "store", cfg.Store.Driver)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(cfg.Store.BatchLimit, cfg.Store.InLimit), nil
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(db, cfg.Store.BatchLimit, cfg.Store.InLimit)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	}
}

func buildDispatcher(cfg *config.Config, bus *store.Bus, exec *store.Executor, salaries *service.SalaryService, metrics *service.MetricsService, logr *zap.Logger) *dispatch.Dispatcher {
	d := dispatch.New(dispatch.Config{
		Workers: cfg.Jobs.DispatchWorkers,
		Buffer:  cfg.Jobs.DispatchBuffer,
	}, metrics, logr)

	classes := reconciler.NewClassReconciler(bus, exec, logr)
	sessions := reconciler.NewSessionReconciler(bus, exec, logr)
	students := reconciler.NewStudentReconciler(bus, exec, cfg.Statuses, cfg.Billing, logr)
	attendance := reconciler.NewAttendanceReconciler(bus, exec, cfg.Attendance, logr)
	contracts := reconciler.NewContractReconciler(bus, logr)
	holidays := reconciler.NewHolidayReconciler(bus, exec, logr)
	rewards := reconciler.NewRewardReconciler(bus, salaries, logr)

	d.Register("class", models.CollectionClasses, classes)
	d.Register("session", models.CollectionSessions, sessions)
	d.Register("session-completion", models.CollectionSessions,
		dispatch.HandlerFunc(attendance.HandleSessionCompletion), store.ChangeUpdate)
	d.Register("student", models.CollectionStudents, students)
	d.Register("attendance", models.CollectionAttendance,
		dispatch.HandlerFunc(attendance.HandleBatch))
	d.Register("student-attendance", models.CollectionStudentAttendance,
		dispatch.HandlerFunc(attendance.HandleStudent))
	d.Register("contract", models.CollectionContracts, contracts)
	d.Register("holiday", models.CollectionHolidays, holidays)
	d.Register("reward", models.CollectionRewardsPenalties, rewards, store.ChangeCreate)

	return d
}

func buildRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, salaries *service.SalaryService, staff *service.StaffService) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	salaryHandler := handler.NewSalaryHandler(salaries)
	staffHandler := handler.NewStaffHandler(staff)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
		finance := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleAccountant)

		api.POST("/salaries/recompute", finance, salaryHandler.Recompute)
		api.POST("/salaries/recompute-all", finance, salaryHandler.RecomputeAll)
		api.GET("/salaries", finance, salaryHandler.List)
		api.GET("/salaries/export", finance, salaryHandler.Export)
		api.POST("/staff/:id/migrate", admin, staffHandler.Migrate)
	}

	return r
}

func positionTable(src map[string]config.PositionRate) map[string]service.PositionRate {
	out := make(map[string]service.PositionRate, len(src))
	for position, rate := range src {
		out[position] = service.PositionRate{
			Multiplier:        rate.Multiplier,
			DefaultBaseSalary: rate.DefaultBaseSalary,
		}
	}
	return out
}
