package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/api"
	"github.com/xiaowoniu928/hetzner-web/internal/api/middleware"
	"github.com/xiaowoniu928/hetzner-web/internal/event"
	"github.com/xiaowoniu928/hetzner-web/internal/metrics"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/repository/file"
	"github.com/xiaowoniu928/hetzner-web/internal/repository/postgres"
	"github.com/xiaowoniu928/hetzner-web/internal/scheduler"
	schedulerjobs "github.com/xiaowoniu928/hetzner-web/internal/scheduler/jobs"
	"github.com/xiaowoniu928/hetzner-web/internal/service"
	"github.com/xiaowoniu928/hetzner-web/internal/sse"
	"github.com/xiaowoniu928/hetzner-web/pkg/cloudflare"
	"github.com/xiaowoniu928/hetzner-web/pkg/hetzner"
	systemlog "github.com/xiaowoniu928/hetzner-web/pkg/logger"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Storage struct {
		Driver     string `mapstructure:"driver"`
		DataDir    string `mapstructure:"data_dir"`
		ConfigPath string `mapstructure:"config_path"`
	} `mapstructure:"storage"`
	Database struct {
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
	} `mapstructure:"database"`
	Log struct {
		Level    string `mapstructure:"level"`
		Encoding string `mapstructure:"encoding"`
	} `mapstructure:"log"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
	Debug struct {
		PprofEnabled bool `mapstructure:"pprof_enabled"`
	} `mapstructure:"debug"`
}

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheck())
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	logger, logStore, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync() //nolint:errcheck

	isDebugMode := strings.EqualFold(cfg.App.Env, "development")
	if !isDebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	configRepo := file.NewConfigStore(cfg.Storage.ConfigPath)
	watchdogCfg, err := configRepo.Load(context.Background())
	if err != nil {
		logger.Fatal("load watchdog config failed",
			zap.String("path", cfg.Storage.ConfigPath),
			zap.Error(err),
		)
	}
	if watchdogCfg.Hetzner.APIToken == "" {
		logger.Fatal("hetzner.api_token missing from watchdog config",
			zap.String("path", cfg.Storage.ConfigPath),
		)
	}

	stateRepo, settingsRepo, closeStorage, err := newStorage(context.Background(), cfg)
	if err != nil {
		logger.Fatal("init storage failed", zap.Error(err))
	}
	defer closeStorage()

	cloud := hetzner.New(watchdogCfg.Hetzner.APIToken)
	records := cloudflare.New()

	eventBus := event.NewBus()
	sseHub := sse.NewHub(logger)
	sseHub.SubscribeBus(eventBus)
	defer sseHub.Close()

	notifier := service.NewNotificationService(configRepo, logger)
	dnsSvc := service.NewDNSService(cloud, configRepo, records, eventBus, logger)
	rebuildSvc := service.NewRebuildService(cloud, configRepo, notifier, dnsSvc, eventBus, logger)
	collectorSvc := service.NewCollectorService(cloud, stateRepo, eventBus, logger)
	reportSvc := service.NewReportService(cloud, stateRepo, configRepo, settingsRepo, collectorSvc, logger)
	alertSvc := service.NewAlertService(cloud, configRepo, notifier, rebuildSvc, eventBus, logger)
	provisionSvc := service.NewProvisionService(cloud, configRepo, dnsSvc, logger)
	botSvc := service.NewBotService(cloud, configRepo, reportSvc, rebuildSvc, dnsSvc, provisionSvc, notifier, logger)

	cronRunner := scheduler.NewScheduler(scheduler.Deps{
		SnapshotJob:    schedulerjobs.NewSnapshotJob(collectorSvc, logger),
		MonitorJob:     schedulerjobs.NewMonitorJob(alertSvc, configRepo, logger),
		ReportJob:      schedulerjobs.NewReportJob(reportSvc, configRepo, notifier, logger),
		MaintenanceJob: schedulerjobs.NewMaintenanceJob(provisionSvc, configRepo, notifier, logger),
	}, logger)
	cronRunner.Start()
	defer func() {
		stopCtx := cronRunner.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(2 * time.Second):
		}
	}()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	go botSvc.Run(runCtx)

	if watchdogCfg.Cloudflare.SyncOnStart {
		go runStartupDNSSync(runCtx, dnsSvc, logger)
	}

	stopMetricsCollector := startMetricsCollector(sseHub, logger)
	defer stopMetricsCollector()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(buildCORSMiddleware(cfg))
	router.Use(middleware.RequestLogger(logger))

	api.RegisterRoutes(router, api.Deps{
		Settings: settingsRepo,
		Reports:  reportSvc,
		Cloud:    cloud,
		Rebuilds: rebuildSvc,
		DNS:      dnsSvc,
		Hub:      sseHub,
		LogStore: logStore,
		Logger:   logger,
	})

	if isDebugMode && cfg.Debug.PprofEnabled {
		registerPprofRoutes(router)
		logger.Info("pprof endpoint enabled", zap.String("path", "/debug/pprof/"))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	logger.Info("watchdog started",
		zap.String("addr", srv.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server exited unexpectedly", zap.Error(err))
		}
		return
	}

	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server failed", zap.Error(err))
	}
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigName("service")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HETZNER_WEB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "HETZNER_WEB_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	// The SSE stream must outlive any fixed write deadline; 0 disables it.
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.config_path", "config.yaml")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("debug.pprof_enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	switch cfg.Storage.Driver {
	case "file":
		if strings.TrimSpace(cfg.Storage.DataDir) == "" {
			return Config{}, errors.New("storage.data_dir is required with the file driver")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			return Config{}, errors.New("database.url is required with the postgres driver")
		}
		if cfg.Database.MaxConns <= 0 {
			return Config{}, errors.New("database.max_conns must be greater than 0")
		}
		if cfg.Database.PingTimeout <= 0 {
			return Config{}, errors.New("database.ping_timeout must be greater than 0")
		}
	default:
		return Config{}, fmt.Errorf("storage.driver must be file or postgres, got %q", cfg.Storage.Driver)
	}

	if strings.TrimSpace(cfg.Storage.ConfigPath) == "" {
		return Config{}, errors.New("storage.config_path is required")
	}

	if len(cfg.CORS.AllowOrigins) == 0 {
		return Config{}, errors.New("cors.allow_origins must not be empty")
	}
	for _, origin := range cfg.CORS.AllowOrigins {
		if strings.TrimSpace(origin) == "*" {
			return Config{}, errors.New("cors.allow_origins must not contain wildcard *")
		}
	}

	return cfg, nil
}

func newLogger(cfg Config) (*zap.Logger, *systemlog.LogStore, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.App.Env, "development") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log.level: %w", err)
		}
	}
	if cfg.Log.Encoding != "" {
		zapCfg.Encoding = cfg.Log.Encoding
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger failed: %w", err)
	}

	logStore := systemlog.NewLogStore(500)
	return logStore.Wrap(logger), logStore, nil
}

// newStorage builds the state and settings repositories for the
// configured driver. The watchdog config document always lives in the
// operator-edited YAML file regardless of driver.
func newStorage(ctx context.Context, cfg Config) (
	repository.StateRepository,
	repository.SettingsRepository,
	func(),
	error,
) {
	if cfg.Storage.Driver == "file" {
		stateRepo := file.NewStateStore(filepath.Join(cfg.Storage.DataDir, "report_state.json"))
		settingsRepo := file.NewSettingsStore(filepath.Join(cfg.Storage.DataDir, "web_config.json"))
		return stateRepo, settingsRepo, func() {}, nil
	}

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return postgres.NewStateRepository(pool), postgres.NewSettingsRepository(pool), pool.Close, nil
}

func newDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database.url failed: %w", err)
	}

	const maxInt32 = int(^uint32(0) >> 1)
	if cfg.Database.MaxConns > maxInt32 {
		return nil, fmt.Errorf("database.max_conns must be <= %d", maxInt32)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated upper bound above.

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.PingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return pool, nil
}

func buildCORSMiddleware(cfg Config) gin.HandlerFunc {
	origins := make([]string, 0, len(cfg.CORS.AllowOrigins))
	for _, origin := range cfg.CORS.AllowOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func registerPprofRoutes(router *gin.Engine) {
	pprofGroup := router.Group("/debug/pprof")
	pprofGroup.GET("/", gin.WrapF(pprof.Index))
	pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
	pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.POST("/symbol", gin.WrapF(pprof.Symbol))
	pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
	pprofGroup.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
	pprofGroup.GET("/block", gin.WrapH(pprof.Handler("block")))
	pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	pprofGroup.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
	pprofGroup.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
}

// runStartupDNSSync points every mapped record at its server's current
// IP once, when the operator enabled sync_on_start.
func runStartupDNSSync(ctx context.Context, dnsSvc *service.DNSService, logger *zap.Logger) {
	syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	updated, skipped, err := dnsSvc.SyncAll(syncCtx)
	if err != nil {
		logger.Warn("startup dns sync failed", zap.Error(err))
		return
	}
	logger.Info("startup dns sync finished",
		zap.Int("updated", updated),
		zap.Int("skipped", skipped),
	)
}

func startMetricsCollector(sseHub *sse.SSEHub, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}

	stopCh := make(chan struct{})

	collect := func() {
		if sseHub != nil {
			metrics.SetSSEClients(sseHub.ConnectedCount())
		}
		if values, err := cpu.Percent(0, false); err == nil && len(values) > 0 {
			metrics.SetHostCPUPercent(values[0])
		} else if err != nil {
			logger.Debug("collect host cpu metric failed", zap.Error(err))
		}
		if stat, err := mem.VirtualMemory(); err == nil {
			metrics.SetHostMemoryPercent(stat.UsedPercent)
		} else {
			logger.Debug("collect host memory metric failed", zap.Error(err))
		}
	}

	collect()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				collect()
			}
		}
	}()

	return func() {
		close(stopCh)
	}
}

func runHealthcheck() int {
	port := 8080
	if raw := os.Getenv("HETZNER_WEB_SERVER_PORT"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			port = parsed
		}
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/healthz", port))
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
