package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-amazonpay/app/amazonpay"
	"github.com/vibast-solutions/ms-go-amazonpay/app/controller"
	gatewaygrpc "github.com/vibast-solutions/ms-go-amazonpay/app/grpc"
	"github.com/vibast-solutions/ms-go-amazonpay/app/ipn"
	"github.com/vibast-solutions/ms-go-amazonpay/app/metrics"
	"github.com/vibast-solutions/ms-go-amazonpay/app/queue"
	"github.com/vibast-solutions/ms-go-amazonpay/app/repository"
	"github.com/vibast-solutions/ms-go-amazonpay/app/service"
	"github.com/vibast-solutions/ms-go-amazonpay/app/types"
	"github.com/vibast-solutions/ms-go-amazonpay/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const healthRefreshInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP (Echo) server with the IPN webhook and order endpoints, and the gRPC health server.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	gw := mustCreateGatewayService()
	defer gw.cleanup()
	cfg := gw.cfg

	ipnController := controller.NewIPNController(gw.service)
	orderController := controller.NewOrderController(gw.service)
	healthServer := gatewaygrpc.NewServer(gw.checks)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(cfg, ipnController, orderController, echoInternalAuthMiddleware)
	grpcSrv, lis := setupGRPCServer(cfg, healthServer, grpcInternalAuthMiddleware)

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go refreshHealth(healthCtx, healthServer)

	pollCtx, stopPoll := context.WithCancel(context.Background())
	defer stopPoll()
	pollDone := make(chan struct{})
	if gw.inProcessPoll {
		if cfg.Polling.WorkerInterval <= 0 {
			logrus.WithField("job", "poll").Fatal("invalid worker interval")
		}
		logrus.WithField("interval", cfg.Polling.WorkerInterval.String()).Info("Starting in-process poll worker")
		go func() {
			defer close(pollDone)
			workerLoop(pollCtx, "poll", cfg.Polling.WorkerInterval, func(ctx context.Context) error {
				return runPollBatch(gw.service, ctx)
			})
		}()
	} else {
		close(pollDone)
	}

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	stopHealth()
	stopPoll()
	<-pollDone
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func refreshHealth(ctx context.Context, healthServer *gatewaygrpc.Server) {
	ticker := time.NewTicker(healthRefreshInterval)
	defer ticker.Stop()

	healthServer.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthServer.Refresh(ctx)
		}
	}
}

func setupHTTPServer(
	cfg *config.Config,
	ipnController *controller.IPNController,
	orderController *controller.OrderController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			if v.RequestID != "" {
				fields["request_id"] = v.RequestID
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(metrics.Middleware())

	e.GET("/health", orderController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Public route, authenticated by the SNS message signature only.
	webhooks := e.Group("/webhooks/amazon-pay")
	webhooks.POST("/ipn", ipnController.HandleNotification, echomiddleware.BodyLimit(cfg.IPN.MaxBodyBytes))

	orders := e.Group("/orders",
		echomiddleware.CORS(),
		requireRequestID(),
		internalAuthMiddleware.RequireInternalAccess(cfg.App.ServiceName),
	)
	orders.GET("/:id/payment", orderController.GetPaymentState)
	orders.POST("/:id/checkout/prepare", orderController.PrepareCheckout)
	orders.POST("/:id/checkout/complete", orderController.CompleteCheckout)
	orders.POST("/:id/refunds", orderController.RefundOrder)
	orders.POST("/:id/reconcile", orderController.ReconcileOrder)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	healthServer *gatewaygrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			gatewaygrpc.RecoveryInterceptor(),
			gatewaygrpc.RequestIDInterceptor(),
			gatewaygrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(cfg.App.ServiceName),
		),
	)
	healthServer.Register(grpcSrv)

	return grpcSrv, lis
}

type gateway struct {
	cfg           *config.Config
	service       *service.GatewayService
	checks        map[string]gatewaygrpc.Check
	inProcessPoll bool
	cleanup       func()
}

func mustCreateGatewayService() *gateway {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	metrics.Register()

	db := mustOpenDatabase(cfg)

	dialect := repository.DialectForDriver(cfg.Database.Driver)
	if cfg.Database.AutoMigrate {
		if err := repository.EnsureSchema(context.Background(), db, dialect); err != nil {
			_ = db.Close()
			logrus.WithError(err).Fatal("Failed to ensure database schema")
		}
	}
	orderRepo := repository.NewOrderRepository(db, dialect)
	refundRepo := repository.NewOrderRefundRepository(db, dialect)
	noteRepo := repository.NewOrderNoteRepository(db, dialect)
	stockRepo := repository.NewStockRepository(db, dialect)
	messageRepo := repository.NewIPNMessageRepository(db, dialect)

	checks := map[string]gatewaygrpc.Check{
		"database": db.PingContext,
	}
	closers := []func() error{db.Close}

	pollQueue := newPollQueue(cfg.Redis)
	if pollQueue.check != nil {
		checks["redis"] = pollQueue.check
	}
	if pollQueue.close != nil {
		closers = append(closers, pollQueue.close)
	}

	privateKey, err := loadPrivateKey(cfg.AmazonPay)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load Amazon Pay private key")
	}
	apiClient, err := amazonpay.NewClient(amazonpay.Config{
		Region:      cfg.AmazonPay.Region,
		Sandbox:     cfg.AmazonPay.Sandbox,
		PublicKeyID: cfg.AmazonPay.PublicKeyID,
		PrivateKey:  privateKey,
		HTTPTimeout: cfg.AmazonPay.HTTPTimeout,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create Amazon Pay client")
	}

	fetcher := ipn.NewCachingFetcher(ipn.NewHTTPCertificateFetcher(cfg.IPN.CertFetchTimeout), cfg.IPN.CertCacheTTL)
	validator := ipn.NewValidator(ipn.NewVerifier(fetcher))
	poller := service.NewPollScheduler(pollQueue.queue, cfg.Polling.Delay)

	gatewayService := service.NewGatewayService(
		apiClient,
		orderRepo,
		refundRepo,
		noteRepo,
		stockRepo,
		messageRepo,
		validator,
		poller,
		service.Config{
			GatewayID:         cfg.App.GatewayID,
			MerchantStoreName: cfg.AmazonPay.MerchantStoreName,
			PaymentCapture:    cfg.AmazonPay.PaymentCapture,
			AuthorizationMode: cfg.AmazonPay.AuthorizationMode,
			PollBatchSize:     cfg.Polling.BatchSize,
		},
	)

	cleanup := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logrus.WithError(err).Warn("Failed to close resource")
			}
		}
	}

	return &gateway{
		cfg:           cfg,
		service:       gatewayService,
		checks:        checks,
		inProcessPoll: pollQueue.inProcess,
		cleanup:       cleanup,
	}
}

type pollQueueSetup struct {
	queue queue.Queue
	// inProcess is set when jobs live in this process only and must be fired by it.
	inProcess bool
	check     gatewaygrpc.Check
	close     func() error
}

func newPollQueue(cfg config.RedisConfig) pollQueueSetup {
	if cfg.Addr == "" {
		logrus.Warn("REDIS_ADDR is empty, poll jobs are kept in memory, fired by serve and lost on restart")
		return pollQueueSetup{queue: queue.NewMemoryQueue(), inProcess: true}
	}

	redisClient := queue.NewRedisClient(cfg.Addr, cfg.Password, cfg.DB)
	return pollQueueSetup{
		queue: queue.NewRedisQueue(redisClient, cfg.PollKey),
		check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		close: redisClient.Close,
	}
}

func loadPrivateKey(cfg config.AmazonPayConfig) ([]byte, error) {
	if cfg.PrivateKeyPath != "" {
		return os.ReadFile(cfg.PrivateKeyPath)
	}
	return []byte(strings.ReplaceAll(cfg.PrivateKeyPEM, `\n`, "\n")), nil
}
