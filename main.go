package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/config"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/consumers"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/controllers/chat"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/controllers/infra"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/controllers/subscription"
	webhookhandlers "github.com/Rogerio-auto/livechat-monorepo-sub010/handlers/webhook"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/routers"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/socket"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 5 * time.Minute
	maxHeaderBytes  = 20 << 20 // 20MB
	shutdownTimeout = 30 * time.Second
)

// app bundles the shared services every role draws from.
type app struct {
	cfg      *config.Config
	store    *services.Store
	resolver *services.InboxResolver
	audit    *services.EventAudit
	meta     *services.MetaClient
	waha     *services.WahaClient
	broker   *queue.Broker
}

func initializeServer(a *app, hub *socket.Hub) *gin.Engine {
	numCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(numCPU)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
		"X-Hub-Signature-256",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(corsConfig))

	// Limit request body size to 100MB
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 100<<20)
		c.Next()
	})

	routers.MapRoutes(router, routers.Deps{
		Webhooks:         webhookhandlers.NewHandler(a.broker, a.resolver, a.audit, a.cfg.MetaVerifyToken, a.cfg.MetaAppSecret, a.cfg.WahaAPIKey),
		Chats:            chat.NewController(a.store, a.broker),
		Subscriptions:    subscription.NewController(a.store),
		Infra:            infra.NewController(a.resolver),
		Hub:              hub,
		WebhookRateLimit: a.cfg.WebhookRateLimit,
		MediaDir:         a.cfg.MediaDir,
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Livechat gateway is running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	return router
}

// runWithLock gates a consumer behind a single-instance Redis lock. It
// blocks until the lock is won, then starts the consumer and keeps the
// lock alive. Losing the lock exits the process so the supervisor restarts
// it cleanly.
func runWithLock(workerType string, ttl time.Duration, start func()) {
	lock := utils.NewWorkerLock(utils.GetRedisClient(), workerType, ttl)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		acquired, err := lock.TryAcquire(ctx)
		cancel()
		if acquired {
			break
		}
		if err != nil {
			log.Printf("[WORKER_LOCK] Acquire failed for %s: %v", workerType, err)
		} else {
			log.Printf("[WORKER_LOCK] Lock for %s held elsewhere, standing by", workerType)
		}
		time.Sleep(ttl / 2)
	}

	log.Printf("[WORKER_LOCK] Acquired %s lock as %s", workerType, lock.InstanceID())
	lock.StartHeartbeat(func() {
		log.Printf("[WORKER_LOCK] Lost %s lock, exiting for clean restart", workerType)
		os.Exit(1)
	})

	go start()
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	log.Println("Starting livechat gateway...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	log.Printf("Configuration loaded - Role: %s, Port: %s", cfg.WorkerRole, cfg.ServerPort)

	log.Println("Connecting to Postgres...")
	if err := utils.InitPostgres(cfg.DatabaseURL); err != nil {
		log.Fatal("Failed to initialize Postgres:", err)
	}

	log.Println("Connecting to Redis...")
	go utils.ManageRedisConnection(cfg.RedisURL)

	if cfg.MongoURI != "" {
		log.Println("Connecting to MongoDB...")
		if err := utils.InitMongo(cfg.MongoURI, cfg.MongoDatabase); err != nil {
			// Audit archival is best effort; the pipeline runs without it.
			log.Printf("Warning: MongoDB unavailable, event archival disabled: %v", err)
		}
	}

	log.Println("Initializing RabbitMQ...")
	if err := queue.Init(cfg.RabbitMQURL, cfg.RabbitPrefetch, 10); err != nil {
		log.Fatal("Failed to initialize RabbitMQ:", err)
	}

	a := &app{
		cfg:    cfg,
		broker: &queue.Broker{},
		meta:   services.NewMetaClient(cfg.MetaGraphVersion),
		waha:   services.NewWahaClient(cfg.WahaBaseURL, cfg.WahaAPIKey),
		audit:  services.NewEventAudit(4, 10000),
	}
	a.store = services.NewStore(utils.GetPool())
	a.resolver = services.NewInboxResolver(a.store)

	role := cfg.WorkerRole
	runAll := role == "all"

	var srv *http.Server
	if runAll || role == "api" {
		hub := socket.NewHub(a.store)
		relay := socket.NewRelay(hub)
		go relay.Start()

		router := initializeServer(a, hub)
		srv = &http.Server{
			Addr:           ":" + cfg.ServerPort,
			Handler:        router,
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			MaxHeaderBytes: maxHeaderBytes,
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Recovered from panic in server: %v", r)
				}
			}()
			log.Printf("HTTP server listening on :%s", cfg.ServerPort)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Server error: %v", err)
			}
		}()
	}

	if runAll || role == "inbound" {
		c := &consumers.InboundConsumer{Store: a.store, Publisher: a.broker}
		runWithLock("inbound", cfg.LockTTL, c.Start)
	}
	if runAll || role == "outbound" {
		c := &consumers.OutboundConsumer{
			Store:       a.store,
			Publisher:   a.broker,
			Meta:        a.meta,
			Waha:        a.waha,
			MaxAttempts: cfg.MaxSendAttempts,
		}
		runWithLock("outbound", cfg.LockTTL, c.Start)
	}
	if runAll || role == "media" {
		c := &consumers.MediaConsumer{Store: a.store, Publisher: a.broker, Meta: a.meta, MediaDir: cfg.MediaDir}
		runWithLock("media", cfg.LockTTL, c.Start)
	}
	if runAll || role == "campaigns" {
		c := &consumers.CampaignFollowupConsumer{Store: a.store, Publisher: a.broker}
		runWithLock("campaigns", cfg.LockTTL, c.Start)
	}
	if runAll || role == "webhooks" {
		c := consumers.NewWebhookDispatchConsumer(a.broker)
		runWithLock("webhooks", cfg.LockTTL, c.Start)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Attempting graceful shutdown...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
		cancel()
	}

	queue.Close()
	a.audit.Close()
	utils.ClosePostgres()
	utils.CloseMongo()

	log.Println("Server exited successfully")
}
