package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ayushllcode/ngohub/internal/api/auth"
	"github.com/ayushllcode/ngohub/internal/api/middleware"
	"github.com/ayushllcode/ngohub/internal/config"
	"github.com/ayushllcode/ngohub/internal/model"
	"github.com/ayushllcode/ngohub/internal/payment"
	"github.com/ayushllcode/ngohub/internal/pkg/dedup"
	"github.com/ayushllcode/ngohub/internal/pkg/mailqueue"
	"github.com/ayushllcode/ngohub/internal/pkg/metrics"
	"github.com/ayushllcode/ngohub/internal/pkg/notify"
	"github.com/ayushllcode/ngohub/internal/pkg/queue"
	"github.com/ayushllcode/ngohub/internal/pkg/ratelimit"
	"github.com/ayushllcode/ngohub/internal/pkg/upload"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、支付网关、通知队列以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	startTime time.Time

	campaigns CampaignStore
	donations DonationStore
	gateway   payment.Processor
	deduper   Deduper
	limiter   Limiter
	uploads   upload.Store
	notifier  notify.Notifier
	dispatch  auth.Dispatch

	mailWorkers  *queue.Queue
	mailProducer *mailqueue.Producer
	mailConsumer *mailqueue.Consumer
}

// CampaignStore 项目存储层，捐款结算只通过它修改筹款金额。
type CampaignStore interface {
	GetCampaign(ctx context.Context, id uint) (*model.Campaign, error)
	// AddRaisedAmount 以单条 UPDATE 表达式原子调整累计金额，delta 可为负。
	AddRaisedAmount(ctx context.Context, id uint, delta float64) error
	// CreatorEmail 返回项目发起人的邮箱，用于捐款到账通知。
	CreatorEmail(ctx context.Context, creatorID uint) (string, error)
}

// DonationStore 捐款记录存储层。
type DonationStore interface {
	GetDonation(ctx context.Context, id uint) (*model.Donation, error)
	CreateDonation(ctx context.Context, d *model.Donation) error
	SaveDonation(ctx context.Context, d *model.Donation) error
	// UserDonations 返回某用户的全部捐款，按时间倒序，附带项目标题与图片列。
	UserDonations(ctx context.Context, donorID uint) ([]userDonationRecord, error)
}

// Deduper 去重窗口内拦截重复捐款。
type Deduper interface {
	IsDuplicate(ctx context.Context, campaignID uint, email string, amount float64) (bool, error)
	Release(ctx context.Context, campaignID uint, email string, amount float64) error
}

// Limiter 捐款接口限流。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int64)
}

type dbCampaignStore struct {
	db *gorm.DB
}

func (s dbCampaignStore) GetCampaign(ctx context.Context, id uint) (*model.Campaign, error) {
	var campaign model.Campaign
	if err := s.db.WithContext(ctx).First(&campaign, id).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s dbCampaignStore) AddRaisedAmount(ctx context.Context, id uint, delta float64) error {
	return s.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("raised_amount", gorm.Expr("raised_amount + ?", delta)).Error
}

func (s dbCampaignStore) CreatorEmail(ctx context.Context, creatorID uint) (string, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Select("email").First(&user, creatorID).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}

type dbDonationStore struct {
	db *gorm.DB
}

func (s dbDonationStore) GetDonation(ctx context.Context, id uint) (*model.Donation, error) {
	var donation model.Donation
	if err := s.db.WithContext(ctx).First(&donation, id).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

func (s dbDonationStore) CreateDonation(ctx context.Context, d *model.Donation) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s dbDonationStore) SaveDonation(ctx context.Context, d *model.Donation) error {
	return s.db.WithContext(ctx).Save(d).Error
}

func (s dbDonationStore) UserDonations(ctx context.Context, donorID uint) ([]userDonationRecord, error) {
	records := []userDonationRecord{}
	err := s.db.WithContext(ctx).Table("donations").
		Select("donations.*, campaigns.title as campaign_title, campaigns.images as campaign_images").
		Joins("JOIN campaigns ON campaigns.id = donations.campaign_id").
		Where("donations.donor_id = ?", donorID).
		Order("donations.created_at DESC").
		Scan(&records).Error
	return records, err
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化上传存储、支付网关与通知链路
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Campaign{}, &model.Donation{}, &model.Resource{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	var uploads upload.Store
	switch cfg.Upload.Backend {
	case "s3":
		uploads, err = upload.NewS3Store(ctx, &cfg.Upload, logger)
	default:
		uploads, err = upload.NewDiskStore(cfg.Upload.Dir, cfg.Upload.MaxSizeByte, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("init upload store: %w", err)
	}

	notifier := notify.NewEmailNotifier(&cfg.Email, logger)

	// 初始化 Prometheus 指标
	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		startTime: time.Now(),
		campaigns: dbCampaignStore{db: db},
		donations: dbDonationStore{db: db},
		gateway:   payment.NewMockGateway(&cfg.Payment, logger),
		deduper:   dedup.NewDeduplicator(rdb, time.Duration(cfg.App.DedupWindow)*time.Second),
		limiter: ratelimit.NewRedisRateLimiter(rdb, logger, "ngohub:ratelimit:donation:",
			cfg.App.RateLimit, cfg.App.RateBurst),
		uploads:     uploads,
		notifier:    notifier,
		mailWorkers: queue.NewQueue(logger, cfg.Email.WorkerPoolSize, cfg.Email.QueueCapacity),
	}

	if cfg.Email.EnableQueue {
		s.mailProducer = mailqueue.NewProducer(rdb, logger, cfg.Email.QueueStream)
		consumer, err := mailqueue.NewConsumer(rdb, logger, cfg.Email.QueueStream, cfg.Email.QueueGroup, "")
		if err != nil {
			return nil, fmt.Errorf("init mail consumer: %w", err)
		}
		s.mailConsumer = consumer
		s.dispatch = s.dispatchDurable
	} else {
		s.dispatch = s.dispatchInProcess
	}

	s.auth = auth.NewHandler(db, cfg.Security.JWTSecret, cfg.Security.TokenTTL, s.dispatch, logger)
	s.registerRoutes()
	return s, nil
}

// dispatchInProcess 通过内存 worker 池异步发送邮件。
func (s *Server) dispatchInProcess(mail *notify.Mail) {
	if mail == nil {
		return
	}
	ok := s.mailWorkers.Enqueue(func(ctx context.Context) error {
		return s.notifier.Send(ctx, mail)
	})
	if !ok {
		s.logger.Warn("mail dropped, worker queue full",
			slog.String("to", mail.To),
			slog.String("kind", mail.Kind))
	}
}

// dispatchDurable 将邮件写入 Redis Streams，由消费循环投递。
func (s *Server) dispatchDurable(mail *notify.Mail) {
	if mail == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.mailProducer.Submit(ctx, mail, mail.Kind); err != nil {
		s.logger.Warn("mail enqueue failed, fallback to worker pool",
			slog.String("to", mail.To),
			slog.String("error", err.Error()))
		s.dispatchInProcess(mail)
	}
}

// StartWorkers 启动邮件投递的后台组件。
func (s *Server) StartWorkers(ctx context.Context) {
	s.mailWorkers.Start(ctx)

	if s.mailConsumer == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in mail consumer", slog.Any("panic", r))
			}
		}()
		s.runMailConsumer(ctx)
	}()
}

// runMailConsumer 消费 Redis Streams 邮件队列直到 ctx 取消。
func (s *Server) runMailConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := s.mailConsumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("read mail queue failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			if err := s.notifier.Send(ctx, msg.Message.Mail); err != nil {
				action, hErr := s.mailConsumer.HandleFailure(ctx, msg, err)
				if hErr != nil {
					s.logger.Error("handle mail failure",
						slog.String("msg_id", msg.ID),
						slog.String("action", string(action)),
						slog.String("error", hErr.Error()))
				}
				continue
			}
			if err := s.mailConsumer.Ack(ctx, msg.ID); err != nil {
				s.logger.Warn("ack mail failed",
					slog.String("msg_id", msg.ID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.StartWorkers(context.Background())

	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// DB 返回底层数据库连接，供种子数据与后台任务使用。
func (s *Server) DB() *gorm.DB {
	return s.db
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	s.mailWorkers.Shutdown()

	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.StaticFile("/", "./web/index.html")
	if s.cfg.Upload.Backend != "s3" {
		s.router.Static("/uploads", s.cfg.Upload.Dir)
	}

	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := s.router.Group("/api")
	apiGroup.GET("/health", s.handleHealth)

	apiGroup.POST("/auth/register", s.auth.Register)
	apiGroup.POST("/auth/login", s.auth.Login)

	apiGroup.GET("/campaigns", s.handleListCampaigns)
	apiGroup.GET("/campaigns/:id", s.handleGetCampaign)
	apiGroup.POST("/donations", s.optionalAuth(), s.handleCreateDonation)
	apiGroup.GET("/resources/:category", s.handleListResources)
	apiGroup.POST("/upload", s.handleUpload)
	apiGroup.POST("/upload/presign", s.handlePresignUpload)

	authed := apiGroup.Group("/")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.POST("/campaigns", s.handleCreateCampaign)
	authed.GET("/donations/user/:userId", s.handleUserDonations)

	admin := authed.Group("/admin")
	admin.Use(middleware.AdminRequired())
	admin.GET("/dashboard", s.handleAdminDashboard)
	admin.PUT("/campaigns/:id/status", s.handleUpdateCampaignStatus)
	admin.POST("/donations/:id/refund", s.handleRefundDonation)
}

// optionalAuth 在携带 Bearer Token 时解析 userID，未携带时直接放行。
//
// 捐款接口对游客开放，但登录用户的捐款要关联到其账户。
func (s *Server) optionalAuth() gin.HandlerFunc {
	authRequired := middleware.AuthMiddleware(s.cfg.Security.JWTSecret)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		authRequired(c)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	now := time.Now()
	payload := gin.H{
		"status":    "OK",
		"timestamp": now.UTC().Format(time.RFC3339),
		"uptime":    now.Sub(s.startTime).Seconds(),
	}

	if s.db == nil || s.rdb == nil {
		payload["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, payload)
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		payload["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, payload)
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		payload["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, payload)
		return
	}

	c.JSON(http.StatusOK, payload)
}

// parseQueryInt 解析查询参数中的整数值。
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}

// pageParams 返回规范化后的分页参数。
func (s *Server) pageParams(c *gin.Context) (page int, limit int) {
	page = parseQueryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit = parseQueryInt(c, "limit", s.cfg.App.DefaultPageLimit)
	if limit < 1 {
		limit = s.cfg.App.DefaultPageLimit
	}
	if limit > s.cfg.App.MaxPageLimit {
		limit = s.cfg.App.MaxPageLimit
	}
	return page, limit
}

func getUserID(c *gin.Context) int {
	return c.GetInt("userID")
}

func getUserRole(c *gin.Context) string {
	role, ok := c.Get("role")
	if !ok {
		return ""
	}
	if s, ok := role.(string); ok {
		return s
	}
	return ""
}
