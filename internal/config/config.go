package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Payment  PaymentConfig  `json:"payment"`
	Upload   UploadConfig   `json:"upload"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env              string        `json:"env"`                 // 运行环境: local / prod
	LogLevel         string        `json:"log_level"`           // 日志级别: debug / info / warn / error
	HTTPAddr         string        `json:"http_addr"`           // API 服务监听地址
	DefaultPageLimit int           `json:"default_page_limit"`  // 列表默认分页大小
	MaxPageLimit     int           `json:"max_page_limit"`      // 列表分页大小上限
	SweepInterval    time.Duration `json:"sweep_interval"`      // 过期项目巡检间隔（如 "10m"）
	RateLimit        float64       `json:"rate_limit"`          // 捐款接口限流速率（token/s，0 表示关闭）
	RateBurst        float64       `json:"rate_burst"`          // 捐款接口限流桶容量
	DedupWindow      int           `json:"dedup_window"`        // 重复捐款拦截窗口（秒，0 表示关闭）
	SeedDemoData     bool          `json:"seed_demo_data"`      // 启动时写入演示数据
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`

	WorkerPoolSize int `json:"worker_pool_size"` // 异步发信 worker 数
	QueueCapacity  int `json:"queue_capacity"`   // 内存发信队列容量

	// Redis Streams 持久化邮件队列配置
	EnableQueue bool   `json:"enable_queue"` // 是否启用 Redis Streams 邮件队列（开关）
	QueueStream string `json:"queue_stream"` // Stream 名称
	QueueGroup  string `json:"queue_group"`  // Consumer Group 名称
}

// PaymentConfig 模拟支付网关配置。
type PaymentConfig struct {
	SuccessRate  float64       `json:"success_rate"`  // 支付成功概率（0~1）
	ProcessDelay time.Duration `json:"process_delay"` // 支付处理模拟延迟
	RefundDelay  time.Duration `json:"refund_delay"`  // 退款处理模拟延迟
	MaxAmount    float64       `json:"max_amount"`    // 单笔捐款上限（0 表示不限）
}

// UploadConfig 附件上传配置。
type UploadConfig struct {
	Backend     string `json:"backend"`       // 存储后端: disk / s3
	Dir         string `json:"dir"`           // 本地存储目录
	MaxSizeByte int64  `json:"max_size_byte"` // 单文件大小上限（字节）

	S3Region    string `json:"s3_region"`
	S3Bucket    string `json:"s3_bucket"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string        `json:"jwt_secret"` // JWT 签名密钥
	TokenTTL  time.Duration `json:"token_ttl"`  // 令牌有效期（如 "168h"）
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// 应用默认值（对于未设置的字段）
	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:              "local",
			LogLevel:         "info",
			HTTPAddr:         ":5000",
			DefaultPageLimit: 10,
			MaxPageLimit:     100,
			SweepInterval:    10 * time.Minute,
			RateLimit:        5,
			RateBurst:        10,
			DedupWindow:      10,
			SeedDemoData:     false,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/ngohub?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:       "smtp.gmail.com",
			SMTPPort:       587,
			SMTPUser:       "",
			SMTPPass:       "",
			FromEmail:      "",
			WorkerPoolSize: 4,
			QueueCapacity:  256,
			EnableQueue:    false, // 默认关闭，渐进式升级
			QueueStream:    "ngohub:mail:queue",
			QueueGroup:     "mailer_group",
		},
		Payment: PaymentConfig{
			SuccessRate:  0.9,
			ProcessDelay: 2 * time.Second,
			RefundDelay:  1 * time.Second,
			MaxAmount:    1000000,
		},
		Upload: UploadConfig{
			Backend:     "disk",
			Dir:         "uploads",
			MaxSizeByte: 5 * 1024 * 1024,
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
			TokenTTL:  7 * 24 * time.Hour,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.DefaultPageLimit == 0 {
		cfg.App.DefaultPageLimit = defaults.App.DefaultPageLimit
	}
	if cfg.App.MaxPageLimit == 0 {
		cfg.App.MaxPageLimit = defaults.App.MaxPageLimit
	}
	if cfg.App.SweepInterval == 0 {
		cfg.App.SweepInterval = defaults.App.SweepInterval
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Email.WorkerPoolSize == 0 {
		cfg.Email.WorkerPoolSize = defaults.Email.WorkerPoolSize
	}
	if cfg.Email.QueueCapacity == 0 {
		cfg.Email.QueueCapacity = defaults.Email.QueueCapacity
	}
	if cfg.Email.QueueStream == "" {
		cfg.Email.QueueStream = defaults.Email.QueueStream
	}
	if cfg.Email.QueueGroup == "" {
		cfg.Email.QueueGroup = defaults.Email.QueueGroup
	}
	if cfg.Payment.SuccessRate == 0 {
		cfg.Payment.SuccessRate = defaults.Payment.SuccessRate
	}
	if cfg.Payment.ProcessDelay == 0 {
		cfg.Payment.ProcessDelay = defaults.Payment.ProcessDelay
	}
	if cfg.Payment.RefundDelay == 0 {
		cfg.Payment.RefundDelay = defaults.Payment.RefundDelay
	}
	if cfg.Upload.Backend == "" {
		cfg.Upload.Backend = defaults.Upload.Backend
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = defaults.Upload.Dir
	}
	if cfg.Upload.MaxSizeByte == 0 {
		cfg.Upload.MaxSizeByte = defaults.Upload.MaxSizeByte
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.App.HTTPAddr = ":" + v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SweepInterval = d
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}
	if v := os.Getenv("APP_DEDUP_WINDOW"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.DedupWindow = i
		}
	}
	if v := os.Getenv("APP_SEED_DEMO_DATA"); v != "" {
		cfg.App.SeedDemoData = v == "true" || v == "1"
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("APP_ENABLE_MAIL_QUEUE"); v != "" {
		cfg.Email.EnableQueue = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_MAIL_QUEUE_STREAM"); v != "" {
		cfg.Email.QueueStream = v
	}
	if v := os.Getenv("APP_MAIL_QUEUE_GROUP"); v != "" {
		cfg.Email.QueueGroup = v
	}

	if v := os.Getenv("PAYMENT_SUCCESS_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Payment.SuccessRate = f
		}
	}
	if v := os.Getenv("PAYMENT_PROCESS_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Payment.ProcessDelay = d
		}
	}
	if v := os.Getenv("PAYMENT_MAX_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Payment.MaxAmount = f
		}
	}

	if v := os.Getenv("UPLOAD_BACKEND"); v != "" {
		cfg.Upload.Backend = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Upload.Dir = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Upload.S3Region = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Upload.S3Bucket = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.Upload.S3Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.Upload.S3AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.Upload.S3SecretKey = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			host := v
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
}

// UnmarshalJSON 自定义 JSON 解析，支持 "10m" 形式的时长字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		SweepInterval string `json:"sweep_interval"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.SweepInterval != "" {
		duration, err := time.ParseDuration(aux.SweepInterval)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval format: %w", err)
		}
		a.SweepInterval = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		SweepInterval string `json:"sweep_interval"`
		*Alias
	}{
		SweepInterval: a.SweepInterval.String(),
		Alias:         (*Alias)(&a),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持时长字符串形式的延迟配置。
func (p *PaymentConfig) UnmarshalJSON(data []byte) error {
	type Alias PaymentConfig
	aux := &struct {
		ProcessDelay string `json:"process_delay"`
		RefundDelay  string `json:"refund_delay"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.ProcessDelay != "" {
		duration, err := time.ParseDuration(aux.ProcessDelay)
		if err != nil {
			return fmt.Errorf("invalid process_delay format: %w", err)
		}
		p.ProcessDelay = duration
	}
	if aux.RefundDelay != "" {
		duration, err := time.ParseDuration(aux.RefundDelay)
		if err != nil {
			return fmt.Errorf("invalid refund_delay format: %w", err)
		}
		p.RefundDelay = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (p PaymentConfig) MarshalJSON() ([]byte, error) {
	type Alias PaymentConfig
	return json.Marshal(&struct {
		ProcessDelay string `json:"process_delay"`
		RefundDelay  string `json:"refund_delay"`
		*Alias
	}{
		ProcessDelay: p.ProcessDelay.String(),
		RefundDelay:  p.RefundDelay.String(),
		Alias:        (*Alias)(&p),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 "168h" 形式的令牌有效期。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TokenTTL != "" {
		duration, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		s.TokenTTL = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SecurityConfig) MarshalJSON() ([]byte, error) {
	type Alias SecurityConfig
	return json.Marshal(&struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		TokenTTL: s.TokenTTL.String(),
		Alias:    (*Alias)(&s),
	})
}

// parseMySQLDSN 解析 DSN，解析失败时返回可用的默认骨架。
func parseMySQLDSN(dsn string) *mysql.Config {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		parsed = mysql.NewConfig()
		parsed.Net = "tcp"
		parsed.Addr = "localhost:3306"
		parsed.DBName = "ngohub"
		parsed.ParseTime = true
	}
	return parsed
}

func getenvDefault(key string, current string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if strings.Contains(current, ":") {
		parts := strings.Split(current, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return fallback
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}
