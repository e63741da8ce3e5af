package app

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"device_loan_tool/db"
	"device_loan_tool/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Config Config

	adminSess *session.AdminSessionStore
}

// Config 从环境变量读取
type Config struct {
	RedisAddr     string
	RedisPwd      string
	WebOrigin     string
	AdminPassword string
	SessionTTL    time.Duration

	MailHost     string
	MailPort     int
	MailUsername string
	MailPassword string
	MailDomain   string // 收件人域名，如 "@example.org"

	LogLevel  string
	LogFormat string

	ScanInterval time.Duration
	ScanStart    time.Time // 首轮扫描的锚点时间
}

func (a *App) AdminSessions() *session.AdminSessionStore { return a.adminSess }

func MustNew() *App {
	cfg := loadConfig()

	// --- DB: Postgres ---
	dbConn := db.ConnectDB()

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// --- Gin ---
	r := gin.Default()
	useCORS(r, cfg.WebOrigin)
	a := &App{
		Router: r, DB: dbConn, RDB: rdb, Config: cfg,
		adminSess: session.NewAdminSessionStore(rdb, cfg.SessionTTL),
	}
	return a
}

func (a *App) Close() { _ = a.RDB.Close() }

func loadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}

	ttlSec := get("SESSION_TTL_SECONDS", "86400")
	var ttl time.Duration = 24 * time.Hour
	if d, err := time.ParseDuration(ttlSec + "s"); err == nil {
		ttl = d
	}

	mailPort := 587
	if p, err := strconv.Atoi(get("MAIL_PORT", "587")); err == nil {
		mailPort = p
	}

	// 扫描间隔按小时配置，默认一天一轮
	scanInterval := 24 * time.Hour
	if h, err := strconv.Atoi(get("SCAN_INTERVAL_HOURS", "24")); err == nil && h > 0 {
		scanInterval = time.Duration(h) * time.Hour
	}
	// 首轮锚点，比如 "2023-09-24T08:00:00Z"；不配就立即开始
	scanStart := time.Now()
	if v := os.Getenv("SCAN_START"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			scanStart = t
		} else {
			log.Printf("invalid SCAN_START %q, starting immediately", v)
		}
	}

	return Config{
		RedisAddr:     get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:      os.Getenv("REDIS_PASSWORD"),
		WebOrigin:     get("WEB_ORIGIN", "http://localhost:3000"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		SessionTTL:    ttl,

		MailHost:     get("MAIL_HOST", "smtp.office365.com"),
		MailPort:     mailPort,
		MailUsername: os.Getenv("MAIL_USERNAME"),
		MailPassword: os.Getenv("MAIL_PASSWORD"),
		MailDomain:   os.Getenv("MAIL_DOMAIN"),

		LogLevel:  get("LOG_LEVEL", "info"),
		LogFormat: get("LOG_FORMAT", "text"),

		ScanInterval: scanInterval,
		ScanStart:    scanStart,
	}
}
