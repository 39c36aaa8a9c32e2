package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"amzfin_v1_202608/internal/controller"
	"amzfin_v1_202608/internal/model"
	"amzfin_v1_202608/internal/repository"
	"amzfin_v1_202608/internal/router"
	"amzfin_v1_202608/internal/service"
	"amzfin_v1_202608/internal/task"
	"amzfin_v1_202608/pkg/config"
	"amzfin_v1_202608/pkg/database"
	"amzfin_v1_202608/pkg/net"
	"amzfin_v1_202608/pkg/spapi"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	// 2. 初始化数据库
	db := initDatabase(cfg)

	// 3. 初始化依赖
	deps := initDependencies(cfg, db)

	// 4. 启动定时任务
	initTasks(cfg, deps)

	// 5. 初始化路由并启动服务
	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()
	router.InitRoutes(r, deps.FinanceCtl)

	startServer(cfg, r)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB         *gorm.DB
	Dispatcher net.Dispatcher
	SyncSvc    service.FinanceSyncService
	FinanceCtl *controller.FinanceController
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config) *gorm.DB {
	return database.InitDB(
		cfg.Database.DSN,
		database.Options{
			MaxIdleConns: cfg.Database.MaxIdleConns,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			Silent:       cfg.Server.Mode == "release",
		},
		&model.LineItem{},
		&model.RangeSummary{},
		&model.ProductMapping{},
		&model.SyncAudit{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB) *Dependencies {
	// -------- 凭证（启动即校验，缺失直接退出） --------
	creds := &spapi.Credentials{
		ClientID:      cfg.Marketplace.ClientID,
		ClientSecret:  cfg.Marketplace.ClientSecret,
		RefreshToken:  cfg.Marketplace.RefreshToken,
		AccessKeyID:   cfg.Marketplace.AccessKeyID,
		SecretKey:     cfg.Marketplace.SecretKey,
		Region:        cfg.Marketplace.Region,
		MarketplaceID: cfg.Marketplace.MarketplaceID,
	}
	if err := creds.Validate(); err != nil {
		log.Fatalf("凭证校验失败: %v", err)
	}

	// -------- 传输层 --------
	dispatcher := net.NewDispatcher(nil, net.Options{
		MaxAttempts:     cfg.Sync.MaxAttempts,
		BackoffBase:     cfg.Sync.BackoffBase,
		BackoffCap:      cfg.Sync.BackoffCap,
		MinSendInterval: cfg.Sync.MinSendInterval,
	})

	// -------- 远端客户端 --------
	signer := spapi.NewSigner(creds)
	tokens := spapi.NewTokenManager(creds, cfg.Marketplace.TokenURL)
	client := spapi.NewFinancesClient(cfg.Marketplace.Endpoint, signer, tokens, dispatcher)

	// -------- Repo 层 --------
	lineRepo := repository.NewLineItemRepository(db)
	summaryRepo := repository.NewRangeSummaryRepository(db)
	mappingRepo := repository.NewProductMappingRepository(db)
	auditRepo := repository.NewSyncAuditRepository(db)

	// -------- 审计（S3 归档可选） --------
	var archiver service.PayloadArchiver
	if cfg.Storage.Enabled {
		s3Archiver, err := service.NewS3Archiver(&cfg.Storage)
		if err != nil {
			log.Printf("警告: S3 归档初始化失败，本次运行不导出: %v", err)
		} else {
			archiver = s3Archiver
		}
	}
	auditSvc := service.NewAuditService(auditRepo, archiver)

	// -------- 业务服务 --------
	syncSvc := service.NewFinanceSyncService(
		client, lineRepo, summaryRepo, mappingRepo, auditSvc, cfg.Sync.BatchSize,
	)

	return &Dependencies{
		DB:         db,
		Dispatcher: dispatcher,
		SyncSvc:    syncSvc,
		FinanceCtl: controller.NewFinanceController(syncSvc),
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(cfg *config.Config, deps *Dependencies) {
	syncTask := task.NewFinanceSyncTask(deps.SyncSvc, cfg.Sync.TrailingDays, cfg.Sync.CronSpec)
	syncTask.Start()

	log.Println("定时任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(cfg *config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动在 :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}
