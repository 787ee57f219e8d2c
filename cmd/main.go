package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"allad_backend_v1/internal/controller"
	"allad_backend_v1/internal/middleware"
	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/internal/router"
	"allad_backend_v1/internal/service"
	"allad_backend_v1/internal/task"
	"allad_backend_v1/pkg/database"
	"allad_backend_v1/pkg/net"
	"allad_backend_v1/pkg/utils"
)

func main() {
	// 1. 初始化数据库
	db := initDatabase()

	// 2. 初始化 JWT 配置
	initJWT()

	// 3. 初始化依赖
	deps := initDependencies(db)

	// 4. 启动定时任务
	initTasks(deps)

	// 5. 初始化路由
	r := gin.Default()
	router.InitRoutes(r,
		deps.Repos.TeamMember,
		deps.Controllers.Auth,
		deps.Controllers.Team,
		deps.Controllers.Platform,
		deps.Controllers.Campaign,
		deps.Controllers.Dashboard,
	)

	// 6. 启动服务
	startServer(r)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Dispatcher  net.Dispatcher
	Registry    *platform.Registry
	Services    *Services
	Controllers *Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Profile    repository.ProfileRepository
	Team       repository.TeamRepository
	TeamMember repository.TeamMemberRepository
	Invitation repository.InvitationRepository
	Credential repository.CredentialRepository
	Campaign   repository.CampaignRepository
	Metric     repository.MetricRepository
}

// Services 服务集合
type Services struct {
	Auth     *service.AuthService
	Team     *service.TeamService
	OAuth    *service.OAuthService
	Campaign *service.CampaignService
	Metric   *service.MetricService
	Export   *service.ExportService
	Storage  service.StorageProvider
}

// Controllers 控制器集合
type Controllers struct {
	Auth      *controller.AuthController
	Team      *controller.TeamController
	Platform  *controller.PlatformController
	Campaign  *controller.CampaignController
	Dashboard *controller.DashboardController
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase() *gorm.DB {
	dsn := getEnv("DATABASE_DSN", fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Seoul",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER", "allad"),
		getEnv("DB_PASSWORD", "allad"),
		getEnv("DB_NAME", "allad"),
		getEnv("DB_PORT", "5432"),
	))

	return database.InitDB(dsn,
		// Account
		&model.Profile{},
		// Team
		&model.Team{}, &model.TeamMember{}, &model.TeamInvitation{},
		// Platform
		&model.PlatformCredential{},
		// Campaign
		&model.Campaign{}, &model.CampaignMetric{},
	)
}

// initJWT JWT 密钥必须来自环境变量，生产环境不允许缺省值
func initJWT() {
	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		log.Println("警告: JWT_SECRET 未设置，使用开发用默认密钥")
		return
	}
	cfg := middleware.DefaultJWTConfig()
	cfg.SecretKey = secret
	middleware.SetJWTConfig(cfg)
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB) *Dependencies {
	// -------- Repo 层 --------
	repos := initRepositories(db)

	// -------- 基础设施 --------
	dispatcher := net.NewDispatcher()
	registry := initPlatformRegistry(dispatcher)
	stateCache := utils.NewStateCache(10 * time.Minute)
	storage := initStorage()

	// -------- 业务服务 --------
	services := &Services{Storage: storage}
	services.Auth = service.NewAuthService(repos.Profile, repos.Team, db)
	services.Team = service.NewTeamService(repos.Team, repos.TeamMember, repos.Invitation, repos.Profile, db)
	services.OAuth = service.NewOAuthService(repos.Credential, repos.TeamMember, registry, stateCache)
	services.Campaign = service.NewCampaignService(repos.Campaign, repos.Credential, repos.TeamMember, registry)
	services.Metric = service.NewMetricService(repos.Metric, repos.Campaign, repos.Credential, registry)
	services.Export = service.NewExportService(services.Metric, repos.Campaign, storage)

	// -------- Controller 层 --------
	controllers := &Controllers{
		Auth:      controller.NewAuthController(services.Auth),
		Team:      controller.NewTeamController(services.Team),
		Platform:  controller.NewPlatformController(services.OAuth),
		Campaign:  controller.NewCampaignController(services.Campaign),
		Dashboard: controller.NewDashboardController(services.Metric, services.Export),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Dispatcher:  dispatcher,
		Registry:    registry,
		Services:    services,
		Controllers: controllers,
	}
}

// initRepositories 初始化所有仓库
func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Profile:    repository.NewProfileRepository(db),
		Team:       repository.NewTeamRepository(db),
		TeamMember: repository.NewTeamMemberRepository(db),
		Invitation: repository.NewInvitationRepository(db),
		Credential: repository.NewCredentialRepository(db),
		Campaign:   repository.NewCampaignRepository(db),
		Metric:     repository.NewMetricRepository(db),
	}
}

// initPlatformRegistry 注册所有广告平台客户端
// 各平台密钥只从环境变量读取，无缺省值
func initPlatformRegistry(dispatcher net.Dispatcher) *platform.Registry {
	callbackURL := getEnv("OAUTH_CALLBACK_URL", "http://localhost:8080/api/oauth/callback")

	return platform.NewRegistry(
		platform.NewGoogleClient(platform.GoogleConfig{
			ClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:    callbackURL,
			DeveloperToken: getEnv("GOOGLE_DEVELOPER_TOKEN", ""),
		}, dispatcher),
		platform.NewMetaClient(platform.MetaConfig{
			AppID:       getEnv("META_APP_ID", ""),
			AppSecret:   getEnv("META_APP_SECRET", ""),
			RedirectURI: callbackURL,
		}, dispatcher),
		platform.NewAmazonClient(platform.AmazonConfig{
			ClientID:     getEnv("AMAZON_CLIENT_ID", ""),
			ClientSecret: getEnv("AMAZON_CLIENT_SECRET", ""),
			RedirectURI:  callbackURL,
			Region:       getEnv("AMAZON_REGION", "FE"),
		}, dispatcher),
		platform.NewTikTokClient(platform.TikTokConfig{
			AppID:       getEnv("TIKTOK_APP_ID", ""),
			Secret:      getEnv("TIKTOK_APP_SECRET", ""),
			RedirectURI: callbackURL,
		}, dispatcher),
		platform.NewKakaoClient(platform.KakaoConfig{
			ClientID:     getEnv("KAKAO_REST_API_KEY", ""),
			ClientSecret: getEnv("KAKAO_CLIENT_SECRET", ""),
			RedirectURI:  callbackURL,
		}, dispatcher),
		platform.NewNaverClient(),
		platform.NewCoupangClient(),
	)
}

// initStorage 初始化导出文件存储
func initStorage() service.StorageProvider {
	storage, err := service.NewStorageProvider(&service.StorageConfig{
		Provider:  getEnv("STORAGE_PROVIDER", "local"),
		Bucket:    getEnv("AWS_BUCKET", ""),
		Region:    getEnv("AWS_REGION", "ap-northeast-2"),
		AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BasePath:  getEnv("STORAGE_BASE_PATH", "allad-exports"),
	})
	if err != nil {
		// 带着空存储启动会让导出接口在运行期才暴雷，直接拒绝启动
		log.Fatalf("存储服务初始化失败: %v", err)
	}
	return storage
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) {
	// Token 刷新
	tokenTask := task.NewTokenTask(
		deps.Repos.Credential,
		deps.Services.OAuth,
	)
	tokenTask.Start()

	// 业务同步
	tm := task.NewTaskManager(&task.TaskManagerDeps{
		CredentialRepo:  deps.Repos.Credential,
		InvitationRepo:  deps.Repos.Invitation,
		CampaignService: deps.Services.Campaign,
		MetricService:   deps.Services.Metric,
	}, nil)
	tm.Start()

	log.Println("定时任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine) {
	port := getEnv("SERVER_PORT", "8080")

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动在 :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，最多等待 30 秒
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
