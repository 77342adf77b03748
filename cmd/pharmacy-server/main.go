package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/pharmacy_server/internal/api"
	"github.com/pharmaops/pharmacy_server/internal/cache"
	"github.com/pharmaops/pharmacy_server/internal/config"
	"github.com/pharmaops/pharmacy_server/internal/database"
	"github.com/pharmaops/pharmacy_server/internal/domain"
	"github.com/pharmaops/pharmacy_server/internal/limiter"
	"github.com/pharmaops/pharmacy_server/internal/logger"
	mw "github.com/pharmaops/pharmacy_server/internal/middleware"
	"github.com/pharmaops/pharmacy_server/internal/repo"
	"github.com/pharmaops/pharmacy_server/internal/resp"
	"github.com/pharmaops/pharmacy_server/internal/service"
)

// AppDependencies 包含应用的所有依赖
type AppDependencies struct {
	UserHandler         *api.UserHandler
	DrugHandler         *api.DrugHandler
	CatalogHandler      *api.CatalogHandler
	InventoryHandler    *api.InventoryHandler
	PrescriptionHandler *api.PrescriptionHandler
	SaleHandler         *api.SaleHandler
	JWTService          service.JWTService
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %v", err)
	}

	// init logger
	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %v", err)
	}

	return cfg, lg, nil
}

// initDatabase 初始化数据库连接并执行迁移
func initDatabase(cfg *config.Config, lg *zap.Logger) (*database.DB, error) {
	// 初始化数据库连接
	db, err := database.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// 在HTTP服务器启动前执行数据库迁移，确保处理请求时表结构已就绪
	migrationsDir := cfg.Migrations.Dir
	lg.Sugar().Infow("using migrations directory", "path", migrationsDir)

	if err := db.RunMigrations(migrationsDir); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %v", err)
	}

	return db, nil
}

// initCache 初始化缓存实例
func initCache(cfg *config.Config, lg *zap.Logger) cache.Cache {
	var cacheInstance cache.Cache
	if cfg.Cache.Enabled {
		switch cfg.Cache.Type {
		case "redis":
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			redisCache, err := cache.NewRedisCache(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
				cacheInstance = cache.NewMemoryCache()
				lg.Sugar().Infow("cache enabled", "type", "memory (fallback)", "ttl", cfg.Cache.TTL)
			} else {
				cacheInstance = redisCache
				lg.Sugar().Infow("cache enabled", "type", "redis", "addr", redisAddr, "ttl", cfg.Cache.TTL)
			}
		case "memory":
			cacheInstance = cache.NewMemoryCache()
			lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
		default:
			lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
			cacheInstance = cache.NewMemoryCache()
			lg.Sugar().Infow("cache enabled", "type", "memory (default)", "ttl", cfg.Cache.TTL)
		}
	} else {
		cacheInstance = cache.NewNullCache()
		lg.Sugar().Infow("cache disabled")
	}
	return cacheInstance
}

// initRateLimiter 初始化结账接口限流器。
// 令牌桶状态保存在Redis，缓存后端不是Redis时限流自动关闭。
func initRateLimiter(cfg *config.Config, cacheInstance cache.Cache, lg *zap.Logger) limiter.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	redisCache, ok := cacheInstance.(*cache.RedisCache)
	if !ok {
		lg.Sugar().Warnw("rate limiting requires redis cache backend, disabled")
		return nil
	}

	l, err := limiter.NewTokenBucketLimiter(redisCache.Client(), &limiter.Config{
		Rate:      cfg.RateLimit.Rate,
		Burst:     cfg.RateLimit.Burst,
		KeyPrefix: "ratelimit:checkout",
	})
	if err != nil {
		lg.Sugar().Warnw("failed to initialize rate limiter, disabled", "error", err)
		return nil
	}

	lg.Sugar().Infow("checkout rate limiting enabled", "rate", cfg.RateLimit.Rate, "burst", cfg.RateLimit.Burst)
	return l
}

// initDependencies 初始化应用依赖（仓储、服务、处理器）
func initDependencies(cfg *config.Config, db *database.DB, cacheInstance cache.Cache, lg *zap.Logger) *AppDependencies {
	// 初始化依赖注入链：仓储 -> 服务 -> API处理器
	userRepo := repo.NewUserRepository(db)
	userService := service.NewUserService(userRepo, lg)
	jwtService := service.NewJWTService(cfg, lg)
	userHandler := api.NewUserHandler(userService, jwtService, lg)

	// 药品目录与台账仓储
	baseDrugRepo := repo.NewDrugRepository(db.DB)
	categoryRepo := repo.NewCategoryRepository(db.DB)
	manufacturerRepo := repo.NewManufacturerRepository(db.DB)
	stockTxRepo := repo.NewStockTransactionRepository(db.DB)
	prescriptionRepo := repo.NewPrescriptionRepository(db.DB)
	saleRepo := repo.NewSaleRepository(db.DB)

	// 可选缓存装饰器
	var drugRepo repo.DrugRepository
	if cfg.Cache.Enabled {
		drugRepo = repo.NewCachedDrugRepository(baseDrugRepo, cacheInstance, cfg.Cache.TTL)
	} else {
		drugRepo = baseDrugRepo
	}

	drugService := service.NewDrugService(drugRepo, cfg.Inventory.ExpiringSoonDays, lg)
	catalogService := service.NewCatalogService(categoryRepo, manufacturerRepo, lg)
	inventoryService := service.NewInventoryService(db, drugRepo, stockTxRepo, cfg.Inventory.StrictDeduction, lg)
	prescriptionService := service.NewPrescriptionService(db, prescriptionRepo, drugRepo, userRepo, lg)
	saleService := service.NewSaleService(db, saleRepo, drugRepo, stockTxRepo, prescriptionRepo, userRepo, lg)

	return &AppDependencies{
		UserHandler:         userHandler,
		DrugHandler:         api.NewDrugHandler(drugService, lg),
		CatalogHandler:      api.NewCatalogHandler(catalogService, lg),
		InventoryHandler:    api.NewInventoryHandler(inventoryService, lg),
		PrescriptionHandler: api.NewPrescriptionHandler(prescriptionService, lg),
		SaleHandler:         api.NewSaleHandler(saleService, lg),
		JWTService:          jwtService,
	}
}

// setupRoutes 设置路由和中间件
func setupRoutes(cfg *config.Config, deps *AppDependencies, cacheInstance cache.Cache, rateLimiter limiter.Limiter, lg *zap.Logger) http.Handler {
	// 标准库 ServeMux 即可满足当前需求（后续可替换为 chi/gin）
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		reqID := mw.RequestIDFromContext(r.Context())
		data := map[string]any{
			"status":  "ok",
			"version": cfg.App.Version,
		}
		resp.OK(w, &data, reqID, "")
	})

	// 用户认证相关API路由（无需认证）
	mux.HandleFunc("/api/v1/auth/register", deps.UserHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", deps.UserHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", deps.UserHandler.RefreshToken)

	// 需要认证的API路由
	authMiddleware := mw.AuthMiddleware(deps.JWTService, lg)
	mux.Handle("/api/v1/users/profile", authMiddleware(http.HandlerFunc(deps.UserHandler.GetProfile)))

	// 药品目录：读操作对全部角色开放，写操作由服务层策略校验
	mux.Handle("/api/v1/drugs", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.DrugHandler.ListDrugs(w, r)
		case http.MethodPost:
			deps.DrugHandler.CreateDrug(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 库存相关的聚合查询（仅药房工作人员）
	staffMiddleware := mw.RequireRole(lg, domain.UserRoleAdmin, domain.UserRolePharmacist)
	mux.Handle("/api/v1/drugs/expiring-soon", authMiddleware(staffMiddleware(http.HandlerFunc(deps.DrugHandler.ListExpiringSoon))))
	mux.Handle("/api/v1/drugs/stats", authMiddleware(staffMiddleware(http.HandlerFunc(deps.DrugHandler.GetInventoryStats))))

	// 药品详情与库存变更
	mux.Handle("/api/v1/drugs/", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/stock") {
			switch r.Method {
			case http.MethodPost:
				deps.InventoryHandler.ApplyStockChange(w, r)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}
		switch r.Method {
		case http.MethodGet:
			deps.DrugHandler.GetDrug(w, r)
		case http.MethodPatch:
			deps.DrugHandler.UpdateDrug(w, r)
		case http.MethodDelete:
			deps.DrugHandler.DeactivateDrug(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 药品分类：读操作对全部角色开放，写操作由服务层策略校验
	mux.Handle("/api/v1/categories", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.CatalogHandler.ListCategories(w, r)
		case http.MethodPost:
			deps.CatalogHandler.CreateCategory(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/api/v1/categories/", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.CatalogHandler.GetCategory(w, r)
		case http.MethodPatch:
			deps.CatalogHandler.UpdateCategory(w, r)
		case http.MethodDelete:
			deps.CatalogHandler.DeleteCategory(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 生产商
	mux.Handle("/api/v1/manufacturers", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.CatalogHandler.ListManufacturers(w, r)
		case http.MethodPost:
			deps.CatalogHandler.CreateManufacturer(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/api/v1/manufacturers/", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.CatalogHandler.GetManufacturer(w, r)
		case http.MethodPatch:
			deps.CatalogHandler.UpdateManufacturer(w, r)
		case http.MethodDelete:
			deps.CatalogHandler.DeleteManufacturer(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 库存流水（仅药房工作人员）
	mux.Handle("/api/v1/stock-transactions", authMiddleware(staffMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.InventoryHandler.ListTransactions(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))))
	mux.Handle("/api/v1/stock-transactions/", authMiddleware(staffMiddleware(http.HandlerFunc(deps.InventoryHandler.GetTransaction))))

	// 处方相关API路由：开具、查询、发药、作废
	mux.Handle("/api/v1/prescriptions", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.PrescriptionHandler.ListPrescriptions(w, r)
		case http.MethodPost:
			deps.PrescriptionHandler.CreatePrescription(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/api/v1/prescriptions/", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/fill") && r.Method == http.MethodPost:
			deps.PrescriptionHandler.FillPrescription(w, r)
		case strings.HasSuffix(r.URL.Path, "/cancel") && r.Method == http.MethodPost:
			deps.PrescriptionHandler.CancelPrescription(w, r)
		case r.Method == http.MethodGet:
			deps.PrescriptionHandler.GetPrescription(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 结账接口带限流与幂等保护，重复提交同一Idempotency-Key直接拒绝
	checkout := http.Handler(http.HandlerFunc(deps.SaleHandler.Checkout))
	if cfg.Cache.Enabled {
		checkout = mw.Idempotency(cacheInstance, cfg.Cache.TTL, lg)(checkout)
	}
	if rateLimiter != nil {
		checkout = limiter.Middleware(rateLimiter, lg)(checkout)
	}
	mux.Handle("/api/v1/sales", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.SaleHandler.ListSales(w, r)
		case http.MethodPost:
			checkout.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))
	mux.Handle("/api/v1/sales/stats", authMiddleware(staffMiddleware(http.HandlerFunc(deps.SaleHandler.GetSalesStats))))
	mux.Handle("/api/v1/sales/", authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.SaleHandler.GetSale(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// 管理员专用API路由（需要管理员权限）
	adminMiddleware := mw.RequireAdmin(lg)
	mux.Handle("/api/v1/admin/users", authMiddleware(adminMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			deps.UserHandler.ListUsers(w, r)
		case http.MethodPost:
			deps.UserHandler.CreateUser(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))))
	mux.Handle("/api/v1/admin/users/", authMiddleware(adminMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			deps.UserHandler.UpdateUser(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))))

	// 构建中间件链：请求进入时执行顺序为 access log → CORS → timeout → recovery → request ID
	// 响应返回时执行顺序为 request ID → recovery → timeout → CORS → access log
	handler := mw.RequestID(mux)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(mw.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})(handler)
	handler = mw.AccessLog(lg)(handler)

	return handler
}

// startServer 启动服务器并处理优雅关闭
func startServer(cfg *config.Config, handler http.Handler, lg *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	// 启动服务器（异步）
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	select {
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			lg.Sugar().Fatalw("server error", "err", err)
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	lg.Sugar().Infow("server exited")
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	// 1) 加载配置和初始化日志
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}

	// 2) 初始化数据库连接并执行迁移
	db, err := initDatabase(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize database", "err", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Sugar().Errorw("failed to close database connection", "err", err)
		}
	}()

	// 3) 初始化缓存与限流器
	cacheInstance := initCache(cfg, lg)
	rateLimiter := initRateLimiter(cfg, cacheInstance, lg)

	// 4) 初始化应用依赖（仓储、服务、处理器）
	deps := initDependencies(cfg, db, cacheInstance, lg)

	// 5) 设置路由和中间件
	handler := setupRoutes(cfg, deps, cacheInstance, rateLimiter, lg)

	// 6) 启动 HTTP 服务器
	startServer(cfg, handler, lg)
}
