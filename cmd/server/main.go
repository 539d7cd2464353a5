package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/liar-bar/internal/api"
	"github.com/wfunc/liar-bar/internal/config"
	"github.com/wfunc/liar-bar/internal/database"
	"github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/logger"
	"github.com/wfunc/liar-bar/internal/service"
	"github.com/wfunc/liar-bar/internal/utils"
	ws "github.com/wfunc/liar-bar/internal/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	services *service.Services
	hub      *ws.Hub
	http     *http.Server

	wg sync.WaitGroup
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
		hashSecret  = flag.String("hash-secret", "", "生成适配器密钥哈希，写入 security.adapters[].secret_hash")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}
	if *hashSecret != "" {
		hash, err := utils.HashSecret(*hashSecret)
		if err != nil {
			fmt.Printf("生成哈希失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.LogError(err, "服务器关闭失败")
		logger.Cleanup()
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
	logger.Cleanup()
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动骗子酒馆对局服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.String("rule", s.cfg.Match.Rule))

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrStorageUnavailable, "初始化数据库连接失败")
	}
	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(database.GetDB(), logger.GetModuleLogger("database")); err != nil {
			return errors.Wrap(err, errors.ErrStorageUnavailable, "数据库迁移失败")
		}
	}

	services, err := service.NewServices(database.GetDB(), s.cfg, s.logger, service.Options{})
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigValidate, "创建服务失败")
	}
	s.services = services
	s.services.Start()

	s.hub = ws.NewHub(logger.GetModuleLogger("ws"))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	if s.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(database.GetDB(), s.services, s.hub, s.jwtManager(), s.cfg, logger.GetModuleLogger("api"))
	s.http = &http.Server{
		Addr:         net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port)),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()

	config.Watch(s.reloadConfig)

	s.logger.Info("服务器启动成功",
		zap.String("http", s.http.Addr),
		zap.Int("adapters", len(s.cfg.Security.Adapters)))
	return nil
}

// jwtManager 未配置签名密钥时生成临时密钥，重启后令牌失效
func (s *Server) jwtManager() *utils.JWTManager {
	jwtCfg := s.cfg.Security.JWT
	secret := jwtCfg.Secret
	if secret == "" {
		generated, err := utils.GenerateSecret(48)
		if err != nil {
			s.logger.Fatal("生成JWT密钥失败", zap.Error(err))
		}
		secret = generated
		s.logger.Warn("未配置 security.jwt.secret，已生成临时密钥")
	}
	return utils.NewJWTManager(secret, time.Duration(jwtCfg.ExpireHours)*time.Hour, jwtCfg.Issuer)
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭：停止接收请求，结束对局并落库，最后关闭数据库
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if s.http != nil {
		err = multierr.Append(err, s.http.Shutdown(ctx))
	}
	if s.services != nil {
		err = multierr.Append(err, s.services.Shutdown(ctx))
	}
	if s.hub != nil {
		s.hub.Shutdown(s.cfg.Server.ShutdownTimeout / 2)
	}
	err = multierr.Append(err, database.Close())

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, errors.New(errors.ErrTimeout, "关闭超时"))
	}

	if s.services != nil {
		if unwritten := s.services.Writer.Backlog(); len(unwritten) > 0 {
			s.logger.Error("仍有未落库的对局结果", zap.Strings("match_ids", unwritten))
		}
	}
	return err
}

// reloadConfig 热更新日志级别，其余配置重启生效
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)
	s.logger.Info("配置已更新", zap.String("log_level", newCfg.Log.Level))
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("骗子酒馆对局服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("骗子酒馆对局服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  liar-bar-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  LIAR_BAR_*             覆盖配置项，如 LIAR_BAR_SERVER_PORT")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  liar-bar-server -config=/path/to/config.yaml")
	fmt.Println("  liar-bar-server -hash-secret=s3cret")
}
