package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/offgate/offgate/internal/cache"
	"github.com/offgate/offgate/internal/config"
	"github.com/offgate/offgate/internal/interceptor"
	"github.com/offgate/offgate/internal/lifecycle"
	"github.com/offgate/offgate/internal/logging"
	"github.com/offgate/offgate/internal/notify"
	"github.com/offgate/offgate/internal/server"
	"github.com/offgate/offgate/internal/server/routes"
	"github.com/offgate/offgate/internal/syncretry"
	"github.com/offgate/offgate/internal/version"
)

// syncTag 是后台同步信号的标签，应用上下文以此识别 SYNC_TODOS。
const syncTag = "sync-todos"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["version"] = cfg.App.Version
		fields["precache"] = len(cfg.App.Precache)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 磁盘缓存 → 安装/激活 → Fiber server”顺序，
	// 安装失败即视为该版本作废，进程以非零码退出。
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)
	notifier := notify.NewNotifier(logger)
	manager := lifecycle.NewManager(cfg.App, store, httpClient, logger, notifier)

	ctx := context.Background()
	if err := manager.Install(ctx); err != nil {
		fmt.Fprintf(stdErr, "安装失败: %v\n", err)
		return 1
	}
	if err := manager.Activate(ctx); err != nil {
		fmt.Fprintf(stdErr, "激活失败: %v\n", err)
		return 1
	}

	prober := notify.NewProber(cfg.App.EffectiveProbeEndpoint(), cfg.Global.ProbeTimeout.DurationValue(), logger)
	scheduler := syncretry.NewScheduler(notifier, prober, logger,
		cfg.Global.InitialBackoff.DurationValue(), cfg.Global.MaxRetries)
	scheduler.Register(syncTag)
	defer scheduler.Close()

	gateway := interceptor.NewHandler(interceptor.Options{
		Client:    httpClient,
		Logger:    logger,
		Store:     store,
		Notifier:  notifier,
		Lifecycle: manager,
		App:       cfg.App,
		OnOffline: scheduler.ArmAll,
	})
	dispatcher := notify.NewDispatcher(notifier, prober, manager.SkipWaiting, logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["app_version"] = cfg.App.Version
	fields["partitions"] = cfg.App.CurrentPartitions()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, gateway, dispatcher, notifier, store, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("offgate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 OFFGATE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("OFFGATE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(
	cfg *config.Config,
	gateway server.GatewayHandler,
	dispatcher *notify.Dispatcher,
	notifier *notify.Notifier,
	store cache.Store,
	logger *logrus.Logger,
) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Gateway:    gateway,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterControlRoutes(app, routes.ControlOptions{
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Store:      store,
	})

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
