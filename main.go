package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.fiblab.net/sim/saferoute/config"
	"git.fiblab.net/sim/saferoute/router"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var (
	// 配置信息
	configPath      = flag.String("config", "", "yaml config file (empty means built-in defaults)")
	mongoURI        = flag.String("mongo_uri", "", "mongo db uri, falls back to $MONGO_URI")
	streetsPathStr  = flag.String("streets", "", "street network ways [format: {fspath} or {db}.{col}]")
	crimesPathStr   = flag.String("crimes", "", "crime incidents, can be empty [format: {fspath} or {db}.{col}]")
	placesPathStr   = flag.String("places", "", "places of interest and cameras, can be empty [format: {fspath} or {db}.{col}]")
	transitPathStr  = flag.String("transit", "", "transit stops, can be empty [format: {fspath} or {db}.{col}]")
	connectEndpoint = flag.String("listen", "localhost:52101", "connect listening address")
	logLevel        = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "localhost:52102", "pprof and metrics listening address")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

func mustPath(name, value string) *Path {
	p, err := NewPath(value)
	if err != nil {
		log.Fatalf("invalid %s path: %s", name, err)
	}
	return p
}

func main() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	flag.Parse()
	if level, ok := LOG_LEVELS[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("load .env: %v", err)
	}
	if *mongoURI == "" {
		*mongoURI = os.Getenv("MONGO_URI")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	src, err := openSources(context.Background(), *mongoURI,
		mustPath("streets", *streetsPathStr),
		mustPath("crimes", *crimesPathStr),
		mustPath("places", *placesPathStr),
		mustPath("transit", *transitPathStr),
	)
	if err != nil {
		log.Fatalf("open sources: %v", err)
	}
	defer src.Close()
	// 启动导航服务
	server := NewSafeRouteServer(router.New(cfg, src.providers))

	if *pprofAddr != "" {
		// 启动pprof
		startHTTPDebugger(*pprofAddr)
	}

	if *benchmark {
		// 性能测试
		runBenchmark(server, src)
		return
	}

	// 启动tcp监听和初始化connect服务端
	mux := http.NewServeMux()
	mux.Handle(NewSafeRouteServiceHandler(server))

	addr := *connectEndpoint
	// 使用HTTP/2 w.o. TLS
	s := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	// 优雅退出
	// 创建监听退出chan
	signalCh := make(chan os.Signal, 1)
	//监听指定信号 ctrl+c kill
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("stopping...")
		go func() {
			<-signalCh
			os.Exit(1) // 强制结束
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// 退出connect-go
		if err := s.Shutdown(ctx); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}()
	// SIGHUP重新加载配置文件
	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)
	go func() {
		for range reloadCh {
			cfg, err := config.Load(*configPath)
			if err != nil {
				log.Errorf("reload config: %v", err)
				continue
			}
			server.Reload(router.New(cfg, src.providers))
			log.Info("config reloaded")
		}
	}()

	// 启动connect server
	log.Infof("server listening at %v", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to serve: %v", err)
	}
	// 退出导航服务
	server.Close()
	log.Info("saferoute closes")
}
