package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixsim-server/internal/engine"
	"pixsim-server/internal/infrastructure/content"
	"pixsim-server/internal/infrastructure/storage"
	"pixsim-server/internal/server"
	"pixsim-server/internal/version"
	"pixsim-server/pkg/logger"

	"github.com/joho/godotenv"
)

func init() {
	// .env опционален: боевое окружение задает переменные напрямую.
	_ = godotenv.Load()
	logger.Init()
}

func main() {
	// 1. Парсинг конфигурации
	var (
		contentDir string
		dbPath     string
		tickRate   time.Duration
	)
	flag.StringVar(&contentDir, "content", "", "Content directory (empty for built-in demo content)")
	flag.StringVar(&dbPath, "db", "pixsim.db", "SQLite database path")
	flag.DurationVar(&tickRate, "tick-rate", time.Second, "Global simulation tick period")
	flag.Parse()

	logger.Log.Info("Starting PixSim Server...")
	logger.Log.Info(version.String())

	// 2. Контент: каталог или встроенный демо-набор
	var bundle *content.Bundle
	if contentDir != "" {
		var err error
		bundle, err = content.Load(contentDir)
		if err != nil {
			logger.Log.Fatal("Content load failed: ", err)
		}
	} else {
		logger.Log.Info("No content directory given, using built-in demo content")
		bundle = content.Default()
	}

	// 3. Персистенция
	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Log.Fatal("Storage open failed: ", err)
	}
	defer store.Close()

	// 4. Движок
	cfg := engine.NewConfig()
	cfg.TickRate = tickRate

	gameService, err := engine.NewService(cfg, bundle.Worlds, bundle.Registry, bundle.Programs, store)
	if err != nil {
		logger.Log.Fatal("Engine init failed: ", err)
	}
	if err := gameService.Start(); err != nil {
		logger.Log.Fatal("Engine start failed: ", err)
	}

	port := os.Getenv("PIXSIM_PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 5. Запуск сервера
	srv := server.New(gameService, port)
	go func() {
		if err := srv.Run(); err != nil {
			logger.Log.Fatal("Server start error: ", err)
		}
	}()

	<-stop
	logger.Log.Info("Shutting down...")

	// Останавливаем писателей: каждая сессия персистится и остается
	// неархивной, рестарт поднимет их обратно.
	gameService.Stop()

	logger.Log.Info("Done.")
}
