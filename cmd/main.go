package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"retina-bot/config"
	telegram "retina-bot/internal/api"
	app "retina-bot/internal/application"
	"retina-bot/internal/container"
	"retina-bot/internal/infrastructure/diagnosis"
	"retina-bot/internal/infrastructure/storage"
	"retina-bot/internal/infrastructure/vision"
	"retina-bot/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	// Создаём хранилище операторов
	operatorRepo := storage.NewMemoryOperatorRepository()

	// Клиент сервиса диагностики закрывает все три удалённых этапа и журнал
	client := diagnosis.NewClient(cfg.Diagnosis.BaseURL, &http.Client{}, zapLogger)

	gate := vision.NewFundusQualityGate(cfg.Intake.MinImageSide)
	var qualityGate vision.QualityGate
	if gate.Enabled() {
		qualityGate = gate
	} else {
		zapLogger.Warn("Fundus quality gate is disabled, build with -tags gocv to enable it")
	}
	intake := vision.NewIntake(vision.IntakeConfig{
		MaxBytes:  cfg.Intake.MaxBytes(),
		MaxPixels: cfg.Intake.MaxPixels(),
		MinSide:   cfg.Intake.MinImageSide,
		MaxSide:   cfg.Intake.MaxImageSide,
	}, qualityGate, zapLogger)

	// Собираем сервисы приложения
	appContainer := container.New(operatorRepo, app.Services{
		Detector: client,
		Opinions: client,
		Reports:  client,
		Intake:   intake,
		Timeouts: app.Timeouts{
			Predict: cfg.Diagnosis.PredictTimeout,
			Opinion: cfg.Diagnosis.OpinionTimeout,
			Report:  cfg.Diagnosis.ReportTimeout,
		},
	}, client, zapLogger)

	// Создаём бота
	bot, err := telegram.NewBot(cfg.TelegramToken, appContainer, telegram.Settings{
		SendRate:       cfg.TelegramSendRate,
		MaxFileBytes:   cfg.Intake.MaxBytes(),
		HistoryTimeout: cfg.Diagnosis.HistoryTimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("Bot is running...", zap.String("diagnosis_url", cfg.Diagnosis.BaseURL))
	if err := bot.Run(ctx); err != nil {
		zapLogger.Fatal("Bot error", zap.Error(err))
	}
	zapLogger.Info("Bot stopped")
}
