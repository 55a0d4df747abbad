package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken    string
	TelegramSendRate float64 `validate:"gt=0"` // сообщений в секунду на весь бот

	Diagnosis DiagnosisConfig
	Intake    IntakeConfig
	Log       LogConfig
}

// DiagnosisConfig адрес сервиса диагностики и таймауты его этапов
type DiagnosisConfig struct {
	BaseURL        string        `validate:"required,url"`
	PredictTimeout time.Duration `validate:"gt=0"`
	OpinionTimeout time.Duration `validate:"gt=0"`
	ReportTimeout  time.Duration `validate:"gt=0"`
	HistoryTimeout time.Duration `validate:"gt=0"`
}

type IntakeConfig struct {
	MaxImageMB         int `validate:"min=1"`
	MaxImageMegapixels int `validate:"min=1"`
	MinImageSide       int `validate:"min=1"`
	MaxImageSide       int `validate:"gtefield=MinImageSide"`
}

// MaxBytes предел размера загружаемого файла
func (c IntakeConfig) MaxBytes() int {
	return c.MaxImageMB << 20
}

// MaxPixels предел размеров снимка до декодирования
func (c IntakeConfig) MaxPixels() int {
	return c.MaxImageMegapixels * 1_000_000
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Env    string `validate:"oneof=development production"`
	Output string `validate:"required"`
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_send_rate", 20)
	v.SetDefault("diagnosis_base_url", "http://localhost:8005")
	v.SetDefault("predict_timeout", 2*time.Minute)
	v.SetDefault("opinion_timeout", 90*time.Second)
	v.SetDefault("report_timeout", 60*time.Second)
	v.SetDefault("history_timeout", 15*time.Second)
	v.SetDefault("max_image_mb", 20)
	v.SetDefault("max_image_megapixels", 50)
	v.SetDefault("min_image_side", 256)
	v.SetDefault("max_image_side", 2048)
	v.SetDefault("log_level", "info")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_output", "stdout")
	v.AutomaticEnv()

	cfg := &Config{
		TelegramToken:    v.GetString("telegram_token"),
		TelegramSendRate: v.GetFloat64("telegram_send_rate"),
		Diagnosis: DiagnosisConfig{
			BaseURL:        v.GetString("diagnosis_base_url"),
			PredictTimeout: v.GetDuration("predict_timeout"),
			OpinionTimeout: v.GetDuration("opinion_timeout"),
			ReportTimeout:  v.GetDuration("report_timeout"),
			HistoryTimeout: v.GetDuration("history_timeout"),
		},
		Intake: IntakeConfig{
			MaxImageMB:         v.GetInt("max_image_mb"),
			MaxImageMegapixels: v.GetInt("max_image_megapixels"),
			MinImageSide:       v.GetInt("min_image_side"),
			MaxImageSide:       v.GetInt("max_image_side"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Env:    v.GetString("app_env"),
			Output: v.GetString("log_output"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения после загрузки
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
