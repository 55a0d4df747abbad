package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "token", cfg.TelegramToken)
	require.Equal(t, "http://localhost:8005", cfg.Diagnosis.BaseURL)
	require.Equal(t, 2*time.Minute, cfg.Diagnosis.PredictTimeout)
	require.Equal(t, 90*time.Second, cfg.Diagnosis.OpinionTimeout)
	require.Equal(t, 60*time.Second, cfg.Diagnosis.ReportTimeout)
	require.Equal(t, 15*time.Second, cfg.Diagnosis.HistoryTimeout)
	require.Equal(t, 20<<20, cfg.Intake.MaxBytes())
	require.Equal(t, 50_000_000, cfg.Intake.MaxPixels())
	require.Equal(t, 256, cfg.Intake.MinImageSide)
	require.Equal(t, float64(20), cfg.TelegramSendRate)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "development", cfg.Log.Env)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DIAGNOSIS_BASE_URL", "http://diagnosis:8005")
	t.Setenv("OPINION_TIMEOUT", "3m")
	t.Setenv("MAX_IMAGE_MB", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://diagnosis:8005", cfg.Diagnosis.BaseURL)
	require.Equal(t, 3*time.Minute, cfg.Diagnosis.OpinionTimeout)
	require.Equal(t, 5<<20, cfg.Intake.MaxBytes())
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"base url", "DIAGNOSIS_BASE_URL", "not a url"},
		{"timeout", "REPORT_TIMEOUT", "0s"},
		{"log level", "LOG_LEVEL", "verbose"},
		{"image size", "MAX_IMAGE_MB", "0"},
		{"megapixels", "MAX_IMAGE_MEGAPIXELS", "0"},
		{"max side", "MAX_IMAGE_SIDE", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
