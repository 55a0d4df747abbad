package port

import (
	"context"

	"retina-bot/internal/domain/entity"
)

// LesionDetector интерфейс сервиса распознавания поражений сетчатки
type LesionDetector interface {
	// Predict отправляет снимок и возвращает посчитанные очаги и идентификатор случая
	Predict(ctx context.Context, image entity.IntakeImage) (*entity.InferenceResult, error)
}

// ImageIntake подготавливает загруженный файл к распознаванию
type ImageIntake interface {
	// Normalize проверяет снимок и приводит его к JPEG
	Normalize(ctx context.Context, data []byte, filename string) (*entity.IntakeImage, error)
}
