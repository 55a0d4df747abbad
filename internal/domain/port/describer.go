package port

import (
	"context"

	"retina-bot/internal/domain/entity"
)

// OpinionGenerator интерфейс генератора ИИ-заключения
type OpinionGenerator interface {
	// GenerateOpinion формирует текст заключения по карте и найденным очагам
	GenerateOpinion(ctx context.Context, req entity.OpinionRequest) (string, error)
}

// ReportCompiler интерфейс сервиса отчётов
type ReportCompiler interface {
	// CompileReport собирает отчёт и возвращает ссылку на него
	CompileReport(ctx context.Context, req entity.ReportRequest) (*entity.Report, error)
}

// HistoryReader журнал прошлых случаев
type HistoryReader interface {
	History(ctx context.Context) ([]entity.HistoryEntry, error)
	ReportLink(caseID string) string
}
