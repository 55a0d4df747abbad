package entity

import "time"

// IntakeImage снимок глазного дна, подготовленный к отправке на распознавание.
type IntakeImage struct {
	Data     []byte // JPEG после нормализации
	Filename string // имя файла в multipart-запросе
	Format   string // исходный формат: jpeg, png, tiff, dicom...
	Width    int
	Height   int
}

// InferenceResult итог распознавания поражений для одного случая.
type InferenceResult struct {
	CaseID            string       // идентификатор случая, ключ для всех следующих вызовов
	PreprocessedImage string       // base64 JPEG после предобработки
	AnnotatedImage    string       // base64 JPEG с подсвеченными очагами
	Counts            LesionCounts // количество очагов по типам
}

// Clone копия результата, чтобы наружу не уходили внутренние указатели
func (r *InferenceResult) Clone() *InferenceResult {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// OpinionRequest данные для генерации ИИ-заключения.
type OpinionRequest struct {
	CaseID string
	Record ClinicalRecord
	Counts LesionCounts
}

// ReportRequest данные для формирования отчёта.
type ReportRequest struct {
	CaseID  string
	Record  ClinicalRecord
	Counts  LesionCounts
	Opinion string
}

// Report ссылка на сформированный отчёт, конечная сущность сценария.
type Report struct {
	CaseID string
	URI    string
}

// HistoryEntry краткая запись о прошлом случае из журнала сервиса.
type HistoryEntry struct {
	CaseID     string
	Name       string
	Gender     string
	Age        string
	Occupation string
	Contact    string
	Address    string
	Time       time.Time
	RawTime    string // время в исходном виде, если не удалось разобрать
}
