package diagnosis

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"retina-bot/internal/domain/entity"
)

// Время в журнале сервис пишет по Пекину без указания зоны.
const historyTimeLayout = "2006-01-02 15:04:05"

var beijing = time.FixedZone("CST", 8*60*60)

type errorResponse struct {
	Error string `json:"error"`
}

type lesionCountsDTO struct {
	MA *int `json:"MA" validate:"required,min=0"`
	HE *int `json:"HE" validate:"required,min=0"`
	EX *int `json:"EX" validate:"required,min=0"`
	SE *int `json:"SE" validate:"required,min=0"`
}

type predictResponse struct {
	UUID              string           `json:"uuid" validate:"required"`
	PreprocessedImage string           `json:"preprocessed_image" validate:"required"`
	PredictedImage    string           `json:"predicted_image" validate:"required"`
	LesionCounts      *lesionCountsDTO `json:"lesion_counts" validate:"required"`
}

func (r *predictResponse) toEntity() *entity.InferenceResult {
	return &entity.InferenceResult{
		CaseID:            r.UUID,
		PreprocessedImage: r.PreprocessedImage,
		AnnotatedImage:    r.PredictedImage,
		Counts: entity.LesionCounts{
			MA: *r.LesionCounts.MA,
			HE: *r.LesionCounts.HE,
			EX: *r.LesionCounts.EX,
			SE: *r.LesionCounts.SE,
		},
	}
}

// diagnosisRequest тело /generate_diagnosis. Сервис требует все поля,
// поэтому пустые значения тоже отправляются.
type diagnosisRequest struct {
	Name              string `json:"name"`
	Gender            string `json:"gender"`
	Age               string `json:"age"`
	Occupation        string `json:"occupation"`
	Contact           string `json:"contact"`
	Address           string `json:"address"`
	ChiefComplaint    string `json:"chief_complaint"`
	PresentIllness    string `json:"present_illness"`
	PastHistory       string `json:"past_history"`
	MACount           int    `json:"ma_count"`
	HECount           int    `json:"he_count"`
	EXCount           int    `json:"ex_count"`
	SECount           int    `json:"se_count"`
	MASeverity        string `json:"ma_severity"`
	HESeverity        string `json:"he_severity"`
	EXSeverity        string `json:"ex_severity"`
	SESeverity        string `json:"se_severity"`
	ClinicalDiagnosis string `json:"clinical_diagnosis"`
	TreatmentPlan     string `json:"treatment_plan"`
}

func newDiagnosisRequest(record entity.ClinicalRecord, counts entity.LesionCounts) diagnosisRequest {
	return diagnosisRequest{
		Name:              record.Name,
		Gender:            record.Gender,
		Age:               record.Age,
		Occupation:        record.Occupation,
		Contact:           record.Contact,
		Address:           record.Address,
		ChiefComplaint:    record.ChiefComplaint,
		PresentIllness:    record.PresentIllness,
		PastHistory:       record.PastHistory,
		MACount:           counts.MA,
		HECount:           counts.HE,
		EXCount:           counts.EX,
		SECount:           counts.SE,
		MASeverity:        record.SeverityCode(entity.LesionMA),
		HESeverity:        record.SeverityCode(entity.LesionHE),
		EXSeverity:        record.SeverityCode(entity.LesionEX),
		SESeverity:        record.SeverityCode(entity.LesionSE),
		ClinicalDiagnosis: record.ClinicalDiagnosis,
		TreatmentPlan:     record.TreatmentPlan,
	}
}

type diagnosisResponse struct {
	AIResponse string `json:"ai_response" validate:"required"`
}

type reportRequest struct {
	diagnosisRequest
	UUID        string `json:"uuid"`
	AIDiagnosis string `json:"ai_diagnosis"`
}

type reportResponse struct {
	ReportPath string `json:"report_path" validate:"required"`
}

type historyItem struct {
	UUID       string `json:"uuid" validate:"required"`
	Name       string `json:"name"`
	Gender     string `json:"gender"`
	Age        string `json:"age"`
	Occupation string `json:"occupation"`
	Contact    string `json:"contact"`
	Address    string `json:"address"`
	Time       string `json:"time"`
}

type historyResponse struct {
	History []historyItem `json:"history" validate:"dive"`
}

func (h historyItem) toEntity() entity.HistoryEntry {
	e := entity.HistoryEntry{
		CaseID:     h.UUID,
		Name:       h.Name,
		Gender:     h.Gender,
		Age:        h.Age,
		Occupation: h.Occupation,
		Contact:    h.Contact,
		Address:    h.Address,
	}
	if t, err := time.ParseInLocation(historyTimeLayout, h.Time, beijing); err == nil {
		e.Time = t
	} else {
		e.RawTime = h.Time
	}
	return e
}

var validate = newValidator()

// newValidator называет поля в ошибках так же, как они называются в JSON
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// invalidField имя первого поля, не прошедшего проверку
func invalidField(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return ""
}
