package telegram

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	app "retina-bot/internal/application"
	"retina-bot/internal/domain/entity"
)

const historyLimit = 10

var fieldLabels = map[entity.FieldName]string{
	entity.FieldPatientName:       "ФИО",
	entity.FieldGender:            "Пол",
	entity.FieldAge:               "Возраст",
	entity.FieldOccupation:        "Профессия",
	entity.FieldContact:           "Контакт",
	entity.FieldAddress:           "Адрес",
	entity.FieldChiefComplaint:    "Жалобы",
	entity.FieldPresentIllness:    "Анамнез заболевания",
	entity.FieldPastHistory:       "Анамнез жизни",
	entity.FieldClinicalDiagnosis: "Клинический диагноз",
	entity.FieldTreatmentPlan:     "План лечения",
}

// Цвета, которыми сервис подсвечивает очаги на снимке.
var lesionColors = map[entity.LesionType]string{
	entity.LesionEX: "🔴 красный",
	entity.LesionMA: "🟢 зелёный",
	entity.LesionHE: "🔵 синий",
	entity.LesionSE: "🟡 жёлтый",
}

var stageTitles = map[entity.Stage]string{
	entity.StageIdle:              "ожидание снимка",
	entity.StageSubmitting:        "распознавание снимка",
	entity.StageInferred:          "очаги посчитаны",
	entity.StageGeneratingOpinion: "формируется ИИ-заключение",
	entity.StageOpinionReady:      "заключение готово",
	entity.StageGeneratingReport:  "формируется отчёт",
	entity.StageComplete:          "отчёт готов",
}

// renderInference подпись к снимку с подсвеченными очагами
func renderInference(r *entity.InferenceResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔬 Случай %s\n\n", r.CaseID)
	for _, t := range entity.LesionTypes {
		fmt.Fprintf(&sb, "%s %s (%s): %d\n", lesionColors[t], t.Title(), t, r.Counts.Count(t))
	}
	if r.Counts.Total() == 0 {
		sb.WriteString("\nОчаги не обнаружены.\n")
	}
	sb.WriteString("\nЗаполните карту (/set, /severity) и запросите /opinion.")
	return sb.String()
}

func renderRecord(r entity.ClinicalRecord) string {
	var sb strings.Builder
	sb.WriteString("📋 Клиническая карта\n\n")
	for _, f := range entity.Fields {
		value := r.Field(f)
		if value == "" {
			value = "—"
		}
		fmt.Fprintf(&sb, "%s (%s): %s\n", fieldLabels[f], f, value)
	}
	sb.WriteString("\nСтепень по типам поражений:\n")
	for _, t := range entity.LesionTypes {
		if g, ok := r.Severity(t); ok {
			fmt.Fprintf(&sb, "%s: %s, %s\n", t, g, g.Label())
		} else {
			fmt.Fprintf(&sb, "%s: не задана\n", t)
		}
	}
	return sb.String()
}

func renderStatus(s app.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📍 Этап: %s\n", stageTitles[s.Stage])
	if s.Inference != nil {
		fmt.Fprintf(&sb, "Случай: %s, очагов: %d\n", s.Inference.CaseID, s.Inference.Counts.Total())
	}
	if s.Report != nil {
		fmt.Fprintf(&sb, "Отчёт: %s\n", s.Report.URI)
	}
	if s.Notice != "" {
		fmt.Fprintf(&sb, "⚠️ %s\n", s.Notice)
	}

	sb.WriteString("\nДоступно:\n")
	fmt.Fprintf(&sb, "%s снимок\n", mark(s.Actions.SubmitImage))
	fmt.Fprintf(&sb, "%s /opinion\n", mark(s.Actions.GenerateOpinion))
	fmt.Fprintf(&sb, "%s /report", mark(s.Actions.CompileReport))
	return sb.String()
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "⛔"
}

// renderHistory последние случаи со ссылками на отчёты
func renderHistory(entries []entity.HistoryEntry, link func(caseID string) string) string {
	if len(entries) == 0 {
		return msgHistoryEmpty
	}
	if len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	var sb strings.Builder
	sb.WriteString("🗂 Последние случаи\n")
	for _, e := range entries {
		when := e.RawTime
		if !e.Time.IsZero() {
			when = e.Time.Format("02.01.2006 15:04")
		}
		name := e.Name
		if name == "" {
			name = "без имени"
		}
		fmt.Fprintf(&sb, "\n• %s", name)
		if e.Age != "" {
			fmt.Fprintf(&sb, ", %s", e.Age)
		}
		if when != "" {
			fmt.Fprintf(&sb, " — %s", when)
		}
		fmt.Fprintf(&sb, "\n  %s", link(e.CaseID))
	}
	return sb.String()
}

// decodeImage снимок из ответа сервиса (base64 JPEG)
func decodeImage(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, "base64,"); i >= 0 {
		encoded = encoded[i+len("base64,"):]
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// suggestField ближайшее по написанию имя поля, "" если похожих нет
func suggestField(input string) entity.FieldName {
	input = strings.ToLower(strings.TrimSpace(input))
	best, bestDist := entity.FieldName(""), 4
	for _, f := range entity.Fields {
		if d := levenshtein.ComputeDistance(input, string(f)); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best
}

func fieldList() string {
	names := make([]string, 0, len(entity.Fields))
	for _, f := range entity.Fields {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
