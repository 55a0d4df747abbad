package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// SeverityGrade степень ретинопатии по международной клинической шкале DR.
// Отсутствие оценки хранится как отсутствие ключа в Severities.
type SeverityGrade int

const (
	SeverityHealthy      SeverityGrade = 0
	SeverityMildNPDR     SeverityGrade = 1
	SeverityModerateNPDR SeverityGrade = 2
	SeveritySevereNPDR   SeverityGrade = 3
	SeverityPDR          SeverityGrade = 4
)

var severityNames = map[SeverityGrade]string{
	SeverityHealthy:      "Healthy",
	SeverityMildNPDR:     "Mild-NPDR",
	SeverityModerateNPDR: "Moderate-NPDR",
	SeveritySevereNPDR:   "Severe-NPDR",
	SeverityPDR:          "PDR",
}

// Подписи, которые сервис отчётов печатает в PDF.
var severityLabels = map[SeverityGrade]string{
	SeverityHealthy:      "健康",
	SeverityMildNPDR:     "轻度非增殖性 DR（Mild-NPDR）",
	SeverityModerateNPDR: "中度非增殖性 DR（Moderate-NPDR）",
	SeveritySevereNPDR:   "重度非增殖性 DR（Severe-NPDR）",
	SeverityPDR:          "增殖性 DR（PDR）",
}

// ParseSeverityGrade принимает цифру 0-4 или короткое имя (mild-npdr, pdr...)
func ParseSeverityGrade(s string) (SeverityGrade, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		g := SeverityGrade(n)
		if !g.Valid() {
			return 0, fmt.Errorf("severity grade out of range: %d", n)
		}
		return g, nil
	}
	for g, name := range severityNames {
		if strings.EqualFold(name, s) {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unknown severity grade %q", s)
}

// Valid сообщает, входит ли оценка в шкалу 0-4
func (g SeverityGrade) Valid() bool {
	_, ok := severityNames[g]
	return ok
}

// Code цифровой код оценки в том виде, в котором его ждёт сервис
func (g SeverityGrade) Code() string {
	return strconv.Itoa(int(g))
}

func (g SeverityGrade) String() string {
	if name, ok := severityNames[g]; ok {
		return name
	}
	return "Unknown"
}

// Label подпись степени на языке отчёта
func (g SeverityGrade) Label() string {
	if label, ok := severityLabels[g]; ok {
		return label
	}
	return "未知"
}
