package entity

import (
	"fmt"
	"strings"
)

// LesionType тип поражения сетчатки, который различает сервис распознавания
type LesionType string

const (
	LesionMA LesionType = "MA" // микроаневризмы
	LesionHE LesionType = "HE" // кровоизлияния
	LesionEX LesionType = "EX" // твёрдые экссудаты
	LesionSE LesionType = "SE" // мягкие экссудаты
)

// LesionTypes фиксирует порядок вывода поражений в отчётах и сообщениях.
var LesionTypes = []LesionType{LesionMA, LesionHE, LesionEX, LesionSE}

var lesionTitles = map[LesionType]string{
	LesionMA: "Микроаневризмы",
	LesionHE: "Кровоизлияния",
	LesionEX: "Твёрдые экссудаты",
	LesionSE: "Мягкие экссудаты",
}

// ParseLesionType разбирает код поражения без учёта регистра
func ParseLesionType(s string) (LesionType, error) {
	t := LesionType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := lesionTitles[t]; !ok {
		return "", fmt.Errorf("unknown lesion type %q", s)
	}
	return t, nil
}

// Title возвращает человекочитаемое название поражения
func (t LesionType) Title() string {
	if title, ok := lesionTitles[t]; ok {
		return title
	}
	return string(t)
}

// LesionCounts количество найденных очагов каждого типа.
// Заполняется только клиентом распознавания и дальше не меняется.
type LesionCounts struct {
	MA int
	HE int
	EX int
	SE int
}

// Count возвращает количество очагов заданного типа
func (c LesionCounts) Count(t LesionType) int {
	switch t {
	case LesionMA:
		return c.MA
	case LesionHE:
		return c.HE
	case LesionEX:
		return c.EX
	case LesionSE:
		return c.SE
	}
	return 0
}

// Total суммарное число очагов
func (c LesionCounts) Total() int {
	return c.MA + c.HE + c.EX + c.SE
}

// Validate проверяет, что счётчики неотрицательные
func (c LesionCounts) Validate() error {
	for _, t := range LesionTypes {
		if c.Count(t) < 0 {
			return fmt.Errorf("negative %s count: %d", t, c.Count(t))
		}
	}
	return nil
}
