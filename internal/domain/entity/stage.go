package entity

// Stage этап сценария диагностики
type Stage string

const (
	StageIdle              Stage = "idle"               // ждём снимок
	StageSubmitting        Stage = "submitting"         // снимок на распознавании
	StageInferred          Stage = "inferred"           // очаги посчитаны
	StageGeneratingOpinion Stage = "generating_opinion" // формируется ИИ-заключение
	StageOpinionReady      Stage = "opinion_ready"      // заключение готово
	StageGeneratingReport  Stage = "generating_report"  // формируется отчёт
	StageComplete          Stage = "complete"           // отчёт готов
)

// transitions допустимые переходы между этапами.
// Сброс в Idle под новый снимок разрешён из любого этапа, кроме самого
// распознавания, и проверяется отдельно в AllowsNewSubmission.
var transitions = map[Stage][]Stage{
	StageIdle:              {StageSubmitting},
	StageSubmitting:        {StageInferred, StageIdle},
	StageInferred:          {StageGeneratingOpinion},
	StageGeneratingOpinion: {StageOpinionReady, StageInferred},
	StageOpinionReady:      {StageGeneratingOpinion, StageGeneratingReport},
	StageGeneratingReport:  {StageComplete, StageOpinionReady},
	StageComplete:          {},
}

// InFlight сообщает, что на этапе есть незавершённый удалённый вызов
func (s Stage) InFlight() bool {
	return s == StageSubmitting || s == StageGeneratingOpinion || s == StageGeneratingReport
}

// Fallback устойчивый этап, в который откатывается неудачный вызов
func (s Stage) Fallback() Stage {
	switch s {
	case StageSubmitting:
		return StageIdle
	case StageGeneratingOpinion:
		return StageInferred
	case StageGeneratingReport:
		return StageOpinionReady
	}
	return s
}

// CanTransition проверяет, разрешён ли переход
func (s Stage) CanTransition(to Stage) bool {
	if to == StageIdle && s != StageSubmitting {
		return s.AllowsNewSubmission()
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowsNewSubmission новый снимок можно отправить, пока не идёт распознавание
func (s Stage) AllowsNewSubmission() bool {
	return s != StageSubmitting
}
