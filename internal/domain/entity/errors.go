package entity

import (
	"errors"
	"fmt"
)

// Ошибки предусловий: этап вызван раньше, чем готовы его данные.
// Удалённый вызов при этом не выполняется, состояние не меняется.
var (
	ErrPrecondition     = errors.New("stage precondition is not met")
	ErrNoInference      = fmt.Errorf("%w: lesion counts are not available", ErrPrecondition)
	ErrMissingCaseID    = fmt.Errorf("%w: case id is not set", ErrPrecondition)
	ErrMissingOpinion   = fmt.Errorf("%w: diagnostic opinion is not generated", ErrPrecondition)
	ErrWorkflowComplete = fmt.Errorf("%w: workflow is complete", ErrPrecondition)
	ErrEmptyImage       = fmt.Errorf("%w: image payload is empty", ErrPrecondition)

	ErrStageBusy  = errors.New("stage call is already in flight")
	ErrSuperseded = errors.New("workflow instance was superseded by a new submission")

	ErrInvalidField  = errors.New("invalid clinical record value")
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = errors.New("image is too large")
	ErrPoorQuality   = errors.New("image quality is too low")
)

// TransportError сеть недоступна или сервис ответил не 2xx.
type TransportError struct {
	Op         string
	StatusCode int    // 0, если ответа не было
	Message    string // текст поля error из тела ответа
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError в ответе нет ожидаемых полей или он не разбирается.
type MalformedResponseError struct {
	Op    string
	Field string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: malformed response: field %s: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// InferenceError ошибка отправки снимка на распознавание
type InferenceError struct{ Err error }

func (e *InferenceError) Error() string { return "inference: " + e.Err.Error() }
func (e *InferenceError) Unwrap() error { return e.Err }

// OpinionError ошибка генерации ИИ-заключения
type OpinionError struct{ Err error }

func (e *OpinionError) Error() string { return "opinion: " + e.Err.Error() }
func (e *OpinionError) Unwrap() error { return e.Err }

// ReportError ошибка формирования отчёта
type ReportError struct{ Err error }

func (e *ReportError) Error() string { return "report: " + e.Err.Error() }
func (e *ReportError) Unwrap() error { return e.Err }
