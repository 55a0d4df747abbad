package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"retina-bot/internal/domain/entity"
	"retina-bot/internal/domain/port"
)

// Сообщения оператору при неудачном этапе.
const (
	NoticeImageRejected   = "Снимок не прошёл проверку. Сделайте более чёткое фото глазного дна и отправьте его снова."
	NoticeInferenceFailed = "Не удалось распознать снимок. Отправьте его ещё раз."
	NoticeOpinionFailed   = "Не удалось сформировать ИИ-заключение. Повторите /opinion."
	NoticeReportFailed    = "Не удалось сформировать отчёт. Повторите /report."
)

// Timeouts ограничения времени на удалённые вызовы, 0 — без ограничения
type Timeouts struct {
	Predict time.Duration
	Opinion time.Duration
	Report  time.Duration
}

// Services внешние зависимости сценария
type Services struct {
	Detector port.LesionDetector
	Opinions port.OpinionGenerator
	Reports  port.ReportCompiler
	Intake   port.ImageIntake // может быть nil, тогда снимок уходит как есть
	Timeouts Timeouts
}

// Actions какие действия сейчас доступны оператору
type Actions struct {
	SubmitImage     bool
	GenerateOpinion bool
	CompileReport   bool
}

// Snapshot неизменяемый срез состояния сценария
type Snapshot struct {
	SessionID  int64
	Stage      entity.Stage
	Record     entity.ClinicalRecord
	Inference  *entity.InferenceResult
	Opinion    string
	HasOpinion bool
	Report     *entity.Report
	Notice     string
	Actions    Actions
}

// Event уведомление об изменении сценария. From == To означает правку карты.
type Event struct {
	From     entity.Stage
	To       entity.Stage
	Snapshot Snapshot
}

// Observer получает уведомления в порядке изменений состояния
type Observer interface {
	Notify(Event)
}

// ObserverFunc адаптер функции к Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Workflow конечный автомат одного сценария диагностики:
// снимок -> распознавание -> ИИ-заключение -> отчёт.
// Удалённые вызовы идут без удержания блокировки, повторный вызов
// того же этапа до его завершения отклоняется.
type Workflow struct {
	sessionID int64
	services  Services
	log       *zap.Logger

	mu         sync.Mutex
	stage      entity.Stage
	record     entity.ClinicalRecord
	inference  *entity.InferenceResult
	opinion    string
	hasOpinion bool
	report     *entity.Report
	notice     string
	call       uint64             // номер последнего начатого удалённого вызова
	cancel     context.CancelFunc // отмена незавершённого вызова
	observers  []observerEntry
	nextID     int
	pending    []Event

	dispatchMu sync.Mutex
}

type observerEntry struct {
	id       int
	observer Observer
}

// NewWorkflow создаёт сценарий для сессии оператора
func NewWorkflow(sessionID int64, services Services, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		sessionID: sessionID,
		services:  services,
		log:       logger.With(zap.Int64("session_id", sessionID)),
		stage:     entity.StageIdle,
	}
}

// Subscribe подписывает наблюдателя, возвращает функцию отписки
func (w *Workflow) Subscribe(o Observer) func() {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.observers = append(w.observers, observerEntry{id: id, observer: o})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, e := range w.observers {
			if e.id == id {
				w.observers = append(w.observers[:i:i], w.observers[i+1:]...)
				return
			}
		}
	}
}

// SubmitImage начинает новый экземпляр сценария: всё, что было получено
// для прошлого снимка, отбрасывается, незавершённые вызовы отменяются.
func (w *Workflow) SubmitImage(ctx context.Context, data []byte, filename string) (*entity.InferenceResult, error) {
	if len(data) == 0 {
		return nil, entity.ErrEmptyImage
	}
	if w.services.Detector == nil {
		return nil, errors.New("detector is not configured")
	}

	w.mu.Lock()
	if !w.stage.AllowsNewSubmission() {
		w.mu.Unlock()
		return nil, entity.ErrStageBusy
	}
	w.resetLocked()
	callCtx, token := w.beginLocked(ctx, entity.StageSubmitting, w.services.Timeouts.Predict)
	w.mu.Unlock()
	w.dispatch()

	w.log.Info("Workflow.SubmitImage called", zap.Int("bytes", len(data)))

	image := entity.IntakeImage{Data: data, Filename: filename}
	if w.services.Intake != nil {
		prepared, err := w.services.Intake.Normalize(callCtx, data, filename)
		if err != nil {
			w.log.Warn("Workflow.SubmitImage image rejected", zap.Error(err))
			if ferr := w.fail(token, NoticeImageRejected); ferr != nil {
				return nil, ferr
			}
			return nil, err
		}
		image = *prepared
	}

	result, err := w.services.Detector.Predict(callCtx, image)
	if err == nil {
		err = checkInference(result)
	}
	if err != nil {
		err = asInferenceError(err)
		w.log.Error("Workflow.SubmitImage failed", zap.Error(err))
		if ferr := w.fail(token, NoticeInferenceFailed); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}

	stored := result.Clone()
	err = w.finish(token, entity.StageInferred, "", func() {
		w.inference = stored
	})
	if err != nil {
		return nil, err
	}

	w.log.Info("Workflow.SubmitImage succeeded",
		zap.String("case_id", stored.CaseID),
		zap.Int("lesions", stored.Counts.Total()),
	)
	return stored.Clone(), nil
}

// GenerateOpinion запрашивает ИИ-заключение по текущей карте и очагам.
// Карта берётся на момент вызова, последующие правки попадут только в следующий запрос.
func (w *Workflow) GenerateOpinion(ctx context.Context) (string, error) {
	if w.services.Opinions == nil {
		return "", errors.New("opinion generator is not configured")
	}

	w.mu.Lock()
	switch {
	case w.stage == entity.StageGeneratingOpinion:
		w.mu.Unlock()
		return "", entity.ErrStageBusy
	case w.stage == entity.StageComplete:
		w.mu.Unlock()
		return "", entity.ErrWorkflowComplete
	case w.inference == nil:
		w.mu.Unlock()
		return "", entity.ErrNoInference
	case w.stage != entity.StageInferred && w.stage != entity.StageOpinionReady:
		w.mu.Unlock()
		return "", entity.ErrStageBusy
	}

	req := entity.OpinionRequest{
		CaseID: w.inference.CaseID,
		Record: w.record.Clone(),
		Counts: w.inference.Counts,
	}
	// новое заключение полностью заменяет прежнее
	w.opinion, w.hasOpinion = "", false
	callCtx, token := w.beginLocked(ctx, entity.StageGeneratingOpinion, w.services.Timeouts.Opinion)
	w.mu.Unlock()
	w.dispatch()

	w.log.Info("Workflow.GenerateOpinion called", zap.String("case_id", req.CaseID))

	text, err := w.services.Opinions.GenerateOpinion(callCtx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = &entity.MalformedResponseError{Op: "generate_diagnosis", Field: "ai_response", Err: errors.New("empty opinion")}
	}
	if err != nil {
		var opErr *entity.OpinionError
		if !errors.As(err, &opErr) {
			err = &entity.OpinionError{Err: err}
		}
		w.log.Error("Workflow.GenerateOpinion failed", zap.String("case_id", req.CaseID), zap.Error(err))
		if ferr := w.fail(token, NoticeOpinionFailed); ferr != nil {
			return "", ferr
		}
		return "", err
	}

	err = w.finish(token, entity.StageOpinionReady, "", func() {
		w.opinion, w.hasOpinion = text, true
	})
	if err != nil {
		return "", err
	}

	w.log.Info("Workflow.GenerateOpinion succeeded", zap.String("case_id", req.CaseID), zap.Int("length", len(text)))
	return text, nil
}

// CompileReport формирует отчёт. Без идентификатора случая или заключения
// удалённый вызов не выполняется.
func (w *Workflow) CompileReport(ctx context.Context) (*entity.Report, error) {
	if w.services.Reports == nil {
		return nil, errors.New("report compiler is not configured")
	}

	w.mu.Lock()
	switch {
	case w.stage == entity.StageGeneratingReport:
		w.mu.Unlock()
		return nil, entity.ErrStageBusy
	case w.stage == entity.StageComplete:
		w.mu.Unlock()
		return nil, entity.ErrWorkflowComplete
	case w.inference == nil || w.inference.CaseID == "":
		w.mu.Unlock()
		return nil, entity.ErrMissingCaseID
	case !w.hasOpinion:
		w.mu.Unlock()
		return nil, entity.ErrMissingOpinion
	}

	req := entity.ReportRequest{
		CaseID:  w.inference.CaseID,
		Record:  w.record.Clone(),
		Counts:  w.inference.Counts,
		Opinion: w.opinion,
	}
	callCtx, token := w.beginLocked(ctx, entity.StageGeneratingReport, w.services.Timeouts.Report)
	w.mu.Unlock()
	w.dispatch()

	w.log.Info("Workflow.CompileReport called", zap.String("case_id", req.CaseID))

	report, err := w.services.Reports.CompileReport(callCtx, req)
	if err == nil && (report == nil || report.URI == "") {
		err = &entity.MalformedResponseError{Op: "generate_report", Field: "report_path", Err: errors.New("empty report link")}
	}
	if err != nil {
		var repErr *entity.ReportError
		if !errors.As(err, &repErr) {
			err = &entity.ReportError{Err: err}
		}
		w.log.Error("Workflow.CompileReport failed", zap.String("case_id", req.CaseID), zap.Error(err))
		if ferr := w.fail(token, NoticeReportFailed); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}

	stored := *report
	if stored.CaseID == "" {
		stored.CaseID = req.CaseID
	}
	err = w.finish(token, entity.StageComplete, "", func() {
		w.report = &stored
	})
	if err != nil {
		return nil, err
	}

	w.log.Info("Workflow.CompileReport succeeded", zap.String("case_id", req.CaseID), zap.String("report", stored.URI))
	out := stored
	return &out, nil
}

// SetField записывает поле карты. Правка доступна на любом этапе
// и действует на следующий удалённый вызов.
func (w *Workflow) SetField(field entity.FieldName, value string) error {
	w.mu.Lock()
	if err := w.record.SetField(field, value); err != nil {
		w.mu.Unlock()
		return err
	}
	w.pushLocked(w.stage, w.stage)
	w.mu.Unlock()
	w.dispatch()
	return nil
}

// SetSeverity выставляет оценку тяжести для типа поражения
func (w *Workflow) SetSeverity(t entity.LesionType, g entity.SeverityGrade) error {
	w.mu.Lock()
	if err := w.record.SetSeverity(t, g); err != nil {
		w.mu.Unlock()
		return err
	}
	w.pushLocked(w.stage, w.stage)
	w.mu.Unlock()
	w.dispatch()
	return nil
}

// Snapshot текущее состояние сценария
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Stage текущий этап
func (w *Workflow) Stage() entity.Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// Actions доступные действия
func (w *Workflow) Actions() Actions {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.actionsLocked()
}

func (w *Workflow) actionsLocked() Actions {
	return Actions{
		SubmitImage:     w.stage.AllowsNewSubmission(),
		GenerateOpinion: w.inference != nil && (w.stage == entity.StageInferred || w.stage == entity.StageOpinionReady),
		CompileReport:   w.stage == entity.StageOpinionReady && w.hasOpinion && w.inference != nil && w.inference.CaseID != "",
	}
}

func (w *Workflow) snapshotLocked() Snapshot {
	var report *entity.Report
	if w.report != nil {
		r := *w.report
		report = &r
	}
	return Snapshot{
		SessionID:  w.sessionID,
		Stage:      w.stage,
		Record:     w.record.Clone(),
		Inference:  w.inference.Clone(),
		Opinion:    w.opinion,
		HasOpinion: w.hasOpinion,
		Report:     report,
		Notice:     w.notice,
		Actions:    w.actionsLocked(),
	}
}

// resetLocked отбрасывает результаты прошлого снимка и отменяет его вызовы
func (w *Workflow) resetLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.inference = nil
	w.opinion, w.hasOpinion = "", false
	w.report = nil
	w.notice = ""
	if w.stage != entity.StageIdle {
		w.setStageLocked(entity.StageIdle)
	}
}

// beginLocked переводит сценарий в этап с удалённым вызовом
func (w *Workflow) beginLocked(ctx context.Context, stage entity.Stage, timeout time.Duration) (context.Context, uint64) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	w.call++
	w.cancel = cancel
	w.notice = ""
	w.setStageLocked(stage)
	return callCtx, w.call
}

// finish завершает вызов с номером token. Если за это время начался
// новый экземпляр, результат отбрасывается и возвращается ErrSuperseded.
func (w *Workflow) finish(token uint64, to entity.Stage, notice string, apply func()) error {
	return w.settle(token, func() entity.Stage { return to }, notice, apply)
}

// fail откатывает неудачный вызов в устойчивый этап, из которого он начался
func (w *Workflow) fail(token uint64, notice string) error {
	return w.settle(token, func() entity.Stage { return w.stage.Fallback() }, notice, nil)
}

// settle вызывает target под блокировкой, после сверки token
func (w *Workflow) settle(token uint64, target func() entity.Stage, notice string, apply func()) error {
	w.mu.Lock()
	if token != w.call {
		w.mu.Unlock()
		w.log.Info("Workflow result dropped", zap.String("notice", notice))
		return entity.ErrSuperseded
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if apply != nil {
		apply()
	}
	w.notice = notice
	w.setStageLocked(target())
	w.mu.Unlock()
	w.dispatch()
	return nil
}

func (w *Workflow) setStageLocked(to entity.Stage) {
	from := w.stage
	if !from.CanTransition(to) {
		w.log.DPanic("Workflow illegal transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}
	w.stage = to
	w.pushLocked(from, to)
}

func (w *Workflow) pushLocked(from, to entity.Stage) {
	w.pending = append(w.pending, Event{From: from, To: to, Snapshot: w.snapshotLocked()})
}

// dispatch доставляет накопленные события. Одновременно работает только
// один доставщик, поэтому порядок событий совпадает с порядком изменений,
// а наблюдатель может безопасно вызывать методы Workflow.
func (w *Workflow) dispatch() {
	for {
		if !w.dispatchMu.TryLock() {
			return
		}
		for {
			w.mu.Lock()
			events := w.pending
			w.pending = nil
			observers := make([]Observer, len(w.observers))
			for i, e := range w.observers {
				observers[i] = e.observer
			}
			w.mu.Unlock()

			if len(events) == 0 {
				break
			}
			for _, ev := range events {
				for _, o := range observers {
					o.Notify(ev)
				}
			}
		}
		w.dispatchMu.Unlock()

		w.mu.Lock()
		empty := len(w.pending) == 0
		w.mu.Unlock()
		if empty {
			return
		}
	}
}

func checkInference(r *entity.InferenceResult) error {
	if r == nil {
		return &entity.MalformedResponseError{Op: "predict", Err: errors.New("empty result")}
	}
	if r.CaseID == "" {
		return &entity.MalformedResponseError{Op: "predict", Field: "uuid", Err: errors.New("empty case id")}
	}
	if err := r.Counts.Validate(); err != nil {
		return &entity.MalformedResponseError{Op: "predict", Field: "lesion_counts", Err: err}
	}
	return nil
}

func asInferenceError(err error) error {
	var infErr *entity.InferenceError
	if errors.As(err, &infErr) {
		return err
	}
	return &entity.InferenceError{Err: err}
}
