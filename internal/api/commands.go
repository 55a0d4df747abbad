package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	app "retina-bot/internal/application"
	"retina-bot/internal/domain/entity"
	"retina-bot/internal/infrastructure/export"
)

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, operator *entity.Operator) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.setState(ctx, operator, entity.StateMainMenu)
		b.sendMessage(chatID, msgStart)

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "new":
		if _, err := b.operators.BeginIntake(ctx, operator.ID, chatID); err != nil {
			b.log.Error("Bot.handleCommand begin intake failed", zap.Error(err))
		}
		b.sendMessage(chatID, msgAwaitingPhoto)

	case "cancel":
		if _, err := b.operators.Cancel(ctx, operator.ID, chatID); err != nil {
			b.log.Error("Bot.handleCommand cancel failed", zap.Error(err))
		}
		b.sendMessage(chatID, msgCancelled)

	case "set":
		b.handleSet(ctx, msg, operator)

	case "severity":
		b.handleSeverity(msg)

	case "record":
		b.sendMessage(chatID, renderRecord(b.workflows.Workflow(chatID).Snapshot().Record))

	case "status":
		b.sendMessage(chatID, renderStatus(b.workflows.Workflow(chatID).Snapshot()))

	case "opinion":
		b.handleOpinion(chatID)

	case "report":
		b.handleReport(chatID)

	case "history":
		b.handleHistory(chatID)

	case "export":
		b.handleExport(chatID)

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

func (b *Bot) setState(ctx context.Context, operator *entity.Operator, state entity.OperatorState) {
	if _, err := b.operators.SetState(ctx, operator.ID, operator.ChatID, state); err != nil {
		b.log.Error("Bot.setState failed", zap.Int64("user_id", operator.ID), zap.Error(err))
	}
}

// handleSet /set <поле> [значение]. Без значения ждём его следующим сообщением.
func (b *Bot) handleSet(ctx context.Context, msg *tgbotapi.Message, operator *entity.Operator) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.sendMessage(chatID, "Использование: /set <поле> <значение>\nПоля: "+fieldList())
		return
	}

	name, value, _ := strings.Cut(args, " ")
	field, ok := entity.ParseFieldName(name)
	if !ok {
		text := fmt.Sprintf("❓ Неизвестное поле %q.", name)
		if s := suggestField(name); s != "" {
			text += fmt.Sprintf(" Возможно, вы имели в виду %s?", s)
		}
		b.sendMessage(chatID, text+"\nПоля: "+fieldList())
		return
	}

	value = strings.TrimSpace(value)
	if value == "" {
		if _, err := b.operators.AwaitField(ctx, operator.ID, chatID, field); err != nil {
			b.log.Error("Bot.handleSet await field failed", zap.Error(err))
			return
		}
		b.sendMessage(chatID, fmt.Sprintf("✏️ Введите значение поля «%s».", fieldLabels[field]))
		return
	}

	b.applyField(chatID, field, value)
}

// fillPendingField значение поля, запрошенного через /set без значения
func (b *Bot) fillPendingField(ctx context.Context, msg *tgbotapi.Message, operator *entity.Operator) {
	if b.applyField(msg.Chat.ID, operator.PendingField, msg.Text) {
		b.setState(ctx, operator, entity.StateMainMenu)
	}
}

func (b *Bot) applyField(chatID int64, field entity.FieldName, value string) bool {
	if err := b.workflows.Workflow(chatID).SetField(field, value); err != nil {
		b.log.Info("Bot.applyField rejected", zap.String("field", string(field)), zap.Error(err))
		b.sendMessage(chatID, fmt.Sprintf("⚠️ Недопустимое значение поля «%s».", fieldLabels[field]))
		return false
	}
	b.sendMessage(chatID, msgFieldSaved)
	return true
}

// handleSeverity /severity <MA|HE|EX|SE> <0-4>
func (b *Bot) handleSeverity(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		b.sendMessage(chatID, "Использование: /severity <MA|HE|EX|SE> <0-4>")
		return
	}

	lesion, err := entity.ParseLesionType(args[0])
	if err != nil {
		b.sendMessage(chatID, "❓ Тип поражения: MA, HE, EX или SE.")
		return
	}
	grade, err := entity.ParseSeverityGrade(args[1])
	if err != nil {
		b.sendMessage(chatID, "❓ Степень: число от 0 до 4.")
		return
	}

	if err := b.workflows.Workflow(chatID).SetSeverity(lesion, grade); err != nil {
		b.sendMessage(chatID, "⚠️ Не удалось сохранить степень.")
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ %s: %s, %s", lesion, grade, grade.Label()))
}

func (b *Bot) handleOpinion(chatID int64) {
	w := b.workflows.Workflow(chatID)
	if !w.Actions().GenerateOpinion {
		b.sendMessage(chatID, unavailableOpinion(w.Snapshot()))
		return
	}

	b.sendMessage(chatID, msgGenerating)
	b.spawn(func(ctx context.Context) {
		if _, err := w.GenerateOpinion(ctx); err != nil {
			b.reportStageError(chatID, "GenerateOpinion", err)
		}
	})
}

func (b *Bot) handleReport(chatID int64) {
	w := b.workflows.Workflow(chatID)
	if !w.Actions().CompileReport {
		b.sendMessage(chatID, unavailableReport(w.Snapshot()))
		return
	}

	b.sendMessage(chatID, msgCompiling)
	b.spawn(func(ctx context.Context) {
		if _, err := w.CompileReport(ctx); err != nil {
			b.reportStageError(chatID, "CompileReport", err)
		}
	})
}

func (b *Bot) handleHistory(chatID int64) {
	b.withHistory(chatID, func(entries []entity.HistoryEntry) {
		b.sendMessage(chatID, renderHistory(entries, b.history.ReportLink))
	})
}

// handleExport /export журнал случаев файлом xlsx
func (b *Bot) handleExport(chatID int64) {
	b.withHistory(chatID, func(entries []entity.HistoryEntry) {
		if len(entries) == 0 {
			b.sendMessage(chatID, msgHistoryEmpty)
			return
		}
		data, err := export.HistoryWorkbook(entries, b.history.ReportLink)
		if err != nil {
			b.log.Error("Bot.handleExport build workbook failed", zap.Int64("chat_id", chatID), zap.Error(err))
			b.sendMessage(chatID, msgHistoryError)
			return
		}
		b.send(tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: exportFilename, Bytes: data}))
	})
}

// withHistory запрашивает журнал в фоне и передаёт его в fn
func (b *Bot) withHistory(chatID int64, fn func([]entity.HistoryEntry)) {
	if b.history == nil {
		b.sendMessage(chatID, msgHistoryError)
		return
	}

	b.spawn(func(ctx context.Context) {
		if b.settings.HistoryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.settings.HistoryTimeout)
			defer cancel()
		}

		entries, err := b.history.History(ctx)
		if err != nil {
			b.log.Error("Bot.withHistory failed", zap.Int64("chat_id", chatID), zap.Error(err))
			b.sendMessage(chatID, msgHistoryError)
			return
		}
		fn(entries)
	})
}

func unavailableOpinion(s app.Snapshot) string {
	switch {
	case s.Stage == entity.StageComplete:
		return msgCaseComplete
	case s.Stage.InFlight():
		return msgBusy
	default:
		return msgNeedImage
	}
}

func unavailableReport(s app.Snapshot) string {
	switch {
	case s.Stage == entity.StageComplete:
		return msgCaseComplete
	case s.Stage.InFlight():
		return msgBusy
	case s.Inference == nil:
		return msgNeedImage
	default:
		return msgNeedOpinion
	}
}

// reportStageError сообщает об отказе, о котором не расскажет onWorkflowEvent
func (b *Bot) reportStageError(chatID int64, stage string, err error) {
	switch {
	case errors.Is(err, entity.ErrSuperseded):
		b.log.Info("Bot stage result dropped", zap.String("stage", stage), zap.Int64("chat_id", chatID))
	case errors.Is(err, entity.ErrStageBusy):
		b.sendMessage(chatID, msgBusy)
	case errors.Is(err, entity.ErrWorkflowComplete):
		b.sendMessage(chatID, msgCaseComplete)
	case errors.Is(err, entity.ErrMissingOpinion):
		b.sendMessage(chatID, msgNeedOpinion)
	case errors.Is(err, entity.ErrEmptyImage):
		b.sendMessage(chatID, msgFileEmpty)
	case errors.Is(err, entity.ErrPrecondition):
		b.sendMessage(chatID, msgNeedImage)
	default:
		// откат и уведомление оператору уже пришли через событие
		b.log.Warn("Bot stage failed", zap.String("stage", stage), zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// onWorkflowEvent переводит переходы сценария в сообщения оператору
func (b *Bot) onWorkflowEvent(e app.Event) {
	chatID := e.Snapshot.SessionID
	if e.From == e.To {
		return
	}

	switch e.To {
	case entity.StageInferred:
		if e.From == entity.StageSubmitting {
			b.sendInference(chatID, e.Snapshot.Inference)
			return
		}
	case entity.StageOpinionReady:
		if e.From == entity.StageGeneratingOpinion {
			b.sendMessage(chatID, fmt.Sprintf(msgOpinionReady, e.Snapshot.Opinion))
			return
		}
	case entity.StageComplete:
		if e.Snapshot.Report != nil {
			b.sendMessage(chatID, fmt.Sprintf(msgReportReady, e.Snapshot.Report.URI))
		}
		return
	}

	if e.Snapshot.Notice != "" {
		b.sendMessage(chatID, "⚠️ "+e.Snapshot.Notice)
	}
}

func (b *Bot) sendInference(chatID int64, r *entity.InferenceResult) {
	if r == nil {
		return
	}
	caption := renderInference(r)

	data, err := decodeImage(r.AnnotatedImage)
	if err != nil || len(data) == 0 {
		b.log.Warn("Bot.sendInference annotated image is not decodable", zap.String("case_id", r.CaseID), zap.Error(err))
		b.sendMessage(chatID, caption)
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: r.CaseID + ".jpg", Bytes: data})
	photo.Caption = caption
	b.send(photo)
}
