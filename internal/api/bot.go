package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	app "retina-bot/internal/application"
	"retina-bot/internal/container"
	"retina-bot/internal/domain/entity"
	"retina-bot/internal/domain/port"
)

const (
	msgStart = `👋 Здравствуйте! Я помогаю провести скрининг диабетической ретинопатии.

📸 Отправьте снимок глазного дна, я посчитаю очаги поражения, подготовлю ИИ-заключение и PDF-отчёт.

📋 Команды:
/new — новый случай
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Порядок работы:

1️⃣ Отправьте снимок глазного дна (фото или файл JPEG, PNG, TIFF, DICOM)
2️⃣ Заполните карту: /set <поле> <значение>, /severity <MA|HE|EX|SE> <0-4>
3️⃣ /opinion — ИИ-заключение по карте и очагам
4️⃣ /report — PDF-отчёт

📋 Команды:
/record — клиническая карта
/status — текущий этап и доступные действия
/history — последние случаи
/export — журнал случаев в Excel
/cancel — отменить ввод

Степени: 0 Healthy, 1 Mild-NPDR, 2 Moderate-NPDR, 3 Severe-NPDR, 4 PDR`

	msgAwaitingPhoto   = "📸 Отправьте снимок глазного дна."
	msgCancelled       = "❌ Операция отменена. Отправьте /new для нового случая."
	msgSendPhoto       = "📸 Отправьте снимок глазного дна или команду из /help."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Распознаю снимок..."
	msgGenerating      = "⏳ Формирую ИИ-заключение..."
	msgCompiling       = "⏳ Формирую отчёт..."
	msgProcessingError = "⚠️ Не удалось загрузить снимок. Попробуйте отправить его ещё раз."
	msgFileTooLarge    = "⚠️ Файл слишком большой."
	msgFileEmpty       = "⚠️ Файл пуст. Отправьте снимок ещё раз."
	msgStillAwaiting   = "📸 Жду снимок глазного дна. Отправьте /cancel, чтобы выйти в меню."
	msgBusy            = "⏳ Предыдущий запрос ещё выполняется, дождитесь ответа."
	msgNeedImage       = "⛔ Пока недоступно: сначала отправьте снимок глазного дна."
	msgNeedOpinion     = "⛔ Пока недоступно: сначала получите ИИ-заключение (/opinion)."
	msgCaseComplete    = "✅ Отчёт по этому случаю уже готов. Отправьте новый снимок для следующего случая."
	msgFieldSaved      = "✅ Сохранено."
	msgHistoryEmpty    = "🗂 Журнал пуст."
	msgHistoryError    = "⚠️ Не удалось получить журнал случаев."
	msgOpinionReady    = "🧠 ИИ-заключение:\n\n%s\n\nОтправьте /report для формирования отчёта или /opinion, чтобы сформировать заново."
	msgReportReady     = "📄 Отчёт готов: %s"
)

const (
	exportFilename = "history.xlsx"

	// предел Telegram на текст сообщения, в кодовых единицах UTF-16
	maxMessageUnits = 4096
)

// API методы Telegram, которыми пользуется бот
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Settings ограничения бота
type Settings struct {
	SendRate       float64 // сообщений в секунду, 0 — без ограничения
	MaxFileBytes   int
	HistoryTimeout time.Duration
}

// Bot представляет Telegram-бота
type Bot struct {
	api       API
	operators *app.OperatorService
	workflows *app.WorkflowService
	history   port.HistoryReader
	settings  Settings
	limiter   *rate.Limiter
	http      *http.Client
	log       *zap.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

// NewBot создаёт нового бота
func NewBot(token string, c *container.Container, settings Settings, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("Authorized on account", zap.String("username", api.Self.UserName))

	return New(api, c, settings, logger), nil
}

// New собирает бота поверх готового клиента Telegram
func New(api API, c *container.Container, settings Settings, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if settings.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.SendRate), 1)
	}

	b := &Bot{
		api:       api,
		operators: c.OperatorService,
		workflows: c.WorkflowService,
		history:   c.History,
		settings:  settings,
		limiter:   limiter,
		http:      &http.Client{Timeout: 2 * time.Minute},
		log:       logger,
		ctx:       context.Background(),
	}
	c.WorkflowService.Subscribe(app.ObserverFunc(b.onWorkflowEvent))
	return b
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	operator, err := b.operators.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		b.log.Error("Bot.handleMessage get operator failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return
	}

	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg, operator)
		return
	}

	// Обработка снимка: фото или файл без сжатия
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		b.handleImage(ctx, msg, operator, photo.FileID, "fundus.jpg", photo.FileSize)
		return
	}
	if msg.Document != nil {
		b.handleImage(ctx, msg, operator, msg.Document.FileID, msg.Document.FileName, msg.Document.FileSize)
		return
	}

	switch {
	case operator.State == entity.StateAwaitingField && msg.Text != "":
		b.fillPendingField(ctx, msg, operator)
	case operator.State == entity.StateAwaitingPhoto:
		b.sendMessage(msg.Chat.ID, msgStillAwaiting)
	default:
		b.sendMessage(msg.Chat.ID, msgSendPhoto)
	}
}

// handleImage скачивает снимок и запускает распознавание в фоне
func (b *Bot) handleImage(ctx context.Context, msg *tgbotapi.Message, operator *entity.Operator, fileID, filename string, size int) {
	chatID := msg.Chat.ID
	w := b.workflows.Workflow(chatID)

	if !w.Actions().SubmitImage {
		b.sendMessage(chatID, msgBusy)
		return
	}
	if b.settings.MaxFileBytes > 0 && size > b.settings.MaxFileBytes {
		b.sendMessage(chatID, msgFileTooLarge)
		return
	}

	// снимок закрывает ожидание снимка и незаполненное поле
	if operator.State != entity.StateMainMenu {
		if _, err := b.operators.SetState(ctx, operator.ID, chatID, entity.StateMainMenu); err != nil {
			b.log.Error("Bot.handleImage save operator failed", zap.Error(err))
		}
	}
	b.sendMessage(chatID, msgProcessing)

	b.spawn(func(ctx context.Context) {
		data, err := b.downloadFile(ctx, fileID)
		if err != nil {
			b.log.Error("Bot.handleImage download failed", zap.Int64("chat_id", chatID), zap.Error(err))
			switch {
			case errors.Is(err, entity.ErrImageTooLarge):
				b.sendMessage(chatID, msgFileTooLarge)
			case errors.Is(err, entity.ErrEmptyImage):
				b.sendMessage(chatID, msgFileEmpty)
			default:
				b.sendMessage(chatID, msgProcessingError)
			}
			return
		}

		// результат и ошибки доставляет onWorkflowEvent
		if _, err := w.SubmitImage(ctx, data, filename); err != nil {
			b.reportStageError(chatID, "SubmitImage", err)
		}
	})
}

// spawn выполняет долгую операцию вне цикла обновлений
func (b *Bot) spawn(fn func(ctx context.Context)) {
	ctx := b.ctx
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(ctx)
	}()
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if b.settings.MaxFileBytes > 0 {
		// лишний байт позволяет заметить превышение
		body = io.LimitReader(resp.Body, int64(b.settings.MaxFileBytes)+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if b.settings.MaxFileBytes > 0 && len(data) > b.settings.MaxFileBytes {
		return nil, entity.ErrImageTooLarge
	}
	if len(data) == 0 {
		return nil, entity.ErrEmptyImage
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение, длинный текст уходит частями
func (b *Bot) sendMessage(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageUnits) {
		b.send(tgbotapi.NewMessage(chatID, part))
	}
}

// splitMessage режет текст на части не длиннее limit единиц UTF-16,
// по возможности по переводу строки
func splitMessage(text string, limit int) []string {
	var parts []string
	for utf16Len(text) > limit {
		cut := prefixWithin(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		if part := strings.TrimRight(text[:cut], "\n"); part != "" {
			parts = append(parts, part)
		}
		text = text[cut:]
	}
	if text != "" || len(parts) == 0 {
		parts = append(parts, text)
	}
	return parts
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// prefixWithin длина в байтах самого длинного префикса в limit единиц
func prefixWithin(s string, limit int) int {
	units := 0
	for i, r := range s {
		units += runeUnits(r)
		if units > limit {
			return i
		}
	}
	return len(s)
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if err := b.limiter.Wait(b.ctx); err != nil {
		return
	}
	if _, err := b.api.Send(c); err != nil {
		b.log.Error("Bot.send failed", zap.Error(err))
	}
}
