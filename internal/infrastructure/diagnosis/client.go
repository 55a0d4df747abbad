// Package diagnosis клиент удалённого сервиса диагностики ретинопатии:
// распознавание очагов, ИИ-заключение, PDF-отчёт и журнал случаев.
package diagnosis

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"retina-bot/internal/domain/entity"
)

const (
	pathPredict   = "/predict"
	pathDiagnosis = "/generate_diagnosis"
	pathReport    = "/generate_report"
	pathHistory   = "/history"
	pathReportPDF = "/diagnostic-report/"

	headerRequestID = "X-Request-ID"
)

// Client реализует port.LesionDetector, port.OpinionGenerator,
// port.ReportCompiler и port.HistoryReader поверх HTTP.
// Повторов нет: неудачный этап оператор запускает заново сам.
type Client struct {
	baseURL string
	http    *resty.Client
	log     *zap.Logger
}

// NewClient создаёт клиент. Таймауты задаются контекстом каждого вызова,
// поэтому у httpClient их можно не выставлять.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetLogger(logger.Sugar()).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{
		baseURL: baseURL,
		http:    client,
		log:     logger,
	}
}

// Predict отправляет снимок полем file и возвращает очаги и идентификатор случая
func (c *Client) Predict(ctx context.Context, image entity.IntakeImage) (*entity.InferenceResult, error) {
	const op = "predict"
	requestID := uuid.NewString()
	c.log.Info("Client.Predict called",
		zap.String("request_id", requestID),
		zap.Int("bytes", len(image.Data)),
	)

	filename := image.Filename
	if filename == "" {
		filename = "fundus.jpg"
	}

	var resp predictResponse
	err := c.do(ctx, op, requestID, http.MethodPost, pathPredict, func(r *resty.Request) {
		r.SetFileReader("file", filename, bytes.NewReader(image.Data))
	}, &resp)
	if err != nil {
		c.log.Error("Client.Predict failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	result := resp.toEntity()
	c.log.Info("Client.Predict succeeded",
		zap.String("request_id", requestID),
		zap.String("case_id", result.CaseID),
		zap.Int("lesions", result.Counts.Total()),
	)
	return result, nil
}

// GenerateOpinion запрашивает текст ИИ-заключения
func (c *Client) GenerateOpinion(ctx context.Context, req entity.OpinionRequest) (string, error) {
	const op = "generate_diagnosis"
	requestID := uuid.NewString()
	c.log.Info("Client.GenerateOpinion called",
		zap.String("request_id", requestID),
		zap.String("case_id", req.CaseID),
	)

	var resp diagnosisResponse
	if err := c.do(ctx, op, requestID, http.MethodPost, pathDiagnosis, jsonBody(newDiagnosisRequest(req.Record, req.Counts)), &resp); err != nil {
		c.log.Error("Client.GenerateOpinion failed", zap.String("request_id", requestID), zap.Error(err))
		return "", err
	}

	c.log.Info("Client.GenerateOpinion succeeded",
		zap.String("request_id", requestID),
		zap.String("case_id", req.CaseID),
	)
	return resp.AIResponse, nil
}

// CompileReport собирает PDF-отчёт на стороне сервиса
func (c *Client) CompileReport(ctx context.Context, req entity.ReportRequest) (*entity.Report, error) {
	const op = "generate_report"
	requestID := uuid.NewString()
	c.log.Info("Client.CompileReport called",
		zap.String("request_id", requestID),
		zap.String("case_id", req.CaseID),
	)

	body := reportRequest{
		diagnosisRequest: newDiagnosisRequest(req.Record, req.Counts),
		UUID:             req.CaseID,
		AIDiagnosis:      req.Opinion,
	}

	var resp reportResponse
	if err := c.do(ctx, op, requestID, http.MethodPost, pathReport, jsonBody(body), &resp); err != nil {
		c.log.Error("Client.CompileReport failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	c.log.Info("Client.CompileReport succeeded",
		zap.String("request_id", requestID),
		zap.String("case_id", req.CaseID),
		zap.String("report", resp.ReportPath),
	)
	return &entity.Report{CaseID: req.CaseID, URI: resp.ReportPath}, nil
}

// History журнал прошлых случаев, новые первыми
func (c *Client) History(ctx context.Context) ([]entity.HistoryEntry, error) {
	const op = "history"
	requestID := uuid.NewString()
	c.log.Info("Client.History called", zap.String("request_id", requestID))

	var resp historyResponse
	if err := c.do(ctx, op, requestID, http.MethodGet, pathHistory, nil, &resp); err != nil {
		c.log.Error("Client.History failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	entries := make([]entity.HistoryEntry, 0, len(resp.History))
	for _, item := range resp.History {
		entries = append(entries, item.toEntity())
	}

	c.log.Info("Client.History succeeded",
		zap.String("request_id", requestID),
		zap.Int("records", len(entries)),
	)
	return entries, nil
}

// ReportLink ссылка на PDF-отчёт случая
func (c *Client) ReportLink(caseID string) string {
	return c.baseURL + pathReportPDF + url.PathEscape(caseID)
}

func jsonBody(body any) func(*resty.Request) {
	return func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}
}

// do выполняет запрос и разбирает ответ в out. Сетевые ошибки и статусы
// не 2xx превращаются в TransportError, неразборчивый ответ в MalformedResponseError.
func (c *Client) do(ctx context.Context, op, requestID, method, path string, prepare func(*resty.Request), out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader(headerRequestID, requestID)
	if prepare != nil {
		prepare(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &entity.TransportError{Op: op, Err: err}
	}

	data := resp.Body()
	if !resp.IsSuccess() {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return &entity.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Message:    e.Error,
			Err:        errors.New(http.StatusText(resp.StatusCode())),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &entity.MalformedResponseError{Op: op, Err: err}
	}
	if err := validate.Struct(out); err != nil {
		return &entity.MalformedResponseError{Op: op, Field: invalidField(err), Err: err}
	}
	return nil
}
