package diagnosis

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retina-bot/internal/domain/entity"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", srv.Client(), zap.NewNop())
}

func testRecord(t *testing.T) entity.ClinicalRecord {
	t.Helper()
	var r entity.ClinicalRecord
	require.NoError(t, r.SetField(entity.FieldPatientName, "张三"))
	require.NoError(t, r.SetField(entity.FieldAge, "58"))
	require.NoError(t, r.SetField(entity.FieldChiefComplaint, "视物模糊"))
	require.NoError(t, r.SetSeverity(entity.LesionMA, entity.SeverityMildNPDR))
	require.NoError(t, r.SetSeverity(entity.LesionHE, entity.SeverityHealthy))
	return r
}

func TestClient_Predict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		require.Equal(t, "eye.jpg", header.Filename)
		require.Equal(t, []byte("jpeg-bytes"), data)

		_, _ = w.Write([]byte(`{"uuid":"case-42","preprocessed_image":"cHJl","predicted_image":"cG9zdA==",
			"lesion_counts":{"MA":3,"HE":5,"EX":0,"SE":1}}`))
	})

	result, err := client.Predict(context.Background(), entity.IntakeImage{Data: []byte("jpeg-bytes"), Filename: "eye.jpg"})
	require.NoError(t, err)
	require.Equal(t, "case-42", result.CaseID)
	require.Equal(t, "cHJl", result.PreprocessedImage)
	require.Equal(t, "cG9zdA==", result.AnnotatedImage)
	require.Equal(t, entity.LesionCounts{MA: 3, HE: 5, EX: 0, SE: 1}, result.Counts)
}

func TestClient_PredictErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No file uploaded"}`))
	})

	_, err := client.Predict(context.Background(), entity.IntakeImage{Data: []byte("x")})
	var transport *entity.TransportError
	require.True(t, errors.As(err, &transport))
	require.Equal(t, http.StatusBadRequest, transport.StatusCode)
	require.Equal(t, "No file uploaded", transport.Message)
	require.Equal(t, "predict", transport.Op)
}

func TestClient_PredictMalformed(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing uuid", body: `{"preprocessed_image":"a","predicted_image":"b","lesion_counts":{"MA":1,"HE":0,"EX":0,"SE":0}}`, field: "uuid"},
		{name: "missing count", body: `{"uuid":"c","preprocessed_image":"a","predicted_image":"b","lesion_counts":{"MA":1,"HE":0,"EX":0}}`, field: "SE"},
		{name: "negative count", body: `{"uuid":"c","preprocessed_image":"a","predicted_image":"b","lesion_counts":{"MA":-1,"HE":0,"EX":0,"SE":0}}`, field: "MA"},
		{name: "missing counts", body: `{"uuid":"c","preprocessed_image":"a","predicted_image":"b"}`, field: "lesion_counts"},
		{name: "not json", body: `<html>oops</html>`, field: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Predict(context.Background(), entity.IntakeImage{Data: []byte("x")})
			var malformed *entity.MalformedResponseError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			require.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, nil, nil)
	_, err := client.GenerateOpinion(context.Background(), entity.OpinionRequest{CaseID: "c"})
	var transport *entity.TransportError
	require.True(t, errors.As(err, &transport))
	require.Zero(t, transport.StatusCode)
}

func TestClient_RespectsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// без чтения тела сервер не замечает разрыв соединения
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	// Cleanup выполняется в обратном порядке: обработчик отпускается до srv.Close
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.CompileReport(ctx, entity.ReportRequest{CaseID: "c", Opinion: "o"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_GenerateOpinionSendsFullRecord(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate_diagnosis", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ai_response":"建议随访"}`))
	})

	text, err := client.GenerateOpinion(context.Background(), entity.OpinionRequest{
		CaseID: "case-42",
		Record: testRecord(t),
		Counts: entity.LesionCounts{MA: 3, HE: 5, EX: 0, SE: 1},
	})
	require.NoError(t, err)
	require.Equal(t, "建议随访", text)

	require.Len(t, got, 19)
	require.Equal(t, "张三", got["name"])
	require.Equal(t, "58", got["age"])
	require.Equal(t, "", got["gender"])
	require.Equal(t, "视物模糊", got["chief_complaint"])
	require.EqualValues(t, 3, got["ma_count"])
	require.EqualValues(t, 5, got["he_count"])
	require.EqualValues(t, 0, got["ex_count"])
	require.EqualValues(t, 1, got["se_count"])
	require.Equal(t, "1", got["ma_severity"])
	require.Equal(t, "0", got["he_severity"])
	require.Equal(t, "", got["ex_severity"])
	require.NotContains(t, got, "uuid")
}

func TestClient_GenerateOpinionEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.GenerateOpinion(context.Background(), entity.OpinionRequest{CaseID: "c"})
	var malformed *entity.MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "ai_response", malformed.Field)
}

func TestClient_CompileReport(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate_report", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"report_path":"http://svc/diagnostic-report/case-42"}`))
	})

	report, err := client.CompileReport(context.Background(), entity.ReportRequest{
		CaseID:  "case-42",
		Record:  testRecord(t),
		Counts:  entity.LesionCounts{MA: 3, HE: 5, SE: 1},
		Opinion: "建议随访",
	})
	require.NoError(t, err)
	require.Equal(t, "case-42", report.CaseID)
	require.Equal(t, "http://svc/diagnostic-report/case-42", report.URI)

	require.Len(t, got, 21)
	require.Equal(t, "case-42", got["uuid"])
	require.Equal(t, "建议随访", got["ai_diagnosis"])
	require.Equal(t, "张三", got["name"])
	require.EqualValues(t, 3, got["ma_count"])
}

func TestClient_History(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/history", r.URL.Path)
		_, _ = w.Write([]byte(`{"history":[
			{"uuid":"b","name":"李四","gender":"男","age":"61","occupation":"","contact":"","address":"","time":"2024-05-02 09:30:00"},
			{"uuid":"a","name":"王五","time":"вчера"}
		]}`))
	})

	entries, err := client.History(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, "b", entries[0].CaseID)
	require.Equal(t, "李四", entries[0].Name)
	require.True(t, entries[0].Time.Equal(time.Date(2024, 5, 2, 1, 30, 0, 0, time.UTC)))
	require.Empty(t, entries[0].RawTime)

	require.True(t, entries[1].Time.IsZero())
	require.Equal(t, "вчера", entries[1].RawTime)
}

func TestClient_ReportLink(t *testing.T) {
	client := NewClient("http://svc:8005/", nil, nil)
	require.Equal(t, "http://svc:8005/diagnostic-report/case-42", client.ReportLink("case-42"))
	require.Equal(t, "http://svc:8005/diagnostic-report/a%2Fb", client.ReportLink("a/b"))
}
