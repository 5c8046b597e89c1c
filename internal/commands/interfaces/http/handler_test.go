package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	commandsapp "control-cloud/internal/commands/application"
	commands "control-cloud/internal/commands/domain"
	"control-cloud/internal/commands/infrastructure/memory"
)

var baseTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newTestHandler(t *testing.T, n int) *Handler {
	t.Helper()
	store := memory.NewCommandRepository()
	for i := 0; i < n; i++ {
		rec := commands.NewRecord(fmt.Sprintf("r-%02d", i), baseTime.Add(time.Duration(i)*time.Minute))
		rec.DeviceID = "D1"
		rec.PointID = "P"
		rec.Username = "operator"
		rec.RequestedValue = "1"
		if i == 0 {
			rec.FinalStatus = commands.FinalSuccess
		}
		require.NoError(t, store.Create(context.Background(), &rec))
	}
	query, err := commandsapp.NewQueryService(store)
	require.NoError(t, err)
	handler, err := NewHandler(query, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return handler
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandler_List(t *testing.T) {
	h := newTestHandler(t, 3)

	resp := serve(h, http.MethodGet, "/api/v1/commands?device_id=D1&limit=2")
	require.Equal(t, http.StatusOK, resp.Code)

	var body ListView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.Limit)
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "r-02", body.Rows[0].RequestID)

	resp = serve(h, http.MethodGet, "/api/v1/commands?final_status=success")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
}

func TestHandler_ListBadRequest(t *testing.T) {
	h := newTestHandler(t, 0)

	for _, target := range []string{
		"/api/v1/commands?final_status=done",
		"/api/v1/commands?from=yesterday",
		"/api/v1/commands?from=2026-03-02T10:00:00Z&to=2026-03-02T09:00:00Z",
		"/api/v1/commands?page=x",
	} {
		assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, target).Code, target)
	}
}

func TestHandler_Get(t *testing.T) {
	h := newTestHandler(t, 1)

	resp := serve(h, http.MethodGet, "/api/v1/commands/r-00")
	require.Equal(t, http.StatusOK, resp.Code)
	var rec CommandView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rec))
	assert.Equal(t, "r-00", rec.RequestID)
	assert.Equal(t, commands.FinalSuccess, rec.FinalStatus)
	assert.Nil(t, rec.DeliveredAt)
	assert.Nil(t, rec.ExecutedAt)
	assert.Nil(t, rec.DurationMS)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &raw))
	for _, field := range []string{"delivered_at", "executed_at", "verified_at", "alarm_matched_at", "duration_ms"} {
		value, ok := raw[field]
		assert.True(t, ok, field)
		assert.Nil(t, value, field)
	}
	assert.Equal(t, "2026-03-02T09:30:00Z", raw["requested_at"])

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/v1/commands/missing").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/v1/commands/a/b").Code)
}

func TestNewCommandView_ResolvedTimes(t *testing.T) {
	rec := commands.NewRecord("r-1", baseTime)
	commands.DeliveryPatch(1, baseTime.Add(time.Second)).ApplyTo(&rec)
	commands.ExecutionPatch(true, false, "", 0, baseTime.Add(2*time.Second)).ApplyTo(&rec)

	view := NewCommandView(rec)
	require.NotNil(t, view.DeliveredAt)
	assert.Equal(t, baseTime.Add(time.Second), *view.DeliveredAt)
	require.NotNil(t, view.ExecutedAt)
	require.NotNil(t, view.DurationMS)
	assert.Equal(t, int64(0), *view.DurationMS)
	assert.Nil(t, view.VerifiedAt)
	assert.Nil(t, view.AlarmMatchedAt)
}

func TestHandler_ReadOnly(t *testing.T) {
	h := newTestHandler(t, 0)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPost, "/api/v1/commands").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodDelete, "/api/v1/commands/r-00").Code)
}

func TestHandler_ExportXLSX(t *testing.T) {
	h := newTestHandler(t, 2)

	resp := serve(h, http.MethodGet, "/api/v1/commands/export.xlsx")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "2", resp.Header().Get("X-Total-Count"))

	f, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue("commands", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Request ID", header)
	first, err := f.GetCellValue("commands", "A2")
	require.NoError(t, err)
	assert.Equal(t, "r-01", first)
	user, err := f.GetCellValue("commands", "C3")
	require.NoError(t, err)
	assert.Equal(t, "operator", user)
}

func TestHandler_ExportPDF(t *testing.T) {
	h := newTestHandler(t, 2)

	resp := serve(h, http.MethodGet, "/api/v1/commands/export.pdf?device_id=D1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")))
}
