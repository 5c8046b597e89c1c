package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	commandsapp "control-cloud/internal/commands/application"
	commands "control-cloud/internal/commands/domain"
	"control-cloud/internal/observability/metrics"
)

const basePath = "/api/v1/commands"

// Handler serves the read-only command log endpoints.
type Handler struct {
	query  *commandsapp.QueryService
	logger *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(query *commandsapp.QueryService, logger *log.Logger) (*Handler, error) {
	if query == nil {
		return nil, errors.New("commands handler: nil query service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{query: query, logger: logger}, nil
}

// ServeHTTP handles routes under /api/v1/commands.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch path {
	case basePath:
		h.handleList(w, r)
		return
	case basePath + "/export.xlsx":
		h.handleExport(w, r, "xlsx")
		return
	case basePath + "/export.pdf":
		h.handleExport(w, r, "pdf")
		return
	}
	if strings.HasPrefix(path, basePath+"/") {
		id := strings.TrimPrefix(path, basePath+"/")
		if id != "" && !strings.Contains(id, "/") {
			h.handleGet(w, r, id)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, page, limit, err := parseListQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.query.ListCommands(r.Context(), filter, page, limit)
	if err != nil {
		h.logger.Printf("commands list error: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(NewListView(result))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, requestID string) {
	rec, err := h.query.GetCommand(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, commands.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("commands get error: request_id=%s err=%v", requestID, err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(NewCommandView(*rec))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport(format, result, time.Since(start))
	}()

	filter, page, limit, err := parseListQuery(r)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("limit") == "" {
		limit = 200
	}
	list, err := h.query.ListCommands(r.Context(), filter, page, limit)
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("commands export error: format=%s err=%v", format, err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildCommandLogPDF(list.Rows, time.Now().UTC())
		contentType = "application/pdf"
	default:
		data, err = BuildCommandLogXLSX(list.Rows)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="commands.`+format+`"`)
	w.Header().Set("X-Total-Count", strconv.Itoa(list.Total))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseListQuery(r *http.Request) (commands.ListFilter, int, int, error) {
	q := r.URL.Query()
	filter := commands.ListFilter{
		TenantID:     q.Get("tenant_id"),
		SiteID:       q.Get("site_id"),
		UserID:       q.Get("user_id"),
		DeviceID:     q.Get("device_id"),
		PointID:      q.Get("point_id"),
		ProtocolType: q.Get("protocol_type"),
		FinalStatus:  commands.FinalStatus(q.Get("final_status")),
	}
	if filter.FinalStatus != "" && !filter.FinalStatus.Valid() {
		return commands.ListFilter{}, 0, 0, errors.New("invalid final_status")
	}
	var err error
	if value := q.Get("from"); value != "" {
		if filter.From, err = time.Parse(time.RFC3339, value); err != nil {
			return commands.ListFilter{}, 0, 0, errors.New("from must be RFC3339")
		}
	}
	if value := q.Get("to"); value != "" {
		if filter.To, err = time.Parse(time.RFC3339, value); err != nil {
			return commands.ListFilter{}, 0, 0, errors.New("to must be RFC3339")
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return commands.ListFilter{}, 0, 0, errors.New("to must be after from")
	}
	page, err := parseOptionalInt(q.Get("page"))
	if err != nil {
		return commands.ListFilter{}, 0, 0, errors.New("page must be an integer")
	}
	limit, err := parseOptionalInt(q.Get("limit"))
	if err != nil {
		return commands.ListFilter{}, 0, 0, errors.New("limit must be an integer")
	}
	return filter, page, limit, nil
}

func parseOptionalInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
