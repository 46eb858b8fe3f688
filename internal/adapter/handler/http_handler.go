package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/rl1809/stockroom/internal/adapter/broadcast"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/port"
)

const (
	// multipartOverhead leaves room for boundaries and headers around the image part.
	multipartOverhead = 64 << 10

	maxJSONBody = 64 << 10

	// maxHistoryHours caps the lookback and gap parameters at one year.
	maxHistoryHours = 366 * 24
)

type Options struct {
	CORSOrigins   []string
	Gate          Gate
	RateLimit     int
	RateWindow    time.Duration
	MaxImageBytes int64
	History       domain.HistoryQuery
}

type HTTPHandler struct {
	telemetry   *service.TelemetryService
	inventory   *service.InventoryService
	correlation *service.CorrelationService
	store       port.LedgerStore
	hub         *broadcast.Hub
	upgrader    *websocket.Upgrader
	opts        Options
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type sensorResponse struct {
	Status  string                   `json:"status"`
	Reading service.TelemetryPayload `json:"reading"`
}

type itemResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Weight    float64   `json:"weight"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

type importResponse struct {
	itemResponse
	WasNew bool `json:"was_new"`
}

type exportResponse struct {
	Removed   bool `json:"removed"`
	Remaining int  `json:"remaining"`
}

// snapshotResponse keeps every key present; absent sides are null and weight defaults to 0.
type snapshotResponse struct {
	Code            *string    `json:"code"`
	Name            *string    `json:"name"`
	ScanTimestamp   *time.Time `json:"scan_timestamp"`
	Temperature     *float64   `json:"temperature"`
	Humidity        *float64   `json:"humidity"`
	Weight          float64    `json:"weight"`
	SensorTimestamp *time.Time `json:"sensor_timestamp"`
}

func NewHTTPHandler(
	telemetry *service.TelemetryService,
	inventory *service.InventoryService,
	correlation *service.CorrelationService,
	store port.LedgerStore,
	hub *broadcast.Hub,
	opts Options,
) *HTTPHandler {
	if opts.Gate == nil {
		opts.Gate = openGate
	}
	origins := opts.CORSOrigins
	return &HTTPHandler{
		telemetry:   telemetry,
		inventory:   inventory,
		correlation: correlation,
		store:       store,
		hub:         hub,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
		opts: opts,
	}
}

// Routes builds the chi router. Device ingestion routes are rate limited and
// never gated; dashboard and manual ledger routes sit behind the gate.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: h.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
		MaxAge:         86400,
	}).Handler)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if h.opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(h.opts.RateLimit, h.opts.RateWindow))
		}
		r.Post("/api/sensor", h.IngestSensor)
		r.Post("/upload_image", h.UploadImage)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.opts.Gate)
		r.Get("/api/sensor_data", h.LatestSensor)
		r.Get("/api/sensor_data_history", h.SensorHistory)
		r.Post("/api/import_item", h.ImportItem)
		r.Post("/api/export_item", h.ExportItem)
		r.Get("/api/inventory", h.ListInventory)
		r.Get("/api/latest_data", h.LatestData)
		r.Get("/ws", broadcast.ServeWS(h.hub, h.upgrader))
	})

	return r
}

func (h *HTTPHandler) IngestSensor(w http.ResponseWriter, r *http.Request) {
	var in domain.TelemetryInput
	if !decodeBody(w, r, &in) {
		return
	}

	reading, err := h.telemetry.Ingest(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sensorResponse{
		Status:  "success",
		Reading: service.NewTelemetryPayload(reading),
	})
}

func (h *HTTPHandler) LatestSensor(w http.ResponseWriter, r *http.Request) {
	reading, err := h.telemetry.Latest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "no sensor data available"})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewTelemetryPayload(reading))
}

func (h *HTTPHandler) SensorHistory(w http.ResponseWriter, r *http.Request) {
	q, err := h.historyQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	readings, err := h.telemetry.History(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]service.TelemetryPayload, 0, len(readings))
	for _, reading := range readings {
		out = append(out, service.NewTelemetryPayload(reading))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) historyQuery(r *http.Request) (domain.HistoryQuery, error) {
	q := h.opts.History
	params := r.URL.Query()

	if v := params.Get("hours"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil || !(hours > 0 && hours <= maxHistoryHours) {
			return q, domain.ValidationError{Field: "hours", Message: fmt.Sprintf("must be a positive number up to %d", maxHistoryHours)}
		}
		q.Lookback = time.Duration(hours * float64(time.Hour))
	}
	if v := params.Get("gap"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 || secs > maxHistoryHours*3600 {
			return q, domain.ValidationError{Field: "gap", Message: fmt.Sprintf("must be between 0 and %d seconds", maxHistoryHours*3600)}
		}
		q.MinGap = time.Duration(secs) * time.Second
	}
	if v := params.Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return q, domain.ValidationError{Field: "points", Message: "must be a positive integer"}
		}
		q.MaxPoints = n
	}
	return q, nil
}

func (h *HTTPHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	limit := h.opts.MaxImageBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, header, err := r.FormFile("image")
	if err != nil {
		switch {
		case isTooLarge(err):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Status: "error", Message: "image size exceeds limit"})
		case errors.Is(err, http.ErrMissingFile):
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "no image field provided"})
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid multipart request"})
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "no image selected"})
		return
	}
	if header.Size > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Status: "error", Message: "image size exceeds limit"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if int64(len(data)) > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Status: "error", Message: "image size exceeds limit"})
		return
	}

	event, err := h.correlation.ScanImage(r.Context(), data)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "no QR code detected"})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *HTTPHandler) ImportItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ImportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.inventory.Import(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{itemResponse: newItemResponse(res.Item), WasNew: res.WasNew})
}

func (h *HTTPHandler) ExportItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ExportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.inventory.Export(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "no such product in inventory"})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Removed: res.Removed, Remaining: res.Remaining})
}

func (h *HTTPHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, newItemResponse(it))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) LatestData(w http.ResponseWriter, r *http.Request) {
	snap, err := h.correlation.Latest(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var resp snapshotResponse
	if snap.Scan != nil {
		resp.Code = &snap.Scan.Code
		resp.Name = &snap.Label
		resp.ScanTimestamp = &snap.Scan.Timestamp
	}
	if t := snap.Telemetry; t != nil {
		resp.Temperature = &t.Temperature
		resp.Humidity = &t.Humidity
		resp.Weight = t.WeightOrZero()
		resp.SensorTimestamp = &t.Timestamp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newItemResponse(it domain.InventoryItem) itemResponse {
	return itemResponse{
		Code:      it.Code,
		Name:      it.Name,
		Weight:    it.Weight,
		Quantity:  it.Quantity,
		Timestamp: it.Timestamp,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		if isTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Status: "error", Message: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "unreadable request body"})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid request body"})
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as an internal error without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: verr.Error()})
	case errors.Is(err, domain.ErrDecodeFormat):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Status: "error", Message: "invalid image format"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "not found"})
	case errors.Is(err, domain.ErrConflict):
		logging.Ctx(r.Context()).Error().Err(err).Msg("unexpected ledger conflict")
		writeJSON(w, http.StatusConflict, errorResponse{Status: "error", Message: "conflict"})
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	// mime/multipart does not always wrap the body reader error
	return strings.Contains(err.Error(), "request body too large")
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
