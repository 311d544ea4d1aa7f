package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jjm/models"
	"jjm/realtime"
	"jjm/services"
	"jjm/store"
)

// ActorHeader names the operator performing a grievance action
const ActorHeader = "X-Actor"

const (
	defaultActor         = "Admin"
	defaultAlertLimit    = 50
	defaultReadingLimit  = 1000
	maxReadingLimit      = 10000
	defaultReadingWindow = 24 * time.Hour
)

// SimulatorControl is the part of the simulator exposed over HTTP
type SimulatorControl interface {
	Pause()
	Resume()
	Status() services.SimulatorStatus
}

// ReadingQuery reads archived readings for one sensor
type ReadingQuery interface {
	Readings(ctx context.Context, sensorID string, from, to time.Time, limit int) ([]models.ReadingEvent, error)
}

type APIHandler struct {
	store      store.Store
	simulator  SimulatorControl
	grievances *services.GrievanceService
	dashboard  *services.DashboardService
	hub        *realtime.Hub
	archive    ReadingQuery
	logger     *zap.Logger
}

// Options carries the handler's collaborators. Simulator, Hub and Archive
// are optional.
type Options struct {
	Store     store.Store
	Simulator SimulatorControl
	Hub       *realtime.Hub
	Archive   ReadingQuery
	Logger    *zap.Logger
}

func NewAPIHandler(opts Options) *APIHandler {
	return &APIHandler{
		store:      opts.Store,
		simulator:  opts.Simulator,
		grievances: services.NewGrievanceService(opts.Store, opts.Logger),
		dashboard:  services.NewDashboardService(opts.Store),
		hub:        opts.Hub,
		archive:    opts.Archive,
		logger:     opts.Logger,
	}
}

// fail writes err with the status it maps to, hiding internal errors
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(ActorHeader)); a != "" {
		return a
	}
	return defaultActor
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Time      time.Time                 `json:"time"`
	Sensors   int                       `json:"sensors"`
	Clients   int                       `json:"clients"`
	Simulator *services.SimulatorStatus `json:"simulator,omitempty"`
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Time:    time.Now(),
		Sensors: len(h.store.Sensors(models.SensorFilter{})),
	}
	if h.hub != nil {
		resp.Clients = h.hub.ClientCount()
	}
	if h.simulator != nil {
		status := h.simulator.Status()
		resp.Simulator = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

// Sensors

func (h *APIHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.SensorFilter{
		Region: q.Get("region"),
		Area:   q.Get("area"),
		Type:   models.SensorType(q.Get("type")),
		Status: models.SensorStatus(q.Get("status")),
		Query:  q.Get("q"),
	}
	writeJSON(w, http.StatusOK, h.store.Sensors(filter))
}

func (h *APIHandler) ListAreas(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"region":  region,
		"regions": h.store.Regions(),
		"areas":   h.store.Areas(region),
	})
}

func (h *APIHandler) GetSensor(w http.ResponseWriter, r *http.Request) {
	sensor, err := h.store.Sensor(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

type sensorHistoryResponse struct {
	SensorID string              `json:"sensor_id"`
	Readings []models.Reading    `json:"readings"`
	Stats    models.HistoryStats `json:"stats"`
}

func (h *APIHandler) SensorHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	readings, stats, err := h.dashboard.SensorHistory(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sensorHistoryResponse{SensorID: id, Readings: readings, Stats: stats})
}

// SensorReadings serves archived readings in [from, to]. Both bounds are
// RFC 3339; the window defaults to the last 24 hours.
func (h *APIHandler) SensorReadings(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "reading archive is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.store.Sensor(id); err != nil {
		h.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	to := time.Now()
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: expected RFC 3339 time")
			return
		}
		to = t
	}
	from := to.Add(-defaultReadingWindow)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: expected RFC 3339 time")
			return
		}
		from = t
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	limit, ok := parseLimit(w, r, defaultReadingLimit, maxReadingLimit)
	if !ok {
		return
	}

	readings, err := h.archive.Readings(r.Context(), id, from, to, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if readings == nil {
		readings = []models.ReadingEvent{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// parseLimit reads ?limit, writing a 400 when it is malformed
func parseLimit(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if max > 0 && n > max {
		n = max
	}
	return n, true
}

// Grievances

func (h *APIHandler) ListGrievances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.GrievanceFilter{
		Status:   models.GrievanceStatus(q.Get("status")),
		Category: models.GrievanceCategory(q.Get("category")),
		Priority: models.Priority(q.Get("priority")),
	}
	writeJSON(w, http.StatusOK, h.store.Grievances(filter))
}

func (h *APIHandler) CreateGrievance(w http.ResponseWriter, r *http.Request) {
	var in services.GrievanceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g, err := h.grievances.Register(r.Context(), in, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *APIHandler) GetGrievance(w http.ResponseWriter, r *http.Request) {
	g, err := h.store.Grievance(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// UpdateGrievance applies an assignment and/or status change together
func (h *APIHandler) UpdateGrievance(w http.ResponseWriter, r *http.Request) {
	var upd services.GrievanceUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g, err := h.grievances.Update(r.Context(), chi.URLParam(r, "id"), upd, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type assignRequest struct {
	Engineer string `json:"engineer"`
}

func (h *APIHandler) AssignGrievance(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g, err := h.grievances.Assign(r.Context(), chi.URLParam(r, "id"), req.Engineer, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type statusRequest struct {
	Status models.GrievanceStatus `json:"status"`
}

func (h *APIHandler) TransitionGrievance(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g, err := h.grievances.Transition(r.Context(), chi.URLParam(r, "id"), req.Status, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type commentRequest struct {
	Text string `json:"text"`
}

func (h *APIHandler) CommentGrievance(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g, err := h.grievances.Comment(r.Context(), chi.URLParam(r, "id"), req.Text, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// Assets and alerts

func (h *APIHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ, status := models.AssetType(q.Get("type")), models.AssetStatus(q.Get("status"))

	assets := make([]models.Asset, 0)
	for _, a := range h.store.Assets() {
		if typ != "" && a.Type != typ {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		assets = append(assets, a)
	}
	writeJSON(w, http.StatusOK, assets)
}

func (h *APIHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultAlertLimit, 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.store.Alerts(limit))
}

// Dashboard

func (h *APIHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.Stats())
}

func (h *APIHandler) DashboardActivities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.Activities())
}

func (h *APIHandler) DashboardAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.AlertFeed())
}

func (h *APIHandler) DashboardDistribution(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.Distribution())
}

func (h *APIHandler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dashboard.Summary())
}

// Simulator and admin

func (h *APIHandler) SimulatorStatus(w http.ResponseWriter, r *http.Request) {
	if h.simulator == nil {
		writeError(w, http.StatusServiceUnavailable, "simulator is not running")
		return
	}
	writeJSON(w, http.StatusOK, h.simulator.Status())
}

func (h *APIHandler) PauseSimulator(w http.ResponseWriter, r *http.Request) {
	if h.simulator == nil {
		writeError(w, http.StatusServiceUnavailable, "simulator is not running")
		return
	}
	h.simulator.Pause()
	writeJSON(w, http.StatusOK, h.simulator.Status())
}

func (h *APIHandler) ResumeSimulator(w http.ResponseWriter, r *http.Request) {
	if h.simulator == nil {
		writeError(w, http.StatusServiceUnavailable, "simulator is not running")
		return
	}
	h.simulator.Resume()
	writeJSON(w, http.StatusOK, h.simulator.Status())
}

// Reset discards all state and reseeds the mock dataset
func (h *APIHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Application state reset", zap.String("actor", actor(r)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
