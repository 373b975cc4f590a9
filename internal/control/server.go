package control

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a thin HTTP/JSON façade over Manager, grounded on
// internal/distribution/server.go's registerAPIRoutes/writeJSON idiom. It
// exists so the playout core is independently exercisable without the real
// gRPC control-plane adapter (spec §1 places gRPC itself out of scope; §6
// still names the five operations and their result codes this surface
// reaches). It also exposes the "implementation-defined metrics endpoint"
// spec §6 Telemetry declines to pin down, at /metrics.
type Server struct {
	log *slog.Logger
	mgr *Manager
}

// NewServer constructs a Server over mgr.
func NewServer(mgr *Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log.With("component", "control-server"), mgr: mgr}
}

// Handler returns the http.Handler to mount, combining the control routes
// with the Prometheus metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /control/start", s.handleStartChannel)
	mux.HandleFunc("POST /control/stop", s.handleStopChannel)
	mux.HandleFunc("POST /control/preview", s.handleLoadPreview)
	mux.HandleFunc("POST /control/switch", s.handleSwitchToLive)
	mux.HandleFunc("POST /control/plan", s.handleUpdatePlan)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type startChannelRequest struct {
	ChannelID         string          `json:"channelId"`
	PlanHandle        string          `json:"planHandle"`
	Port              int             `json:"port,omitempty"`
	UdsPath           string          `json:"udsPath,omitempty"`
	ProgramFormatJSON json.RawMessage `json:"programFormat"`
}

func (s *Server) handleStartChannel(w http.ResponseWriter, r *http.Request) {
	var req startChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := s.mgr.StartChannel(req.ChannelID, req.PlanHandle, req.Port, req.UdsPath, req.ProgramFormatJSON)
	writeResult(w, code, err)
}

type channelIDRequest struct {
	ChannelID string `json:"channelId"`
}

func (s *Server) handleStopChannel(w http.ResponseWriter, r *http.Request) {
	var req channelIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := s.mgr.StopChannel(req.ChannelID)
	writeResult(w, code, err)
}

type loadPreviewRequest struct {
	ChannelID  string `json:"channelId"`
	AssetPath  string `json:"assetPath"`
	StartFrame int64  `json:"startFrame"`
	FrameCount int64  `json:"frameCount"`
	FPSNum     int64  `json:"fpsNum"`
	FPSDen     int64  `json:"fpsDen"`
}

func (s *Server) handleLoadPreview(w http.ResponseWriter, r *http.Request) {
	var req loadPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := s.mgr.LoadPreview(req.ChannelID, req.AssetPath, req.StartFrame, req.FrameCount, req.FPSNum, req.FPSDen)
	writeResult(w, code, err)
}

type switchToLiveRequest struct {
	ChannelID            string `json:"channelId"`
	TargetBoundaryTimeMs int64  `json:"targetBoundaryTimeMs"`
	IssuedAtTimeMs       int64  `json:"issuedAtTimeMs"`
}

func (s *Server) handleSwitchToLive(w http.ResponseWriter, r *http.Request) {
	var req switchToLiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := s.mgr.SwitchToLive(req.ChannelID, req.TargetBoundaryTimeMs, req.IssuedAtTimeMs)
	writeResult(w, code, err)
}

type updatePlanRequest struct {
	ChannelID  string `json:"channelId"`
	PlanHandle string `json:"planHandle"`
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req updatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, err := s.mgr.UpdatePlan(req.ChannelID, req.PlanHandle)
	writeResult(w, code, err)
}

type resultResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// writeResult maps a ResultCode/error pair to an HTTP status the way the
// gRPC adapter this surface stands in for would map its own status codes.
func writeResult(w http.ResponseWriter, code ResultCode, err error) {
	status := http.StatusOK
	switch code {
	case ResultNotReady:
		status = http.StatusAccepted
	case ResultRejectedBusy:
		status = http.StatusConflict
	case ResultProtocolViolation:
		status = http.StatusUnprocessableEntity
	case ResultFailed:
		status = http.StatusInternalServerError
	}
	resp := resultResponse{Result: code.String()}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
