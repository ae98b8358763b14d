// Package api exposes the sensor control surface over HTTP: device state,
// format negotiation, controls, streaming and the register trace.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/davidplowman/imx258/internal/httputil"
	"github.com/davidplowman/imx258/internal/monitoring"
	"github.com/davidplowman/imx258/internal/sensor"
	"github.com/davidplowman/imx258/internal/trace"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	dev   *sensor.Device
	store *trace.Store
}

// NewServer wires the handlers to a device and an optional trace store.
// A nil store disables the /api/trace routes with 404s.
func NewServer(dev *sensor.Device, store *trace.Store) *Server {
	return &Server{
		dev:   dev,
		store: store,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/device", s.showDevice)
	mux.HandleFunc("/api/modes", s.listModes)
	mux.HandleFunc("/api/formats", s.listFormats)
	mux.HandleFunc("/api/format", s.handleFormat)
	mux.HandleFunc("/api/controls", s.listControls)
	mux.HandleFunc("/api/controls/", s.handleControl)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/selection", s.showSelection)
	mux.HandleFunc("/api/interval", s.handleInterval)
	mux.HandleFunc("/api/trace/sessions", s.listTraceSessions)
	mux.HandleFunc("/api/trace/ops", s.listTraceOps)
	mux.HandleFunc("/debug/charts/registers", s.showRegisterChart)
	return mux
}

// writeSensorError maps the sensor sentinels onto HTTP status codes.
// Anything unrecognized is treated as a transport problem.
func writeSensorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sensor.ErrInvalidArgument):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, sensor.ErrBusy):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

type deviceResponse struct {
	sensor.Info
	TraceSession string `json:"trace_session,omitempty"`
}

func (s *Server) showDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := deviceResponse{Info: s.dev.Info()}
	if s.store != nil {
		resp.TraceSession = s.store.SessionID()
	}
	httputil.WriteJSONOK(w, resp)
}

type streamRequest struct {
	Streaming bool `json:"streaming"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid stream request body")
		return
	}

	if err := s.dev.SetStreaming(r.Context(), req.Streaming); err != nil {
		writeSensorError(w, err)
		return
	}

	httputil.WriteJSONOK(w, s.dev.Info())
}
