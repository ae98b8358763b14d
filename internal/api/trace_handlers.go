package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/davidplowman/imx258/internal/httputil"
	"github.com/davidplowman/imx258/internal/trace"
)

func (s *Server) listTraceSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "register tracing is disabled")
		return
	}

	sessions, err := s.store.Sessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list trace sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []trace.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listTraceOps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "register tracing is disabled")
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		latest, err := s.store.LatestSession()
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		session = latest
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	ops, err := s.store.Ops(session, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list trace ops: %v", err))
		return
	}
	if ops == nil {
		ops = []trace.Op{}
	}
	httputil.WriteJSONOK(w, ops)
}
