package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/davidplowman/imx258/internal/httputil"
	"github.com/davidplowman/imx258/internal/sensor"
	"github.com/davidplowman/imx258/internal/units"
)

func (s *Server) listControls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.dev.Controls())
}

type controlRequest struct {
	Value int64 `json:"value"`
}

// handleControl reads or writes one control, addressed by name in the path.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/controls/")
	if name == "" || strings.Contains(name, "/") {
		httputil.NotFound(w, "no such control")
		return
	}

	switch r.Method {
	case http.MethodGet:
		info, err := s.dev.Control(name)
		if err != nil {
			writeSensorError(w, err)
			return
		}
		httputil.WriteJSONOK(w, info)

	case http.MethodPost:
		var req controlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid control request body")
			return
		}

		if err := s.dev.SetControlByName(r.Context(), name, req.Value); err != nil {
			writeSensorError(w, err)
			return
		}

		info, err := s.dev.Control(name)
		if err != nil {
			writeSensorError(w, err)
			return
		}
		httputil.WriteJSONOK(w, info)

	default:
		httputil.MethodNotAllowed(w)
	}
}

type intervalRequest struct {
	Numerator   uint32   `json:"numerator"`
	Denominator uint32   `json:"denominator"`
	Value       *float64 `json:"value,omitempty"`
}

type intervalResponse struct {
	Numerator   uint32  `json:"numerator"`
	Denominator uint32  `json:"denominator"`
	Seconds     float64 `json:"seconds"`
	Value       float64 `json:"value,omitempty"`
	Units       string  `json:"units,omitempty"`
}

func makeIntervalResponse(w http.ResponseWriter, fr sensor.Fract, targetUnits string) {
	resp := intervalResponse{
		Numerator:   fr.Numerator,
		Denominator: fr.Denominator,
		Seconds:     float64(fr.Numerator) / float64(fr.Denominator),
	}
	if targetUnits != "" {
		value, err := units.ConvertInterval(fr.Numerator, fr.Denominator, targetUnits)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		resp.Value = value
		resp.Units = targetUnits
	}
	httputil.WriteJSONOK(w, resp)
}

// handleInterval reads or sets the frame interval. With ?units= the value
// field carries the interval in fps, ms or us; otherwise the fraction is
// used directly.
func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	targetUnits := r.URL.Query().Get("units")
	if targetUnits != "" && !units.IsValid(targetUnits) {
		httputil.BadRequest(w, "invalid units (valid: "+units.GetValidUnitsString()+")")
		return
	}

	switch r.Method {
	case http.MethodGet:
		makeIntervalResponse(w, s.dev.FrameInterval(), targetUnits)

	case http.MethodPost:
		var req intervalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid interval request body")
			return
		}

		fr := sensor.Fract{Numerator: req.Numerator, Denominator: req.Denominator}
		if targetUnits != "" {
			if req.Value == nil {
				httputil.BadRequest(w, "interval with units needs a value field")
				return
			}
			num, den, err := units.ToFract(*req.Value, targetUnits)
			if err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
			fr = sensor.Fract{Numerator: num, Denominator: den}
		}

		if err := s.dev.SetFrameInterval(r.Context(), fr); err != nil {
			writeSensorError(w, err)
			return
		}

		// Report the interval the device actually adopted; clamping can
		// move it away from the request.
		makeIntervalResponse(w, s.dev.FrameInterval(), targetUnits)

	default:
		httputil.MethodNotAllowed(w)
	}
}
