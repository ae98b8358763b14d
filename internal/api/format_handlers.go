package api

import (
	"encoding/json"
	"net/http"

	"github.com/davidplowman/imx258/internal/httputil"
	"github.com/davidplowman/imx258/internal/sensor"
)

func (s *Server) listModes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, sensor.Modes())
}

type formatListEntry struct {
	Code       sensor.FormatCode `json:"code"`
	CodeName   string            `json:"code_name"`
	FrameSizes [][2]int          `json:"frame_sizes"`
}

func (s *Server) listFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	codes := s.dev.EnumFormats()
	entries := make([]formatListEntry, 0, len(codes)+1)
	for _, code := range codes {
		sizes, err := s.dev.EnumFrameSizes(code)
		if err != nil {
			writeSensorError(w, err)
			return
		}
		entries = append(entries, formatListEntry{
			Code:       code,
			CodeName:   code.String(),
			FrameSizes: sizes,
		})
	}

	// The embedded data stream has exactly one shape.
	ed := s.dev.EmbeddedDataFormat()
	entries = append(entries, formatListEntry{
		Code:       ed.Code,
		CodeName:   ed.CodeName,
		FrameSizes: [][2]int{{ed.Width, ed.Height}},
	})

	httputil.WriteJSONOK(w, entries)
}

type formatRequest struct {
	Code     *uint32 `json:"code,omitempty"`
	CodeName string  `json:"code_name,omitempty"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// handleFormat reads or negotiates the image format. ?try=1 negotiates
// without committing, mirroring a TRY_FMT ioctl.
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	try := r.URL.Query().Get("try") == "1"

	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.dev.Format(try))

	case http.MethodPost:
		var req formatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid format request body")
			return
		}

		code := s.dev.Format(false).Code
		switch {
		case req.CodeName != "":
			c, ok := sensor.FormatCodeByName(req.CodeName)
			if !ok {
				httputil.BadRequest(w, "unknown format code name "+req.CodeName)
				return
			}
			code = c
		case req.Code != nil:
			code = sensor.FormatCode(*req.Code)
		}

		width, height := req.Width, req.Height
		if width == 0 && height == 0 {
			active := s.dev.Format(false)
			width, height = active.Width, active.Height
		}

		httputil.WriteJSONOK(w, s.dev.SetFormat(r.Context(), code, width, height, try))

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	target := r.URL.Query().Get("target")
	if target == "" {
		target = sensor.SelectionCrop
	}

	rect, err := s.dev.Selection(target)
	if err != nil {
		writeSensorError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rect)
}
