package handler

import (
	"encoding/json"
	"net/http"

	"econscour/internal/model"
	"econscour/internal/records"
	"econscour/internal/session"
	"econscour/pkg/apierror"
	"econscour/pkg/response"
)

// LoadHandler controls range loads.
type LoadHandler struct {
	session *session.Controller
}

// NewLoadHandler creates a load control handler.
func NewLoadHandler(s *session.Controller) *LoadHandler {
	return &LoadHandler{session: s}
}

// StartLoadRequest is the body of POST /api/v1/loads. Dates accept
// YYYY-MM-DD as well as the upstream YYYY_M_D form.
type StartLoadRequest struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Policy    string `json:"policy"`
	ShipsOnly *bool  `json:"ships_only"`
}

func (req StartLoadRequest) toSession() (session.Request, *apierror.Error) {
	var out session.Request
	var details []apierror.FieldError

	start, err := model.ParseDateKey(req.Start)
	if err != nil {
		details = append(details, apierror.FieldError{Field: "start", Message: err.Error()})
	}
	end, err := model.ParseDateKey(req.End)
	if err != nil {
		details = append(details, apierror.FieldError{Field: "end", Message: err.Error()})
	}
	var policy records.Policy
	if req.Policy != "" {
		if policy, err = records.ParsePolicy(req.Policy); err != nil {
			details = append(details, apierror.FieldError{Field: "policy", Message: err.Error()})
		}
	}
	if len(details) > 0 {
		return out, apierror.ValidationError("invalid load request", details...)
	}

	out = session.Request{Start: start, End: end, Policy: policy, ShipsOnly: req.ShipsOnly}
	return out, nil
}

// Start handles POST /api/v1/loads
func (h *LoadHandler) Start(w http.ResponseWriter, r *http.Request) {
	var body StartLoadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	req, apiErr := body.toSession()
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	if _, err := h.session.Start(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	response.Accepted(w, h.session.Status())
}

// Current handles GET /api/v1/loads/current
func (h *LoadHandler) Current(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.session.Status())
}

// Abort handles DELETE /api/v1/loads/current
func (h *LoadHandler) Abort(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Abort(); err != nil {
		writeError(w, err)
		return
	}
	response.Accepted(w, h.session.Status())
}
