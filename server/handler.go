package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/fragment"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/services"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/transport"
)

// Handler adapts the platform operations to HTTP.
type Handler struct {
	platform *services.Platform
	log      zerolog.Logger
}

// NewHandler creates the API handler over the platform.
func NewHandler(platform *services.Platform, log zerolog.Logger) *Handler {
	return &Handler{
		platform: platform,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/fragments", h.handleCreateFragmentSet)
		r.Get("/fragments/{origin_id}/status", h.handleFragmentSetStatus)
		r.Post("/fragments/{origin_id}/reconstruct", h.handleReconstruct)
		r.Get("/fragments/destination/{fragment_id}", h.handleFragmentDestination)

		r.Post("/agents", h.handleRegisterAgent)
		r.Get("/agents", h.handleListAgents)

		r.Post("/missions", h.handleCreateMission)
		r.Get("/missions", h.handleListMissions)
		r.Get("/missions/{mission_id}", h.handleGetMission)
		r.Post("/missions/{mission_id}/events", h.handleMissionEvent)
		r.Post("/missions/{mission_id}/cancel", h.handleCancelMission)

		r.Post("/auth/verify", h.handleAuthenticate)
		r.Get("/auth/expected-order", h.handleExpectedOrder)
		r.Get("/auth/relationships", h.handleRelationships)
	})
}

// CreateFragmentSetRequest is the POST /fragments body. Message travels as
// base64 per encoding/json.
type CreateFragmentSetRequest struct {
	Message       []byte `json:"message"`
	RequiredCount int    `json:"required_count"`
	TotalCount    int    `json:"total_count"`
	TTLMillis     int64  `json:"ttl_ms"`
}

// FragmentSetResponse describes a created fragment set.
type FragmentSetResponse struct {
	OriginID      uuid.UUID   `json:"origin_id"`
	FragmentIDs   []uuid.UUID `json:"fragment_ids"`
	RequiredCount int         `json:"required_count"`
	TotalCount    int         `json:"total_count"`
	Deadline      time.Time   `json:"deadline"`
}

// ReconstructResponse carries the reassembled message.
type ReconstructResponse struct {
	OriginID uuid.UUID `json:"origin_id"`
	Message  []byte    `json:"message"`
}

// FragmentDestinationResponse reports a fragment's assigned destination.
type FragmentDestinationResponse struct {
	FragmentID  uuid.UUID    `json:"fragment_id"`
	Assigned    bool         `json:"assigned"`
	Destination geo.Location `json:"destination,omitempty"`
}

// RegisterAgentRequest is the POST /agents body.
type RegisterAgentRequest struct {
	ID          string       `json:"id"`
	Location    geo.Location `json:"location"`
	MaxSpeedKmh float64      `json:"max_speed_kmh"`
}

// CreateMissionRequest is the POST /missions body.
type CreateMissionRequest struct {
	OriginID           uuid.UUID    `json:"origin_id"`
	CandidateAgents    []string     `json:"candidate_agents"`
	ReconstructionSite geo.Location `json:"reconstruction_site"`
}

// MissionEventRequest is the POST /missions/{id}/events body.
type MissionEventRequest struct {
	AgentID          string              `json:"agent_id"`
	Type             transport.EventType `json:"type"`
	ReportedLocation geo.Location        `json:"reported_location"`
	PresentedOrder   []string            `json:"presented_order,omitempty"`
	Context          protoauth.Context   `json:"context,omitempty"`
}

// AuthenticateRequest is the POST /auth/verify body.
type AuthenticateRequest struct {
	AgentA         string            `json:"agent_a"`
	AgentB         string            `json:"agent_b"`
	PresentedOrder []string          `json:"presented_order"`
	Context        protoauth.Context `json:"context"`
}

// ExpectedOrderResponse is the GET /auth/expected-order reply.
type ExpectedOrderResponse struct {
	Order   []string          `json:"order"`
	Context protoauth.Context `json:"context"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleCreateFragmentSet(w http.ResponseWriter, r *http.Request) {
	var req CreateFragmentSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	set, err := h.platform.CreateFragmentSet(req.Message, req.RequiredCount, req.TotalCount, time.Duration(req.TTLMillis)*time.Millisecond)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, FragmentSetResponse{
		OriginID:      set.OriginID,
		FragmentIDs:   set.FragmentIDs,
		RequiredCount: set.RequiredCount,
		TotalCount:    set.TotalCount,
		Deadline:      set.Deadline,
	})
}

func (h *Handler) handleFragmentSetStatus(w http.ResponseWriter, r *http.Request) {
	originID, err := uuid.Parse(chi.URLParam(r, "origin_id"))
	if err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	status, err := h.platform.FragmentSetStatus(originID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	originID, err := uuid.Parse(chi.URLParam(r, "origin_id"))
	if err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	message, err := h.platform.Reconstruct(originID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ReconstructResponse{OriginID: originID, Message: message})
}

func (h *Handler) handleFragmentDestination(w http.ResponseWriter, r *http.Request) {
	fragmentID, err := uuid.Parse(chi.URLParam(r, "fragment_id"))
	if err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	dest, assigned, err := h.platform.FragmentDestination(fragmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, FragmentDestinationResponse{
		FragmentID:  fragmentID,
		Assigned:    assigned,
		Destination: dest,
	})
}

func (h *Handler) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" {
		h.writeStatus(w, http.StatusBadRequest, errors.New("agent id is required"))
		return
	}

	info, err := h.platform.RegisterAgent(req.ID, req.Location, req.MaxSpeedKmh)
	if err != nil {
		// The registry only fails on duplicate ids.
		h.writeStatus(w, http.StatusConflict, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.platform.Agents())
}

func (h *Handler) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req CreateMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	info, err := h.platform.CreateMission(req.OriginID, req.CandidateAgents, req.ReconstructionSite)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) handleListMissions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.platform.Missions())
}

func (h *Handler) handleGetMission(w http.ResponseWriter, r *http.Request) {
	missionID, err := uuid.Parse(chi.URLParam(r, "mission_id"))
	if err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	info, err := h.platform.Mission(missionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleMissionEvent(w http.ResponseWriter, r *http.Request) {
	missionID, err := uuid.Parse(chi.URLParam(r, "mission_id"))
	if err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	var req MissionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	if req.AgentID == "" {
		h.writeStatus(w, http.StatusBadRequest, errors.New("agent_id is required"))
		return
	}

	info, err := h.platform.AdvanceMission(missionID, req.AgentID, transport.Event{
		Type:             req.Type,
		ReportedLocation: req.ReportedLocation,
		PresentedOrder:   req.PresentedOrder,
		Context:          req.Context,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleCancelMission(w http.ResponseWriter, r *http.Request) {
	missionID, err := uuid.Parse(chi.URLParam(r, "mission_id"))
	if err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}

	info, err := h.platform.CancelMission(missionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeStatus(w, http.StatusBadRequest, err)
		return
	}
	if req.AgentA == "" || req.AgentB == "" {
		h.writeStatus(w, http.StatusBadRequest, errors.New("agent_a and agent_b are required"))
		return
	}

	// Authentication never errors: malformed or hostile input scores low
	// and is rejected, with the confidence in the decision body.
	decision := h.platform.Authenticate(req.AgentA, req.AgentB, req.PresentedOrder, req.Context)
	h.writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) handleExpectedOrder(w http.ResponseWriter, r *http.Request) {
	agentA := r.URL.Query().Get("agent_a")
	agentB := r.URL.Query().Get("agent_b")
	ctx := protoauth.Context(r.URL.Query().Get("context"))
	if agentA == "" || agentB == "" {
		h.writeStatus(w, http.StatusBadRequest, errors.New("agent_a and agent_b are required"))
		return
	}
	if ctx == "" {
		ctx = protoauth.ContextNormal
	}

	order, err := h.platform.ExpectedOrder(agentA, agentB, ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ExpectedOrderResponse{Order: order, Context: ctx})
}

func (h *Handler) handleRelationships(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.platform.Relationships())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("encoding response")
	}
}

func (h *Handler) writeStatus(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

// writeError maps the platform error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeStatus(w, statusForError(err), err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, fragment.ErrInvalidParameters),
		errors.Is(err, protoauth.ErrUnknownContext):
		return http.StatusBadRequest

	case errors.Is(err, fragment.ErrNotFound),
		errors.Is(err, transport.ErrUnknownMission),
		errors.Is(err, transport.ErrUnknownAgent):
		return http.StatusNotFound

	case errors.Is(err, transport.ErrAuthenticationFailed):
		return http.StatusForbidden

	case errors.Is(err, fragment.ErrExpired),
		errors.Is(err, fragment.ErrUnrecoverable):
		return http.StatusGone

	case errors.Is(err, transport.ErrInsufficientAgents),
		errors.Is(err, transport.ErrConstraintViolated):
		return http.StatusUnprocessableEntity

	case errors.Is(err, fragment.ErrInsufficientFragments),
		errors.Is(err, fragment.ErrIntegrityViolation),
		errors.Is(err, fragment.ErrConsumed),
		errors.Is(err, fragment.ErrAlreadyAssigned),
		errors.Is(err, transport.ErrMissionClosed),
		errors.Is(err, transport.ErrInvalidTransition),
		errors.Is(err, transport.ErrNotAtDestination),
		errors.Is(err, transport.ErrAgentConflict),
		errors.Is(err, transport.ErrNoFragmentAssigned):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
