package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"reclaim/internal/domain"
	"reclaim/internal/ports"
)

// Server exposes user actions on matches and claims. Matching itself is
// event-driven; nothing here triggers a scoring pass.
type Server struct {
	lifecycle ports.Lifecycle
	claims    ports.Claims
}

func New(lifecycle ports.Lifecycle, claims ports.Claims) *Server {
	return &Server{lifecycle: lifecycle, claims: claims}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.getHealthz)
	r.Get("/items/{id}/matches", s.getItemMatches)
	r.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/", s.getMatch)
		r.Post("/confirm", s.postConfirm)
		r.Post("/reject", s.postReject)
		r.Post("/claims", s.postClaim)
	})
	r.Post("/claims/{id}/verify", s.postVerify)
	return r
}

type matchResponse struct {
	ID               string               `json:"id"`
	LostItemID       string               `json:"lost_item_id"`
	FoundItemID      string               `json:"found_item_id"`
	Confidence       float64              `json:"confidence"`
	Reasons          []domain.MatchReason `json:"reasons"`
	AlgorithmVersion string               `json:"algorithm_version"`
	Status           string               `json:"status"`
	CreatedAt        time.Time            `json:"created_at"`
	ExpiresAt        time.Time            `json:"expires_at"`
	RejectionReason  *string              `json:"rejection_reason,omitempty"`
}

// claimResponse deliberately omits contact details and the verification
// code; both stay server-side.
type claimResponse struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toMatchResponse(m domain.Match) matchResponse {
	return matchResponse{
		ID:               m.ID,
		LostItemID:       m.LostItemID,
		FoundItemID:      m.FoundItemID,
		Confidence:       m.Confidence,
		Reasons:          m.Reasons,
		AlgorithmVersion: m.AlgorithmVersion,
		Status:           string(m.Status),
		CreatedAt:        m.CreatedAt,
		ExpiresAt:        m.ExpiresAt,
		RejectionReason:  m.RejectionReason,
	}
}

func toClaimResponse(c domain.Claim) claimResponse {
	return claimResponse{
		ID:        c.ID,
		MatchID:   c.MatchID,
		Status:    string(c.Status),
		Attempts:  c.Attempts,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponse(m))
}

func (s *Server) getItemMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.lifecycle.Surfaced(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) postConfirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorRef(w, r)
	if !ok {
		return
	}
	m, err := s.lifecycle.Confirm(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponse(m))
}

func (s *Server) postReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorRef(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("invalid JSON body"))
		return
	}
	m, err := s.lifecycle.Reject(r.Context(), chi.URLParam(r, "id"), actor, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponse(m))
}

func (s *Server) postClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorRef(w, r)
	if !ok {
		return
	}
	var body struct {
		ContactMethod string `json:"contact_method"`
		ContactValue  string `json:"contact_value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ContactMethod == "" || body.ContactValue == "" {
		writeJSON(w, http.StatusBadRequest, errBody("contact_method and contact_value are required"))
		return
	}
	c, err := s.claims.Initiate(r.Context(), chi.URLParam(r, "id"), actor, body.ContactMethod, body.ContactValue)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimResponse(c))
}

func (s *Server) postVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeJSON(w, http.StatusBadRequest, errBody("code is required"))
		return
	}
	c, err := s.claims.Verify(r.Context(), chi.URLParam(r, "id"), body.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

// actorRef reads the opaque user identity the gateway injects upstream.
func actorRef(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get("X-User-ID")
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, errBody("X-User-ID header is required"))
		return "", false
	}
	return actor, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err.Error()))
	case errors.Is(err, domain.ErrNotParticipant):
		writeJSON(w, http.StatusForbidden, errBody(err.Error()))
	case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrDuplicateClaim):
		writeJSON(w, http.StatusConflict, errBody(err.Error()))
	case errors.Is(err, domain.ErrClaimVerificationFailed):
		writeJSON(w, http.StatusUnprocessableEntity, errBody(err.Error()))
	case errors.Is(err, domain.ErrTimeout):
		writeJSON(w, http.StatusServiceUnavailable, errBody(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errBody("internal error"))
	}
}

func errBody(msg string) map[string]string { return map[string]string{"error": msg} }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
