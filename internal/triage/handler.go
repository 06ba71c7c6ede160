package triage

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bissquit/response-garden/internal/bus"
	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Handler serves alert ingestion and incident lookups. Ingestion only
// publishes to the bus; the triage consumer does the actual work, so a burst
// of alerts never blocks the HTTP path.
type Handler struct {
	repo      Repository
	publisher bus.Publisher
	validate  *validator.Validate
}

// NewHandler creates a triage HTTP handler.
func NewHandler(repo Repository, publisher bus.Publisher) *Handler {
	return &Handler{
		repo:      repo,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// RegisterRoutes registers the triage routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/incidents", h.ingestIncident)
	r.Get("/incidents/{incidentID}", h.getIncident)
}

type ingestRequest struct {
	IncidentID string         `json:"incident_id"`
	RawData    map[string]any `json:"raw_data" validate:"required,min=1"`
}

type ingestResponse struct {
	IncidentID string `json:"incident_id"`
	Status     string `json:"status"`
}

func (h *Handler) ingestIncident(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if req.IncidentID == "" {
		req.IncidentID = uuid.NewString()
	}

	payload := domain.IncidentReceivedPayload{
		IncidentID: req.IncidentID,
		RawData:    req.RawData,
	}
	if err := h.publisher.Publish(r.Context(), domain.TopicIncidentReceived, payload); err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusAccepted, ingestResponse{
		IncidentID: req.IncidentID,
		Status:     "accepted",
	})
}

type incidentResponse struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Severity  string         `json:"severity"`
	Status    string         `json:"status"`
	RawData   map[string]any `json:"raw_data"`
	Triage    *triageView    `json:"triage,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

type triageView struct {
	Decision           string   `json:"decision"`
	Confidence         float64  `json:"confidence"`
	ThreatScore        int      `json:"threat_score"`
	ThreatLevel        string   `json:"threat_level"`
	Reasoning          string   `json:"reasoning"`
	RecommendedActions []string `json:"recommended_actions"`
}

func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	if incidentID == "" {
		httputil.Error(w, http.StatusBadRequest, "incident id is required")
		return
	}

	incident, err := h.repo.GetIncident(r.Context(), incidentID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		})
		return
	}

	resp := incidentResponse{
		ID:        incident.ID,
		Source:    incident.Source,
		Severity:  string(incident.Severity),
		Status:    string(incident.Status),
		RawData:   incident.RawData,
		CreatedAt: incident.CreatedAt.Format(time.RFC3339),
		UpdatedAt: incident.UpdatedAt.Format(time.RFC3339),
	}

	if result, err := h.repo.GetTriageResult(r.Context(), incidentID); err == nil {
		resp.Triage = &triageView{
			Decision:           string(result.Decision),
			Confidence:         result.Confidence,
			ThreatScore:        result.ThreatScore,
			ThreatLevel:        string(result.ThreatLevel),
			Reasoning:          result.Reasoning,
			RecommendedActions: result.RecommendedActions,
		}
	}

	httputil.Success(w, http.StatusOK, resp)
}
