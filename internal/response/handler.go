package response

import (
	"net/http"
	"time"

	"github.com/bissquit/response-garden/internal/domain"
	"github.com/bissquit/response-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves the workflow status read surface.
type Handler struct {
	repo Repository
}

// NewHandler creates a response HTTP handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers the response query routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/workflows/{incidentID}/status", h.getStatus)
}

type workflowStatusResponse struct {
	IncidentID     string              `json:"incident_id"`
	Strategy       string              `json:"strategy"`
	Status         string              `json:"status"`
	ActionsPlanned []string            `json:"actions_planned"`
	ActionsTaken   []domain.StepRecord `json:"actions_taken"`
	TaskHandle     string              `json:"task_handle"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	if incidentID == "" {
		httputil.Error(w, http.StatusBadRequest, "incident id is required")
		return
	}

	workflow, err := h.repo.GetWorkflow(r.Context(), incidentID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrWorkflowNotFound, Status: http.StatusNotFound},
		})
		return
	}

	httputil.Success(w, http.StatusOK, workflowStatusResponse{
		IncidentID:     workflow.IncidentID,
		Strategy:       string(workflow.Strategy),
		Status:         string(workflow.Status),
		ActionsPlanned: workflow.ActionsPlanned,
		ActionsTaken:   workflow.ActionsTaken,
		TaskHandle:     workflow.TaskHandle,
		ErrorMessage:   workflow.ErrorMessage,
		CreatedAt:      workflow.CreatedAt,
		UpdatedAt:      workflow.UpdatedAt,
	})
}
