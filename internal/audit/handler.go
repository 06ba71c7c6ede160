package audit

import (
	"net/http"

	"github.com/bissquit/response-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves the read-only audit query boundary.
type Handler struct {
	timelines *TimelineService
}

// NewHandler creates an audit HTTP handler.
func NewHandler(timelines *TimelineService) *Handler {
	return &Handler{timelines: timelines}
}

// RegisterRoutes registers the audit query routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/incidents/{incidentID}/timeline", h.getTimeline)
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	if incidentID == "" {
		httputil.Error(w, http.StatusBadRequest, "incident id is required")
		return
	}

	timeline, err := h.timelines.Timeline(r.Context(), incidentID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrNoHistory, Status: http.StatusNotFound},
		})
		return
	}

	httputil.Success(w, http.StatusOK, timeline)
}
