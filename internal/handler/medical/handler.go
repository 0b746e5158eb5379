package medical

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/internal/service/medical"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
)

type Handler struct {
	service *medical.Service
}

func NewHandler(service *medical.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/appointments/:id/clinical-record", h.GetClinicalRecord)
}

// GetClinicalRecord takes an optional ?reason= that is kept in the audit log.
func (h *Handler) GetClinicalRecord(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	record, err := h.service.GetRecordForAppointment(c.Request.Context(), httputil.ActorID(c), id, c.Query("reason"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, record)
}
