package appointment

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/service/appointment"
	"github.com/jwalitptl/scheduling-api/internal/service/availability"
	"github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

type Handler struct {
	service      *appointment.Service
	availability *availability.Service
	log          *logger.Logger
}

func NewHandler(service *appointment.Service, availability *availability.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{service: service, availability: availability, log: log}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/accept", h.AcceptAppointment)
		appointments.POST("/:id/reject", h.RejectAppointment)
		appointments.POST("/:id/reschedule", h.RescheduleAppointment)
		appointments.POST("/:id/start", h.StartConsultation)
		appointments.POST("/:id/complete", h.CompleteConsultation)
		appointments.POST("/:id/cancel-consultation", h.CancelConsultation)
		appointments.POST("/:id/cancel", h.CancelAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidation(c, httputil.BindingMessage(err))
		return
	}

	// Binding already checked the formats, so these parses cannot fail.
	date, _ := timeofday.ParseDate(req.Date)
	at, _ := timeofday.Parse(req.Time)
	doctorID := uuid.MustParse(req.DoctorID)

	apt, err := h.service.RequestAppointment(c.Request.Context(), httputil.ActorID(c), appointment.RequestInput{
		PatientID:       uuid.MustParse(req.PatientID),
		DoctorID:        doctorID,
		Date:            date,
		Time:            at,
		DurationMinutes: req.DurationMinutes,
		Type:            req.Type,
		Reason:          req.Reason,
	})
	if err != nil {
		h.respondRejected(c, err, doctorID, date, at)
		return
	}
	httputil.RespondWithCreated(c, apt.View())
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), httputil.ActorID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt.View())
}

func (h *Handler) ListAppointments(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		httputil.RespondWithValidation(c, "invalid doctor_id")
		return
	}
	filters := &model.AppointmentFilters{DoctorID: doctorID}

	if d := c.Query("date"); d != "" {
		date, err := timeofday.ParseDate(d)
		if err != nil {
			httputil.RespondWithValidation(c, err.Error())
			return
		}
		filters.Date = date
	}

	if s := c.Query("status"); s != "" {
		status, err := model.ParseAppointmentStatus(s)
		if err != nil {
			httputil.RespondWithValidation(c, err.Error())
			return
		}
		filters.Statuses = []model.AppointmentStatus{status}
	}

	appointments, err := h.service.ListAppointments(c.Request.Context(), httputil.ActorID(c), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	views := make([]model.AppointmentView, 0, len(appointments))
	for _, apt := range appointments {
		views = append(views, apt.View())
	}
	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) AcceptAppointment(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.Accept(c.Request.Context(), httputil.ActorID(c), id)
	if err != nil {
		h.respondRejectedFor(c, err, id)
		return
	}
	httputil.RespondWithSuccess(c, apt.View())
}

func (h *Handler) RejectAppointment(c *gin.Context) {
	h.withReason(c, h.service.Reject)
}

func (h *Handler) RescheduleAppointment(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidation(c, httputil.BindingMessage(err))
		return
	}
	date, _ := timeofday.ParseDate(req.Date)
	at, _ := timeofday.Parse(req.Time)

	apt, err := h.service.Reschedule(c.Request.Context(), httputil.ActorID(c), id, date, at)
	if err != nil {
		if !errors.CodeOf(err).IsSchedulingRejection() {
			httputil.RespondWithError(c, err)
			return
		}
		current, getErr := h.service.GetAppointment(c.Request.Context(), httputil.ActorID(c), id)
		if getErr != nil {
			httputil.RespondWithError(c, err)
			return
		}
		h.respondRejected(c, err, current.DoctorID, date, at)
		return
	}
	httputil.RespondWithSuccess(c, apt.View())
}

func (h *Handler) StartConsultation(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	consultation, err := h.service.StartConsultation(c.Request.Context(), httputil.ActorID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"appointment":        consultation.Appointment.View(),
		"clinical_record_id": consultation.RecordID,
	})
}

func (h *Handler) CompleteConsultation(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.CompleteConsultation(c.Request.Context(), httputil.ActorID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt.View())
}

func (h *Handler) CancelConsultation(c *gin.Context) {
	h.withReason(c, h.service.CancelConsultation)
}

// CancelAppointment takes an optional reason, so an empty body is accepted.
func (h *Handler) CancelAppointment(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"max=1000"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithValidation(c, httputil.BindingMessage(err))
			return
		}
	}

	apt, err := h.service.Cancel(c.Request.Context(), httputil.ActorID(c), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt.View())
}

type reasonFunc func(ctx context.Context, actorID, id uuid.UUID, reason string) (*model.Appointment, error)

func (h *Handler) withReason(c *gin.Context, fn reasonFunc) {
	id, ok := httputil.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidation(c, httputil.BindingMessage(err))
		return
	}

	apt, err := fn(c.Request.Context(), httputil.ActorID(c), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt.View())
}

// respondRejectedFor attaches suggestions for an existing appointment's slot.
func (h *Handler) respondRejectedFor(c *gin.Context, err error, id uuid.UUID) {
	if !errors.CodeOf(err).IsSchedulingRejection() {
		httputil.RespondWithError(c, err)
		return
	}
	doctorID, date, at, slotErr := h.service.SlotOf(c.Request.Context(), id)
	if slotErr != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.respondRejected(c, err, doctorID, date, at)
}

// respondRejected writes err and, for scheduling rejections, the alternative
// times around the requested one. Failing to compute suggestions never hides
// the original rejection.
func (h *Handler) respondRejected(c *gin.Context, err error, doctorID uuid.UUID, date time.Time, at timeofday.Minute) {
	if !errors.CodeOf(err).IsSchedulingRejection() {
		httputil.RespondWithError(c, err)
		return
	}

	suggestions, sErr := h.availability.GetSuggestions(c.Request.Context(), doctorID, date, at, h.availability.DefaultLookAheadDays())
	if sErr != nil {
		h.log.Warn("failed to compute suggestions", "doctor_id", doctorID.String(), "error", sErr.Error())
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithErrorData(c, err, gin.H{"suggestions": suggestions})
}
