package doctor

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/service/availability"
	"github.com/jwalitptl/scheduling-api/pkg/httputil"
	"github.com/jwalitptl/scheduling-api/pkg/timeofday"
)

// Handler serves a doctor's availability and working schedule.
type Handler struct {
	service *availability.Service
}

func NewHandler(service *availability.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors/:doctorId")
	{
		doctors.GET("/slots", h.GetAvailableSlots)
		doctors.GET("/suggestions", h.GetSuggestions)
		doctors.GET("/schedule", h.GetWeeklySchedule)
		doctors.PUT("/schedule/:weekday", h.UpsertSchedule)
	}
}

func (h *Handler) GetAvailableSlots(c *gin.Context) {
	doctorID, ok := httputil.ParseUUIDParam(c, "doctorId")
	if !ok {
		return
	}
	date, err := timeofday.ParseDate(c.Query("date"))
	if err != nil {
		httputil.RespondWithValidation(c, err.Error())
		return
	}

	slots, err := h.service.GetAvailableSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) GetSuggestions(c *gin.Context) {
	doctorID, ok := httputil.ParseUUIDParam(c, "doctorId")
	if !ok {
		return
	}
	date, err := timeofday.ParseDate(c.Query("date"))
	if err != nil {
		httputil.RespondWithValidation(c, err.Error())
		return
	}
	at, err := timeofday.Parse(c.Query("time"))
	if err != nil {
		httputil.RespondWithValidation(c, err.Error())
		return
	}

	lookAhead := h.service.DefaultLookAheadDays()
	if v := c.Query("look_ahead_days"); v != "" {
		if lookAhead, err = strconv.Atoi(v); err != nil {
			httputil.RespondWithValidation(c, "look_ahead_days must be a number")
			return
		}
	}

	suggestions, err := h.service.GetSuggestions(c.Request.Context(), doctorID, date, at, lookAhead)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, suggestions)
}

func (h *Handler) GetWeeklySchedule(c *gin.Context) {
	doctorID, ok := httputil.ParseUUIDParam(c, "doctorId")
	if !ok {
		return
	}

	week, err := h.service.GetWeeklySchedule(c.Request.Context(), doctorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, week)
}

func (h *Handler) UpsertSchedule(c *gin.Context) {
	doctorID, ok := httputil.ParseUUIDParam(c, "doctorId")
	if !ok {
		return
	}
	day, err := model.ParseWeekday(c.Param("weekday"))
	if err != nil {
		httputil.RespondWithValidation(c, err.Error())
		return
	}

	var req model.ScheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidation(c, httputil.BindingMessage(err))
		return
	}
	entry, err := req.ToEntry(doctorID, day)
	if err != nil {
		httputil.RespondWithValidation(c, err.Error())
		return
	}

	if err := h.service.UpsertSchedule(c.Request.Context(), httputil.ActorID(c), entry); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, entry.View())
}
