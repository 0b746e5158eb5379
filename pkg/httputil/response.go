package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/pkg/errors"
)

// ContextUserID is the gin context key under which the auth middleware
// stores the caller's user id.
const ContextUserID = "userID"

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// RespondWithSuccess sends a 200 response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response. Errors that are not AppErrors
// are reported as INTERNAL_ERROR without leaking their text.
func RespondWithError(c *gin.Context, err error) {
	RespondWithErrorData(c, err, nil)
}

// RespondWithErrorData is RespondWithError with a payload, used to attach
// alternative times to a scheduling rejection.
func RespondWithErrorData(c *gin.Context, err error, data interface{}) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.NewInternal(err)
	}
	if appErr.Code == errors.ErrInternal {
		_ = c.Error(err)
	}

	c.JSON(appErr.Code.HTTPStatus(), Response{
		Success: false,
		Data:    data,
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
}

// RespondWithValidation sends a 400 for malformed input.
func RespondWithValidation(c *gin.Context, message string) {
	RespondWithError(c, errors.NewValidation(message, nil))
}

// ActorID returns the authenticated caller, or uuid.Nil when absent.
func ActorID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// ParseUUIDParam parses a path parameter as a uuid.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondWithValidation(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
