package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope every /api/v1 endpoint answers with.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *AppError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type Meta struct {
	Total int64  `json:"total"`
	Date  string `json:"date,omitempty"`
}

func respond(c *gin.Context, status int, resp Response) {
	resp.RequestID = c.GetString("request_id")
	c.JSON(status, resp)
}

func SendSuccess(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, Response{Success: true, Data: data})
}

func SendSuccessWithMeta(c *gin.Context, data interface{}, meta *Meta) {
	respond(c, http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// SendAccepted answers for work that continues after the response.
func SendAccepted(c *gin.Context, data interface{}) {
	respond(c, http.StatusAccepted, Response{Success: true, Data: data})
}

func SendError(c *gin.Context, statusCode int, err *AppError) {
	respond(c, statusCode, Response{Success: false, Error: err})
}

func SendValidationError(c *gin.Context, message string, details string) {
	SendError(c, http.StatusBadRequest, NewAppError(ErrCodeValidation, message, details))
}

func SendNotFound(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, NewAppError(ErrCodeNotFound, message))
}

func SendInternalError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, NewAppError(ErrCodeInternal, message))
}

func SendUnavailable(c *gin.Context, message string) {
	SendError(c, http.StatusServiceUnavailable, NewAppError(ErrCodeUnavailable, message))
}
