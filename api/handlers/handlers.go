package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/printer"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/service/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/store"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	// Webhook is nil when the messaging channel is disabled.
	Webhook *WebhookHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	inbound InboundHandler,
	log logger.Logger,
) *Handlers {
	h := &Handlers{
		Document: NewDocumentHandler(documentService, log),
	}
	if inbound != nil {
		h.Webhook = NewWebhookHandler(inbound, log)
	}
	return h
}

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	var se *models.StageError
	switch {
	case err == nil, errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, document.ErrNoOutput),
		errors.Is(err, printer.ErrPrinterNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrNotAwaitingConfirmation),
		errors.Is(err, document.ErrTerminal),
		errors.Is(err, document.ErrAlreadyPrinting),
		errors.Is(err, document.ErrNotResubmittable):
		return http.StatusConflict
	case errors.As(err, &se) && se.Kind == models.ErrPrinterUnavailable:
		return http.StatusServiceUnavailable
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// handleError 统一错误处理
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	status := statusOf(err)

	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Debug(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	var se *models.StageError
	if errors.As(err, &se) {
		response.Kind = string(se.Kind)
	}
	c.AbortWithStatusJSON(status, response)
}
