package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/service/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/store"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

const maxListLimit = 500

type DocumentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log,
	}
}

// List 列出文档. Query: state (repeatable or comma separated), source, sender, limit.
func (h *DocumentHandler) List(c *gin.Context) {
	filter := store.Filter{
		Source: models.Source(c.Query("source")),
		Sender: c.Query("sender"),
		Limit:  100,
	}
	for _, raw := range c.QueryArray("state") {
		for _, s := range strings.Split(raw, ",") {
			state := models.State(strings.ToUpper(strings.TrimSpace(s)))
			if !state.Valid() {
				handleError(c, h.logger, "Unknown state", fmt.Errorf("%w: state %q", errBadRequest, s))
				return
			}
			filter.States = append(filter.States, state)
		}
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			handleError(c, h.logger, "Invalid limit", fmt.Errorf("%w: limit %q", errBadRequest, raw))
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	docs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handleError(c, h.logger, "Failed to list documents", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to get document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Log returns the processing log.
func (h *DocumentHandler) Log(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.service.Log(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to get processing log", err)
		return
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"documentId": id, "entries": entries})
}

// Output 下载渲染结果
func (h *DocumentHandler) Output(c *gin.Context) {
	id := c.Param("id")
	data, format, err := h.service.Output(c.Request.Context(), id)
	if err != nil {
		handleError(c, h.logger, "Failed to get output", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s%s", id, format.Extension()))
	c.Data(http.StatusOK, format.ContentType(), data)
}

// Confirm releases a parked document to the printer.
func (h *DocumentHandler) Confirm(c *gin.Context) {
	doc, err := h.service.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to confirm document", err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

func (h *DocumentHandler) Resubmit(c *gin.Context) {
	doc, err := h.service.Resubmit(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to resubmit document", err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// Cancel 取消处理任务
func (h *DocumentHandler) Cancel(c *gin.Context) {
	doc, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to cancel document", err)
		return
	}
	status := http.StatusOK
	if !doc.State.Terminal() {
		// the running pipeline finishes the cancellation
		status = http.StatusAccepted
	}
	c.JSON(status, doc)
}

func (h *DocumentHandler) Printers(c *gin.Context) {
	printers, err := h.service.Printers(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, "Failed to list printers", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}

func (h *DocumentHandler) Printer(c *gin.Context) {
	p, err := h.service.Printer(c.Request.Context(), c.Param("name"))
	if err != nil {
		handleError(c, h.logger, "Failed to get printer", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// TestPrinter prints a test page on the named printer.
func (h *DocumentHandler) TestPrinter(c *gin.Context) {
	name := c.Param("name")
	jobID, err := h.service.PrintTestPage(c.Request.Context(), name)
	if err != nil {
		handleError(c, h.logger, "Failed to print test page", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"printer": name, "job_id": jobID})
}
