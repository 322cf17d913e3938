package handlers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/intake"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// InboundHandler reacts to one parsed inbound message. *intake.Messaging
// implements it.
type InboundHandler interface {
	Handle(ctx context.Context, msg intake.InboundMessage) string
}

// twiml is the messaging gateway's reply document.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

type WebhookHandler struct {
	inbound InboundHandler
	logger  logger.Logger
}

func NewWebhookHandler(inbound InboundHandler, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{inbound: inbound, logger: log}
}

// Receive answers the gateway at once; attachments are fetched in the background.
func (h *WebhookHandler) Receive(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		handleError(c, h.logger, "Invalid webhook form", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	msg, err := intake.ParseInbound(c.Request.PostForm)
	if err != nil {
		h.logger.Warn("rejected webhook call", logger.Error(err))
		c.XML(http.StatusBadRequest, twiml{})
		return
	}

	h.logger.Info("inbound message",
		logger.String("from", msg.From),
		logger.String("message_sid", msg.MessageSID),
		logger.Int("media", len(msg.Media)))
	c.XML(http.StatusOK, twiml{Message: h.inbound.Handle(c.Request.Context(), msg)})
}
