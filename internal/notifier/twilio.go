package notifier

import (
	"context"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// maxBodyLength is the longest message body the messaging API accepts.
const maxBodyLength = 1600

// MessageSender is the part of the Twilio REST client we use.
type MessageSender interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioNotifier replies to the sender over WhatsApp.
type TwilioNotifier struct {
	sender MessageSender
	from   string
	logger logger.Logger
}

func NewTwilioNotifier(cfg config.MessagingConfig, log logger.Logger) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewTwilioNotifierWithSender(client.Api, cfg.FromNumber, log)
}

func NewTwilioNotifierWithSender(sender MessageSender, from string, log logger.Logger) *TwilioNotifier {
	return &TwilioNotifier{sender: sender, from: from, logger: log}
}

func (n *TwilioNotifier) Notify(ctx context.Context, origin models.OriginRef, status Status, detail string) error {
	if origin.Sender == "" {
		return models.NewError(models.ErrDeliveryError, "origin %s has no sender", origin)
	}
	if err := ctx.Err(); err != nil {
		return models.WrapError(models.ErrDeliveryError, err, "notification abandoned")
	}

	body := Message(status, detail)
	if len(body) > maxBodyLength {
		body = body[:maxBodyLength-3] + "..."
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(origin.Sender)
	params.SetFrom(n.from)
	params.SetBody(body)

	resp, err := n.sender.CreateMessage(params)
	if err != nil {
		return models.WrapError(models.ErrDeliveryError, err, "send message to "+origin.Sender)
	}
	if resp != nil && resp.Sid != nil {
		n.logger.Debug("message sent",
			logger.String("to", origin.Sender),
			logger.String("sid", *resp.Sid),
			logger.String("status", string(status)))
	}
	return nil
}
