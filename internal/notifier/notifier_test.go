package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

type fakeSender struct {
	sent []*openapi.CreateMessageParams
	err  error
}

func (f *fakeSender) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.sent = append(f.sent, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

var phone = models.OriginRef{Sender: "whatsapp:+15551234567", MessageID: "MM1"}

func TestTwilioNotifier(t *testing.T) {
	sender := &fakeSender{}
	n := NewTwilioNotifierWithSender(sender, "whatsapp:+14155238886", logger.NewTestLogger())

	require.NoError(t, n.Notify(context.Background(), phone, StatusAwaitingConfirmation, ""))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "whatsapp:+15551234567", *sender.sent[0].To)
	assert.Equal(t, "whatsapp:+14155238886", *sender.sent[0].From)
	assert.Contains(t, *sender.sent[0].Body, "Reply YES")
}

func TestTwilioNotifierFailures(t *testing.T) {
	n := NewTwilioNotifierWithSender(&fakeSender{err: errors.New("21211 invalid To")}, "from", logger.NewTestLogger())
	err := n.Notify(context.Background(), phone, StatusCompleted, "")
	assert.True(t, models.IsKind(err, models.ErrDeliveryError))

	err = n.Notify(context.Background(), models.OriginRef{Path: "/tmp/a.txt"}, StatusCompleted, "")
	assert.True(t, models.IsKind(err, models.ErrDeliveryError))
}

func TestTwilioNotifierTruncatesLongBodies(t *testing.T) {
	sender := &fakeSender{}
	n := NewTwilioNotifierWithSender(sender, "from", logger.NewTestLogger())
	require.NoError(t, n.Notify(context.Background(), phone, StatusFailed, strings.Repeat("x", 5000)))
	assert.Len(t, *sender.sent[0].Body, maxBodyLength)
}

func TestRouter(t *testing.T) {
	sender := &fakeSender{}
	log := logger.NewTestLogger()
	r := NewRouter(NewLogNotifier(log)).
		Route(models.SourceMessaging, NewTwilioNotifierWithSender(sender, "from", log))

	require.NoError(t, r.Notify(context.Background(), phone, StatusCompleted, "job 7"))
	require.NoError(t, r.Notify(context.Background(), models.OriginRef{Path: "inbox/a.txt"}, StatusFailed, "Corrupt"))

	assert.Len(t, sender.sent, 1)
	assert.True(t, log.Contains("WARN", "document notification"))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Sorry, we could not process your document: Corrupt: bad zip", Message(StatusFailed, "Corrupt: bad zip"))
	assert.Contains(t, Message(StatusCancelled, ""), "cancelled")
	assert.Contains(t, Message(StatusCompleted, "Job office-42."), "office-42")
}
