package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

var senderPattern = regexp.MustCompile(`^whatsapp:\+[1-9][0-9]{6,14}$`)

// Media is one attachment of an inbound message.
type Media struct {
	URL         string
	ContentType string
}

// InboundMessage is a parsed messaging webhook call.
type InboundMessage struct {
	From       string
	MessageSID string
	Body       string
	Media      []Media
}

// ParseInbound reads the webhook form fields.
func ParseInbound(form url.Values) (InboundMessage, error) {
	msg := InboundMessage{
		From:       strings.TrimSpace(form.Get("From")),
		MessageSID: form.Get("MessageSid"),
		Body:       strings.TrimSpace(form.Get("Body")),
	}
	if !senderPattern.MatchString(msg.From) {
		return msg, fmt.Errorf("invalid sender %q", msg.From)
	}

	n, _ := strconv.Atoi(form.Get("NumMedia"))
	for i := 0; i < n; i++ {
		u := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if u == "" {
			continue
		}
		msg.Media = append(msg.Media, Media{
			URL:         u,
			ContentType: form.Get(fmt.Sprintf("MediaContentType%d", i)),
		})
	}
	return msg, nil
}

// Reply texts sent back in the webhook response.
const (
	ReplyReceived    = "Document received! Processing now. You will get a message when it is ready."
	ReplyConfirmed   = "Confirmed. Printing your document now."
	ReplyCancelled   = "Cancelled. Your document will not be printed."
	ReplyNothingOpen = "There is no document waiting for your reply."
	ReplyHelp        = "Send a document (PDF, DOCX, TXT or RTF) and I will improve and print it. Reply YES to print a ready document or CANCEL to discard it."
)

// Messaging handles inbound webhook messages. Media downloads run in the
// background so the webhook can answer at once.
type Messaging struct {
	submitter  Submitter
	controller Controller
	httpClient *http.Client
	cfg        config.MessagingConfig
	maxSize    int64
	logger     logger.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewMessaging builds the handler. Background work is bound to ctx.
func NewMessaging(ctx context.Context, submitter Submitter, controller Controller, cfg config.MessagingConfig, maxSize int64, httpClient *http.Client, log logger.Logger) *Messaging {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Messaging{
		submitter:  submitter,
		controller: controller,
		httpClient: httpClient,
		cfg:        cfg,
		maxSize:    maxSize,
		logger:     log,
		baseCtx:    ctx,
	}
}

// Handle reacts to one message and returns the text to reply with.
func (m *Messaging) Handle(ctx context.Context, msg InboundMessage) string {
	if len(msg.Media) > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.ingest(m.baseCtx, msg)
		}()
		return ReplyReceived
	}

	switch strings.ToUpper(strings.Trim(msg.Body, " .!")) {
	case "YES", "Y", "PRINT":
		doc, err := m.controller.ConfirmLatest(ctx, msg.From)
		if err != nil {
			m.logger.Debug("confirm reply ignored", logger.String("from", msg.From), logger.Error(err))
			return ReplyNothingOpen
		}
		m.logger.Info("confirmed by reply", logger.DocumentID(doc.ID))
		return ReplyConfirmed
	case "CANCEL", "NO", "STOP":
		doc, err := m.controller.CancelLatest(ctx, msg.From)
		if err != nil {
			m.logger.Debug("cancel reply ignored", logger.String("from", msg.From), logger.Error(err))
			return ReplyNothingOpen
		}
		m.logger.Info("cancelled by reply", logger.DocumentID(doc.ID))
		return ReplyCancelled
	default:
		return ReplyHelp
	}
}

// Wait blocks until background downloads finish.
func (m *Messaging) Wait() { m.wg.Wait() }

func (m *Messaging) ingest(ctx context.Context, msg InboundMessage) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, media := range msg.Media {
		i, media := i, media
		g.Go(func() error {
			data, contentType, err := m.download(ctx, media)
			if err != nil {
				m.logger.Error("media download failed",
					logger.String("from", msg.From),
					logger.String("message_sid", msg.MessageSID),
					logger.Error(err))
				return nil
			}
			doc, err := m.submitter.Submit(ctx, models.Submission{
				Source:      models.SourceMessaging,
				Origin:      models.OriginRef{Sender: msg.From, MessageID: msg.MessageSID},
				FileName:    mediaFileName(msg.MessageSID, i, media, contentType),
				ContentType: contentType,
				Data:        data,
			})
			if err != nil {
				m.logger.Error("submit failed", logger.String("message_sid", msg.MessageSID), logger.Error(err))
				return nil
			}
			m.logger.Info("media submitted", logger.DocumentID(doc.ID), logger.String("from", msg.From))
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Messaging) download(ctx context.Context, media Media) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, media.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	if m.cfg.Enabled() {
		req.SetBasicAuth(m.cfg.AccountSID, m.cfg.AuthToken)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	// Read one byte past the limit so the validator still sees an oversize file.
	body := io.Reader(resp.Body)
	if m.maxSize > 0 {
		body = io.LimitReader(resp.Body, m.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media: %w", err)
	}

	contentType := media.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return data, contentType, nil
}

func mediaFileName(sid string, i int, media Media, contentType string) string {
	name := fmt.Sprintf("%s_%d", sid, i)
	for _, f := range models.Formats {
		if strings.HasPrefix(contentType, strings.Split(f.ContentType(), ";")[0]) {
			return name + f.Extension()
		}
	}
	if u, err := url.Parse(media.URL); err == nil {
		if f, ok := models.FormatFromFileName(path.Base(u.Path)); ok {
			return name + f.Extension()
		}
	}
	return name
}
