package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Source 文档来源
type Source string

const (
	SourceMessaging      Source = "messaging"
	SourceLocalDirectory Source = "local-directory"
)

// Format is both an input format and a deliverable output format.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
	FormatTXT  Format = "txt"
	FormatRTF  Format = "rtf"
)

// Formats lists every supported format in a stable order.
var Formats = []Format{FormatDOCX, FormatPDF, FormatTXT, FormatRTF}

// ParseFormat accepts "pdf", ".pdf" or "PDF".
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	for _, known := range Formats {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// FormatFromFileName infers the format from the file extension.
func FormatFromFileName(name string) (Format, bool) {
	return ParseFormat(filepath.Ext(name))
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string { return "." + string(f) }

// ContentType is the MIME type used when serving or storing content of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatRTF:
		return "application/rtf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// OriginRef is the opaque handle back to whoever submitted the document.
type OriginRef struct {
	Sender    string `json:"sender,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Path      string `json:"path,omitempty"`
}

func (o OriginRef) String() string {
	if o.Path != "" {
		return o.Path
	}
	return o.Sender + "/" + o.MessageID
}

// Document is the unit of work carried through the pipeline.
type Document struct {
	ID           string        `json:"id"`
	Source       Source        `json:"source"`
	Origin       OriginRef     `json:"origin"`
	FileName     string        `json:"fileName"`
	RawFormat    Format        `json:"rawFormat"`
	OutputFormat Format        `json:"outputFormat"`
	SizeBytes    int64         `json:"sizeBytes"`
	ContentHash  string        `json:"contentHash,omitempty"`
	State        State         `json:"state"`
	Attempts     map[Stage]int `json:"attempts"`

	RawRef    string `json:"rawRef,omitempty"`
	EditedRef string `json:"editedRef,omitempty"`
	OutputRef string `json:"outputRef,omitempty"`

	Error       *StageError `json:"error,omitempty"`
	NotifyError string      `json:"notifyError,omitempty"`

	// Print bookkeeping. PrintInFlight is persisted before the printer is
	// called and PrintJobID right after it answers.
	PrintInFlight bool   `json:"printInFlight,omitempty"`
	PrintJobID    string `json:"printJobId,omitempty"`

	ConfirmationRequired bool `json:"confirmationRequired,omitempty"`
	Confirmed            bool `json:"confirmed,omitempty"`
	CancelRequested      bool `json:"cancelRequested,omitempty"`

	// ParkedAt is set while the document waits at RENDERED for a manual trigger.
	// That waiting time is credited back to the processing deadline.
	ParkedAt  *time.Time    `json:"parkedAt,omitempty"`
	ParkedFor time.Duration `json:"parkedFor,omitempty"`

	ResubmittedFrom string `json:"resubmittedFrom,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	TerminalAt *time.Time `json:"terminalAt,omitempty"`
}

// Clone returns a deep copy so stores never hand out shared maps or pointers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Attempts = make(map[Stage]int, len(d.Attempts))
	for k, v := range d.Attempts {
		c.Attempts[k] = v
	}
	if d.Error != nil {
		e := *d.Error
		c.Error = &e
	}
	if d.ParkedAt != nil {
		t := *d.ParkedAt
		c.ParkedAt = &t
	}
	if d.TerminalAt != nil {
		t := *d.TerminalAt
		c.TerminalAt = &t
	}
	return &c
}

// Deadline is the instant after which the document must be failed.
func (d *Document) Deadline(maxProcessing time.Duration) time.Time {
	return d.CreatedAt.Add(maxProcessing + d.ParkedFor)
}

// AwaitingConfirmation reports a document parked at RENDERED for a user reply.
func (d *Document) AwaitingConfirmation() bool {
	return d.State == StateRendered && d.ConfirmationRequired && !d.Confirmed
}

// AwaitingManualTrigger reports a document parked at RENDERED with auto print off.
func (d *Document) AwaitingManualTrigger() bool {
	return d.State == StateRendered && d.ParkedAt != nil
}

// LogEntry is one line of the append-only per-document processing log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	State   State     `json:"state"`
	Stage   Stage     `json:"stage,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Processing log events.
const (
	EventReceived     = "received"
	EventTransition   = "transition"
	EventStageFailed  = "stage_failed"
	EventRetry        = "retry"
	EventPrinted      = "printed"
	EventNotified     = "notified"
	EventNotifyFailed = "notify_failed"
	EventParked       = "parked"
	EventConfirmed    = "confirmed"
	EventCancelled    = "cancel_requested"
)

// Submission is what an intake source hands to the pipeline.
type Submission struct {
	Source      Source
	Origin      OriginRef
	FileName    string
	ContentType string
	Data        []byte
}
