package converters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// DocumentConverter 定义文档转换器接口
type DocumentConverter interface {
	Convert(doc *models.Document, log []models.LogEntry) (*ProcessedDocument, error)
}

// ProcessedDocument is the final processing report of one document.
type ProcessedDocument struct {
	DocumentID      string                   `json:"documentId"`
	Status          models.State             `json:"status"`
	Source          models.Source            `json:"source"`
	Origin          string                   `json:"origin"`
	Metadata        DocumentMetadata         `json:"metadata"`
	Attempts        map[models.Stage]int     `json:"attempts"`
	StageDurations  map[models.Stage]float64 `json:"stageDurationsMs"`
	PrintJobID      string                   `json:"printJobId,omitempty"`
	OutputRef       string                   `json:"outputRef,omitempty"`
	Error           *models.StageError       `json:"error,omitempty"`
	NotifyError     string                   `json:"notifyError,omitempty"`
	ResubmittedFrom string                   `json:"resubmittedFrom,omitempty"`
	Timeline        []models.LogEntry        `json:"timeline"`
	ProcessedAt     time.Time                `json:"processedAt"`
}

// DocumentMetadata 定义文档元数据
type DocumentMetadata struct {
	FileName     string        `json:"fileName"`
	RawFormat    models.Format `json:"rawFormat"`
	OutputFormat models.Format `json:"outputFormat"`
	FileSize     int64         `json:"fileSize"`
	ContentHash  string        `json:"contentHash,omitempty"`
	ProcessingMs int64         `json:"processingMs"`
	ParkedMs     int64         `json:"parkedMs,omitempty"`
}

// JSONConverter 实现文档转换器
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(doc *models.Document, log []models.LogEntry) (*ProcessedDocument, error) {
	if doc == nil {
		return nil, fmt.Errorf("no document to convert")
	}

	end := doc.UpdatedAt
	if doc.TerminalAt != nil {
		end = *doc.TerminalAt
	}

	report := &ProcessedDocument{
		DocumentID: doc.ID,
		Status:     doc.State,
		Source:     doc.Source,
		Origin:     doc.Origin.String(),
		Metadata: DocumentMetadata{
			FileName:     doc.FileName,
			RawFormat:    doc.RawFormat,
			OutputFormat: doc.OutputFormat,
			FileSize:     doc.SizeBytes,
			ContentHash:  doc.ContentHash,
			ProcessingMs: end.Sub(doc.CreatedAt).Milliseconds(),
			ParkedMs:     doc.ParkedFor.Milliseconds(),
		},
		Attempts:        make(map[models.Stage]int, len(doc.Attempts)),
		StageDurations:  stageDurations(log),
		PrintJobID:      doc.PrintJobID,
		OutputRef:       doc.OutputRef,
		Error:           doc.Error,
		NotifyError:     doc.NotifyError,
		ResubmittedFrom: doc.ResubmittedFrom,
		Timeline:        log,
		ProcessedAt:     end,
	}
	for stage, n := range doc.Attempts {
		report.Attempts[stage] = n
	}
	if report.Timeline == nil {
		report.Timeline = []models.LogEntry{}
	}
	return report, nil
}

// Marshal renders the report as indented JSON.
func (c *JSONConverter) Marshal(report *ProcessedDocument) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// stageDurations measures the time spent in each working state from the
// transition entries of the processing log.
func stageDurations(log []models.LogEntry) map[models.Stage]float64 {
	out := make(map[models.Stage]float64)
	var (
		current models.Stage
		since   time.Time
	)
	for _, e := range log {
		if e.Event != models.EventTransition {
			continue
		}
		if current != "" {
			out[current] += float64(e.At.Sub(since).Microseconds()) / 1000
		}
		current, _ = e.State.Stage()
		since = e.At
	}
	return out
}
