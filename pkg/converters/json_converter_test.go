package converters

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

func TestConvert(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }
	end := at(900)

	doc := &models.Document{
		ID:           "doc-1",
		Source:       models.SourceLocalDirectory,
		Origin:       models.OriginRef{Path: "inbox/a.txt"},
		FileName:     "a.txt",
		RawFormat:    models.FormatTXT,
		OutputFormat: models.FormatPDF,
		State:        models.StateNotified,
		Attempts:     map[models.Stage]int{models.StageParse: 1, models.StageEdit: 2},
		PrintJobID:   "office-1",
		CreatedAt:    start,
		TerminalAt:   &end,
	}
	log := []models.LogEntry{
		{At: at(0), Event: models.EventReceived, State: models.StateReceived},
		{At: at(10), Event: models.EventTransition, State: models.StateParsing},
		{At: at(60), Event: models.EventTransition, State: models.StateParsed},
		{At: at(70), Event: models.EventTransition, State: models.StateAIEditing},
		{At: at(500), Event: models.EventRetry, State: models.StateAIEditing},
		{At: at(570), Event: models.EventTransition, State: models.StateEdited},
	}

	c := NewJSONConverter()
	report, err := c.Convert(doc, log)
	require.NoError(t, err)
	assert.Equal(t, int64(900), report.Metadata.ProcessingMs)
	assert.Equal(t, 2, report.Attempts[models.StageEdit])
	assert.InDelta(t, 50, report.StageDurations[models.StageParse], 0.01)
	assert.InDelta(t, 500, report.StageDurations[models.StageEdit], 0.01)
	assert.Equal(t, "inbox/a.txt", report.Origin)

	data, err := c.Marshal(report)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "NOTIFIED", decoded["status"])
	assert.Equal(t, "office-1", decoded["printJobId"])
}

func TestConvertNil(t *testing.T) {
	_, err := NewJSONConverter().Convert(nil, nil)
	assert.Error(t, err)
}
