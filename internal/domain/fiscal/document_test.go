package fiscal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentTransitions(t *testing.T) {
	cfg, err := NewConfig("clinic-a", now)
	require.NoError(t, err)

	doc := NewDocument(cfg, "inv-1", 7, "35240311222333000181550010000000071123456780", "12345678", now)
	assert.Equal(t, StatusPending, doc.Status)
	assert.Equal(t, Staging, doc.Environment)
	assert.False(t, doc.IsStaleProcessing(now, time.Minute))

	doc.StartAttempt(now)
	assert.Equal(t, StatusProcessing, doc.Status)
	assert.Equal(t, 1, doc.Attempts)
	assert.False(t, doc.IsStaleProcessing(now.Add(30*time.Second), time.Minute))
	assert.True(t, doc.IsStaleProcessing(now.Add(time.Minute), time.Minute))

	clone := doc.Clone()
	doc.Release("timeout", now)
	assert.Equal(t, StatusPending, doc.Status)
	assert.Equal(t, StatusProcessing, clone.Status)

	doc.StartAttempt(now)
	doc.Authorize("135240000000001", "100", "Autorizado o uso da NF-e", now)
	assert.Equal(t, StatusAuthorized, doc.Status)
	require.NotNil(t, doc.AuthorizedAt)

	doc.Cancel("Cobrança emitida em duplicidade", "135240000000002", now.Add(time.Hour))
	assert.Equal(t, StatusCancelled, doc.Status)
	assert.True(t, doc.Cancelled)

	event := NewDocumentEvent(doc, EventCancelled, StatusAuthorized, now)
	assert.Equal(t, doc.ID, event.DocumentID)
	assert.Equal(t, StatusCancelled, event.ToStatus)
}
