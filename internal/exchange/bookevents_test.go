package exchange

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"bookswap/internal/broker"
)

func TestBookEventHandlerLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fanout := broker.NewMemoryFanout()
	fanout.Subscribe(BookEventHandler(zap.New(core)))

	err := fanout.Publish(context.Background(), broker.Fact{
		Type: broker.BookStatusUpdated,
		Data: map[string]interface{}{"id": 3, "owner_id": 1, "status": "lent"},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("book event received").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["book_id"])
	assert.Equal(t, "lent", entries[0].ContextMap()["status"])
}

func TestBookEventHandlerRejectsGarbage(t *testing.T) {
	h := BookEventHandler(zap.NewNop())
	err := h(context.Background(), broker.Delivery{Type: broker.BookCreated, Data: json.RawMessage(`"nope"`)})
	assert.Error(t, err)
}
