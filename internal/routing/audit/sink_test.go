// internal/routing/audit/sink_test.go
package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Memory Sink Tests
// ==========================

func TestMemorySink_OrderPreserved(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	for _, event := range []string{EventRoutingStarted, EventPartnerSelected, EventDeliverySucceeded} {
		require.NoError(t, sink.Write(ctx, Entry{
			RoutingID: "r1",
			SignalID:  "sig-1",
			Event:     event,
			Timestamp: time.Now().UTC(),
		}))
	}

	entries := sink.ForRouting("r1")
	require.Len(t, entries, 3)
	assert.Equal(t, EventRoutingStarted, entries[0].Event)
	assert.Equal(t, EventDeliverySucceeded, entries[2].Event)
}

func TestMemorySink_FiltersByRouting(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, Entry{RoutingID: "r1", Event: EventRoutingStarted}))
	require.NoError(t, sink.Write(ctx, Entry{RoutingID: "r2", Event: EventRoutingStarted}))

	assert.Len(t, sink.ForRouting("r1"), 1)
	assert.Len(t, sink.Entries(), 2)
}

// ==========================
// Elasticsearch Sink Tests
// ==========================

func newTestESClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSink_IndexesEntry(t *testing.T) {
	var gotPath string
	var gotEntry Entry

	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&gotEntry)
		}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": "created"}`))
	})

	sink := NewElasticsearchSink(client, "routing-audit")
	err := sink.Write(context.Background(), Entry{
		RoutingID: "r1",
		SignalID:  "sig-1",
		Event:     EventDeliverySucceeded,
		PartnerID: "partner-1",
		Timestamp: time.Now().UTC(),
	})

	require.NoError(t, err)
	assert.Equal(t, "/routing-audit/_doc", gotPath)
	assert.Equal(t, "r1", gotEntry.RoutingID)
	assert.Equal(t, EventDeliverySucceeded, gotEntry.Event)
}

func TestElasticsearchSink_ErrorResponse(t *testing.T) {
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "index blocked"}`))
	})

	sink := NewElasticsearchSink(client, "routing-audit")
	err := sink.Write(context.Background(), Entry{RoutingID: "r1", Event: EventRoutingFailed})

	assert.Error(t, err)
}
