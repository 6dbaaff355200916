package simserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marchaven/roadband/internal/game/encounter"
	"github.com/marchaven/roadband/internal/testutil"
)

func newHubServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// waitForCount polls the subscriber count; ServeWS registers on the server
// goroutine so the count trails the client's dial slightly.
func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub count never reached %d, have %d", want, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastReachesEverySubscriber(t *testing.T) {
	hub, url := newHubServer(t)
	first := testutil.NewWSClient(t, url)
	second := testutil.NewWSClient(t, url)
	waitForCount(t, hub, 2)

	hub.Broadcast(marchMessage{Type: "wave_started", Road: "rat_run", Wave: 1, Label: "gate"})

	for _, client := range []*testutil.WSClient{first, second} {
		var got struct {
			Type  string `json:"type"`
			Road  string `json:"road"`
			Wave  int    `json:"wave"`
			Label string `json:"label"`
		}
		client.ReadJSON(5*time.Second, &got)
		assert.Equal(t, "wave_started", got.Type)
		assert.Equal(t, "rat_run", got.Road)
		assert.Equal(t, 1, got.Wave)
		assert.Equal(t, "gate", got.Label)
	}
}

func TestHubForwardsEncounterEvents(t *testing.T) {
	hub, url := newHubServer(t)
	client := testutil.NewWSClient(t, url)
	waitForCount(t, hub, 1)

	hub.HandleEvent(encounter.Event{
		Type:        encounter.EventDamageDealt,
		EncounterID: "enc-7",
		Tick:        12,
		ActorID:     "wolf-1",
		TargetID:    "hero-1",
		Amount:      14,
	})

	raw := client.ReadUntilType(string(encounter.EventDamageDealt), 5*time.Second)
	assert.Contains(t, string(raw), `"encounterId":"enc-7"`)
	assert.Contains(t, string(raw), `"amount":14`)
}

func TestHubDropsDeadSubscribers(t *testing.T) {
	hub, url := newHubServer(t)
	doomed := testutil.NewWSClient(t, url)
	survivor := testutil.NewWSClient(t, url)
	waitForCount(t, hub, 2)

	doomed.Close()

	// The dead peer surfaces as a write failure; broadcast until the hub
	// notices and evicts it.
	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() > 1 {
		if time.Now().After(deadline) {
			t.Fatalf("dead subscriber never evicted, count %d", hub.Count())
		}
		hub.Broadcast(announcement{Type: "announcement", Message: "ping"})
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(marchMessage{Type: "road_completed", Road: "rat_run"})
	raw := survivor.ReadUntilType("road_completed", 5*time.Second)
	require.Contains(t, string(raw), "rat_run")
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub, url := newHubServer(t)
	testutil.NewWSClient(t, url)
	testutil.NewWSClient(t, url)
	waitForCount(t, hub, 2)

	hub.Close()
	assert.Zero(t, hub.Count())

	// Broadcasting into an empty hub is a no-op.
	hub.Broadcast(announcement{Type: "announcement", Message: "anyone there"})
}

func TestServeWSRejectsPlainHTTP(t *testing.T) {
	_, url := newHubServer(t)
	httpURL := "http" + strings.TrimPrefix(url, "ws")

	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
