package peer_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energymarket/internal/peer"
	"github.com/terminal-bench/energymarket/shared/model"
)

type fakeElections struct {
	tokens        chan model.ElectionToken
	announcements chan model.WinnerAnnouncement
}

func newFakeElections() *fakeElections {
	return &fakeElections{
		tokens:        make(chan model.ElectionToken, 4),
		announcements: make(chan model.WinnerAnnouncement, 4),
	}
}

func (f *fakeElections) HandleToken(tok model.ElectionToken) { f.tokens <- tok }

func (f *fakeElections) HandleWinnerAnnouncement(ann model.WinnerAnnouncement) {
	f.announcements <- ann
}

type fakeMembership struct {
	mu    sync.Mutex
	added []model.PlantInfo
}

func (f *fakeMembership) Add(p model.PlantInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, p)
}

func (f *fakeMembership) addedPlants() []model.PlantInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PlantInfo(nil), f.added...)
}

type fakeEvictor struct {
	mu      sync.Mutex
	removed []int
}

func (f *fakeEvictor) Remove(plantID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, plantID)
}

func (f *fakeEvictor) removedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.removed...)
}

func postJSON(t *testing.T, handler http.Handler, path string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeAck(t *testing.T, w *httptest.ResponseRecorder) model.Ack {
	t.Helper()
	var ack model.Ack
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	return ack
}

func TestServerAnnouncePresence(t *testing.T) {
	t.Run("adds the announcer to the membership", func(t *testing.T) {
		elections := newFakeElections()
		membership := &fakeMembership{}
		srv := peer.NewServer(1, elections, membership, zerolog.Nop())

		info := model.PlantInfo{PlantID: 2, Address: "localhost", Port: 7002, RegistrationTime: 20}
		w := postJSON(t, srv.Router(), "/peer/presence", info)

		require.Equal(t, http.StatusOK, w.Code)
		ack := decodeAck(t, w)
		assert.True(t, ack.Success)
		require.Len(t, membership.addedPlants(), 1)
		assert.Equal(t, 2, membership.addedPlants()[0].PlantID)
	})

	t.Run("rejects invalid plant info", func(t *testing.T) {
		srv := peer.NewServer(1, newFakeElections(), &fakeMembership{}, zerolog.Nop())
		w := postJSON(t, srv.Router(), "/peer/presence", model.PlantInfo{PlantID: -1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, decodeAck(t, w).Success)
	})
}

func TestServerElectionEndpoints(t *testing.T) {
	t.Run("token is acked then dispatched asynchronously", func(t *testing.T) {
		elections := newFakeElections()
		srv := peer.NewServer(1, elections, &fakeMembership{}, zerolog.Nop())

		tok := model.ElectionToken{
			InitiatorID:     2,
			RequestID:       "R1",
			BestBid:         model.Bid{PlantID: 2, Price: decimal.RequireFromString("0.40")},
			EnergyAmountKWh: 5000,
		}
		w := postJSON(t, srv.Router(), "/peer/election-token", tok)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeAck(t, w).Success)

		select {
		case got := <-elections.tokens:
			assert.Equal(t, tok.RequestID, got.RequestID)
			assert.True(t, got.BestBid.Price.Equal(tok.BestBid.Price))
		case <-time.After(time.Second):
			t.Fatal("token never reached the election manager")
		}
	})

	t.Run("winner announcement is acked then dispatched", func(t *testing.T) {
		elections := newFakeElections()
		srv := peer.NewServer(1, elections, &fakeMembership{}, zerolog.Nop())

		ann := model.WinnerAnnouncement{
			RequestID:      "R1",
			WinningPlantID: 2,
			WinningPrice:   decimal.RequireFromString("0.40"),
			InitiatorID:    2,
		}
		w := postJSON(t, srv.Router(), "/peer/winner", ann)
		require.Equal(t, http.StatusOK, w.Code)

		select {
		case got := <-elections.announcements:
			assert.Equal(t, 2, got.WinningPlantID)
		case <-time.After(time.Second):
			t.Fatal("announcement never reached the election manager")
		}
	})

	t.Run("malformed payloads are refused with a failed ack", func(t *testing.T) {
		srv := peer.NewServer(1, newFakeElections(), &fakeMembership{}, zerolog.Nop())
		req := httptest.NewRequest(http.MethodPost, "/peer/election-token", bytes.NewReader([]byte("{broken")))
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, decodeAck(t, w).Success)
	})
}

// plantFromURL turns an httptest server URL into the PlantInfo a client dials.
func plantFromURL(t *testing.T, raw string, plantID int) model.PlantInfo {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return model.PlantInfo{PlantID: plantID, Address: u.Hostname(), Port: port, RegistrationTime: 1}
}

func TestClientFailurePolicy(t *testing.T) {
	self := model.PlantInfo{PlantID: 1, Address: "localhost", Port: 7001, RegistrationTime: 10}

	t.Run("reachable peer is kept", func(t *testing.T) {
		elections := newFakeElections()
		membership := &fakeMembership{}
		backend := httptest.NewServer(peer.NewServer(2, elections, membership, zerolog.Nop()).Router())
		defer backend.Close()

		evictor := &fakeEvictor{}
		client := peer.NewClient(evictor, time.Second, zerolog.Nop())
		defer client.Close()

		target := plantFromURL(t, backend.URL, 2)
		require.NoError(t, client.AnnouncePresence(target, self))
		require.NoError(t, client.ForwardToken(target, model.ElectionToken{
			InitiatorID: 1, RequestID: "R1",
			BestBid: model.Bid{PlantID: 1, Price: decimal.RequireFromString("0.30")},
		}))
		require.NoError(t, client.AnnounceWinner(target, model.WinnerAnnouncement{
			RequestID: "R1", WinningPlantID: 1,
			WinningPrice: decimal.RequireFromString("0.30"), InitiatorID: 1,
		}))
		assert.Empty(t, evictor.removedIDs())
	})

	t.Run("presence failure evicts the peer", func(t *testing.T) {
		backend := httptest.NewServer(http.NotFoundHandler())
		backend.Close() // dead before the call

		evictor := &fakeEvictor{}
		client := peer.NewClient(evictor, 500*time.Millisecond, zerolog.Nop())
		defer client.Close()

		target := plantFromURL(t, backend.URL, 2)
		assert.Error(t, client.AnnouncePresence(target, self))
		assert.Equal(t, []int{2}, evictor.removedIDs())
	})

	t.Run("winner announcement failure evicts the peer", func(t *testing.T) {
		backend := httptest.NewServer(http.NotFoundHandler())
		backend.Close()

		evictor := &fakeEvictor{}
		client := peer.NewClient(evictor, 500*time.Millisecond, zerolog.Nop())
		defer client.Close()

		target := plantFromURL(t, backend.URL, 3)
		assert.Error(t, client.AnnounceWinner(target, model.WinnerAnnouncement{RequestID: "R1"}))
		assert.Equal(t, []int{3}, evictor.removedIDs())
	})

	t.Run("token forward failure keeps the peer", func(t *testing.T) {
		backend := httptest.NewServer(http.NotFoundHandler())
		backend.Close()

		evictor := &fakeEvictor{}
		client := peer.NewClient(evictor, 500*time.Millisecond, zerolog.Nop())
		defer client.Close()

		target := plantFromURL(t, backend.URL, 4)
		assert.Error(t, client.ForwardToken(target, model.ElectionToken{RequestID: "R1"}))
		assert.Empty(t, evictor.removedIDs())
	})
}
