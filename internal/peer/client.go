// Package peer implements the plant-to-plant RPC surface: presence
// announcements, election-token forwarding, and winner announcements, carried
// as JSON over per-peer cached HTTP connections.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/shared/model"
)

// DefaultTimeout bounds every outbound peer call.
const DefaultTimeout = 30 * time.Second

// Evictor removes a plant from the local membership view when it turns out to
// be unreachable.
type Evictor interface {
	Remove(plantID int)
}

// Client issues peer RPCs. One HTTP client with its own connection pool is
// cached per peer, keyed by plant id, and created lazily.
type Client struct {
	log     zerolog.Logger
	evictor Evictor
	timeout time.Duration

	mu    sync.Mutex
	conns map[int]*http.Client
}

// NewClient builds a peer RPC client. The evictor is consulted on presence
// and winner-announcement failures; token-forward failures keep the peer.
func NewClient(evictor Evictor, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		log:     log.With().Str("component", "peer_client").Logger(),
		evictor: evictor,
		timeout: timeout,
		conns:   make(map[int]*http.Client),
	}
}

// conn returns the cached HTTP client for a peer, creating it on first use.
func (c *Client) conn(target model.PlantInfo) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.conns[target.PlantID]; ok {
		return hc
	}
	c.log.Info().Int("plant_id", target.PlantID).Str("address", target.Address).Int("port", target.Port).
		Msg("opening connection to peer")
	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	c.conns[target.PlantID] = hc
	return hc
}

func (c *Client) post(target model.PlantInfo, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshaling peer request")
	}

	url := fmt.Sprintf("http://%s:%d%s", target.Address, target.Port, path)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building peer request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.conn(target).Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling plant %d", target.PlantID)
	}
	defer resp.Body.Close()

	var ack model.Ack
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&ack); err != nil {
		return errors.Wrapf(err, "decoding ack from plant %d", target.PlantID)
	}
	if resp.StatusCode != http.StatusOK || !ack.Success {
		return errors.Errorf("plant %d rejected %s: %s", target.PlantID, path, ack.Message)
	}
	return nil
}

// AnnouncePresence tells a peer this plant joined the ring. On failure the
// peer is presumed gone and evicted from the registry.
func (c *Client) AnnouncePresence(target model.PlantInfo, self model.PlantInfo) error {
	c.log.Info().Int("target", target.PlantID).Msg("announcing presence")
	if err := c.post(target, "/peer/presence", self); err != nil {
		c.log.Warn().Err(err).Int("target", target.PlantID).Msg("presence announcement failed, removing peer")
		c.evict(target.PlantID)
		return err
	}
	return nil
}

// ForwardToken passes an election token to the ring successor. Failures are
// reported but the peer is kept; the next election runs on fresher membership.
func (c *Client) ForwardToken(target model.PlantInfo, tok model.ElectionToken) error {
	c.log.Info().Int("target", target.PlantID).Str("request_id", tok.RequestID).
		Int("best_bidder", tok.BestBid.PlantID).Str("best_price", tok.BestBid.Price.String()).
		Msg("forwarding election token")
	return c.post(target, "/peer/election-token", tok)
}

// AnnounceWinner circulates a winner announcement. On failure the peer is
// evicted so the caller can re-route to the new ring successor.
func (c *Client) AnnounceWinner(target model.PlantInfo, ann model.WinnerAnnouncement) error {
	c.log.Debug().Int("target", target.PlantID).Str("request_id", ann.RequestID).Msg("announcing winner")
	if err := c.post(target, "/peer/winner", ann); err != nil {
		c.log.Warn().Err(err).Int("target", target.PlantID).Msg("winner announcement failed, removing peer")
		c.evict(target.PlantID)
		return err
	}
	return nil
}

func (c *Client) evict(plantID int) {
	c.dropConn(plantID)
	c.evictor.Remove(plantID)
}

func (c *Client) dropConn(plantID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.conns[plantID]; ok {
		hc.CloseIdleConnections()
		delete(c.conns, plantID)
	}
}

// Close shuts every cached peer connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, hc := range c.conns {
		hc.CloseIdleConnections()
		delete(c.conns, id)
	}
	c.log.Info().Msg("closed peer client connections")
}
