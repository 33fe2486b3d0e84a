package peer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Elections receives ring messages for asynchronous processing.
type Elections interface {
	HandleToken(tok model.ElectionToken)
	HandleWinnerAnnouncement(ann model.WinnerAnnouncement)
}

// Membership records plants that announce their presence.
type Membership interface {
	Add(p model.PlantInfo)
}

// Server is the plant-side RPC endpoint. The token and winner handlers
// acknowledge immediately and dispatch the payload on its own goroutine so the
// HTTP worker is never blocked by downstream ring forwarding; a presence
// announcement is added to the membership before it is acknowledged.
type Server struct {
	log        zerolog.Logger
	selfID     int
	elections  Elections
	membership Membership

	router *gin.Engine
	srv    *http.Server
}

// NewServer builds the peer RPC server for a plant.
func NewServer(selfID int, elections Elections, membership Membership, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		log:        log.With().Str("component", "peer_server").Logger(),
		selfID:     selfID,
		elections:  elections,
		membership: membership,
		router:     gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.router.POST("/peer/presence", s.announcePresence)
	s.router.POST("/peer/election-token", s.forwardElectionToken)
	s.router.POST("/peer/winner", s.announceEnergyWinner)
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Serve runs the server on an already-bound listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.srv = &http.Server{Handler: s.router}
	err := s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting briefly for in-flight requests.
func (s *Server) Shutdown() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func (s *Server) announcePresence(c *gin.Context) {
	var info model.PlantInfo
	if err := c.ShouldBindJSON(&info); err != nil || !info.Valid() {
		c.JSON(http.StatusBadRequest, model.Ack{Success: false, Message: "invalid plant info"})
		return
	}

	s.log.Info().Int("plant_id", info.PlantID).Msg("received presence announcement")
	s.membership.Add(info)

	c.JSON(http.StatusOK, model.Ack{
		Success: true,
		Message: fmt.Sprintf("presence acknowledged by plant %d", s.selfID),
	})
}

func (s *Server) forwardElectionToken(c *gin.Context) {
	var tok model.ElectionToken
	if err := c.ShouldBindJSON(&tok); err != nil || tok.RequestID == "" {
		c.JSON(http.StatusBadRequest, model.Ack{Success: false, Message: "invalid election token"})
		return
	}

	s.log.Info().Str("request_id", tok.RequestID).Int("initiator", tok.InitiatorID).
		Msg("received election token")
	c.JSON(http.StatusOK, model.Ack{Success: true, Message: "token accepted"})

	go s.elections.HandleToken(tok)
}

func (s *Server) announceEnergyWinner(c *gin.Context) {
	var ann model.WinnerAnnouncement
	if err := c.ShouldBindJSON(&ann); err != nil || ann.RequestID == "" {
		c.JSON(http.StatusBadRequest, model.Ack{Success: false, Message: "invalid winner announcement"})
		return
	}

	s.log.Info().Str("request_id", ann.RequestID).Int("winner", ann.WinningPlantID).
		Str("price", ann.WinningPrice.String()).Msg("received winner announcement")
	c.JSON(http.StatusOK, model.Ack{Success: true, Message: "announcement accepted"})

	go s.elections.HandleWinnerAnnouncement(ann)
}
