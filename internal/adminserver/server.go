package adminserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/pkg/broker"
	"github.com/terminal-bench/energymarket/shared/model"
)

// Server is the administration HTTP service plus its pollution subscriber.
type Server struct {
	log          zerolog.Logger
	plants       *PlantStore
	measurements *MeasurementStore
	feed         *Feed
	router       *gin.Engine

	broker         *broker.Client
	pollutionTopic string
	srv            *http.Server
}

// NewServer builds the service. The broker client may be nil in tests; then
// no subscription is made.
func NewServer(b *broker.Client, pollutionTopic string, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		log:            log.With().Str("component", "adminserver").Logger(),
		plants:         NewPlantStore(),
		measurements:   NewMeasurementStore(),
		feed:           NewFeed(log),
		router:         gin.New(),
		broker:         b,
		pollutionTopic: pollutionTopic,
	}
	s.router.Use(gin.Recovery())
	s.router.POST("/plants", s.registerPlant)
	s.router.GET("/plants", s.listPlants)
	s.router.GET("/plants/:id", s.plantByID)
	s.router.GET("/statistics/co2/average", s.averageCO2)
	s.router.GET("/ws/pollution", s.feed.Serve)
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Measurements exposes the pollution store.
func (s *Server) Measurements() *MeasurementStore {
	return s.measurements
}

// Start subscribes to the pollution topic and serves HTTP on addr until
// Shutdown.
func (s *Server) Start(addr string) error {
	if s.broker != nil {
		if err := s.broker.Subscribe(s.pollutionTopic, broker.QoSExactlyOnce, s.handlePollution); err != nil {
			return errors.Wrap(err, "subscribing to pollution topic")
		}
	}

	s.srv = &http.Server{Addr: addr, Handler: s.router}
	s.log.Info().Str("addr", addr).Msg("administration service listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and the websocket feed.
func (s *Server) Shutdown() {
	s.feed.Close()
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
}

// handlePollution stores each published batch and pushes it to websocket
// subscribers.
func (s *Server) handlePollution(payload []byte) {
	var batch model.PollutionBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		s.log.Error().Err(err).Msg("dropping malformed pollution batch")
		return
	}
	if batch.PlantID <= 0 || len(batch.Averages) == 0 {
		s.log.Warn().Int("plant_id", batch.PlantID).Msg("dropping incomplete pollution batch")
		return
	}

	s.measurements.Add(batch)
	s.feed.Broadcast(batch)
	s.log.Debug().Int("plant_id", batch.PlantID).Int("averages", len(batch.Averages)).
		Msg("stored pollution batch")
}

func (s *Server) registerPlant(c *gin.Context) {
	var info model.PlantInfo
	if err := c.ShouldBindJSON(&info); err != nil || !info.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plant info"})
		return
	}

	existing, err := s.plants.Register(info)
	if err != nil {
		s.log.Warn().Int("plant_id", info.PlantID).Msg("registration conflict")
		c.JSON(http.StatusConflict, gin.H{"error": "plant id already registered"})
		return
	}

	s.log.Info().Int("plant_id", info.PlantID).Int("existing", len(existing)).Msg("registered plant")
	c.JSON(http.StatusCreated, existing)
}

func (s *Server) listPlants(c *gin.Context) {
	c.JSON(http.StatusOK, s.plants.All())
}

func (s *Server) plantByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plant id"})
		return
	}
	plant, ok := s.plants.ByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "plant not found"})
		return
	}
	c.JSON(http.StatusOK, plant)
}

func (s *Server) averageCO2(c *gin.Context) {
	t1, err1 := strconv.ParseInt(c.Query("t1"), 10, 64)
	t2, err2 := strconv.ParseInt(c.Query("t2"), 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "t1 and t2 must be integer timestamps"})
		return
	}
	if t1 > t2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "t1 cannot be after t2"})
		return
	}

	avg, err := s.measurements.AverageBetween(t1, t2)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no co2 data for the specified time range"})
		return
	}
	c.JSON(http.StatusOK, avg)
}
