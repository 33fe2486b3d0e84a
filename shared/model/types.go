package model

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PlantInfo identifies a power plant on the network. Instances are value
// copies; the registry owns the authoritative set.
type PlantInfo struct {
	PlantID          int    `json:"plantId"`
	Address          string `json:"address"`
	Port             int    `json:"port"`
	RegistrationTime int64  `json:"registrationTime"`
}

// NewPlantInfo validates and builds a PlantInfo. RegistrationTime is the
// moment the plant first came up, used for deterministic ring ordering.
func NewPlantInfo(plantID int, address string, port int, registrationTime int64) (PlantInfo, error) {
	if plantID <= 0 {
		return PlantInfo{}, errors.Errorf("plant id must be positive, got %d", plantID)
	}
	if strings.TrimSpace(address) == "" {
		return PlantInfo{}, errors.New("plant address cannot be blank")
	}
	if port < 1 || port > 65535 {
		return PlantInfo{}, errors.Errorf("plant port must be in 1..65535, got %d", port)
	}
	return PlantInfo{
		PlantID:          plantID,
		Address:          address,
		Port:             port,
		RegistrationTime: registrationTime,
	}, nil
}

// Valid reports whether the info passes the same checks NewPlantInfo applies.
func (p PlantInfo) Valid() bool {
	_, err := NewPlantInfo(p.PlantID, p.Address, p.Port, p.RegistrationTime)
	return err == nil
}

// EnergyRequest is a broadcast request for a quantity of energy.
type EnergyRequest struct {
	RequestID string `json:"requestId"`
	AmountKWh int    `json:"amountKWh"`
	Timestamp int64  `json:"timestamp"`
}

// NewEnergyRequest validates and builds an EnergyRequest.
func NewEnergyRequest(requestID string, amountKWh int, timestamp int64) (EnergyRequest, error) {
	if strings.TrimSpace(requestID) == "" {
		return EnergyRequest{}, errors.New("request id cannot be blank")
	}
	if amountKWh <= 0 {
		return EnergyRequest{}, errors.Errorf("energy amount must be positive, got %d", amountKWh)
	}
	return EnergyRequest{RequestID: requestID, AmountKWh: amountKWh, Timestamp: timestamp}, nil
}

// Bid is one plant's offer to fulfill a request. A zero PlantID marks the
// sentinel "no bid yet" value that any real bid beats.
type Bid struct {
	PlantID int             `json:"plantId"`
	Price   decimal.Decimal `json:"price"`
}

// SentinelBid returns the placeholder bid used to seed an election.
func SentinelBid() Bid {
	return Bid{PlantID: 0, Price: decimal.NewFromInt(0)}
}

// IsSentinel reports whether the bid is the "no bid" placeholder.
func (b Bid) IsSentinel() bool {
	return b.PlantID == 0
}

// Better reports whether b beats other. Lower price wins; on equal price the
// higher plant id wins, which makes the relation a strict total order over
// valid bids and guarantees a unique election winner.
func (b Bid) Better(other Bid) bool {
	if b.IsSentinel() {
		return false
	}
	if other.IsSentinel() {
		return true
	}
	if b.Price.LessThan(other.Price) {
		return true
	}
	return b.Price.Equal(other.Price) && b.PlantID > other.PlantID
}

// ElectionToken circulates the ring carrying the best bid seen so far.
type ElectionToken struct {
	InitiatorID     int    `json:"initiatorId"`
	RequestID       string `json:"requestId"`
	BestBid         Bid    `json:"bestBid"`
	EnergyAmountKWh int    `json:"energyAmountKWh"`
}

// WinnerAnnouncement circulates the ring once a token has returned to its
// initiator, telling every plant who won and at what price.
type WinnerAnnouncement struct {
	RequestID      string          `json:"requestId"`
	WinningPlantID int             `json:"winningPlantId"`
	WinningPrice   decimal.Decimal `json:"winningPrice"`
	InitiatorID    int             `json:"initiatorId"`
}

// Ack is the reply to every peer RPC.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Measurement is a single simulated CO2 sensor reading.
type Measurement struct {
	Value     float64
	Timestamp time.Time
}

// PollutionBatch is the set of window averages a plant publishes in one go.
type PollutionBatch struct {
	PlantID                  int       `json:"plantId"`
	ListComputationTimestamp int64     `json:"listComputationTimestamp"`
	Averages                 []float64 `json:"averages"`
}
