// Package adminapi is the HTTP client for the administration service, used by
// the plant runtime at registration and by the administration CLI.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Sentinel errors callers match with errors.Is.
var (
	// ErrRegistrationConflict means the plant id is already registered.
	ErrRegistrationConflict = errors.New("plant id already registered")
	// ErrNoData means no pollution entries matched the queried range.
	ErrNoData = errors.New("no co2 data for the requested range")
	// ErrInvalidRange means the service rejected the query parameters.
	ErrInvalidRange = errors.New("invalid timestamp range")
	// ErrNotFound means the requested plant does not exist.
	ErrNotFound = errors.New("plant not found")
)

// Client talks to the administration HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Register announces a plant to the administration service and returns the
// plants already registered. A duplicate id yields ErrRegistrationConflict.
func (c *Client) Register(ctx context.Context, info model.PlantInfo) ([]model.PlantInfo, error) {
	payload, err := json.Marshal(info)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling plant info")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/plants", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "building registration request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "registering with admin service")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var plants []model.PlantInfo
		if err := json.NewDecoder(resp.Body).Decode(&plants); err != nil {
			return nil, errors.Wrap(err, "decoding registration response")
		}
		return plants, nil
	case http.StatusConflict:
		return nil, errors.Wrapf(ErrRegistrationConflict, "plant %d", info.PlantID)
	default:
		return nil, errors.Errorf("registration failed with status %d: %s", resp.StatusCode, readBody(resp.Body))
	}
}

// Plants lists every registered plant.
func (c *Client) Plants(ctx context.Context) ([]model.PlantInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/plants", nil)
	if err != nil {
		return nil, errors.Wrap(err, "building plants request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "listing plants")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("listing plants failed with status %d", resp.StatusCode)
	}
	var plants []model.PlantInfo
	if err := json.NewDecoder(resp.Body).Decode(&plants); err != nil {
		return nil, errors.Wrap(err, "decoding plants response")
	}
	return plants, nil
}

// PlantByID fetches one plant, or ErrNotFound.
func (c *Client) PlantByID(ctx context.Context, plantID int) (model.PlantInfo, error) {
	url := fmt.Sprintf("%s/plants/%d", c.baseURL, plantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.PlantInfo{}, errors.Wrap(err, "building plant request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.PlantInfo{}, errors.Wrap(err, "fetching plant")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var plant model.PlantInfo
		if err := json.NewDecoder(resp.Body).Decode(&plant); err != nil {
			return model.PlantInfo{}, errors.Wrap(err, "decoding plant response")
		}
		return plant, nil
	case http.StatusNotFound:
		return model.PlantInfo{}, errors.Wrapf(ErrNotFound, "plant %d", plantID)
	default:
		return model.PlantInfo{}, errors.Errorf("fetching plant failed with status %d", resp.StatusCode)
	}
}

// AverageCO2 queries the overall CO2 average over [t1, t2] in epoch millis.
func (c *Client) AverageCO2(ctx context.Context, t1, t2 int64) (float64, error) {
	url := fmt.Sprintf("%s/statistics/co2/average?t1=%d&t2=%d", c.baseURL, t1, t2)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "building statistics request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "querying co2 average")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var avg float64
		if err := json.NewDecoder(resp.Body).Decode(&avg); err != nil {
			return 0, errors.Wrap(err, "decoding co2 average")
		}
		return avg, nil
	case http.StatusNotFound:
		return 0, ErrNoData
	case http.StatusBadRequest:
		return 0, errors.Wrapf(ErrInvalidRange, "t1=%d t2=%d", t1, t2)
	default:
		return 0, errors.Errorf("co2 query failed with status %d", resp.StatusCode)
	}
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1<<12))
	return string(b)
}
