// Package planets refreshes the planet catalog from the public Star Wars GraphQL API.
package planets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

const allPlanetsQuery = `query {
  allPlanets {
    planets {
      name
      population
      terrains
      climates
    }
  }
}`

// RemotePlanet is one planet as returned by the API. Population is kept raw
// because the API mixes numbers, numeric strings and nulls.
type RemotePlanet struct {
	Name       string          `json:"name"`
	Population json.RawMessage `json:"population"`
	Terrains   []string        `json:"terrains"`
	Climates   []string        `json:"climates"`
}

// Planet converts r into a catalog record.
func (r RemotePlanet) Planet() *model.Planet {
	p := &model.Planet{
		Name:       r.Name,
		Population: CoercePopulation(r.Population),
		Terrains:   r.Terrains,
		Climates:   r.Climates,
	}
	p.Normalize()
	return p
}

// CoercePopulation turns a raw JSON value into a population. Numbers are
// truncated toward zero and numeric strings are parsed; anything else is
// unknown (nil). Negative values are also unknown rather than kept: the
// catalog rejects a negative population, and storing one would fail the
// upsert for that planet and abort the fetch run.
func CoercePopulation(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var n int64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil
		}
		n = v
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if v, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			n = v
			break
		}
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f <= math.MinInt64 {
			return nil
		}
		n = int64(f)
	default:
		return nil
	}

	if n < 0 {
		return nil
	}
	return &n
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("planet API returned HTTP %d: %s", e.Code, e.Body)
}

// SWAPIClient queries the GraphQL endpoint.
type SWAPIClient struct {
	url  string
	http *http.Client
}

// NewSWAPIClient returns a client whose requests are bounded by timeout
// (10s when zero).
func NewSWAPIClient(url string, timeout time.Duration) *SWAPIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SWAPIClient{url: url, http: &http.Client{Timeout: timeout}}
}

type graphQLResponse struct {
	Data *struct {
		AllPlanets *struct {
			Planets []RemotePlanet `json:"planets"`
		} `json:"allPlanets"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// AllPlanets fetches every planet. Transport failures, non-2xx statuses,
// GraphQL errors and malformed bodies are all returned as errors.
func (c *SWAPIClient) AllPlanets(ctx context.Context) ([]RemotePlanet, error) {
	body, err := json.Marshal(map[string]string{"query": allPlanetsQuery})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling planet API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding planet API response: %w", err)
	}
	if out.Data == nil || out.Data.AllPlanets == nil {
		if len(out.Errors) > 0 {
			return nil, fmt.Errorf("planet API error: %s", out.Errors[0].Message)
		}
		return nil, fmt.Errorf("planet API response has no allPlanets data")
	}
	return out.Data.AllPlanets.Planets, nil
}
