package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

// defaultBBoxRadius is the half-size, in degrees, of the bounding box queried
// around a group centroid. Matches the clustering tolerance so the box covers
// the whole group.
const defaultBBoxRadius = 0.01

// HereTrafficProvider implements parking.TrafficProvider against the HERE
// traffic flow API, which reports congestion as a jam factor from 0
// (free-flowing) to 10 (blocked).
type HereTrafficProvider struct {
	name       string
	apiKey     string
	baseURL    string
	bboxRadius float64
	client     *resty.Client
}

func NewHereTrafficProvider(apiKey string, timeout time.Duration) *HereTrafficProvider {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &HereTrafficProvider{
		name:       "here-traffic",
		apiKey:     apiKey,
		baseURL:    "https://data.traffic.hereapi.com/v7/flow",
		bboxRadius: defaultBBoxRadius,
		client:     client,
	}
}

func (p *HereTrafficProvider) Name() string {
	return p.name
}

type hereFlowResponse struct {
	Results []struct {
		CurrentFlow struct {
			JamFactor float64 `json:"jamFactor"`
		} `json:"currentFlow"`
	} `json:"results"`
}

// FetchJamFactor queries flow for a bounding box around the coordinate and
// returns the worst jam factor observed inside it.
func (p *HereTrafficProvider) FetchJamFactor(ctx context.Context, coord parking.Coordinate) (float64, error) {
	if p.apiKey == "" {
		return 0, fmt.Errorf("here api key is not configured")
	}

	// bbox is west,south,east,north in degrees.
	bbox := fmt.Sprintf("bbox:%f,%f,%f,%f",
		coord.Longitude-p.bboxRadius,
		coord.Latitude-p.bboxRadius,
		coord.Longitude+p.bboxRadius,
		coord.Latitude+p.bboxRadius,
	)

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"in":                  bbox,
			"locationReferencing": "none",
			"apiKey":              p.apiKey,
		}).
		SetResult(&hereFlowResponse{}).
		Get(p.baseURL)
	if err != nil {
		return 0, fmt.Errorf("traffic flow request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("traffic flow request: status %d", resp.StatusCode())
	}

	result, ok := resp.Result().(*hereFlowResponse)
	if !ok {
		return 0, fmt.Errorf("traffic flow request: unexpected response shape")
	}

	var jamFactor float64
	for _, r := range result.Results {
		if r.CurrentFlow.JamFactor > jamFactor {
			jamFactor = r.CurrentFlow.JamFactor
		}
	}
	return jamFactor, nil
}

var _ parking.TrafficProvider = (*HereTrafficProvider)(nil)
