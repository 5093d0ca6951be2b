package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IPAPIResolver resolves locations via the ip-api.com HTTP service
// (free tier). All requests carry the configured bounded timeout.
type IPAPIResolver struct {
	client *http.Client
}

// NewIPAPIResolver creates a resolver with the given request timeout
func NewIPAPIResolver(timeout time.Duration) *IPAPIResolver {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &IPAPIResolver{client: &http.Client{Timeout: timeout}}
}

// Resolve performs an HTTP lookup for one address
func (r *IPAPIResolver) Resolve(ctx context.Context, ip string) (*Location, error) {
	url := fmt.Sprintf("http://ip-api.com/json/%s?fields=status,country,countryCode,city,lat,lon,isp,org,as,query", ip)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResponse struct {
		Status      string  `json:"status"`
		Country     string  `json:"country"`
		CountryCode string  `json:"countryCode"`
		City        string  `json:"city"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		ISP         string  `json:"isp"`
		Org         string  `json:"org"`
		AS          string  `json:"as"`
		Query       string  `json:"query"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, err
	}

	if apiResponse.Status != "success" {
		return nil, fmt.Errorf("ip-api returned status: %s", apiResponse.Status)
	}

	// The "as" field is "AS15169 Google LLC"; keep the number only
	asNumber := ""
	if parts := strings.Split(apiResponse.AS, " "); len(parts) > 0 {
		asNumber = parts[0]
	}

	return &Location{
		IPAddress:   apiResponse.Query,
		City:        apiResponse.City,
		Country:     apiResponse.Country,
		CountryCode: apiResponse.CountryCode,
		Latitude:    apiResponse.Lat,
		Longitude:   apiResponse.Lon,
		ASNumber:    asNumber,
		Org:         apiResponse.Org,
	}, nil
}
