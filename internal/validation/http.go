package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/wordscan/internal/address"
)

// DefaultBaseURL is the public what3words v3 API.
const DefaultBaseURL = "https://api.what3words.com/v3"

// HTTPClient validates candidates with the autosuggest endpoint.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewHTTPClient returns a client for baseURL (DefaultBaseURL when empty).
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  slog.Default(),
	}
}

type suggestion struct {
	Country           string   `json:"country"`
	NearestPlace      string   `json:"nearestPlace"`
	Words             string   `json:"words"`
	DistanceToFocusKm *float64 `json:"distanceToFocusKm,omitempty"`
	Rank              int      `json:"rank"`
	Language          string   `json:"language"`
}

type autosuggestResponse struct {
	Suggestions []suggestion `json:"suggestions"`
}

type coordinatesResponse struct {
	Coordinates *address.Coordinates `json:"coordinates"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Validate implements Client.
func (c *HTTPClient) Validate(ctx context.Context, candidate string, opts Options) ([]address.Confirmed, error) {
	q := url.Values{}
	q.Set("input", candidate)
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if len(opts.ClipToCountries) > 0 {
		q.Set("clip-to-country", strings.Join(opts.ClipToCountries, ","))
	}
	if opts.Focus != nil {
		q.Set("focus", formatLatLng(*opts.Focus))
	}
	if opts.NResults > 0 {
		q.Set("n-results", strconv.Itoa(opts.NResults))
	}

	var resp autosuggestResponse
	if err := c.get(ctx, "/autosuggest", q, &resp); err != nil {
		return nil, err
	}

	out := make([]address.Confirmed, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		out = append(out, address.Confirmed{
			Words:             s.Words,
			Language:          s.Language,
			Country:           s.Country,
			NearestPlace:      s.NearestPlace,
			DistanceToFocusKm: s.DistanceToFocusKm,
		})
	}

	if opts.WithCoordinates {
		for i := range out {
			if !out[i].Matches(candidate) {
				continue
			}
			coords, err := c.Coordinates(ctx, out[i].Words)
			if err != nil {
				return nil, err
			}
			out[i].Coordinates = coords
		}
	}
	return out, nil
}

// Coordinates resolves the center of the square named by words.
func (c *HTTPClient) Coordinates(ctx context.Context, words string) (*address.Coordinates, error) {
	q := url.Values{}
	q.Set("words", words)
	var resp coordinatesResponse
	if err := c.get(ctx, "/convert-to-coordinates", q, &resp); err != nil {
		return nil, err
	}
	return resp.Coordinates, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}
	endpoint := c.BaseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("validation request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read validation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Error.Code != "" {
			apiErr.Code = er.Error.Code
			apiErr.Message = er.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode validation response: %w", err)
	}
	return nil
}

func formatLatLng(c address.Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}
