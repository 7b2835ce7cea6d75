package surface

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

// DefaultMaxResponseBytes caps the size of a GeoJSON response.
const DefaultMaxResponseBytes = 64 << 20

// HTTPLoader fetches GeoJSON FeatureCollections over HTTP.
type HTTPLoader struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPLoader returns a loader whose requests time out after timeout.
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: DefaultMaxResponseBytes,
	}
}

// Load GETs url and decodes the response as a FeatureCollection.
func (l *HTTPLoader) Load(ctx context.Context, url string) ([]*Feature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build feature request")
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("fetch %s: %s", url, resp.Status)
	}

	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", url)
	}
	return Decode(data)
}

// Decode parses a GeoJSON FeatureCollection.
func Decode(data []byte) ([]*Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode feature collection")
	}
	out := make([]*Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		out = append(out, FromGeoJSON(gf))
	}
	return out, nil
}
