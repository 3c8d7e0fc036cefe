// Package place turns coordinates into short human readable labels using a
// Nominatim style reverse geocoder. Lookups are cached in redis and every
// failure degrades to "no label" so the map view never depends on the
// geocoder being up.
package place

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"backend-caravan/internal/config"
	"backend-caravan/internal/shared/geo"

	"github.com/redis/go-redis/v9"
)

// atThresholdM is the base distance under which a participant is "At" a
// place rather than "Near" it. GPS accuracy widens the threshold.
const atThresholdM = 120.0

type Service struct {
	client    *http.Client
	baseURL   string
	userAgent string
	redis     *redis.Client
	cacheTTL  time.Duration
}

// NewService builds the geocoder, nil when disabled in config. A nil
// *Service is a valid no-op Labeler.
func NewService(cfg config.Config, redisClient *redis.Client) *Service {
	if !cfg.GeocodeEnabled {
		return nil
	}
	timeout := time.Duration(cfg.GeocodeTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	return &Service{
		client:    &http.Client{Timeout: timeout},
		baseURL:   cfg.GeocodeBaseURL,
		userAgent: cfg.GeocodeUserAgent,
		redis:     redisClient,
		cacheTTL:  time.Duration(cfg.GeocodeCacheMinutes) * time.Minute,
	}
}

type response struct {
	Name    string `json:"name"`
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		Road    string `json:"road"`
		Hamlet  string `json:"hamlet"`
		Village string `json:"village"`
		Town    string `json:"town"`
		City    string `json:"city"`
		County  string `json:"county"`
		State   string `json:"state"`
	} `json:"address"`
}

// Label implements the map view's Labeler. Coordinates are rounded before
// caching so a caravan creeping along a highway reuses nearby lookups.
func (s *Service) Label(ctx context.Context, lat, lng float64, accuracyM *float64) *string {
	if s == nil {
		return nil
	}

	key := cacheKey(lat, lng)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			return &cached
		}
	}

	resp, err := s.lookup(ctx, lat, lng)
	if err != nil {
		return nil
	}

	name := displayName(resp)
	if name == "" {
		return nil
	}

	label := "Near " + name
	if respLat, err1 := strconv.ParseFloat(resp.Lat, 64); err1 == nil {
		if respLng, err2 := strconv.ParseFloat(resp.Lon, 64); err2 == nil {
			threshold := atThresholdM
			if accuracyM != nil && *accuracyM > 0 {
				threshold += *accuracyM
			}
			if geo.HaversineM(lat, lng, respLat, respLng) <= threshold {
				label = "At " + name
			}
		}
	}

	if s.redis != nil {
		_ = s.redis.Set(ctx, key, label, s.cacheTTL).Err()
	}
	return &label
}

func (s *Service) lookup(ctx context.Context, lat, lng float64) (response, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("format", "jsonv2")
	q.Set("zoom", "14")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	res, err := s.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return response{}, fmt.Errorf("geocoder status %d", res.StatusCode)
	}

	var out response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return response{}, err
	}
	return out, nil
}

func displayName(r response) string {
	for _, candidate := range []string{
		r.Name, r.Address.Road, r.Address.Hamlet, r.Address.Village,
		r.Address.Town, r.Address.City, r.Address.County, r.Address.State,
	} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("place:%.3f:%.3f", lat, lng)
}
