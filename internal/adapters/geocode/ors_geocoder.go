package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/obs"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL     = "https://api.openrouteservice.org"
	defaultConcurrency = 4
)

// Cache stores resolved coordinates by normalized address.
type Cache interface {
	Lookup(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	Store(ctx context.Context, resolved map[string]domain.Coordinates) error
}

type Options struct {
	BaseURL string
	// ISO country code limiting results, e.g. "US". Empty searches worldwide.
	Country     string
	Concurrency int
	Cache       Cache
	Log         *zap.Logger
}

// ORSGeocoder implements ports.Geocoder with the OpenRouteService search API.
// It is safe for concurrent use.
type ORSGeocoder struct {
	session     *http.Client
	apiKey      string
	baseURL     string
	country     string
	concurrency int
	retryDelay  time.Duration
	cache       Cache
	log         *zap.Logger
}

func NewORSGeocoder(apiKey string, opts Options) (*ORSGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	return &ORSGeocoder{
		session:     &http.Client{Timeout: 10 * time.Second},
		apiKey:      apiKey,
		baseURL:     opts.BaseURL,
		country:     opts.Country,
		concurrency: opts.Concurrency,
		retryDelay:  200 * time.Millisecond,
		cache:       opts.Cache,
		log:         opts.Log,
	}, nil
}

type searchResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode resolves addresses, consulting the cache first. Addresses the
// service cannot place are absent from the result.
func (o *ORSGeocoder) Geocode(ctx context.Context, addresses []string) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	keys := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		k := domain.NormalizeAddress(a)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	out := make(map[string]domain.Coordinates, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	if o.cache != nil {
		hits, err := o.cache.Lookup(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("geocode cache lookup: %w", err)
		}
		for k, c := range hits {
			out[k] = c
		}
	}

	misses := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			misses = append(misses, k)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	fresh := make(map[string]domain.Coordinates, len(misses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, addr := range misses {
		g.Go(func() error {
			c, found, err := o.search(gctx, addr)
			if err != nil {
				return fmt.Errorf("geocode %q: %w", addr, err)
			}
			if !found {
				o.log.Debug("address not found", zap.String("address", addr))
				return nil
			}
			mu.Lock()
			fresh[addr] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if o.cache != nil && len(fresh) > 0 {
		if err := o.cache.Store(ctx, fresh); err != nil {
			o.log.Warn("geocode cache write failed", zap.Error(err))
		}
	}

	for k, c := range fresh {
		out[k] = c
	}
	return out, nil
}

func (o *ORSGeocoder) search(ctx context.Context, addr string) (domain.Coordinates, bool, error) {
	endpoint := o.baseURL + "/geocode/search"
	query := map[string]string{"text": addr, "size": "1"}
	if o.country != "" {
		query["boundary.country"] = o.country
	}

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, endpoint, query)
	})
	if err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("decode search response: %w", err)
	}
	if len(decoded.Features) == 0 {
		return domain.Coordinates{}, false, nil
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return domain.Coordinates{}, false, fmt.Errorf("invalid coordinate format for %q", addr)
	}

	c := domain.Coordinates{Lon: coords[0], Lat: coords[1]}
	if err := c.Validate(); err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("search result for %q: %w", addr, err)
	}
	return c, true, nil
}
