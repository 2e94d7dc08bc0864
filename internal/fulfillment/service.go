package fulfillment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/medilink-health/medilink/internal/catalog"
	"github.com/medilink-health/medilink/internal/matching"
)

// searchConcurrency caps simultaneous per-pharmacy catalog reads during
// one search.
const searchConcurrency = 8

// CatalogPort is the slice of the catalog service used by search.
type CatalogPort interface {
	Aggregates(ctx context.Context, pharmacyID string) ([]catalog.AggregatedItem, error)
}

// Service answers "which nearby pharmacies can fill this prescription".
type Service struct {
	catalog CatalogPort
	matcher *matching.Matcher
	cache   *Cache
	group   singleflight.Group
}

// NewService constructs Service. cache may be nil, searches then always
// hit the catalog.
func NewService(catalogPort CatalogPort, matcher *matching.Matcher, cache *Cache) *Service {
	if matcher == nil {
		matcher = matching.NewMatcher(nil)
	}
	return &Service{catalog: catalogPort, matcher: matcher, cache: cache}
}

// FindFulfillingPharmacies evaluates every candidate pharmacy against
// the prescription lines. Identical concurrent requests share one
// computation, and results are cached until the next stock mutation
// bumps the version.
func (s *Service) FindFulfillingPharmacies(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	digest, err := requestDigest(req)
	if err != nil {
		return SearchResponse{}, err
	}
	key, err := s.cache.BuildKey(ctx, "fulfillment", "search", digest)
	if err != nil {
		return SearchResponse{}, err
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var resp SearchResponse
		err := s.cache.FetchJSON(ctx, key, &resp, func(ctx context.Context) (interface{}, error) {
			return s.search(ctx, req)
		})
		return resp, err
	})
	if err != nil {
		return SearchResponse{}, err
	}
	return value.(SearchResponse), nil
}

func (s *Service) search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	results := make([]*PharmacyMatch, len(req.Candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for i, candidate := range req.Candidates {
		g.Go(func() error {
			aggregates, err := s.catalog.Aggregates(ctx, candidate.PharmacyID)
			if err != nil {
				return fmt.Errorf("fulfillment: load catalog for %s: %w", candidate.PharmacyID, err)
			}
			stock := make([]matching.StockEntry, 0, len(aggregates))
			for _, agg := range aggregates {
				stock = append(stock, matching.StockEntry{
					Name:      agg.Name,
					Brand:     agg.Brand,
					Available: agg.Quantity,
				})
			}
			result := s.matcher.Match(req.Lines, stock)
			if result.MatchedCount() == 0 {
				return nil
			}
			if req.FullMatchOnly && !result.HasAllMedicines {
				return nil
			}
			results[i] = &PharmacyMatch{
				PharmacyID: candidate.PharmacyID,
				DistanceKm: candidate.DistanceKm,
				Result:     result,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SearchResponse{}, err
	}

	matches := make([]PharmacyMatch, 0, len(results))
	for _, m := range results {
		if m != nil {
			matches = append(matches, *m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		mi, mj := matches[i].Result.MatchedCount(), matches[j].Result.MatchedCount()
		if mi != mj {
			return mi > mj
		}
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	return SearchResponse{Pharmacies: matches}, nil
}

func requestDigest(req SearchRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("fulfillment: digest request: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
