package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"smartmart/internal/entity"
)

const (
	defaultRecommendationLimit = 8
	maxRecommendationLimit     = 50

	coPurchaseWeight     = 3.0
	recentlyViewedWeight = 2.0
	trendingWeight       = 1.0
	boughtTogetherWeight = 3.0
	sameCategoryWeight   = 1.0

	viewWindow     = 30 * 24 * time.Hour
	trendingWindow = 7 * 24 * time.Hour
	// candidates fetched per signal, relative to the requested limit
	candidateFactor = 4
)

type signal struct {
	weight float64
	scores []entity.ProductScore
}

// blend normalizes each signal to [0,1] by its best score, sums the weighted
// values per product, drops excluded ids and returns the top limit entries.
func blend(signals []signal, exclude map[int64]bool, limit int) []entity.ProductScore {
	total := map[int64]float64{}
	for _, sig := range signals {
		best := 0.0
		for _, s := range sig.scores {
			if s.Score > best {
				best = s.Score
			}
		}
		if best <= 0 {
			continue
		}
		seen := map[int64]bool{}
		for _, s := range sig.scores {
			if exclude[s.ProductID] || seen[s.ProductID] {
				continue
			}
			seen[s.ProductID] = true
			total[s.ProductID] += sig.weight * s.Score / best
		}
	}

	out := make([]entity.ProductScore, 0, len(total))
	for id, score := range total {
		out = append(out, entity.ProductScore{ProductID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type RecommendationService struct {
	recRepo     RecommendationRepository
	productRepo ProductRepository
	rdb         *redis.Client
	reranker    Reranker
	cacheTTL    time.Duration
	now         func() time.Time
}

// NewRecommendationService creates the service. reranker may be nil.
func NewRecommendationService(recRepo RecommendationRepository, productRepo ProductRepository, rdb *redis.Client,
	reranker Reranker, cacheTTL time.Duration) *RecommendationService {
	return &RecommendationService{
		recRepo:     recRepo,
		productRepo: productRepo,
		rdb:         rdb,
		reranker:    reranker,
		cacheTTL:    cacheTTL,
		now:         time.Now,
	}
}

func (s *RecommendationService) RecordView(ctx context.Context, userID, productID int64) error {
	return s.productRepo.RecordView(ctx, userID, productID)
}

// ForUser recommends products for a signed-in user.
func (s *RecommendationService) ForUser(ctx context.Context, userID int64, limit int) ([]*entity.Product, error) {
	limit = normalizeLimit(limit, defaultRecommendationLimit, maxRecommendationLimit)
	key := fmt.Sprintf("recommendations:user:%d:%d", userID, limit)
	return s.cached(ctx, key, func() ([]*entity.Product, error) {
		candidates := limit * candidateFactor
		now := s.now()

		var (
			coPurchase, viewed, trending []entity.ProductScore
			tagged                       []*entity.Product
			purchased                    []int64
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			coPurchase, err = s.recRepo.CoPurchaseScores(gctx, userID, candidates)
			return err
		})
		g.Go(func() (err error) {
			viewed, err = s.recRepo.ViewedCategoryScores(gctx, userID, now.Add(-viewWindow), candidates)
			return err
		})
		g.Go(func() error {
			tags, err := s.recRepo.RecentlyViewedTags(gctx, userID, now.Add(-viewWindow))
			if err != nil || len(tags) == 0 {
				return err
			}
			tagged, err = s.recRepo.ProductsWithTags(gctx, tags, candidates)
			return err
		})
		g.Go(func() (err error) {
			trending, err = s.recRepo.TrendingScores(gctx, now.Add(-trendingWindow), candidates)
			return err
		})
		g.Go(func() (err error) {
			purchased, err = s.recRepo.PurchasedProductIDs(gctx, userID)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		exclude := make(map[int64]bool, len(purchased))
		for _, id := range purchased {
			exclude[id] = true
		}

		scores := blend([]signal{
			{weight: coPurchaseWeight, scores: coPurchase},
			{weight: recentlyViewedWeight, scores: mergeTagged(viewed, tagged)},
			{weight: trendingWeight, scores: trending},
		}, exclude, candidates)

		products, err := s.hydrate(ctx, scores)
		if err != nil {
			return nil, err
		}
		return s.rerank(ctx, fmt.Sprintf("user %d", userID), products, limit), nil
	})
}

// mergeTagged folds tag matches into the viewed-category signal, giving each
// tagged product at least the best category score.
func mergeTagged(viewed []entity.ProductScore, tagged []*entity.Product) []entity.ProductScore {
	if len(tagged) == 0 {
		return viewed
	}
	best := 1.0
	for _, s := range viewed {
		if s.Score > best {
			best = s.Score
		}
	}
	out := append([]entity.ProductScore{}, viewed...)
	index := map[int64]int{}
	for i, s := range out {
		index[s.ProductID] = i
	}
	for _, p := range tagged {
		if i, ok := index[p.ID]; ok {
			out[i].Score = best
			continue
		}
		index[p.ID] = len(out)
		out = append(out, entity.ProductScore{ProductID: p.ID, Score: best})
	}
	return out
}

// ForProduct recommends products related to one product.
func (s *RecommendationService) ForProduct(ctx context.Context, productID int64, limit int) ([]*entity.Product, error) {
	limit = normalizeLimit(limit, defaultRecommendationLimit, maxRecommendationLimit)
	key := fmt.Sprintf("recommendations:product:%d:%d", productID, limit)
	return s.cached(ctx, key, func() ([]*entity.Product, error) {
		candidates := limit * candidateFactor

		var together, sameCategory []entity.ProductScore
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			together, err = s.recRepo.BoughtTogetherScores(gctx, productID, candidates)
			return err
		})
		g.Go(func() (err error) {
			sameCategory, err = s.recRepo.SameCategoryScores(gctx, productID, candidates)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		scores := blend([]signal{
			{weight: boughtTogetherWeight, scores: together},
			{weight: sameCategoryWeight, scores: sameCategory},
		}, map[int64]bool{productID: true}, candidates)

		products, err := s.hydrate(ctx, scores)
		if err != nil {
			return nil, err
		}
		return s.rerank(ctx, fmt.Sprintf("product %d", productID), products, limit), nil
	})
}

// Trending returns the globally trending products of the last week.
func (s *RecommendationService) Trending(ctx context.Context, limit int) ([]*entity.Product, error) {
	limit = normalizeLimit(limit, defaultRecommendationLimit, maxRecommendationLimit)
	key := fmt.Sprintf("recommendations:trending:%d", limit)
	return s.cached(ctx, key, func() ([]*entity.Product, error) {
		candidates := limit * candidateFactor
		trending, err := s.recRepo.TrendingScores(ctx, s.now().Add(-trendingWindow), candidates)
		if err != nil {
			return nil, err
		}
		products, err := s.hydrate(ctx, blend([]signal{{weight: trendingWeight, scores: trending}}, nil, candidates))
		if err != nil {
			return nil, err
		}
		if len(products) > limit {
			products = products[:limit]
		}
		return products, nil
	})
}

func (s *RecommendationService) hydrate(ctx context.Context, scores []entity.ProductScore) ([]*entity.Product, error) {
	if len(scores) == 0 {
		return []*entity.Product{}, nil
	}
	ids := make([]int64, len(scores))
	for i, sc := range scores {
		ids[i] = sc.ProductID
	}
	products, err := s.productRepo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return activeOnly(products), nil
}

// rerank lets the language model reorder the heuristic list. Any failure or an
// unusable answer keeps the heuristic order.
func (s *RecommendationService) rerank(ctx context.Context, subject string, products []*entity.Product, limit int) []*entity.Product {
	heuristic := products
	if len(heuristic) > limit {
		heuristic = heuristic[:limit]
	}
	if s.reranker == nil || len(products) == 0 {
		return heuristic
	}

	ids, err := s.reranker.Rerank(ctx, subject, products)
	if err != nil {
		logger.Warn().Err(err).Msgf("Recommendation reranking failed for %s, using heuristic order", subject)
		return heuristic
	}

	byID := make(map[int64]*entity.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	out := make([]*entity.Product, 0, limit)
	seen := map[int64]bool{}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return heuristic
	}
	return out
}

func (s *RecommendationService) cached(ctx context.Context, key string, load func() ([]*entity.Product, error)) ([]*entity.Product, error) {
	cached, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var products []*entity.Product
		if err := json.Unmarshal([]byte(cached), &products); err == nil {
			return products, nil
		}
	case !errors.Is(err, redis.Nil):
		logger.Error().Err(err).Msgf("Error reading %s from cache", key)
	}

	products, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(products); err == nil {
		if err := s.rdb.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			logger.Error().Err(err).Msgf("Error caching %s", key)
		}
	}
	return products, nil
}
