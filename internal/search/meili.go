package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/meilisearch/meilisearch-go"

	"smartmart/internal/entity"
)

// index is the part of *meilisearch.Index the searcher needs.
type index interface {
	AddDocuments(documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error)
	DeleteDocument(identifier string) (*meilisearch.TaskInfo, error)
	Search(query string, request *meilisearch.SearchRequest) (*meilisearch.SearchResponse, error)
}

type document struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SKU         string   `json:"sku"`
	Tags        []string `json:"tags"`
	CategoryID  *int64   `json:"category_id"`
	Price       float64  `json:"price"`
	IsActive    bool     `json:"is_active"`
}

func toDocument(p *entity.Product) document {
	price, _ := p.Price.Float64()
	return document{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		SKU:         p.SKU,
		Tags:        p.Tags,
		CategoryID:  p.CategoryID,
		Price:       price,
		IsActive:    p.IsActive,
	}
}

// Searcher keeps the product index in Meilisearch.
type Searcher struct {
	index index
}

func NewSearcher(host, apiKey, indexName string) *Searcher {
	client := meilisearch.NewClient(meilisearch.ClientConfig{Host: host, APIKey: apiKey})
	return &Searcher{index: client.Index(indexName)}
}

// Search returns matching product ids in relevance order. Inactive products are
// filtered out by the caller.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]int64, error) {
	res, err := s.index.Search(query, &meilisearch.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, err
	}
	return hitIDs(res.Hits)
}

func hitIDs(hits []interface{}) ([]int64, error) {
	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		fields, ok := hit.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected search hit %T", hit)
		}
		switch id := fields["id"].(type) {
		case float64:
			ids = append(ids, int64(id))
		case string:
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad search hit id %q", id)
			}
			ids = append(ids, n)
		default:
			return nil, fmt.Errorf("search hit without id")
		}
	}
	return ids, nil
}

// IndexProducts adds or replaces documents. Indexing is asynchronous on the server side.
func (s *Searcher) IndexProducts(ctx context.Context, products ...*entity.Product) error {
	if len(products) == 0 {
		return nil
	}
	docs := make([]document, 0, len(products))
	for _, p := range products {
		docs = append(docs, toDocument(p))
	}
	_, err := s.index.AddDocuments(docs, "id")
	return err
}

func (s *Searcher) RemoveProduct(ctx context.Context, id int64) error {
	_, err := s.index.DeleteDocument(strconv.FormatInt(id, 10))
	return err
}
