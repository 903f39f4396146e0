package search

import (
	"context"
	"errors"
	"testing"

	"github.com/meilisearch/meilisearch-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmart/internal/entity"
)

type fakeIndex struct {
	added   []document
	deleted []string
	hits    []interface{}
	err     error
	request *meilisearch.SearchRequest
}

func (f *fakeIndex) AddDocuments(documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error) {
	f.added = append(f.added, documentsPtr.([]document)...)
	return &meilisearch.TaskInfo{}, f.err
}

func (f *fakeIndex) DeleteDocument(identifier string) (*meilisearch.TaskInfo, error) {
	f.deleted = append(f.deleted, identifier)
	return &meilisearch.TaskInfo{}, f.err
}

func (f *fakeIndex) Search(query string, request *meilisearch.SearchRequest) (*meilisearch.SearchResponse, error) {
	f.request = request
	if f.err != nil {
		return nil, f.err
	}
	return &meilisearch.SearchResponse{Hits: f.hits}, nil
}

func TestSearchReturnsIDsInOrder(t *testing.T) {
	idx := &fakeIndex{hits: []interface{}{
		map[string]interface{}{"id": float64(7)},
		map[string]interface{}{"id": "3"},
	}}
	s := &Searcher{index: idx}

	ids, err := s.Search(context.Background(), "tea", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 3}, ids)
	assert.Equal(t, int64(5), idx.request.Limit)

	idx.hits = []interface{}{map[string]interface{}{"name": "x"}}
	_, err = s.Search(context.Background(), "tea", 5)
	assert.Error(t, err)

	idx.err = errors.New("unreachable")
	_, err = s.Search(context.Background(), "tea", 5)
	assert.Error(t, err)
}

func TestIndexAndRemove(t *testing.T) {
	idx := &fakeIndex{}
	s := &Searcher{index: idx}
	category := int64(2)

	require.NoError(t, s.IndexProducts(context.Background()))
	assert.Empty(t, idx.added)

	err := s.IndexProducts(context.Background(), &entity.Product{ID: 9, Name: "Tea", CategoryID: &category,
		Price: decimal.RequireFromString("4.25"), Tags: []string{"drinks"}, IsActive: true})
	require.NoError(t, err)
	require.Len(t, idx.added, 1)
	assert.Equal(t, 4.25, idx.added[0].Price)
	assert.Equal(t, &category, idx.added[0].CategoryID)

	require.NoError(t, s.RemoveProduct(context.Background(), 9))
	assert.Equal(t, []string{"9"}, idx.deleted)
}
