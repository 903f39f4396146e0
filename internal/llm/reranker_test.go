package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmart/internal/entity"
)

func candidates() []*entity.Product {
	return []*entity.Product{
		{ID: 1, Name: "Tea", Price: decimal.RequireFromString("4.5"), Tags: []string{"drinks"}},
		{ID: 2, Name: "Mug", Price: decimal.RequireFromString("9")},
	}
}

func TestRerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "- id 1: Tea (4.50) tags: drinks")

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + "```json\\n[2, 1]\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	ids, err := NewReranker(srv.URL, "key", "gpt-test", time.Second).Rerank(context.Background(), "user 1", candidates())
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, ids)
}

func TestRerankErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewReranker(srv.URL, "key", "m", time.Second).Rerank(context.Background(), "user 1", candidates())
	assert.ErrorContains(t, err, "slow down")

	_, err = NewReranker(srv.URL, "", "m", time.Second).Rerank(context.Background(), "user 1", candidates())
	assert.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("Sure! [3,1,2]")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids)

	_, err = parseIDs("no idea")
	assert.Error(t, err)

	_, err = parseIDs(`["a"]`)
	assert.Error(t, err)
}
