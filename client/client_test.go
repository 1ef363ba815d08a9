package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/analyze", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sig123", body["signature"])
		assert.Equal(t, "devnet", body["network"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"signature": "sig123",
			"instruction_type": "Transfer",
			"legacy_cu": 4645,
			"optimized_cu": 155,
			"absolute_savings_sol": "0.000000966630825",
			"percentage_savings": "96.6630825",
			"generic": false
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.Analyze(context.Background(), "sig123", "devnet")
	require.NoError(t, err)
	assert.Equal(t, "Transfer", result.InstructionType)
	assert.Equal(t, uint64(155), result.OptimizedCU)
	assert.Equal(t, "96.6630825", result.PercentageSavings.String())
}

func TestAnalyze_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "transaction not found",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Analyze(context.Background(), "missing", "mainnet")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "transaction not found", apiErr.Message)
}

func TestAnalyze_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Analyze(context.Background(), "sig", "mainnet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/analyses", r.URL.Path)
		assert.Equal(t, "devnet", r.URL.Query().Get("network"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"analyses":[{"id":2,"signature":"b","network":"devnet","result":{"instruction_type":"Burn"}},{"id":1,"signature":"a","network":"devnet"}],"count":2,"limit":3}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	analyses, err := client.History(context.Background(), "devnet", 3)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, int64(2), analyses[0].ID)
	assert.Equal(t, "Burn", analyses[0].Result.InstructionType)
	assert.Nil(t, analyses[1].Result)
}

func TestHistory_NoFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"analyses":[]}`))
	}))
	defer server.Close()

	analyses, err := NewClient(server.URL, nil, nil).History(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, analyses)
}

func TestCostsAndProjection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/costs":
			w.Write([]byte(`{"instructions":[{"instruction":"Burn","legacy_cu":4753,"optimized_cu":168,"supported":true}],"count":1}`))
		case "/api/v1/projection":
			assert.Equal(t, "Transfer", r.URL.Query().Get("instruction"))
			assert.Equal(t, "1000", r.URL.Query().Get("count"))
			assert.Equal(t, "50000", r.URL.Query().Get("price"))
			w.Write([]byte(`{"instruction":"Transfer","count":1000,"legacy_cu":4645000,"optimized_cu":155000,"savings_sol":"0.0002245"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)

	entries, err := client.Costs(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CostEntry{Instruction: "Burn", LegacyCU: 4753, OptimizedCU: 168, Supported: true}, entries[0])

	p, err := client.Projection(context.Background(), "Transfer", 1000, 50000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4645000), p.LegacyCU)
	assert.Equal(t, "0.0002245", p.SavingsSOL.String())
}

func TestBatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/api/v1/batches":
			var body struct {
				Network    string   `json:"network"`
				Signatures []string `json:"signatures"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "mainnet", body.Network)
			assert.Equal(t, []string{"a", "b"}, body.Signatures)
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"workflow_id":"batch-analysis-mainnet-1","status":"running"}`))
		case r.Method == "GET" && r.URL.Path == "/api/v1/batches/batch-analysis-mainnet-1":
			w.Write([]byte(`{"workflow_id":"batch-analysis-mainnet-1","status":"completed","result":{"network":"mainnet","succeeded":1,"failed":1,"total_absolute_savings_sol":"0.000001","outcomes":[{"signature":"a","status":"ok"},{"signature":"b","status":"failed","error_kind":"not_found","error":"transaction not found"}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"batch not found"}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)

	id, err := client.StartBatch(context.Background(), "mainnet", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "batch-analysis-mainnet-1", id)

	batch, err := client.GetBatch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "completed", batch.Status)
	require.NotNil(t, batch.Result)
	assert.Equal(t, 1, batch.Result.Failed)
	assert.Equal(t, "not_found", batch.Result.Outcomes[1].ErrorKind)
	assert.Equal(t, "0.000001", batch.Result.TotalAbsoluteSavingsSOL.String())

	_, err = client.GetBatch(context.Background(), "other")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
