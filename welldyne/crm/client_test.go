package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(Config{
		BaseURL:        baseURL,
		Username:       "api-user",
		Password:       "api-pass",
		ResultsPerPage: 2,
		TimeoutMS:      5000,
	}, logger)
}

func pageResponse(total, page int, txns []Transaction) map[string]interface{} {
	return map[string]interface{}{
		"result": "SUCCESS",
		"message": TransactionPage{
			TotalResults:   total,
			Page:           page,
			ResultsPerPage: 2,
			Data:           txns,
		},
	}
}

func TestQueryTransactions(t *testing.T) {
	start := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 4, 30, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/query/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "api-user", q.Get("username"))
		assert.Equal(t, "03/03/2024", q.Get("startDate"))
		assert.Equal(t, "03/04/2024", q.Get("endDate"))
		assert.Equal(t, "12:00:00", q.Get("startTime"))
		assert.Equal(t, "04:30:00", q.Get("endTime"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "2", q.Get("resultsPerPage"))

		require.NoError(t, json.NewEncoder(w).Encode(pageResponse(1, 1, []Transaction{
			{CustomerID: "1001", OrderID: "ORD-1", OrderType: "NEW_SALE", Medication: "Sildenafil"},
		})))
	}))
	defer server.Close()

	result, err := testClient(server.URL).QueryTransactions(context.Background(), start, end, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalResults)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "1001", result.Data[0].CustomerID)
}

func TestQueryTransactionsFailureResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"ERROR","message":{}}`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).QueryTransactions(context.Background(), time.Now(), time.Now(), 1)
	assert.Contains(t, err.Error(), `CRM transaction query returned "ERROR"`)
}

func TestQueryAllPaginates(t *testing.T) {
	txns := []Transaction{
		{CustomerID: "1001", OrderID: "ORD-1"},
		{CustomerID: "1002", OrderID: "ORD-2"},
		{CustomerID: "1003", OrderID: "ORD-3"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)

		lo := (page - 1) * 2
		hi := lo + 2
		if hi > len(txns) {
			hi = len(txns)
		}
		require.NoError(t, json.NewEncoder(w).Encode(pageResponse(len(txns), page, txns[lo:hi])))
	}))
	defer server.Close()

	all, err := testClient(server.URL).QueryAll(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ORD-3", all[2].OrderID)
}

func TestTypeHint(t *testing.T) {
	assert.Equal(t, models.TriggerRefill, Transaction{OrderType: "RECURRING"}.TypeHint())
	assert.Equal(t, models.TriggerRefill, Transaction{OrderType: "recurring"}.TypeHint())
	assert.Equal(t, models.TriggerInitial, Transaction{OrderType: "NEW_SALE"}.TypeHint())
	assert.Equal(t, models.TriggerInitial, Transaction{}.TypeHint())
}
