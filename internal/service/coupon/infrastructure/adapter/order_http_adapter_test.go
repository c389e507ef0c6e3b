package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"ecoupon/internal/pkg/httpclient"
	"ecoupon/internal/service/coupon/domain/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

// staticDiscoverer always resolves to the given test server.
type staticDiscoverer struct {
	ip   string
	port int
}

func (d staticDiscoverer) DiscoverServiceInstance(serviceName string) (string, int, error) {
	return d.ip, d.port, nil
}

func newTestOracle(t *testing.T, handler http.HandlerFunc) *OrderHTTPAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client := httpclient.NewClient(otel.Tracer("test"))
	return NewOrderHTTPAdapter(client, staticDiscoverer{ip: u.Hostname(), port: p}, "order-service", 2*time.Second)
}

func TestQueryOrderState(t *testing.T) {
	ctx := context.Background()

	t.Run("returns state from envelope", func(t *testing.T) {
		oracle := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/order/v1/query_state", r.URL.Path)
			assert.Equal(t, "T-1", r.URL.Query().Get("out_trade_no"))
			fmt.Fprint(w, `{"code":0,"data":{"state":"PAY"}}`)
		})

		state, err := oracle.QueryOrderState(ctx, "T-1")

		require.NoError(t, err)
		assert.Equal(t, port.OrderStatePaid, state)
	})

	t.Run("non-zero code is an error", func(t *testing.T) {
		oracle := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":5001,"msg":"order not found"}`)
		})

		_, err := oracle.QueryOrderState(ctx, "T-404")

		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "5001"))
	})

	t.Run("http error surfaces", func(t *testing.T) {
		oracle := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := oracle.QueryOrderState(ctx, "T-1")

		assert.Error(t, err)
	})

	t.Run("slow upstream hits timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		t.Cleanup(server.Close)

		u, err := url.Parse(server.URL)
		require.NoError(t, err)
		p, err := strconv.Atoi(u.Port())
		require.NoError(t, err)

		client := httpclient.NewClient(otel.Tracer("test"))
		oracle := NewOrderHTTPAdapter(client, staticDiscoverer{ip: u.Hostname(), port: p}, "order-service", 100*time.Millisecond)

		start := time.Now()
		_, err = oracle.QueryOrderState(ctx, "T-1")

		assert.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}
