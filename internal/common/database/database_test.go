package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-compiler/internal/common/config"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	mr.Close()
	_, err = ConnectRedis(context.Background(), config.RedisConfig{Address: mr.Addr()})
	assert.ErrorContains(t, err, "redis ping")
}

func TestConnectElasticsearch(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{name: "healthy cluster", status: http.StatusOK},
		{name: "cluster error", status: http.StatusServiceUnavailable, wantErr: "elasticsearch ping error: 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Elastic-Product", "Elasticsearch")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			es, err := ConnectElasticsearch(context.Background(), config.ElasticsearchConfig{Addresses: []string{srv.URL}})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, es)
		})
	}
}

func TestConnectPostgres_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := ConnectPostgres(ctx, config.PostgresConfig{
		Host: "127.0.0.1", Port: 1, User: "u", Database: "reports", SSLMode: "disable",
	})
	assert.ErrorContains(t, err, "postgres ping 127.0.0.1:1 failed")
}
