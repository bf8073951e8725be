package feast

import (
	"context"
	"testing"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGrpcClient_GetOnlineFeatures 需要连接真实的 Feast 服务器
func TestGrpcClient_GetOnlineFeatures(t *testing.T) {
	t.Skip("需要连接真实的 Feast 服务器才能运行")

	client, err := NewGrpcClient("localhost:6565", "test_project")
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.GetOnlineFeatures(context.Background(), &GetOnlineFeaturesRequest{
		Features:   []string{"doc_stats:ctr"},
		EntityRows: []map[string]any{{"doc_id": "d1"}, {"doc_id": "d2"}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.FeatureVectors, 2)
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		host     string
		port     int
		hasError bool
	}{
		{in: "localhost:6566", host: "localhost", port: 6566},
		{in: "grpc://feast:7000", host: "feast", port: 7000},
		{in: "feast", host: "feast", port: DefaultGrpcPort},
		{in: "", hasError: true},
		{in: "feast:abc", hasError: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := parseEndpoint(tt.in)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestSDKValueConversion(t *testing.T) {
	tests := []struct {
		name string
		in   *types.Value
		want any
	}{
		{"double", feastsdk.DoubleVal(0.5), 0.5},
		{"float", feastsdk.FloatVal(2), 2.0},
		{"int64", feastsdk.Int64Val(7), 7.0},
		{"bool", feastsdk.BoolVal(true), 1.0},
		{"string", feastsdk.StrVal("x"), "x"},
		{"nil", nil, nil},
		{"empty", &types.Value{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fromSDKValue(tt.in))
		})
	}

	assert.Equal(t, "d1", toSDKValue("d1").GetStringVal())
	assert.Equal(t, int64(3), toSDKValue(3).GetInt64Val())
	assert.Equal(t, 1.5, toSDKValue(1.5).GetDoubleVal())
}

func TestMemoryClient(t *testing.T) {
	c := NewMemoryClient()
	c.Put("doc_id", "d1", map[string]any{"doc_stats:ctr": 0.3})
	c.Put("doc_id", "d2", map[string]any{"doc_stats:ctr": 0.1, "doc_stats:age": 4.0})

	resp, err := c.GetOnlineFeatures(context.Background(), &GetOnlineFeaturesRequest{
		Features:   []string{"doc_stats:ctr", "doc_stats:age"},
		EntityRows: []map[string]any{{"doc_id": "d1"}, {"doc_id": "d2"}, {"doc_id": "d3"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.FeatureVectors, 3)
	assert.Equal(t, map[string]any{"doc_stats:ctr": 0.3}, resp.FeatureVectors[0].Values)
	assert.Equal(t, 4.0, resp.FeatureVectors[1].Values["doc_stats:age"])
	assert.Empty(t, resp.FeatureVectors[2].Values)
	assert.Equal(t, int64(1), c.Calls())

	require.NoError(t, c.Close())
	_, err = c.GetOnlineFeatures(context.Background(), &GetOnlineFeaturesRequest{Features: []string{"x"}})
	assert.Error(t, err)
}
