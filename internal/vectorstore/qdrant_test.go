package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{
			name:   "https cloud URL with REST port",
			rawURL: "https://xyz.cloud.qdrant.io:6333",
			host:   "xyz.cloud.qdrant.io",
			port:   6334, // REST 6333 → gRPC 6334
			tls:    true,
		},
		{
			name:   "https cloud URL with gRPC port",
			rawURL: "https://xyz.cloud.qdrant.io:6334",
			host:   "xyz.cloud.qdrant.io",
			port:   6334,
			tls:    true,
		},
		{
			name:   "http local URL",
			rawURL: "http://localhost:6333",
			host:   "localhost",
			port:   6334,
			tls:    false,
		},
		{
			name:   "http no port defaults to 6334",
			rawURL: "http://qdrant.internal",
			host:   "qdrant.internal",
			port:   6334,
			tls:    false,
		},
		{
			name:   "custom port preserved",
			rawURL: "https://qdrant.example.com:9334",
			host:   "qdrant.example.com",
			port:   9334,
			tls:    true,
		},
		{
			name:    "empty URL",
			rawURL:  "",
			wantErr: true,
		},
		{
			name:    "no scheme no host",
			rawURL:  "not-a-url",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, tls, err := parseURL(tt.rawURL)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.tls, tls)
		})
	}
}

func TestPointUUID_Deterministic(t *testing.T) {
	a := pointUUID("a1b2c3d4")
	b := pointUUID("a1b2c3d4")
	c := pointUUID("deadbeef")

	assert.Equal(t, a, b, "same decision ID must map to the same point UUID")
	assert.NotEqual(t, a, c, "different decision IDs must map to different point UUIDs")
}

func TestTranslateFilter_Nil(t *testing.T) {
	f, err := translateFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestTranslateFilter_Range(t *testing.T) {
	filter := GteFilter("confidence", 0.5)
	f, err := translateFilter(&filter)
	require.NoError(t, err)
	require.Len(t, f.Must, 1)
}

func TestTranslateFilter_In(t *testing.T) {
	filter := InFilter("category", "architecture", "security")
	f, err := translateFilter(&filter)
	require.NoError(t, err)
	require.Len(t, f.Must, 1)
}

func TestTranslateFilter_AndOr(t *testing.T) {
	and := AndFilter(GteFilter("confidence", 0.3), LteFilter("confidence", 0.9))
	f, err := translateFilter(&and)
	require.NoError(t, err)
	require.Len(t, f.Must, 1)

	or := OrFilter(InFilter("stakes", "high"), InFilter("stakes", "critical"))
	f2, err := translateFilter(&or)
	require.NoError(t, err)
	require.Len(t, f2.Must, 1)
}

func TestTranslateFilter_EmptyFilterErrors(t *testing.T) {
	empty := Filter{Field: "confidence"}
	_, err := translateFilter(&empty)
	require.Error(t, err)
}
