package cbtools_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbtools "github.com/smarttradeapp/cbtools.go"
	"github.com/smarttradeapp/cbtools.go/internal/fakesg"
)

func TestGatewayMetrics(t *testing.T) {
	srv := fakesg.New()
	t.Cleanup(srv.Close)

	reg := prometheus.NewRegistry()
	nop := zerolog.Nop()
	db, err := cbtools.New(cbtools.Config{
		GatewayURL: srv.URL(),
		AdminURL:   srv.URL(),
		ViewURL:    srv.URL(),
		Bucket:     "test_bucket",
		Username:   "admin",
		Password:   "secret",
		Logger:     &nop,
		Metrics:    reg,
	})
	require.NoError(t, err)

	savedJob(t, db, "measured")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cbtools_gateway_requests_total")
	assert.Contains(t, names, "cbtools_gateway_request_duration_seconds")
}
