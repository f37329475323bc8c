package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	before := testutil.ToFloat64(StreamDropped)
	StreamDropped.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(StreamDropped))

	n, err := testutil.GatherAndCount(reg, "signalhook_stream_dropped_frames_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
