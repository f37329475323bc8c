package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimeframe(t *testing.T) {
	assertion := assert.New(t)

	assertion.Equal(TF1h, NormalizeTimeframe(""))
	assertion.Equal(TF5m, NormalizeTimeframe("5m"))
	assertion.Equal(TF4h, NormalizeTimeframe("240"))
	assertion.Equal(TF1d, NormalizeTimeframe("D"))
	assertion.Equal(TF15m, NormalizeTimeframe("15M"))
	assertion.Equal(TF1h, NormalizeTimeframe("weird"))
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, 15*time.Minute, TF15m.Duration())
	assert.Equal(t, time.Duration(0), Timeframe("2w").Duration())
}
