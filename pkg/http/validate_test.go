package http

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderRequest struct {
	Side     string           `json:"side" validate:"required,oneof=buy sell"`
	Quantity *decimal.Decimal `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Venue    string           `json:"venue" default:"paper"`
}

func TestValidateRequestDecimalAndDefaults(t *testing.T) {
	q := decimal.NewFromFloat(1.5)
	req := &orderRequest{Side: "buy", Quantity: &q}
	assert.Nil(t, ValidateRequest(context.Background(), req))
	assert.Equal(t, "paper", req.Venue)

	neg := decimal.NewFromInt(-2)
	errs := ValidateRequest(context.Background(), &orderRequest{Side: "hold", Quantity: &neg})
	require.Len(t, errs, 2)
	assert.Equal(t, "side", errs[0].Field)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "quantity", errs[1].Field)
	assert.Equal(t, "ERR_GT", errs[1].Code)
	assert.Equal(t, "side must be one of: buy, sell; quantity must be greater than 0", JoinMessages(errs))
}

func TestValidateRequestNilDecimalSkipped(t *testing.T) {
	assert.Nil(t, ValidateRequest(context.Background(), &orderRequest{Side: "sell"}))
}
