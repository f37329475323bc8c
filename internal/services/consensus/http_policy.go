package consensus

import (
	"context"
	"fmt"
	"time"

	"SignalHook/internal/domain/models"
	xhttp "SignalHook/pkg/http"
)

// HTTPPolicy delegates CUSTOM decisions to an external decision service.
// The service receives the evaluated indicators and answers {should_trade, reason}.
type HTTPPolicy struct {
	url      string
	client   *xhttp.Client
	attempts int
}

type policyRequest struct {
	BotID   string                    `json:"bot_id"`
	Symbol  string                    `json:"symbol"`
	Action  models.SignalAction       `json:"action"`
	Results []models.EvaluationResult `json:"results"`
}

type policyResponse struct {
	ShouldTrade bool   `json:"should_trade"`
	Reason      string `json:"reason"`
}

func NewHTTPPolicy(url string, timeout time.Duration, attempts int) *HTTPPolicy {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPPolicy{
		url:      url,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: attempts,
	}
}

func (p *HTTPPolicy) Decide(ctx context.Context, bot *models.Bot, action models.SignalAction, results []models.EvaluationResult) (bool, string, error) {
	req := policyRequest{BotID: bot.ID, Symbol: bot.Symbol, Action: action, Results: results}
	var resp policyResponse
	if err := p.postWithRetry(ctx, req, &resp); err != nil {
		return false, "", err
	}
	if resp.Reason == "" {
		resp.Reason = "decision service verdict"
	}
	return resp.ShouldTrade, resp.Reason, nil
}

func (p *HTTPPolicy) post(ctx context.Context, payload, dest interface{}) error {
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     p.url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", p.url, err)
	}
	return nil
}

func (p *HTTPPolicy) postWithRetry(ctx context.Context, payload, dest interface{}) error {
	if p.attempts <= 1 {
		return p.post(ctx, payload, dest)
	}
	var err error
	for i := 1; i <= p.attempts; i++ {
		if err = p.post(ctx, payload, dest); err == nil {
			return nil
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
