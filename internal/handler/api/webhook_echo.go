package api

import (
	"io"
	"net/http"

	"SignalHook/internal/usecase"
	applogger "SignalHook/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	DefaultMaxBodyBytes = 64 << 10
	msgBodyTooLarge     = "payload too large"
	msgUnreadableBody   = "unreadable body"
	headerIdempotency   = "Idempotency-Key"
)

// WebhookEchoHandler serves the public alert endpoint. Every outcome is a 200
// with a {success, message, eventId} body so senders never retry on policy results.
type WebhookEchoHandler struct {
	ingest  *usecase.WebhookIngest
	maxBody int64
	logger  *applogger.Logger
}

func NewWebhookEchoHandler(ingest *usecase.WebhookIngest, maxBody int64, logger *applogger.Logger) *WebhookEchoHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &WebhookEchoHandler{ingest: ingest, maxBody: maxBody, logger: logger}
}

func (h *WebhookEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook/:botId/:secret", h.Receive)
}

func (h *WebhookEchoHandler) Receive(c echo.Context) error {
	body, msg := readBody(c, h.maxBody)
	if msg != "" {
		h.logger.Warn("webhook body rejected", applogger.String("bot_id", c.Param("botId")), applogger.String("reason", msg))
		return c.JSON(http.StatusOK, usecase.IngestResult{Message: msg})
	}

	res := h.ingest.Ingest(c.Request().Context(), usecase.WebhookRequest{
		BotID:          c.Param("botId"),
		Secret:         c.Param("secret"),
		Body:           body,
		IdempotencyKey: c.Request().Header.Get(headerIdempotency),
	})
	return c.JSON(http.StatusOK, res)
}

// readBody reads at most limit bytes. A non-empty message means the body was rejected.
func readBody(c echo.Context, limit int64) ([]byte, string) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		return nil, msgUnreadableBody
	}
	if int64(len(body)) > limit {
		return nil, msgBodyTooLarge
	}
	return body, ""
}
