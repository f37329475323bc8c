package api

import (
	"errors"
	"strings"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	"SignalHook/internal/usecase"
	xhttp "SignalHook/pkg/http"
	applogger "SignalHook/pkg/logger"
	"SignalHook/pkg/util"

	"github.com/labstack/echo/v4"
)

const DefaultOwnerHeader = "X-User-ID"

// ListEventsRequest is bound from the query string of GET /bots/:botId/webhooks.
type ListEventsRequest struct {
	BotID string `param:"botId" json:"botId" validate:"required,max=128"`
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1"`
	Since string `query:"since" json:"since"`
}

// BotsEchoHandler serves the owner-facing ledger endpoints.
type BotsEchoHandler struct {
	query       *usecase.EventQuery
	ingest      *usecase.WebhookIngest
	hub         *usecase.EventHub
	ownerHeader string
	maxBody     int64
	logger      *applogger.Logger
}

func NewBotsEchoHandler(
	query *usecase.EventQuery,
	ingest *usecase.WebhookIngest,
	hub *usecase.EventHub,
	ownerHeader string,
	maxBody int64,
	logger *applogger.Logger,
) *BotsEchoHandler {
	if ownerHeader == "" {
		ownerHeader = DefaultOwnerHeader
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &BotsEchoHandler{query: query, ingest: ingest, hub: hub, ownerHeader: ownerHeader, maxBody: maxBody, logger: logger}
}

func (h *BotsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/bots/:botId")
	g.GET("/webhooks", h.ListEvents)
	g.GET("/webhooks/stream", h.Stream)
	g.POST("/test-webhook", h.TestWebhook)
}

func (h *BotsEchoHandler) ListEvents(c echo.Context) error {
	req := &ListEventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var since time.Time
	if req.Since != "" {
		t, ok := util.ParseTime(req.Since)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("since must be RFC3339 or unix seconds, got %q", req.Since))
		}
		since = t
	}

	owner, aerr := h.owner(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	views, err := h.query.ListEvents(c.Request().Context(), owner, req.BotID, req.Limit, since)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.mapError(req.BotID, err))
	}
	return xhttp.ListResponse(c, views, int64(len(views)))
}

func (h *BotsEchoHandler) TestWebhook(c echo.Context) error {
	bot, aerr := h.ownedBot(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	body, msg := readBody(c, h.maxBody)
	if msg != "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(msg))
	}
	res := h.ingest.SubmitTest(c.Request().Context(), bot, body, c.Request().Header.Get(headerIdempotency))
	return xhttp.SuccessResponse(c, res)
}

func (h *BotsEchoHandler) owner(c echo.Context) (string, *xhttp.AppError) {
	owner := strings.TrimSpace(c.Request().Header.Get(h.ownerHeader))
	if owner == "" {
		return "", xhttp.UnauthorizedError("missing " + h.ownerHeader + " header")
	}
	return owner, nil
}

func (h *BotsEchoHandler) ownedBot(c echo.Context) (*models.Bot, *xhttp.AppError) {
	owner, aerr := h.owner(c)
	if aerr != nil {
		return nil, aerr
	}
	botID := c.Param("botId")
	bot, err := h.query.OwnedBot(c.Request().Context(), owner, botID)
	if err != nil {
		return nil, h.mapError(botID, err)
	}
	return bot, nil
}

// mapError hides ownership: a bot owned by someone else is reported as missing.
func (h *BotsEchoHandler) mapError(botID string, err error) *xhttp.AppError {
	if errors.Is(err, domrepo.ErrBotNotFound) || errors.Is(err, usecase.ErrNotOwner) {
		return xhttp.NotFoundErrorf("bot %s not found", botID)
	}
	h.logger.Error("bots endpoint failed", applogger.String("bot_id", botID), applogger.Error(err))
	return xhttp.InternalError("something went wrong").WithError(err)
}
