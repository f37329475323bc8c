package api

import (
	"net/http"
	"time"

	xhttp "SignalHook/pkg/http"
	applogger "SignalHook/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream pushes EventRecord updates for one bot as JSON text frames.
func (h *BotsEchoHandler) Stream(c echo.Context) error {
	bot, aerr := h.ownedBot(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	updates, cancel := h.hub.Subscribe(bot.ID)
	defer cancel()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", applogger.String("bot_id", bot.ID), applogger.Error(err))
		return nil
	}
	defer conn.Close()
	h.logger.Info("stream opened", applogger.String("bot_id", bot.ID))

	// The client never sends data frames; reading only services control frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(streamWriteWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(rec); err != nil {
				h.logger.Debug("stream write failed", applogger.String("bot_id", bot.ID), applogger.Error(err))
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return nil
			}
		case <-closed:
			h.logger.Info("stream closed", applogger.String("bot_id", bot.ID))
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}
