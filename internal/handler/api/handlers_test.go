package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalHook/internal/domain/models"
	"SignalHook/internal/repository"
	"SignalHook/internal/usecase"
	"SignalHook/pkg/cache"
	xhttp "SignalHook/pkg/http"
	"SignalHook/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ string, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, eventID)
	return nil
}

type apiFixture struct {
	store      *repository.SQLStore
	hub        *usecase.EventHub
	dispatcher *recordingDispatcher
	e          *echo.Echo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenDB(ctx, repository.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, repository.DialectSQLite))

	store := repository.NewSQLStore(db, repository.DialectSQLite, nil)
	require.NoError(t, store.UpsertBot(ctx, &models.Bot{
		ID: "bot-1", OwnerID: "alice", Secret: "s3cret", Symbol: "BTCUSDT", Timeframe: "1h",
		SignalMode: models.SignalModeAll, Status: models.BotStatusActive,
	}))

	registry := usecase.NewBotRegistry(store, cache.NewMemoryCache(), time.Minute, nil)
	hub := usecase.NewEventHub(nil)
	t.Cleanup(hub.Close)
	d := &recordingDispatcher{}
	ingest := usecase.NewWebhookIngest(registry, store, d, hub, nil, metrics.Nop{}, nil)
	query := usecase.NewEventQuery(registry, store, store)

	e := echo.New()
	NewWebhookEchoHandler(ingest, 1024, nil).RegisterRoutes(e)
	NewBotsEchoHandler(query, ingest, hub, "", 1024, nil).RegisterRoutes(e)
	return &apiFixture{store: store, hub: hub, dispatcher: d, e: e}
}

func (f *apiFixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeIngest(t *testing.T, rec *httptest.ResponseRecorder) usecase.IngestResult {
	t.Helper()
	var res usecase.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestWebhookAlwaysReturns200(t *testing.T) {
	f := newAPIFixture(t)

	ok := f.do(http.MethodPost, "/webhook/bot-1/s3cret", `{"action":"buy","symbol":"BTCUSDT"}`, nil)
	assert.Equal(t, http.StatusOK, ok.Code)
	res := decodeIngest(t, ok)
	assert.True(t, res.Success)
	assert.Equal(t, usecase.MsgAccepted, res.Message)
	assert.Equal(t, []string{res.EventID}, f.dispatcher.ids)

	bad := f.do(http.MethodPost, "/webhook/bot-1/wrong", `{"action":"buy","symbol":"BTCUSDT"}`, nil)
	assert.Equal(t, http.StatusOK, bad.Code)
	res = decodeIngest(t, bad)
	assert.False(t, res.Success)
	assert.Equal(t, usecase.MsgInvalidWebhook, res.Message)
	assert.NotContains(t, bad.Body.String(), "eventId")

	big := f.do(http.MethodPost, "/webhook/bot-1/s3cret", strings.Repeat("x", 2048), nil)
	assert.Equal(t, http.StatusOK, big.Code)
	assert.Equal(t, msgBodyTooLarge, decodeIngest(t, big).Message)
}

func TestWebhookIdempotencyHeader(t *testing.T) {
	f := newAPIFixture(t)
	h := map[string]string{headerIdempotency: "k-1"}

	a := decodeIngest(t, f.do(http.MethodPost, "/webhook/bot-1/s3cret", `{"action":"sell","symbol":"BTCUSDT"}`, h))
	b := decodeIngest(t, f.do(http.MethodPost, "/webhook/bot-1/s3cret", `{"action":"sell","symbol":"BTCUSDT"}`, h))
	assert.Equal(t, a.EventID, b.EventID)
	assert.Equal(t, usecase.MsgDuplicate, b.Message)
}

func TestListEvents(t *testing.T) {
	f := newAPIFixture(t)
	for i := 0; i < 3; i++ {
		f.do(http.MethodPost, "/webhook/bot-1/s3cret", `{"action":"buy","symbol":"BTCUSDT"}`, nil)
	}

	missing := f.do(http.MethodGet, "/bots/bot-1/webhooks", "", nil)
	assert.Equal(t, http.StatusOK, missing.Code)
	var env xhttp.APIResponse
	require.NoError(t, json.Unmarshal(missing.Body.Bytes(), &env))
	assert.Equal(t, http.StatusUnauthorized, env.Status)

	other := f.do(http.MethodGet, "/bots/bot-1/webhooks", "", map[string]string{"X-User-ID": "mallory"})
	require.NoError(t, json.Unmarshal(other.Body.Bytes(), &env))
	assert.Equal(t, http.StatusNotFound, env.Status)

	badLimit := f.do(http.MethodGet, "/bots/bot-1/webhooks?limit=-3", "", map[string]string{"X-User-ID": "alice"})
	require.NoError(t, json.Unmarshal(badLimit.Body.Bytes(), &env))
	assert.Equal(t, http.StatusBadRequest, env.Status)

	badSince := f.do(http.MethodGet, "/bots/bot-1/webhooks?since=yesterday", "", map[string]string{"X-User-ID": "alice"})
	require.NoError(t, json.Unmarshal(badSince.Body.Bytes(), &env))
	assert.Equal(t, http.StatusBadRequest, env.Status)

	rec := f.do(http.MethodGet, "/bots/bot-1/webhooks?limit=2", "", map[string]string{"X-User-ID": "alice"})
	var list struct {
		Status int `json:"status"`
		Data   struct {
			Rows  []usecase.EventView `json:"rows"`
			Total int64               `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, http.StatusOK, list.Status)
	assert.Equal(t, int64(2), list.Data.Total)
	require.Len(t, list.Data.Rows, 2)
	assert.Equal(t, models.EventReceived, list.Data.Rows[0].Status)
}

func TestTestWebhook(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/bots/bot-1/test-webhook", `{"action":"buy","symbol":"BTCUSDT","message":"ping"}`,
		map[string]string{"X-User-ID": "alice"})
	var env struct {
		Status int                  `json:"status"`
		Data   usecase.IngestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, http.StatusOK, env.Status)
	require.True(t, env.Data.Success)

	stored, err := f.store.GetEvent(context.Background(), env.Data.EventID)
	require.NoError(t, err)
	assert.True(t, stored.IsTest)
	assert.Contains(t, string(stored.Payload), usecase.TestMessagePrefix+"ping")
}

func TestStreamPushesLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/bots/bot-1/webhooks/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User-ID": []string{"alice"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	f.hub.Notify(&models.EventRecord{ID: "e1", BotID: "bot-1", Status: models.EventProcessing})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.EventRecord
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "e1", got.ID)
	assert.Equal(t, models.EventProcessing, got.Status)

	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
