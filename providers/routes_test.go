package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/roomlink/realtime/config"
	"github.com/roomlink/realtime/src/auth"
	"github.com/roomlink/realtime/src/service"
	"github.com/roomlink/realtime/src/store"
	"github.com/roomlink/realtime/src/types"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", auth.ErrInvalidToken
	}
	return token, nil
}

func newTestProvider(t *testing.T) (*Provider, *store.MemoryStore) {
	t.Helper()
	cfg := config.Default()
	st := store.NewMemoryStore()
	svc := service.New(cfg, st, fakeVerifier{}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	return New(svc, cfg, zerolog.Nop()), st
}

func TestHandleMessagesServesHistory(t *testing.T) {
	p, st := newTestProvider(t)

	for i := 0; i < 3; i++ {
		_, err := st.SaveMessage(context.Background(), types.Envelope{
			ID:         "m" + strconv.Itoa(i),
			ChatID:     "c1",
			FromUserID: "alice",
			ToUserID:   "bob",
			Body:       "hello " + strconv.Itoa(i),
			State:      types.StateSent,
			CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	app := fiber.New()
	p.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/chats/c1/messages?limit=2", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ChatID   string           `json:"chatId"`
		Messages []types.Envelope `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "c1", body.ChatID)
	require.Len(t, body.Messages, 2)
	// Most recent last.
	assert.Equal(t, "m1", body.Messages[0].ID)
	assert.Equal(t, "m2", body.Messages[1].ID)
}

func TestHandleMessagesEmptyChat(t *testing.T) {
	p, _ := newTestProvider(t)

	app := fiber.New()
	p.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/chats/nope/messages", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleInfo(t *testing.T) {
	p, _ := newTestProvider(t)

	app := fiber.New()
	p.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/info", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["websocket"])
	assert.Equal(t, "/ws", body["endpoint"])
}

func TestFastHTTPHandlerRejectsPlainHTTP(t *testing.T) {
	p, _ := newTestProvider(t)

	ctx := &fasthttp.RequestCtx{}
	p.FastHTTPHandler()(ctx)

	assert.Equal(t, fasthttp.StatusUpgradeRequired, ctx.Response.StatusCode())
}
