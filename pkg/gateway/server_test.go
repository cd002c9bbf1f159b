package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charla-ai/charla/pkg/model"
	"github.com/charla-ai/charla/pkg/store"
)

type serverFixture struct {
	store  *store.SQLiteStore
	server *Server
	ts     *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "charla.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := NewServer(context.Background(), Options{}, st, defaultServices(st))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &serverFixture{store: st, server: srv, ts: ts}
}

func (fx *serverFixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(fx.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	fx := newServerFixture(t)
	var body map[string]string
	code := fx.get(t, "/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListPersonasEndpoint(t *testing.T) {
	fx := newServerFixture(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, fx.store.SeedPersonas(ctx, []model.Persona{
		{ID: uuid.NewString(), Name: "Ada", Role: "mathematician", KeyTraits: []string{"precise"}, CreatedAt: base},
		{ID: uuid.NewString(), Name: "Nemo", Role: "captain", CreatedAt: base.Add(time.Minute)},
	}))

	var personas []personaResponse
	code := fx.get(t, "/api/personas", &personas)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, personas, 2)
	assert.Equal(t, "Ada", personas[0].Name)
	assert.Equal(t, []string{"precise"}, personas[0].KeyTraits)
	assert.Equal(t, "Nemo", personas[1].Name)
}

func TestConversationEndpoints(t *testing.T) {
	fx := newServerFixture(t)
	ctx := context.Background()

	id := uuid.NewString()
	body := strings.NewReader(`{"id":"` + id + `"}`)
	resp, err := http.Post(fx.ts.URL+"/api/conversations", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created conversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, id, created.ID)

	require.NoError(t, fx.store.AppendExchange(ctx, id, "hello", "hi there"))

	t.Run("get with messages", func(t *testing.T) {
		var conv conversationResponse
		code := fx.get(t, "/api/conversations/"+id, &conv)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, id, conv.ID)
		require.Len(t, conv.Messages, 2)
		assert.Equal(t, "user", conv.Messages[0].Role)
		assert.Equal(t, "hello", conv.Messages[0].Content)
	})

	t.Run("messages endpoint", func(t *testing.T) {
		var msgs []messageResponse
		code := fx.get(t, "/api/conversations/"+id+"/messages", &msgs)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, msgs, 2)
		assert.Equal(t, "assistant", msgs[1].Role)
		assert.Equal(t, "hi there", msgs[1].Content)
	})

	t.Run("list", func(t *testing.T) {
		var convs []conversationResponse
		code := fx.get(t, "/api/conversations", &convs)
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, convs, 1)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, fx.get(t, "/api/conversations/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, fx.get(t, "/api/conversations/"+uuid.NewString()+"/messages", nil))
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, fx.ts.URL+"/api/conversations/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		assert.Equal(t, http.StatusNotFound, fx.get(t, "/api/conversations/"+id, nil))
	})
}

func TestCreateConversationValidation(t *testing.T) {
	fx := newServerFixture(t)

	t.Run("rejects non-uuid id", func(t *testing.T) {
		resp, err := http.Post(fx.ts.URL+"/api/conversations", "application/json",
			strings.NewReader(`{"id":"nope"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("generates id when omitted", func(t *testing.T) {
		resp, err := http.Post(fx.ts.URL+"/api/conversations", "application/json",
			strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created conversationResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		_, err = uuid.Parse(created.ID)
		assert.NoError(t, err)
	})
}

// Dials the real websocket endpoint and runs a full exchange over the wire.
func TestWebsocketEndToEnd(t *testing.T) {
	fx := newServerFixture(t)

	wsURL, err := url.Parse(fx.ts.URL)
	require.NoError(t, err)
	wsURL.Scheme = "ws"
	wsURL.Path = "/ws/chat"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	readFrame := func() OutboundFrame {
		t.Helper()
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f OutboundFrame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	}

	hello := readFrame()
	assert.Equal(t, FrameStatus, hello.Type)
	assert.Equal(t, "Connected to the Charla backend. Hello!", hello.Message)

	convID := uuid.NewString()
	require.NoError(t, conn.WriteJSON(InboundFrame{Type: FrameText, ConversationID: convID, Text: "hello"}))

	status := readFrame()
	assert.Equal(t, FrameStatus, status.Type)
	assert.Equal(t, "Processing your request...", status.Message)

	text := readFrame()
	require.Equal(t, FrameTextResponse, text.Type)
	assert.Equal(t, "generated reply", text.Text)
	assert.Equal(t, convID, text.ConversationID)

	audio := readFrame()
	assert.Equal(t, FrameAudioResponse, audio.Type)
	assert.NotEmpty(t, audio.Audio)

	msgs, err := fx.store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
