package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubGreetsClients(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeConnected, msg.Type)
	assert.Len(t, msg.ID, 36)
	assert.Equal(t, 1, hub.Clients())
}

func TestHubBroadcasts(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv)
	b := dial(t, srv)
	readMessage(t, a)
	readMessage(t, b)

	hub.Broadcast(Message{Type: TypeReload})
	assert.Equal(t, TypeReload, readMessage(t, a).Type)
	assert.Equal(t, TypeReload, readMessage(t, b).Type)

	hub.Broadcast(Message{Type: TypeCSS, Paths: []string{"/css/main.css"}})
	msg := readMessage(t, a)
	assert.Equal(t, TypeCSS, msg.Type)
	assert.Equal(t, []string{"/css/main.css"}, msg.Paths)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	readMessage(t, conn)
	require.Equal(t, 1, hub.Clients())

	conn.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// No write pump drains this client, so its buffer stays full.
	slow := &Client{ID: "slow", send: make(chan []byte, sendBuffer), hub: hub}
	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte(`{"type":"reload"}`)
	}
	hub.register <- slow
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.Broadcast(Message{Type: TypeReload})
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)

	queued := 0
	for range slow.send {
		queued++
	}
	assert.Equal(t, sendBuffer, queued, "queued messages stay readable and the channel is closed")

	// The hub keeps delivering to everyone else.
	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn := dial(t, srv)
	readMessage(t, conn)
	hub.Broadcast(Message{Type: TypeReload})
	assert.Equal(t, TypeReload, readMessage(t, conn).Type)
}

func TestHubReplaysOutstandingErrors(t *testing.T) {
	hub, srv := startHub(t)
	n := NewNotifier(hub, "public")
	n.Notify(context.Background(), pipeline.Event{
		Task:   "styles",
		Reload: pipeline.ReloadInject,
		Errors: []*errors.TaskError{{Task: "styles", File: "app/sass/main.scss", Line: 3, Column: 7, Message: "expected \"}\""}},
	})

	conn := dial(t, srv)
	assert.Equal(t, TypeConnected, readMessage(t, conn).Type)
	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "styles", msg.Task)
	require.Len(t, msg.Errors, 1)
	assert.Equal(t, ErrorDetail{File: "app/sass/main.scss", Line: 3, Column: 7, Message: "expected \"}\""}, msg.Errors[0])
}

func TestNotifierMessages(t *testing.T) {
	public := filepath.Join("public")
	tests := []struct {
		name   string
		events []pipeline.Event
		want   *Message
	}{
		{
			name: "full reload",
			events: []pipeline.Event{{
				Task: "templates", Reload: pipeline.ReloadFull,
				Paths: []string{filepath.Join(public, "index.html")},
			}},
			want: &Message{Type: TypeReload, Task: "templates"},
		},
		{
			name: "stylesheet injection",
			events: []pipeline.Event{{
				Task: "styles", Reload: pipeline.ReloadInject,
				Paths: []string{filepath.Join(public, "css", "main.css"), filepath.Join(public, "css", "a.css")},
			}},
			want: &Message{Type: TypeCSS, Task: "styles", Paths: []string{"/css/a.css", "/css/main.css"}},
		},
		{
			name: "injection falls back to reload",
			events: []pipeline.Event{{
				Task: "styles", Reload: pipeline.ReloadInject,
				Paths: []string{filepath.Join(public, "css", "main.css.map")},
			}},
			want: &Message{Type: TypeReload, Task: "styles"},
		},
		{
			name: "no reload",
			events: []pipeline.Event{{
				Task: "fonts", Reload: pipeline.ReloadNone,
				Paths: []string{filepath.Join(public, "fonts", "a.woff")},
			}},
		},
		{
			name: "outside served directory",
			events: []pipeline.Event{{
				Task: "templates", Reload: pipeline.ReloadFull,
				Paths: []string{filepath.Join("elsewhere", "index.html")},
			}},
		},
		{
			name: "errors",
			events: []pipeline.Event{{
				Task: "css", Reload: pipeline.ReloadNone,
				Errors: []*errors.TaskError{{Task: "css", File: "app/css/a.css", Message: "boom"}},
			}},
			want: &Message{Type: TypeError, Task: "css", Errors: []ErrorDetail{{File: "app/css/a.css", Message: "boom"}}},
		},
		{
			name: "recovery clears overlay",
			events: []pipeline.Event{
				{Task: "css", Reload: pipeline.ReloadNone, Errors: []*errors.TaskError{{Task: "css", Message: "boom"}}},
				{Task: "css", Reload: pipeline.ReloadNone, Paths: []string{filepath.Join(public, "css", "a.css")}},
			},
			want: &Message{Type: TypeReload, Task: "css"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNotifier(NewHub(), public)
			var (
				msg Message
				ok  bool
			)
			for _, ev := range tt.events {
				msg, ok = n.message(ev)
			}
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, *tt.want, msg)
		})
	}
}

func TestInject(t *testing.T) {
	tag := `<script src="/__sitepipe/livereload.js"></script>`
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"before body", "<html><body><p>x</p></body></html>", "<html><body><p>x</p>" + tag + "</body></html>"},
		{"upper case", "<BODY>x</BODY>", "<BODY>x" + tag + "</BODY>"},
		{"last body wins", "<body><pre>&lt;/body&gt;</body></body>", "<body><pre>&lt;/body&gt;</body>" + tag + "</body>"},
		{"no body", "<p>fragment</p>", "<p>fragment</p>" + tag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Inject([]byte(tt.input))))
		})
	}
}

func TestScriptHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ScriptHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ScriptPath, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), SocketPath)
}
