package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thelolagemann/cartreader/internal/gbx"
)

// fakeSource is a slot whose contents the test swaps by hand.
type fakeSource struct {
	mu       sync.Mutex
	inserted gbx.Info
	loaded   gbx.Info
	loads    int
}

func (f *fakeSource) insert(info gbx.Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = info
}

func (f *fakeSource) IsLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded.Platform != gbx.PlatformNone && f.loaded == f.inserted
}

func (f *fakeSource) LoadHeader() gbx.Platform {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	f.loaded = f.inserted
	return f.loaded.Platform
}

func (f *fakeSource) Info() gbx.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *fakeSource) TimeToReadROM() time.Duration   { return 10752 * time.Millisecond }
func (f *fakeSource) TimeToReadSave() time.Duration  { return 696 * time.Millisecond }
func (f *fakeSource) TimeToWriteSave() time.Duration { return 724 * time.Millisecond }

var (
	red     = gbx.Info{Platform: gbx.PlatformGB, Title: "POKEMON RED", Identifier: "abc", ROMSize: 1 << 20, SaveSize: 32 << 10, SaveType: "Battery RAM"}
	emerald = gbx.Info{Platform: gbx.PlatformGBA, Title: "POKEMON EMER", Identifier: "BPEE", ROMSize: 16 << 20, SaveSize: 128 << 10, SaveType: "Flash 1M"}
)

func decode(t *testing.T, msg []byte) Status {
	t.Helper()
	var s Status
	require.NoError(t, json.Unmarshal(msg, &s))
	return s
}

func TestPoll(t *testing.T) {
	src := &fakeSource{}
	m := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.hub.run(ctx)

	// the first poll always produces a status
	assert.True(t, m.Poll())
	s := decode(t, m.Status())
	assert.False(t, s.Loaded)
	assert.Zero(t, s.ReadROM)

	assert.False(t, m.Poll(), "nothing changed")

	src.insert(red)
	assert.True(t, m.Poll())
	s = decode(t, m.Status())
	assert.True(t, s.Loaded)
	assert.Equal(t, red, s.Cartridge)
	assert.EqualValues(t, 10752, s.ReadROM)
	assert.EqualValues(t, 696, s.ReadSave)
	assert.EqualValues(t, 724, s.WriteSave)

	loads := src.loads
	assert.False(t, m.Poll())
	assert.Equal(t, loads, src.loads, "a loaded cartridge is not reloaded")

	src.insert(emerald)
	assert.True(t, m.Poll())
	assert.Equal(t, emerald, decode(t, m.Status()).Cartridge)

	src.insert(gbx.Info{})
	assert.True(t, m.Poll())
	assert.False(t, decode(t, m.Status()).Loaded)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) Status {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	return decode(t, msg)
}

func TestBroadcast(t *testing.T) {
	src := &fakeSource{}
	src.insert(red)
	m := New(src, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Status() != nil }, 5*time.Second, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	// clients connecting late get the current status straight away
	a, b := dial(t, srv), dial(t, srv)
	assert.Equal(t, red, next(t, a).Cartridge)
	assert.Equal(t, red, next(t, b).Cartridge)

	src.insert(emerald)
	assert.Equal(t, emerald, next(t, a).Cartridge)
	assert.Equal(t, emerald, next(t, b).Cartridge)

	// a client leaving does not affect the others
	require.NoError(t, a.Close())
	src.insert(gbx.Info{})
	assert.False(t, next(t, b).Loaded)

	cancel()
	require.NoError(t, <-done)

	// the hub closes its clients on the way out
	require.NoError(t, b.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := b.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
}

func TestStatusEndpoint(t *testing.T) {
	src := &fakeSource{}
	m := New(src)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.hub.run(ctx)
	src.insert(emerald)
	m.Poll()

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, emerald, decode(t, body).Cartridge)
}

func TestServe(t *testing.T) {
	m := New(&fakeSource{}, WithInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- Serve(ctx, "127.0.0.1:0", m) }()

	require.Eventually(t, func() bool { return m.Status() != nil }, 5*time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
