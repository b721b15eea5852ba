// Package monitor watches the slot and pushes the cartridge status to
// websocket clients whenever it changes.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"golang.org/x/sync/errgroup"

	"github.com/thelolagemann/cartreader/internal/gbx"
	"github.com/thelolagemann/cartreader/pkg/log"
)

// Source is the reader being watched.
type Source interface {
	IsLoaded() bool
	LoadHeader() gbx.Platform
	Info() gbx.Info
	TimeToReadROM() time.Duration
	TimeToReadSave() time.Duration
	TimeToWriteSave() time.Duration
}

// Status is the message sent to clients.
type Status struct {
	Loaded    bool     `json:"loaded"`
	Cartridge gbx.Info `json:"cartridge"`

	// estimates, in milliseconds
	ReadROM   int64 `json:"readRomMs"`
	ReadSave  int64 `json:"readSaveMs"`
	WriteSave int64 `json:"writeSaveMs"`
}

// Opt configures a Monitor.
type Opt func(m *Monitor)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Opt {
	return func(m *Monitor) {
		m.log = l
	}
}

// WithInterval sets how often the slot is polled.
func WithInterval(d time.Duration) Opt {
	return func(m *Monitor) {
		m.interval = d
	}
}

// Monitor polls a Source and broadcasts its status.
type Monitor struct {
	src      Source
	hub      *hub
	log      log.Logger
	interval time.Duration

	mu     sync.Mutex
	hash   uint64
	status []byte
}

// New returns a monitor of src. Nothing is polled until Run is called.
func New(src Source, opts ...Opt) *Monitor {
	m := &Monitor{
		src:      src,
		hub:      newHub(),
		log:      log.NewNullLogger(),
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Poll checks the slot once, loading the header of a newly inserted
// cartridge, and broadcasts the status if it changed. It reports whether
// it did.
func (m *Monitor) Poll() bool {
	s := Status{Loaded: m.src.IsLoaded()}
	if !s.Loaded {
		s.Loaded = m.src.LoadHeader() != gbx.PlatformNone
	}
	s.Cartridge = m.src.Info()
	if s.Loaded {
		s.ReadROM = m.src.TimeToReadROM().Milliseconds()
		s.ReadSave = m.src.TimeToReadSave().Milliseconds()
		s.WriteSave = m.src.TimeToWriteSave().Milliseconds()
	}

	msg, err := json.Marshal(s)
	if err != nil {
		m.log.Errorf("monitor: encoding status: %v", err)
		return false
	}

	hash := xxhash.Sum64(msg)
	m.mu.Lock()
	if m.status != nil && hash == m.hash {
		m.mu.Unlock()
		return false
	}
	m.hash, m.status = hash, msg
	m.mu.Unlock()

	m.log.Infof("monitor: %s %q", s.Cartridge.Platform, s.Cartridge.Title)
	m.hub.send(msg)
	return true
}

// Status returns the last status polled, nil before the first poll.
func (m *Monitor) Status() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Run polls the slot until ctx is done. A monitor runs once.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.hub.run(ctx)
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			m.Poll()
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
	})
	return g.Wait()
}

// ServeHTTP upgrades the request to a websocket receiving status updates.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Debugf("monitor: upgrade: %v", err)
		return
	}

	c := &client{hub: m.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	if !m.hub.join(c) {
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// Handler routes the websocket at / and the last status as plain JSON at
// /status.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", m)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := m.Status()
		if status == nil {
			http.Error(w, "not polled yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(status)
	})
	return mux
}

// Serve runs m and an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Monitor) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(ctx)
	})
	g.Go(func() error {
		m.log.Infof("monitor: listening on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	return g.Wait()
}
