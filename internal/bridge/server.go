package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected means no bridge client is attached.
var ErrNotConnected = errors.New("no bridge client connected")

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// the endpoint only listens on a local address
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	capture bool
	speech  bool
}

func (c *client) send(m message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type utterance struct {
	onStart func()
	started bool
	done    chan error
}

// Server accepts one bridge client at a time; a new connection replaces
// the previous one.
type Server struct {
	addr string

	mu      sync.Mutex
	client  *client
	active  bool
	session uint64
	voices  []playback.Voice
	pending map[string]*utterance

	events        chan capture.Event
	voicesChanged chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

func NewServer(addr string) *Server {
	return &Server{
		addr:          addr,
		pending:       make(map[string]*utterance),
		events:        make(chan capture.Event, 64),
		voicesChanged: make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveWS)
	return mux
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bridge listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.Close()
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Bridge: listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge serve: %w", err)
	}
	return nil
}

// Connected reports whether a client is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Close drops the client and releases everything waiting on it.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		c := s.client
		s.mu.Unlock()
		if c != nil {
			c.conn.Close()
		}
		close(s.done)
	})
	return nil
}

func (s *Server) Capture() *Capture { return &Capture{s: s} }

func (s *Server) Speech() *Speech { return &Speech{s: s} }

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Bridge: websocket upgrade failed")
		return
	}

	c := &client{conn: conn, capture: true, speech: true}
	s.mu.Lock()
	old := s.client
	s.client = c
	s.mu.Unlock()
	if old != nil {
		log.Info().Msg("Bridge: new client replaces the previous one")
		old.conn.Close()
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("Bridge: client connected")
	s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer s.disconnect(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Bridge: read ended")
			}
			return
		}

		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Msg("Bridge: ignoring malformed message")
			continue
		}
		s.handle(c, m)
	}
}

func (s *Server) handle(c *client, m message) {
	switch m.Type {
	case typeHello:
		s.mu.Lock()
		if m.Capture != nil {
			c.capture = *m.Capture
		}
		if m.Speech != nil {
			c.speech = *m.Speech
		}
		canCapture, canSpeak := c.capture, c.speech
		s.mu.Unlock()
		log.Info().Bool("capture", canCapture).Bool("speech", canSpeak).Msg("Bridge: client capabilities")

	case typeFragment:
		if s.currentSession(m.Session) {
			s.emit(capture.Event{Kind: capture.EventFragment, Fragment: fragment(m)})
		}

	case typeCaptureError:
		if s.currentSession(m.Session) {
			s.emit(capture.Event{Kind: capture.EventError, Error: capture.ParseErrorKind(m.Kind)})
		}

	case typeCaptureEnded:
		if s.endSession(m.Session) {
			s.emit(capture.Event{Kind: capture.EventEnded})
		}

	case typeSpeechStarted:
		s.mu.Lock()
		u, ok := s.pending[m.ID]
		var onStart func()
		if ok && !u.started {
			u.started = true
			onStart = u.onStart
		}
		s.mu.Unlock()
		if onStart != nil {
			onStart()
		}

	case typeSpeechEnded:
		s.finish(m.ID, nil)

	case typeSpeechError:
		s.finish(m.ID, fmt.Errorf("bridge speech: %s", m.Error))

	case typeVoices:
		s.mu.Lock()
		s.voices = append([]playback.Voice(nil), m.Voices...)
		s.mu.Unlock()
		select {
		case s.voicesChanged <- struct{}{}:
		default:
		}

	default:
		log.Debug().Str("type", m.Type).Msg("Bridge: ignoring unknown message")
	}
}

func (s *Server) disconnect(c *client) {
	c.conn.Close()

	s.mu.Lock()
	if s.client != c {
		s.mu.Unlock()
		return
	}
	s.client = nil
	endCapture := s.active
	s.active = false
	pending := s.pending
	s.pending = make(map[string]*utterance)
	s.mu.Unlock()

	log.Info().Msg("Bridge: client disconnected")

	for _, u := range pending {
		u.done <- ErrNotConnected
	}
	if endCapture {
		s.emit(capture.Event{Kind: capture.EventError, Error: capture.Network, Err: ErrNotConnected})
		s.emit(capture.Event{Kind: capture.EventEnded})
	}
}

func (s *Server) currentSession(session uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && session == s.session
}

// endSession marks the current session inactive. It reports false for
// sessions that already ended.
func (s *Server) endSession(session uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || session != s.session {
		return false
	}
	s.active = false
	return true
}

func (s *Server) finish(id string, err error) {
	s.mu.Lock()
	u, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		u.done <- err
	}
}

func (s *Server) emit(ev capture.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Server) speechClient() (*client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotConnected
	}
	if !s.client.speech {
		return nil, playback.ErrUnsupported
	}
	return s.client, nil
}
