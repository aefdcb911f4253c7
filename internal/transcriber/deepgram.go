package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/hyprcoach/internal/language"
	"github.com/rs/zerolog/log"
)

const DefaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

type DeepgramConfig struct {
	URL        string
	APIKey     string
	Model      string
	SampleRate int
	Keywords   []string
}

// Deepgram streams audio to Deepgram's live transcription websocket.
type Deepgram struct {
	config DeepgramConfig
	locale string

	mu      sync.Mutex // guards conn, started, closed
	writeMu sync.Mutex // gorilla allows one concurrent writer
	conn    *websocket.Conn
	started bool
	closed  bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	resultsCh chan Result

	finalizeDone chan struct{}
}

type deepgramControl struct {
	Type string `json:"type"`
}

type deepgramWSResponse struct {
	Type        string            `json:"type"`
	Channel     *deepgramChannel  `json:"channel,omitempty"`
	Metadata    *deepgramMetadata `json:"metadata,omitempty"`
	IsFinal     bool              `json:"is_final,omitempty"`
	SpeechFinal bool              `json:"speech_final,omitempty"`
	// error frames
	Variant     string `json:"variant,omitempty"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramMetadata struct {
	RequestID string `json:"request_id"`
	ModelInfo struct {
		Name string `json:"name"`
	} `json:"model_info"`
}

func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.URL == "" {
		cfg.URL = DefaultDeepgramURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Deepgram{
		config:       cfg,
		resultsCh:    make(chan Result, 100),
		finalizeDone: make(chan struct{}, 1),
	}
}

func (d *Deepgram) Start(ctx context.Context, locale string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.closed {
		return fmt.Errorf("deepgram session already used")
	}
	d.locale = locale

	wsURL, err := d.buildURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.config.APIKey)

	d.ctx, d.cancel = context.WithCancel(ctx)
	conn, resp, err := websocket.DefaultDialer.DialContext(d.ctx, wsURL, headers)
	if err != nil {
		d.cancel()
		dialErr := &DialError{Err: err}
		if resp != nil {
			dialErr.StatusCode = resp.StatusCode
		}
		return dialErr
	}
	d.conn = conn
	d.started = true

	d.wg.Add(1)
	go d.readLoop(conn)

	log.Info().Str("model", d.config.Model).Str("locale", d.locale).Msg("Deepgram: connected")
	return nil
}

func (d *Deepgram) buildURL() (string, error) {
	u, err := url.Parse(d.config.URL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", d.config.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("alternatives", "1")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if lang := language.Normalize(d.locale); lang != "" {
		q.Set("language", lang)
	}
	if len(d.config.Keywords) > 0 {
		q.Set("keywords", strings.Join(d.config.Keywords, ","))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Deepgram) readLoop(conn *websocket.Conn) {
	defer d.wg.Done()
	defer close(d.resultsCh)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if d.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Warn().Err(err).Msg("Deepgram: read failed")
			d.emit(Result{Error: fmt.Errorf("%w: %v", ErrConnectionLost, err)})
			return
		}

		var resp deepgramWSResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			log.Debug().Err(err).Msg("Deepgram: unparseable message")
			continue
		}

		switch resp.Type {
		case "Metadata":
			if resp.Metadata != nil {
				log.Debug().Str("request_id", resp.Metadata.RequestID).
					Str("model", resp.Metadata.ModelInfo.Name).Msg("Deepgram: session metadata")
			}

		case "Results":
			if resp.Channel == nil || len(resp.Channel.Alternatives) == 0 {
				continue
			}
			transcript := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
			if transcript == "" {
				continue
			}
			final := resp.IsFinal || resp.SpeechFinal
			if final {
				select {
				case d.finalizeDone <- struct{}{}:
				default:
				}
			}
			if !d.emit(Result{Text: transcript, IsFinal: final}) {
				return
			}

		case "Error":
			msg := resp.Message
			if resp.Description != "" {
				msg = fmt.Sprintf("%s: %s", msg, resp.Description)
			}
			log.Error().Str("variant", resp.Variant).Msg("Deepgram: " + msg)
			d.emit(Result{Error: &ServiceError{Type: resp.Variant, Message: msg}})
			return

		case "UtteranceEnd", "SpeechStarted":
			log.Debug().Msg("Deepgram: " + resp.Type)

		default:
			log.Debug().Str("type", resp.Type).Msg("Deepgram: unknown message type")
		}
	}
}

func (d *Deepgram) emit(r Result) bool {
	select {
	case d.resultsCh <- r:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// SendChunk sends raw binary PCM; Deepgram does not want base64 here.
func (d *Deepgram) SendChunk(audio []byte) error {
	d.mu.Lock()
	conn := d.conn
	started := d.started
	d.mu.Unlock()

	if !started || conn == nil {
		return fmt.Errorf("deepgram: not started")
	}
	if err := d.ctx.Err(); err != nil {
		return err
	}

	d.writeMu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, audio)
	d.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (d *Deepgram) Results() <-chan Result {
	return d.resultsCh
}

func (d *Deepgram) Finalize(ctx context.Context) error {
	d.mu.Lock()
	conn := d.conn
	started := d.started
	d.mu.Unlock()
	if !started || conn == nil {
		return nil
	}

	select {
	case <-d.finalizeDone:
	default:
	}

	d.writeMu.Lock()
	err := conn.WriteJSON(deepgramControl{Type: "CloseStream"})
	d.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("finalize write: %w", err)
	}

	select {
	case <-d.finalizeDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *Deepgram) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	wasStarted := d.started
	conn := d.conn
	d.started = false
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	if !wasStarted {
		close(d.resultsCh)
		return nil
	}

	if conn != nil {
		d.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		d.writeMu.Unlock()
		if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			log.Debug().Err(err).Msg("Deepgram: close")
		}
	}
	d.wg.Wait()

	log.Debug().Msg("Deepgram: closed")
	return nil
}
