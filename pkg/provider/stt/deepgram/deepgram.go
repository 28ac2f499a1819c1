// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// live WebSocket API. It implements the stt.Provider interface.
//
// A finished clip is streamed over the socket in real-time-sized chunks,
// followed by a CloseStream message. Deepgram then flushes its remaining
// results and closes the connection; every final result received until
// then is joined into the transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// chunkDuration is the audio sent per WebSocket message.
	chunkDuration = 100 * time.Millisecond
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the rate clips are resampled to before streaming.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the WebSocket endpoint, e.g. for a self-hosted
// Deepgram deployment.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram live API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "deepgram" }

// Transcribe streams req.Audio to Deepgram and returns the joined final
// results.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if req.Audio.Empty() {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", stt.ErrEmptyAudio)
	}

	conv := audio.FormatConverter{Target: audio.Format{SampleRate: p.sampleRate, Channels: 1}}
	clip := conv.Convert(req.Audio)

	wsURL, err := p.buildURL(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() { writeErr <- p.send(ctx, conn, clip) }()

	tr, err := collect(ctx, conn)
	if err != nil {
		conn.CloseNow()
		<-writeErr
		return stt.Transcript{}, err
	}
	if err := <-writeErr; err != nil {
		return stt.Transcript{}, err
	}

	tr.Duration = clip.Duration()
	if tr.Language == "" {
		tr.Language = languageOf(req, p.language)
	}
	return tr, nil
}

// send writes clip in chunkDuration pieces, then asks Deepgram to flush and
// close the stream.
func (p *Provider) send(ctx context.Context, conn *websocket.Conn, clip audio.Buffer) error {
	step := max(clip.Format().SamplesFor(chunkDuration), 1)
	for from := 0; from < clip.Len(); from += step {
		chunk := clip.Slice(from, min(from+step, clip.Len()))
		if err := conn.Write(ctx, websocket.MessageBinary, chunk.Bytes()); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: send CloseStream: %w", err)
	}
	return nil
}

// collect reads results until Deepgram closes the connection and joins the
// final ones.
func collect(ctx context.Context, conn *websocket.Conn) (stt.Transcript, error) {
	var (
		parts    []string
		out      stt.Transcript
		confSum  float64
		confSeen int
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stt.Transcript{}, fmt.Errorf("deepgram: %w", ctxErr)
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}

		r, ok := parseDeepgramResponse(msg)
		if !ok || !r.isFinal {
			continue
		}
		if r.text != "" {
			parts = append(parts, r.text)
			confSum += r.confidence
			confSeen++
		}
		out.Words = append(out.Words, r.words...)
		if r.language != "" {
			out.Language = r.language
		}
	}

	out.Text = strings.Join(parts, " ")
	if confSeen > 0 {
		out.Confidence = confSum / float64(confSeen)
	}
	return out, nil
}

// buildURL constructs the Deepgram live endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", languageOf(req, p.language))
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	q.Set("channels", "1")

	for _, kw := range req.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Nao:5")
		val := fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost)
		q.Add("keywords", val)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func languageOf(req stt.Request, fallback string) string {
	if req.Language != "" {
		return req.Language
	}
	return fallback
}

// ---- response parsing ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence float64  `json:"confidence"`
			Languages  []string `json:"languages"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed Results event.
type result struct {
	text       string
	isFinal    bool
	confidence float64
	language   string
	words      []stt.WordDetail
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	r := result{
		text:       alt.Transcript,
		isFinal:    resp.IsFinal,
		confidence: alt.Confidence,
		words:      words,
	}
	if len(alt.Languages) > 0 {
		r.language = alt.Languages[0]
	}
	return r, true
}
