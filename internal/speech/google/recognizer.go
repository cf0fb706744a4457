// Package google provides a speech.Recognizer backed by Google Cloud
// Speech-to-Text streaming recognition.
package google

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	speechapi "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-speech-interaction-service/internal/observability/logging"
	"ai-speech-interaction-service/internal/speech"
)

// ErrNotListening is returned by Feed when no session is active.
var ErrNotListening = errors.New("recognizer is not listening")

// Config holds Google recognition settings that are not part of the
// per-session speech.RecognitionConfig.
type Config struct {
	LanguageCode   string // fallback when the session does not set one
	SampleRateHz   int32
	InterimResults bool // fallback, overridden by Configure
	AudioEncoding  string
	Model          string
}

// DefaultConfig returns settings for 16 kHz LINEAR16 microphone audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   speech.Language,
		SampleRateHz:   16000,
		InterimResults: false,
		AudioEncoding:  "LINEAR16",
	}
}

// stream is the subset of the streaming client used by the recognizer.
type stream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Recognizer implements speech.Recognizer and speech.AudioSink. Captured
// audio is pushed with Feed while a session is active.
type Recognizer struct {
	open   func(ctx context.Context) (stream, error)
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	session speech.RecognitionConfig
	active  *activeStream
}

// activeStream is one streaming call. sendMu serializes Send and CloseSend.
type activeStream struct {
	s       stream
	cancel  context.CancelFunc
	sendMu  sync.Mutex
	halfEnd bool
}

// NewClient creates a Google Speech client. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS unless opts say otherwise.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*speechapi.Client, error) {
	return speechapi.NewClient(ctx, opts...)
}

// New creates a recognizer that opens its streams on client. The client is
// shared and owned by the caller.
func New(client *speechapi.Client, cfg Config) *Recognizer {
	return newRecognizer(func(ctx context.Context) (stream, error) {
		return client.StreamingRecognize(ctx)
	}, cfg)
}

func newRecognizer(open func(ctx context.Context) (stream, error), cfg Config) *Recognizer {
	return &Recognizer{
		open:   open,
		cfg:    cfg,
		logger: logging.WithProvider("recognizer", "google"),
		session: speech.RecognitionConfig{
			Language:       cfg.LanguageCode,
			InterimResults: cfg.InterimResults,
		},
	}
}

// Configure sets the options of the next session.
func (r *Recognizer) Configure(cfg speech.RecognitionConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.Language == "" {
		cfg.Language = r.session.Language
	}
	r.session = cfg
}

// Start opens a streaming call, sends the recognition config and starts
// delivering responses to h. An active session is stopped first.
func (r *Recognizer) Start(h speech.RecognitionHandler) error {
	r.mu.Lock()
	if r.active != nil {
		r.halfClose(r.active)
		r.active.cancel()
		r.active = nil
	}
	sessionCfg := r.session
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := r.open(ctx)
	if err != nil {
		cancel()
		return toRecognitionError(err)
	}

	if err := s.Send(r.streamingConfig(sessionCfg)); err != nil {
		cancel()
		return toRecognitionError(err)
	}

	as := &activeStream{s: s, cancel: cancel}
	r.mu.Lock()
	r.active = as
	r.mu.Unlock()

	r.logger.Debug().
		Str("language", sessionCfg.Language).
		Bool("singleUtterance", !sessionCfg.Continuous).
		Bool("interimResults", sessionCfg.InterimResults).
		Msg("Streaming recognition started")

	go r.listen(ctx, as, sessionCfg.InterimResults, h)
	return nil
}

// Feed sends captured audio to the active session.
func (r *Recognizer) Feed(audio []byte) error {
	r.mu.Lock()
	as := r.active
	r.mu.Unlock()
	if as == nil {
		return ErrNotListening
	}

	as.sendMu.Lock()
	defer as.sendMu.Unlock()
	if as.halfEnd {
		return ErrNotListening
	}
	return as.s.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the active stream. Google still returns the results for
// the audio already sent, then the stream ends and OnEnd is delivered.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	as := r.active
	r.mu.Unlock()
	if as != nil {
		r.halfClose(as)
	}
}

func (r *Recognizer) halfClose(as *activeStream) {
	as.sendMu.Lock()
	defer as.sendMu.Unlock()
	if as.halfEnd {
		return
	}
	as.halfEnd = true
	if err := as.s.CloseSend(); err != nil {
		r.logger.Warn().Err(err).Msg("CloseSend failed")
	}
}

// listen receives transcript responses and invokes the handler until the
// stream ends.
func (r *Recognizer) listen(ctx context.Context, as *activeStream, interim bool, h speech.RecognitionHandler) {
	defer func() {
		as.cancel()
		r.mu.Lock()
		if r.active == as {
			r.active = nil
		}
		r.mu.Unlock()
		h.OnEnd()
	}()

	for {
		resp, err := as.s.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			rerr := toRecognitionError(err)
			r.logger.Warn().Err(err).Str("code", rerr.Code).Msg("Streaming recognition failed")
			h.OnError(rerr)
			return
		}

		if resp.GetError() != nil {
			h.OnError(toRecognitionError(status.ErrorProto(resp.GetError())))
			return
		}

		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			// No more audio is needed; the final result follows.
			r.halfClose(as)
		}

		if ev, ok := toResultEvent(resp, interim); ok {
			h.OnResult(ev)
		}
	}
}

func (r *Recognizer) streamingConfig(cfg speech.RecognitionConfig) *speechpb.StreamingRecognizeRequest {
	lang := cfg.Language
	if lang == "" {
		lang = speech.Language
	}
	maxAlt := int32(cfg.MaxAlternatives)
	if maxAlt <= 0 {
		maxAlt = 1
	}

	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(r.cfg.AudioEncoding),
					SampleRateHertz:            r.cfg.SampleRateHz,
					LanguageCode:               lang,
					MaxAlternatives:            maxAlt,
					Model:                      r.cfg.Model,
					EnableAutomaticPunctuation: true,
				},
				SingleUtterance: !cfg.Continuous,
				InterimResults:  cfg.InterimResults,
			},
		},
	}
}

// toResultEvent converts a response into a result event. Interim results are
// dropped unless the session asked for them.
func toResultEvent(resp *speechpb.StreamingRecognizeResponse, interim bool) (speech.ResultEvent, bool) {
	var ev speech.ResultEvent
	for _, res := range resp.GetResults() {
		if !res.GetIsFinal() && !interim {
			continue
		}
		if len(res.GetAlternatives()) == 0 {
			continue
		}
		out := speech.Result{Final: res.GetIsFinal()}
		for _, alt := range res.GetAlternatives() {
			out.Alternatives = append(out.Alternatives, speech.Alternative{
				Transcript: strings.TrimSpace(alt.GetTranscript()),
				Confidence: float64(alt.GetConfidence()),
			})
		}
		ev.Results = append(ev.Results, out)
	}
	return ev, len(ev.Results) > 0
}

// toRecognitionError maps gRPC failures onto recognition error codes.
func toRecognitionError(err error) *speech.RecognitionError {
	var rerr *speech.RecognitionError
	if errors.As(err, &rerr) {
		return rerr
	}

	st, _ := status.FromError(err)
	code := speech.CodeNetwork
	switch st.Code() {
	case codes.Canceled:
		code = speech.CodeAborted
	case codes.OutOfRange:
		// Google reports an audio timeout when no speech arrived.
		code = speech.CodeNoSpeech
	case codes.PermissionDenied, codes.Unauthenticated:
		code = speech.CodeServiceNotAllowed
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(st.Message()), "language") {
			code = speech.CodeLanguageNotSupported
		} else {
			code = speech.CodeAborted
		}
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal, codes.Unknown:
		code = speech.CodeNetwork
	}
	return &speech.RecognitionError{Code: code, Message: st.Message()}
}

// parseAudioEncoding maps an encoding name to the Speech API enum, falling
// back to LINEAR16. Names are case sensitive.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch name {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
