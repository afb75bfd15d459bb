package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
	"github.com/houzhh15/minutes/pkg/retry"
)

// recognizer is the subset of the Cloud Speech client this adapter uses.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type speechClient struct {
	c *speech.Client
}

func (s speechClient) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return s.c.Recognize(ctx, req)
}

func (s speechClient) Close() error { return s.c.Close() }

// GoogleSpeechImpl implements Transcriber with Google Cloud Speech-to-Text
// synchronous recognition, sending LINEAR16 content inline. Synchronous
// recognition accepts up to one minute of audio, which covers utterances when
// a max utterance length is configured.
type GoogleSpeechImpl struct {
	client recognizer
	model  string
	policy retry.Policy
	log    *slog.Logger
}

// NewGoogleSpeechImpl dials the Speech API. credentialsFile may be empty to
// use application default credentials; model may be empty for the API default.
func NewGoogleSpeechImpl(ctx context.Context, credentialsFile, model string, policy retry.Policy, log *slog.Logger) (*GoogleSpeechImpl, error) {
	if log == nil {
		log = logger.Discard()
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewTranscriptionError(ErrCodeEngineUnavailable, "google-speech", "speech client", err)
	}
	return &GoogleSpeechImpl{client: speechClient{c}, model: model, policy: policy, log: log.With("engine", "google-speech")}, nil
}

// languageCode maps a bare ISO 639-1 hint to the BCP-47 tag the API expects.
func languageCode(hint string) string {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "":
		return "en-US"
	case "ja":
		return "ja-JP"
	case "en":
		return "en-US"
	case "zh":
		return "cmn-Hans-CN"
	case "ko":
		return "ko-KR"
	case "de":
		return "de-DE"
	case "fr":
		return "fr-FR"
	case "es":
		return "es-ES"
	default:
		return hint
	}
}

// retryableCode mirrors the API's documented transient failures.
func retryableCode(c codes.Code) bool {
	return c == codes.Unavailable || c == codes.ResourceExhausted || c == codes.DeadlineExceeded
}

// Transcribe runs synchronous recognition on the utterance.
func (g *GoogleSpeechImpl) Transcribe(ctx context.Context, req *Request) (*TranscriptionResult, error) {
	if len(req.Samples) == 0 {
		return &TranscriptionResult{Segments: []TranscriptionSegment{}, Language: req.Options.language()}, nil
	}
	ctx, cancel := withTimeout(ctx, req.Options)
	defer cancel()

	lang := languageCode(req.Options.language())
	rreq := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(req.SampleRate),
			AudioChannelCount:          1,
			LanguageCode:               lang,
			Model:                      g.model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.PCM16Bytes(req.Samples)},
		},
	}

	start := time.Now()
	resp, err := retry.Do(ctx, g.policy, g.log, "google recognize", func(ctx context.Context) (*speechpb.RecognizeResponse, error) {
		r, err := g.client.Recognize(ctx, rreq)
		if err != nil && !retryableCode(status.Code(err)) {
			return nil, retry.Permanent(err)
		}
		return r, err
	})
	metrics.RecordBackendDuration(g.Name(), "transcribe", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordBackendCall(g.Name(), "transcribe", "failed")
		if ctx.Err() != nil {
			return nil, AsTranscriptionError(ctx.Err(), g.Name(), req.Seq)
		}
		code := ErrCodeEngineHTTP
		if status.Code(err) == codes.Unavailable {
			code = ErrCodeEngineUnavailable
		}
		terr := NewTranscriptionError(code, g.Name(), "recognize failed", err)
		terr.Seq = req.Seq
		return nil, terr
	}
	metrics.RecordBackendCall(g.Name(), "transcribe", "success")
	return recognizeResult(resp, lang, req.Duration()), nil
}

// recognizeResult flattens the best alternative of each result.
func recognizeResult(resp *speechpb.RecognizeResponse, lang string, d time.Duration) *TranscriptionResult {
	result := &TranscriptionResult{Segments: []TranscriptionSegment{}, Language: lang, Duration: d.Seconds()}
	var parts []string
	var conf float64
	n := 0
	for i, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		best := alts[0]
		text := strings.TrimSpace(best.GetTranscript())
		if text == "" {
			continue
		}
		parts = append(parts, text)
		result.Segments = append(result.Segments, TranscriptionSegment{
			ID:   i,
			End:  r.GetResultEndTime().AsDuration().Seconds(),
			Text: text,
		})
		if c := best.GetConfidence(); c > 0 {
			conf += float64(c)
			n++
		}
		if lc := r.GetLanguageCode(); lc != "" {
			result.Language = lc
		}
	}
	for i := 1; i < len(result.Segments); i++ {
		result.Segments[i].Start = result.Segments[i-1].End
	}
	result.Text = strings.Join(parts, " ")
	if n > 0 {
		result.Confidence = float64Ptr(conf / float64(n))
	}
	return result
}

// HealthCheck reports healthy once the client is dialed; the API has no
// free probe call.
func (g *GoogleSpeechImpl) HealthCheck(ctx context.Context) (bool, error) {
	if g.client == nil {
		return false, fmt.Errorf("speech client not initialized")
	}
	return true, nil
}

// Close releases the gRPC connection.
func (g *GoogleSpeechImpl) Close() error { return g.client.Close() }

// Name returns the identifier of this transcriber implementation.
func (g *GoogleSpeechImpl) Name() string {
	return "google-speech"
}
