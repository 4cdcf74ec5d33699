package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/schemebot/internal/metrics"
	"github.com/hitoshi/schemebot/internal/security"
	"google.golang.org/genai"
)

const (
	// DefaultModel は既定で使用するGeminiモデル。
	DefaultModel = "gemini-2.0-flash"
	// DefaultTimeout は1回の応答生成の既定タイムアウト。
	DefaultTimeout = 10 * time.Second

	maxInputRunes = 1000
	maxReplyRunes = 1200
)

// systemInstruction は応答生成時にモデルへ渡す指示。
const systemInstruction = `You are a helpful assistant for an Indian government welfare scheme chatbot.
Answer briefly in plain text without markdown or HTML.
Only discuss government schemes, eligibility and how to apply.
If you are unsure, say so and suggest the user type "check eligibility" or "browse schemes".
Never ask for Aadhaar numbers, bank details or passwords.`

// contentGenerator はGemini APIのコンテンツ生成部分を抽象化する。
// genai.Client.Modelsが満たす。
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig はGeminiResponderの設定。
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiResponder はGoogle Gemini APIで自由入力に応答するResponder実装。
type GeminiResponder struct {
	generator contentGenerator
	model     string
	timeout   time.Duration
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
	recorder  OutcomeRecorder
}

// NewGeminiResponder はGemini APIクライアントを生成してGeminiResponderを返す。
// recorderはnilでもよい。
func NewGeminiResponder(ctx context.Context, cfg GeminiConfig, logger *slog.Logger, recorder OutcomeRecorder) (*GeminiResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newGeminiResponder(client.Models, cfg, logger, recorder), nil
}

func newGeminiResponder(generator contentGenerator, cfg GeminiConfig, logger *slog.Logger, recorder OutcomeRecorder) *GeminiResponder {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiResponder{
		generator: generator,
		model:     model,
		timeout:   timeout,
		sanitizer: security.NewPlainTextSanitizer(),
		logger:    logger,
		recorder:  recorder,
	}
}

// Respond はGeminiに問い合わせて応答テキストを返す。
// タイムアウト、API障害、空の応答はいずれも応答なしとして扱う。
func (r *GeminiResponder) Respond(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	text = truncateRunes(text, maxInputRunes)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.generator.GenerateContent(ctx, r.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		},
	)
	if err != nil {
		r.logger.Warn("fallback responder failed",
			slog.String("model", r.model),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		r.record(metrics.FallbackError)
		return "", false
	}
	if resp == nil {
		r.record(metrics.FallbackEmpty)
		return "", false
	}

	reply := truncateRunes(r.sanitizer.Sanitize(resp.Text()), maxReplyRunes)
	if reply == "" {
		r.logger.Info("fallback responder returned empty reply", slog.String("model", r.model))
		r.record(metrics.FallbackEmpty)
		return "", false
	}

	r.record(metrics.FallbackAnswered)
	return reply, true
}

func (r *GeminiResponder) record(outcome string) {
	if r.recorder != nil {
		r.recorder.RecordFallbackResponse(outcome)
	}
}

var _ Responder = (*GeminiResponder)(nil)
