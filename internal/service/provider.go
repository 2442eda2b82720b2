package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/prompts"
	"golang.org/x/time/rate"
)

// Classifier is the narrow interface the orchestrator uses to reach the
// external classification provider. Tests stub it with a call counter.
type Classifier interface {
	// Classify sends the image and returns the structured outcome.
	Classify(ctx context.Context, imageData []byte, format, language string, answer *domain.ClarificationAnswer) (*domain.Outcome, error)

	// Translate is the cheap backfill call scoped to translation only: no
	// image is sent, just the known result and the target language.
	Translate(ctx context.Context, itemName, instructions string, category domain.Category, language string) (string, string, error)
}

// ClassifierProvider calls an OpenAI-compatible vision endpoint and parses
// its JSON answer into the domain outcome union. A token-bucket limiter
// paces outbound calls below the provider's own rate limit.
type ClassifierProvider struct {
	client   *resty.Client
	model    string
	endpoint string
	limiter  *rate.Limiter
}

// ClassifierProviderConfig holds configuration for the provider client.
type ClassifierProviderConfig struct {
	Model         string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
}

// NewClassifierProvider creates a new provider client.
func NewClassifierProvider(cfg *ClassifierProviderConfig) *ClassifierProvider {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 50
	}

	return &ClassifierProvider{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type chatTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatImageContent struct {
	Type     string       `json:"type"`
	ImageURL chatImageURL `json:"image_url"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// classifierPayload is the JSON object the prompt asks the model to emit.
type classifierPayload struct {
	ItemName              string  `json:"item_name"`
	Category              string  `json:"category"`
	Confidence            float64 `json:"confidence"`
	Instructions          string  `json:"instructions"`
	ItemCount             int     `json:"item_count"`
	NeedsClarification    bool    `json:"needs_clarification"`
	ClarificationQuestion string  `json:"clarification_question"`
	BestGuessCategory     string  `json:"best_guess_category"`
	IsRejection           bool    `json:"is_rejection"`
	RejectionReason       string  `json:"rejection_reason"`
	IsCityExcluded        bool    `json:"is_city_excluded"`
}

// Classify implements Classifier.
func (p *ClassifierProvider) Classify(ctx context.Context, imageData []byte, format, language string, answer *domain.ClarificationAnswer) (*domain.Outcome, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType(format),
		base64.StdEncoding.EncodeToString(imageData))

	userText := fmt.Sprintf(prompts.ClassifierUserPrompt, language)
	if answer != nil {
		userText += "\n" + fmt.Sprintf(prompts.ClarificationContextPrompt, answer.Question, answer.Answer)
	}

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.ClassifierSystemPrompt},
			{
				Role: "user",
				Content: []interface{}{
					chatTextContent{Type: "text", Text: userText},
					chatImageContent{
						Type:     "image_url",
						ImageURL: chatImageURL{URL: dataURL, Detail: "auto"},
					},
				},
			},
		},
		MaxTokens: 300,
	}

	content, err := p.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderParse, err)
	}
	return payloadToOutcome(&payload)
}

// Translate implements Classifier.
func (p *ClassifierProvider) Translate(ctx context.Context, itemName, instructions string, category domain.Category, language string) (string, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.TranslateSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(prompts.TranslateUserPrompt,
				language, itemName, instructions, string(category))},
		},
		MaxTokens: 200,
	}

	content, err := p.complete(ctx, req)
	if err != nil {
		return "", "", err
	}

	var out struct {
		ItemName     string `json:"item_name"`
		Instructions string `json:"instructions"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &out); err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrProviderParse, err)
	}
	if out.ItemName == "" {
		return "", "", fmt.Errorf("%w: empty translation", domain.ErrProviderParse)
	}
	return out.ItemName, out.Instructions, nil
}

// complete posts the chat request and returns the first choice's content,
// mapping transport and status failures to the pipeline error kinds.
func (p *ClassifierProvider) complete(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(p.endpoint)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
		}
		return "", fmt.Errorf("failed to call classifier API: %w", err)
	}

	if httpResp.StatusCode() == http.StatusTooManyRequests ||
		httpResp.StatusCode() == http.StatusPaymentRequired {
		return "", fmt.Errorf("%w: HTTP %d", domain.ErrProviderQuota, httpResp.StatusCode())
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("classifier API returned error: %s", errorMsg)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("classifier API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", domain.ErrProviderParse)
	}
	return resp.Choices[0].Message.Content, nil
}

// payloadToOutcome normalizes the parsed payload into the tagged union.
// Rejection takes precedence, then city exclusion, then clarification.
func payloadToOutcome(p *classifierPayload) (*domain.Outcome, error) {
	if p.IsRejection {
		return &domain.Outcome{
			Kind:            domain.OutcomeInvalidScan,
			RejectionReason: p.RejectionReason,
		}, nil
	}

	category := domain.NormalizeCategory(domain.Category(p.Category))

	if p.IsCityExcluded {
		return &domain.Outcome{
			Kind:         domain.OutcomeCityExcluded,
			Category:     category,
			ItemName:     p.ItemName,
			Instructions: p.Instructions,
			Confidence:   clamp01(p.Confidence),
			ItemCount:    max1(p.ItemCount),
		}, nil
	}

	if p.NeedsClarification {
		best := domain.NormalizeCategory(domain.Category(p.BestGuessCategory))
		if !domain.IsKnownCategory(best) {
			best = category
		}
		return &domain.Outcome{
			Kind:                  domain.OutcomeNeedsClarification,
			ClarificationQuestion: p.ClarificationQuestion,
			BestGuessCategory:     best,
			BestGuessItemName:     p.ItemName,
			Confidence:            clamp01(p.Confidence),
		}, nil
	}

	if !domain.IsKnownCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrProviderParse, p.Category)
	}
	return &domain.Outcome{
		Kind:         domain.OutcomeClassified,
		Category:     category,
		ItemName:     p.ItemName,
		Instructions: p.Instructions,
		Confidence:   clamp01(p.Confidence),
		ItemCount:    max1(p.ItemCount),
	}, nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func mimeType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
