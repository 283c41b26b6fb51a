package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/dream-bridge/internal/llm"
	"github.com/jonathan/dream-bridge/internal/prompts"
	"github.com/jonathan/dream-bridge/internal/schemas"
)

// LLMEmotionClassifier scores emotions with a JSON-mode chat completion.
// Empty, unparsable and schema-invalid replies are errors.
type LLMEmotionClassifier struct {
	client llm.Client
}

// NewLLMEmotionClassifier creates a classifier over client.
func NewLLMEmotionClassifier(client llm.Client) *LLMEmotionClassifier {
	return &LLMEmotionClassifier{client: client}
}

// Classify returns the label scores for text.
func (c *LLMEmotionClassifier) Classify(ctx context.Context, text string) (map[string]float64, error) {
	reply, err := c.client.GenerateJSON(ctx, llm.Request{
		System: prompts.MustGet(prompts.PipelineFile, "emotion-system"),
		Prompt: prompts.Format(prompts.MustGet(prompts.PipelineFile, "emotion-user"), map[string]string{
			"Transcription": text,
		}),
		Tier: llm.TierLite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to classify emotion: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, ErrEmptyReply
	}
	if err := schemas.Validate(schemas.EmotionScores, reply); err != nil {
		return nil, fmt.Errorf("invalid emotion scores: %w", err)
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(reply), &scores); err != nil {
		return nil, fmt.Errorf("failed to parse emotion scores: %w", err)
	}
	return scores, nil
}

// LLMPromptGenerator writes image prompts with a chat completion.
type LLMPromptGenerator struct {
	client llm.Client
}

// NewLLMPromptGenerator creates a prompt generator over client.
func NewLLMPromptGenerator(client llm.Client) *LLMPromptGenerator {
	return &LLMPromptGenerator{client: client}
}

// GeneratePrompt returns the image prompt for text under the system instruction.
func (g *LLMPromptGenerator) GeneratePrompt(ctx context.Context, system, text string) (string, error) {
	reply, err := g.client.GenerateContent(ctx, llm.Request{
		System:      system,
		Prompt:      text,
		Tier:        llm.TierStandard,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image prompt: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// LLMMessageGenerator writes personal messages with a chat completion.
type LLMMessageGenerator struct {
	client llm.Client
}

// NewLLMMessageGenerator creates a message generator over client.
func NewLLMMessageGenerator(client llm.Client) *LLMMessageGenerator {
	return &LLMMessageGenerator{client: client}
}

// GenerateMessage returns the generated message.
func (g *LLMMessageGenerator) GenerateMessage(ctx context.Context, system, prompt string) (string, error) {
	reply, err := g.client.GenerateContent(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		Tier:        llm.TierAdvanced,
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate message: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
