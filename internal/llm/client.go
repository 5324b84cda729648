// Package llm wraps the AWS Bedrock runtime as the extraction collaborator.
// Callers must treat every response as untrusted text: parse with fallback,
// never assume the schema came back intact.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Client is the LLM/OCR collaborator consumed by the intake pipeline and
// the OCR worker. Implementations must be safe for concurrent use.
type Client interface {
	// Extract sends a text prompt and returns the model's raw text response.
	Extract(ctx context.Context, prompt string) (string, error)
	// ExtractFromImage sends a prompt plus one image/PDF page for vision OCR.
	ExtractFromImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)
}

// BedrockClient invokes an Anthropic model through AWS Bedrock.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

type anthropicContentBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockClient creates a Bedrock extraction client. Static credentials
// are optional; with empty keys the default AWS credential chain is used.
func NewBedrockClient(ctx context.Context, region, accessKey, secretKey, modelID string) (*BedrockClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	log.Printf("[Bedrock] Initialized with model=%s, region=%s", modelID, region)
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// Extract sends a single-turn text prompt to the model.
func (b *BedrockClient) Extract(ctx context.Context, prompt string) (string, error) {
	msg := anthropicMessage{
		Role:    "user",
		Content: []anthropicContentBlock{{Type: "text", Text: prompt}},
	}
	return b.invoke(ctx, msg)
}

// ExtractFromImage sends a prompt with an attached image or PDF page.
func (b *BedrockClient) ExtractFromImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	msg := anthropicMessage{
		Role: "user",
		Content: []anthropicContentBlock{
			{
				Type: "image",
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: mimeType,
					Data:      base64.StdEncoding.EncodeToString(data),
				},
			},
			{Type: "text", Text: prompt},
		},
	}
	return b.invoke(ctx, msg)
}

func (b *BedrockClient) invoke(ctx context.Context, msg anthropicMessage) (string, error) {
	request := anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2000,
		Messages:         []anthropicMessage{msg},
		// Extraction wants determinism, not creativity
		Temperature: 0.0,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var response anthropicResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}

	log.Printf("[Bedrock] Invoked model (in: %d tokens, out: %d tokens)",
		response.Usage.InputTokens, response.Usage.OutputTokens)

	return text, nil
}
