package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig points the openai-go client at an OpenAI compatible endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c OpenAIConfig) client() openai.Client {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(c.APIKey),
		option.WithBaseURL(baseURL),
		// one attempt per operation per request
		option.WithMaxRetries(0),
	}
	if c.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.HTTPClient))
	}
	return openai.NewClient(opts...)
}

// OpenAIChat streams chat completions through openai-go and exposes them as
// an eino stream.
type OpenAIChat struct {
	client openai.Client
	model  string
}

// NewOpenAIChat creates a chat backend. defaultModel is used when the call
// carries no model option.
func NewOpenAIChat(cfg OpenAIConfig, defaultModel string) *OpenAIChat {
	return &OpenAIChat{client: cfg.client(), model: defaultModel}
}

// Stream implements ChatStreamer.
func (c *OpenAIChat) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	options := model.GetCommonOptions(&model.Options{Model: &c.model}, opts...)

	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(input),
	}
	if options.Model != nil {
		params.Model = *options.Model
	}
	if params.Model == "" {
		return nil, fmt.Errorf("openai chat: model is required")
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	}
	if options.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*options.MaxTokens))
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	reader, writer := schema.Pipe[*schema.Message](8)

	go func() {
		defer writer.Close()
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if closed := writer.Send(schema.AssistantMessage(delta, nil), nil); closed {
				return
			}
		}
		if err := stream.Err(); err != nil {
			writer.Send(nil, err)
		}
	}()

	return reader, nil
}

func toOpenAIMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			out = append(out, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			if len(msg.MultiContent) == 0 {
				out = append(out, openai.UserMessage(msg.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.MultiContent))
			for _, part := range msg.MultiContent {
				switch part.Type {
				case schema.ChatMessagePartTypeImageURL:
					if part.ImageURL == nil {
						continue
					}
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: part.ImageURL.URL,
					}))
				case schema.ChatMessagePartTypeText:
					parts = append(parts, openai.TextContentPart(part.Text))
				}
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

// OpenAIImages calls the images/generations endpoint. Ark accepts the
// reference image, its weight and the watermark switch as extra body fields.
type OpenAIImages struct {
	client openai.Client
}

// NewOpenAIImages creates an image backend.
func NewOpenAIImages(cfg OpenAIConfig) *OpenAIImages {
	return &OpenAIImages{client: cfg.client()}
}

// GenerateImage implements ImageGenerator.
func (g *OpenAIImages) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	params := openai.ImageGenerateParams{
		Model:          req.Model,
		Prompt:         req.Prompt,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
		Size:           openai.ImageGenerateParamsSize(req.Size),
	}
	extra := map[string]any{"watermark": false}
	if req.ReferenceURL != "" {
		extra["image"] = req.ReferenceURL
		extra["image_weight"] = req.Weight
	}
	params.SetExtraFields(extra)

	resp, err := g.client.Images.Generate(ctx, params)
	if err != nil {
		return "", fmt.Errorf("image generation: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyImage
	}
	return resp.Data[0].URL, nil
}
