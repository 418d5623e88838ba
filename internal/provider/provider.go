// Package provider adapts remote model services to the two operations agents
// need: a token stream for chat and a single image generation call.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Default request values for Ark image generation.
const (
	DefaultImageSize = "2K"
	DefaultBaseURL   = "https://ark.cn-beijing.volces.com/api/v3"
)

var (
	// ErrEmptyImage is returned when the provider answers without an image URL.
	ErrEmptyImage = errors.New("模型未返回有效图片链接")
	// ErrNotConfigured is returned when an operation has no backend.
	ErrNotConfigured = errors.New("provider backend not configured")
)

// ChatStreamer is satisfied by eino chat models such as the Ark ChatModel.
type ChatStreamer interface {
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

// ImageGenerator produces one image and returns its URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
}

// ImageRequest describes an image-to-image generation call.
type ImageRequest struct {
	Model        string
	Prompt       string
	ReferenceURL string
	Weight       float64
	Size         string
}

// Client bundles the backends one agent talks to. Each agent owns its own
// Client so credentials and usage stay separate. A Client holds no mutable
// state and is safe for concurrent use.
type Client struct {
	name   string
	chat   ChatStreamer
	images ImageGenerator
}

// NewClient creates a Client. Either backend may be nil when the agent never
// uses that operation.
func NewClient(name string, chat ChatStreamer, images ImageGenerator) *Client {
	return &Client{name: name, chat: chat, images: images}
}

// Name identifies the client in logs.
func (c *Client) Name() string {
	return c.name
}

// CreateChatStream starts a streamed completion for modelID.
func (c *Client) CreateChatStream(ctx context.Context, modelID string, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if c.chat == nil {
		return nil, fmt.Errorf("provider %s: chat: %w", c.name, ErrNotConfigured)
	}

	callOpts := make([]model.Option, 0, len(opts)+1)
	if modelID != "" {
		callOpts = append(callOpts, model.WithModel(modelID))
	}
	callOpts = append(callOpts, opts...)

	stream, err := c.chat.Stream(ctx, messages, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("provider %s: chat stream: %w", c.name, err)
	}
	return stream, nil
}

// GenerateImage runs one image generation and returns the image URL.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if c.images == nil {
		return "", fmt.Errorf("provider %s: image: %w", c.name, ErrNotConfigured)
	}
	if req.Size == "" {
		req.Size = DefaultImageSize
	}

	url, err := c.images.GenerateImage(ctx, req)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", ErrEmptyImage
	}
	return url, nil
}
