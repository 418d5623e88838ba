package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChat struct {
	gotModel string
	chunks   []string
}

func (r *recordingChat) Stream(_ context.Context, _ []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)
	if options.Model != nil {
		r.gotModel = *options.Model
	}
	msgs := make([]*schema.Message, 0, len(r.chunks))
	for _, c := range r.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type imageFunc func(ctx context.Context, req ImageRequest) (string, error)

func (f imageFunc) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	return f(ctx, req)
}

func TestClientPassesModelToChatBackend(t *testing.T) {
	chat := &recordingChat{chunks: []string{"a", "b"}}
	client := NewClient("scene", chat, nil)

	stream, err := client.CreateChatStream(context.Background(), "vision-pro", nil)
	require.NoError(t, err)
	defer stream.Close()

	var got string
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += msg.Content
	}
	assert.Equal(t, "ab", got)
	assert.Equal(t, "vision-pro", chat.gotModel)
}

func TestClientMissingBackends(t *testing.T) {
	client := NewClient("empty", nil, nil)
	_, err := client.CreateChatStream(context.Background(), "m", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.GenerateImage(context.Background(), ImageRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientImageDefaultsAndEmptyResult(t *testing.T) {
	var seen ImageRequest
	client := NewClient("scene", nil, imageFunc(func(_ context.Context, req ImageRequest) (string, error) {
		seen = req
		return "", nil
	}))

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.Equal(t, DefaultImageSize, seen.Size)
}

func TestOpenAIImagesSendsArkFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"url":"https://img.example.com/out.png"}]}`)
	}))
	defer srv.Close()

	gen := NewOpenAIImages(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/api/v3"})
	url, err := gen.GenerateImage(context.Background(), ImageRequest{
		Model:        "doubao-seedream-4-5-251128",
		Prompt:       "render X",
		ReferenceURL: "https://cdn.example.com/ref.png",
		Weight:       0.6,
		Size:         "2K",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/out.png", url)

	assert.Equal(t, "doubao-seedream-4-5-251128", body["model"])
	assert.Equal(t, "render X", body["prompt"])
	assert.Equal(t, "2K", body["size"])
	assert.Equal(t, "url", body["response_format"])
	assert.Equal(t, "https://cdn.example.com/ref.png", body["image"])
	assert.Equal(t, 0.6, body["image_weight"])
	assert.Equal(t, false, body["watermark"])
}

func TestOpenAIImagesEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[]}`)
	}))
	defer srv.Close()

	gen := NewOpenAIImages(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := gen.GenerateImage(context.Background(), ImageRequest{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestOpenAIChatStreamsDeltas(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Plan", ": ", "ok"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	chat := NewOpenAIChat(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, "default-model")
	input := []*schema.Message{
		schema.SystemMessage("sys"),
		{Role: schema.User, MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: "https://x/a.png"}},
			{Type: schema.ChatMessagePartTypeText, Text: "hi"},
		}},
	}
	stream, err := chat.Stream(context.Background(), input, model.WithTemperature(0.3))
	require.NoError(t, err)
	defer stream.Close()

	var got string
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += msg.Content
	}

	assert.Equal(t, "Plan: ok", got)
	assert.Equal(t, "default-model", body["model"])
	assert.InDelta(t, 0.3, body["temperature"], 1e-6)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
}
