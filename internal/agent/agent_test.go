package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
	"github.com/zhouzirui/scene-studio/backend/internal/provider"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

type fakeProvider struct {
	mu sync.Mutex

	chunks      []string
	streamErr   error // returned by CreateChatStream
	recvErr     error // delivered after the chunks
	streamBlock bool  // stream never yields until ctx is done

	imageURL   string
	imageErr   error
	imageBlock bool

	chatCalls  int
	models     []string
	messages   []*schema.Message
	opts       []model.Option
	imageCalls []provider.ImageRequest
}

func (f *fakeProvider) CreateChatStream(ctx context.Context, modelID string, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	f.chatCalls++
	f.models = append(f.models, modelID)
	f.messages = messages
	f.opts = opts
	f.mu.Unlock()

	if f.streamErr != nil {
		return nil, f.streamErr
	}

	sr, sw := schema.Pipe[*schema.Message](0)
	go func() {
		defer sw.Close()
		if f.streamBlock {
			<-ctx.Done()
			sw.Send(nil, ctx.Err())
			return
		}
		for _, c := range f.chunks {
			if closed := sw.Send(schema.AssistantMessage(c, nil), nil); closed {
				return
			}
		}
		if f.recvErr != nil {
			sw.Send(nil, f.recvErr)
		}
	}()
	return sr, nil
}

func (f *fakeProvider) GenerateImage(ctx context.Context, req provider.ImageRequest) (string, error) {
	f.mu.Lock()
	f.imageCalls = append(f.imageCalls, req)
	f.mu.Unlock()

	if f.imageBlock {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.imageURL, f.imageErr
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls, len(f.imageCalls)
}

type fakeRehoster struct {
	url string
	err error
}

func (r fakeRehoster) Rehost(context.Context, string) (string, error) {
	return r.url, r.err
}

func testDeps(p Provider) Deps {
	return Deps{
		Provider:   p,
		Logger:     zerolog.Nop(),
		ChatModel:  "vision-model",
		ImageModel: "image-model",
	}
}

func imageRequest(text string) Request {
	return Request{
		Context: chat.Context{ConversationID: "conv-1", ToolID: "scene-3d", UserID: "u1"},
		Message: text,
		Attachments: []chat.Attachment{
			{ID: "a1", Name: "classroom.jpg", MimeType: "image/jpeg", URL: "https://cdn.example.com/classroom.jpg"},
		},
	}
}

func collect(t *testing.T, ch <-chan sse.Event) []sse.Event {
	t.Helper()
	var events []sse.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not finish, got %d events", len(events))
			return nil
		}
	}
}

func answers(events []sse.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Event == sse.KindMessage {
			out = append(out, ev.Data.Answer)
		}
	}
	return out
}

func assertTerminated(t *testing.T, events []sse.Event) {
	t.Helper()
	require.NotEmpty(t, events)
	dones, errs := 0, 0
	for i, ev := range events {
		switch ev.Event {
		case sse.KindDone:
			dones++
		case sse.KindError:
			errs++
			require.Less(t, i+1, len(events))
			assert.Equal(t, sse.KindDone, events[i+1].Event, "error must be followed by done")
		}
	}
	assert.Equal(t, 1, dones)
	assert.LessOrEqual(t, errs, 1)
	assert.Equal(t, sse.KindDone, events[len(events)-1].Event)
}

func TestVisionMissingReference(t *testing.T) {
	p := &fakeProvider{}
	a := NewSceneGenerator(testDeps(p))

	events := collect(t, a.StreamChat(context.Background(), Request{
		Context: chat.Context{ConversationID: "conv-1"},
		Message: "帮我渲染一下",
	}))

	require.Len(t, events, 2)
	assert.Equal(t, sse.KindMessage, events[0].Event)
	assert.Equal(t, sceneCopy.Clarify, events[0].Data.Answer)
	assert.Equal(t, sse.KindDone, events[1].Event)

	chatCalls, imageCalls := p.calls()
	assert.Zero(t, chatCalls)
	assert.Zero(t, imageCalls)
}

func TestVisionHappyPath(t *testing.T) {
	p := &fakeProvider{
		chunks:   []string{"Plan: ", "...<image_", "prompt>render", " X</image_prompt>"},
		imageURL: "https://ark.example.com/out.png",
	}
	a := NewSceneGenerator(testDeps(p))

	events := collect(t, a.StreamChat(context.Background(), imageRequest("把黑板去掉")))
	assertTerminated(t, events)

	msgs := answers(events)
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, sceneCopy.Analyzing, msgs[0])
	assert.Equal(t, "Plan: ...", strings.Join(msgs[1:len(msgs)-2], ""))
	assert.Equal(t, sceneCopy.Rendering, msgs[len(msgs)-2])
	assert.Equal(t, "![3D 渲染底图](https://ark.example.com/out.png)\n\n"+sceneCopy.Closing, msgs[len(msgs)-1])
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "conv-1", ev.Data.SessionID)
		assert.NotContains(t, ev.Data.Answer, "image_prompt")
	}

	require.Len(t, p.imageCalls, 1)
	assert.Equal(t, provider.ImageRequest{
		Model:        "image-model",
		Prompt:       "render X",
		ReferenceURL: "https://cdn.example.com/classroom.jpg",
		Weight:       sceneImageWeight,
	}, p.imageCalls[0])

	assert.Equal(t, []string{"vision-model"}, p.models)
	require.Len(t, p.messages, 2)
	assert.Equal(t, schema.System, p.messages[0].Role)
	assert.Equal(t, scenePrompt, p.messages[0].Content)
	require.Len(t, p.messages[1].MultiContent, 2)
	assert.Equal(t, "https://cdn.example.com/classroom.jpg", p.messages[1].MultiContent[0].ImageURL.URL)
	assert.Equal(t, "把黑板去掉", p.messages[1].MultiContent[1].Text)
}

func TestVisionImageFailure(t *testing.T) {
	p := &fakeProvider{
		chunks:   []string{"好的<image_prompt>render X</image_prompt>"},
		imageErr: errors.New("quota exceeded"),
	}
	events := collect(t, NewSceneGenerator(testDeps(p)).StreamChat(context.Background(), imageRequest("")))
	assertTerminated(t, events)

	errEv := events[len(events)-2]
	require.Equal(t, sse.KindError, errEv.Event)
	assert.Contains(t, errEv.Data.Message, "quota exceeded")
	for _, answer := range answers(events) {
		assert.NotContains(t, answer, "![")
	}
}

func TestVisionEmptyImageURL(t *testing.T) {
	p := &fakeProvider{chunks: []string{"<image_prompt>x</image_prompt>"}}
	events := collect(t, NewMuseumGenerator(testDeps(p)).StreamChat(context.Background(), imageRequest("")))
	assertTerminated(t, events)
	assert.Equal(t, provider.ErrEmptyImage.Error(), events[len(events)-2].Data.Message)
}

func TestVisionSkipsRenderWithoutDirective(t *testing.T) {
	p := &fakeProvider{chunks: []string{"这张图片", "不太清晰"}}
	events := collect(t, NewMuseumGenerator(testDeps(p)).StreamChat(context.Background(), imageRequest("")))
	assertTerminated(t, events)

	assert.Equal(t, []string{museumCopy.Analyzing, "这张图片", "不太清晰", museumCopy.Skipped}, answers(events))
	for _, ev := range events {
		assert.NotEqual(t, sse.KindError, ev.Event)
	}
	_, imageCalls := p.calls()
	assert.Zero(t, imageCalls)
}

func TestVisionStreamErrors(t *testing.T) {
	t.Run("create fails", func(t *testing.T) {
		p := &fakeProvider{streamErr: errors.New("401 unauthorized")}
		events := collect(t, NewSceneGenerator(testDeps(p)).StreamChat(context.Background(), imageRequest("")))
		assertTerminated(t, events)
		assert.Contains(t, events[len(events)-2].Data.Message, "401 unauthorized")
	})

	t.Run("fails mid stream", func(t *testing.T) {
		p := &fakeProvider{chunks: []string{"部分回复"}, recvErr: errors.New("connection reset")}
		events := collect(t, NewSceneGenerator(testDeps(p)).StreamChat(context.Background(), imageRequest("")))
		assertTerminated(t, events)
		assert.Contains(t, answers(events), "部分回复")
		assert.Contains(t, events[len(events)-2].Data.Message, "connection reset")
		_, imageCalls := p.calls()
		assert.Zero(t, imageCalls)
	})
}

func TestVisionTimeouts(t *testing.T) {
	t.Run("text stream", func(t *testing.T) {
		deps := testDeps(&fakeProvider{streamBlock: true})
		deps.StreamTimeout = 20 * time.Millisecond
		events := collect(t, NewSceneGenerator(deps).StreamChat(context.Background(), imageRequest("")))
		assertTerminated(t, events)
		assert.True(t, strings.HasPrefix(events[len(events)-2].Data.Message, "请求超时"))
	})

	t.Run("image generation", func(t *testing.T) {
		p := &fakeProvider{chunks: []string{"<image_prompt>x</image_prompt>"}, imageBlock: true}
		deps := testDeps(p)
		deps.ImageTimeout = 20 * time.Millisecond
		events := collect(t, NewSceneGenerator(deps).StreamChat(context.Background(), imageRequest("")))
		assertTerminated(t, events)
		msg := events[len(events)-2].Data.Message
		assert.True(t, strings.HasPrefix(msg, "请求超时"))
		assert.Contains(t, msg, opRender)
	})
}

func TestVisionStopsOnCancel(t *testing.T) {
	p := &fakeProvider{chunks: []string{"a", "b", "<image_prompt>x</image_prompt>"}, imageURL: "https://x/y.png"}
	ctx, cancel := context.WithCancel(context.Background())
	ch := NewSceneGenerator(testDeps(p)).StreamChat(ctx, imageRequest(""))

	first := <-ch
	assert.Equal(t, sceneCopy.Analyzing, first.Data.Answer)
	cancel()

	rest := collect(t, ch)
	for _, ev := range rest {
		assert.NotEqual(t, sse.KindError, ev.Event)
	}
	_, imageCalls := p.calls()
	assert.Zero(t, imageCalls)
}

func TestVisionRehost(t *testing.T) {
	p := &fakeProvider{chunks: []string{"<image_prompt>x</image_prompt>"}, imageURL: "https://ark.example.com/tmp.png"}

	deps := testDeps(p)
	deps.Rehoster = fakeRehoster{url: "https://cos.example.com/generated/a.png"}
	msgs := answers(collect(t, NewMuseumGenerator(deps).StreamChat(context.Background(), imageRequest(""))))
	assert.Equal(t, "![图纸](https://cos.example.com/generated/a.png)\n\n"+museumCopy.Closing, msgs[len(msgs)-1])

	deps.Rehoster = fakeRehoster{err: errors.New("bucket missing")}
	events := collect(t, NewMuseumGenerator(deps).StreamChat(context.Background(), imageRequest("")))
	assertTerminated(t, events)
	msgs = answers(events)
	assert.Contains(t, msgs[len(msgs)-1], "https://ark.example.com/tmp.png")
}

func TestTerminationInvariant(t *testing.T) {
	scenarios := map[string]func() (*fakeProvider, Deps, Request){
		"success": func() (*fakeProvider, Deps, Request) {
			p := &fakeProvider{chunks: []string{"ok<image_prompt>x</image_prompt>"}, imageURL: "https://x/y.png"}
			return p, testDeps(p), imageRequest("")
		},
		"provider error": func() (*fakeProvider, Deps, Request) {
			p := &fakeProvider{streamErr: errors.New("boom")}
			return p, testDeps(p), imageRequest("")
		},
		"timeout": func() (*fakeProvider, Deps, Request) {
			p := &fakeProvider{streamBlock: true}
			deps := testDeps(p)
			deps.StreamTimeout = 10 * time.Millisecond
			return p, deps, imageRequest("")
		},
		"missing reference": func() (*fakeProvider, Deps, Request) {
			p := &fakeProvider{}
			return p, testDeps(p), Request{Message: "hi"}
		},
		"no directive": func() (*fakeProvider, Deps, Request) {
			p := &fakeProvider{chunks: []string{"just talk"}}
			return p, testDeps(p), imageRequest("")
		},
		"image error": func() (*fakeProvider, Deps, Request) {
			p := &fakeProvider{chunks: []string{"<image_prompt>x</image_prompt>"}, imageErr: errors.New("boom")}
			return p, testDeps(p), imageRequest("")
		},
	}

	for name, build := range scenarios {
		t.Run(name, func(t *testing.T) {
			_, deps, req := build()
			for _, ctor := range []Constructor{NewSceneGenerator, NewMuseumGenerator, NewResearchAssistant} {
				assertTerminated(t, collect(t, ctor(deps).StreamChat(context.Background(), req)))
			}
		})
	}
}

func TestResponder(t *testing.T) {
	p := &fakeProvider{chunks: []string{"一、", "学校", "", "概况"}}
	deps := testDeps(p)
	deps.ChatModel = "lite-model"
	a := NewResearchAssistant(deps)

	history := []chat.Turn{
		{Role: chat.RoleUser, Text: "你好"},
		{Role: chat.RoleAssistant, Text: "你好，请问要调研哪所学校？"},
	}
	events := collect(t, a.StreamChat(context.Background(), Request{
		Context: chat.Context{ConversationID: "c9"},
		Message: "实验中学",
		History: history,
	}))
	assertTerminated(t, events)
	assert.Equal(t, []string{"一、", "学校", "概况"}, answers(events))

	assert.Equal(t, []string{"lite-model"}, p.models)
	require.Len(t, p.messages, 4)
	assert.Equal(t, "实验中学", p.messages[3].Content)

	opts := model.GetCommonOptions(&model.Options{}, p.opts...)
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.3, *opts.Temperature, 1e-6)
}

func TestResponderError(t *testing.T) {
	p := &fakeProvider{streamErr: errors.New("rate limited")}
	events := collect(t, NewResearchAssistant(testDeps(p)).StreamChat(context.Background(), Request{Message: "hi"}))
	require.Len(t, events, 2)
	assert.Equal(t, sse.KindError, events[0].Event)
	assert.Contains(t, events[0].Data.Message, "rate limited")
	assert.Equal(t, sse.KindDone, events[1].Event)
}

func TestRegistry(t *testing.T) {
	empty := NewRegistry(DefaultID)
	assert.Nil(t, empty.Resolve("anything"))

	r := NewRegistry(DefaultID)
	deps := testDeps(&fakeProvider{})
	r.Register(SceneGeneratorID, NewSceneGenerator, deps)
	r.Register(ResearchAssistantID, NewResearchAssistant, deps)

	assert.Equal(t, ResearchAssistantID, r.Resolve(ResearchAssistantID).ID())
	assert.Equal(t, SceneGeneratorID, r.Resolve("unknown-bot").ID())
	assert.Equal(t, SceneGeneratorID, r.Resolve("").ID())
	assert.True(t, r.Has(ResearchAssistantID))
	assert.False(t, r.Has(MuseumGeneratorID))
	assert.Equal(t, []string{SceneGeneratorID, ResearchAssistantID}, r.IDs())

	a := r.Resolve(SceneGeneratorID)
	assert.Equal(t, "vision-model", a.ModelID())
	assert.Equal(t, scenePrompt, a.SystemPrompt())
}

func TestResolveReference(t *testing.T) {
	userWith := func(url, mime string) chat.Turn {
		turn, err := chat.NewTurn(chat.RoleUser, "", []chat.Attachment{{ID: "x", MimeType: mime, URL: url}})
		require.NoError(t, err)
		return turn
	}

	cases := []struct {
		name        string
		attachments []chat.Attachment
		history     []chat.Turn
		want        string
		found       bool
	}{
		{name: "nothing"},
		{
			name:        "current attachment wins",
			attachments: []chat.Attachment{{MimeType: "application/pdf", URL: "https://x/doc.pdf"}, {MimeType: "image/png", URL: "https://x/now.png"}},
			history:     []chat.Turn{{Role: chat.RoleAssistant, Text: "![r](https://x/old.png)"}},
			want:        "https://x/now.png",
			found:       true,
		},
		{
			name: "newest assistant render",
			history: []chat.Turn{
				userWith("https://x/upload.png", "image/png"),
				{Role: chat.RoleAssistant, Text: "渲染完成 ![3D 渲染底图](https://x/render.png)\n\n继续"},
				{Role: chat.RoleUser, Text: "再亮一点"},
			},
			want:  "https://x/render.png",
			found: true,
		},
		{
			name: "newest user upload",
			history: []chat.Turn{
				{Role: chat.RoleAssistant, Text: "![a](https://x/render.png)"},
				userWith("https://x/upload.png", "image/jpeg"),
			},
			want:  "https://x/upload.png",
			found: true,
		},
		{
			name: "broken attachments skipped",
			history: []chat.Turn{
				userWith("https://x/first.png", "image/png"),
				{Role: chat.RoleUser, AttachmentsRaw: []byte("{broken")},
			},
			want:  "https://x/first.png",
			found: true,
		},
		{
			name:    "non image and non http ignored",
			history: []chat.Turn{userWith("https://x/a.pdf", "application/pdf"), {Role: chat.RoleAssistant, Text: "![a](ftp://x/a.png)"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveReference(tc.attachments, tc.history)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

type panickyProvider struct {
	*fakeProvider
}

func (panickyProvider) CreateChatStream(context.Context, string, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	panic("nil map write")
}

func TestPanicBecomesErrorAndDone(t *testing.T) {
	deps := testDeps(panickyProvider{&fakeProvider{}})
	for _, ctor := range []Constructor{NewSceneGenerator, NewResearchAssistant} {
		events := collect(t, ctor(deps).StreamChat(context.Background(), imageRequest("")))
		assertTerminated(t, events)
		assert.Equal(t, panicText, events[len(events)-2].Data.Message)
	}
}
