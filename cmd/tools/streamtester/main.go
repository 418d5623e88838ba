// Command streamtester sends one chat request to a running backend and
// renders the streamed events in the terminal.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
	"github.com/zhouzirui/scene-studio/backend/pkg/sse"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f87"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

var opts struct {
	baseURL        string
	toolID         string
	conversationID string
	userID         string
	imageURL       string
	timeout        time.Duration
	raw            bool
}

var rootCmd = &cobra.Command{
	Use:   "streamtester <message>",
	Short: "Send a chat request and print the event stream",
	Long: `Send a chat request to /api/chat/stream and print the event stream.

Examples:
  streamtester --tool scene-3d --image https://example.com/campus.jpg "生成教学楼外观"
  streamtester --tool research "调研某某中学近三年的公开报道"
  streamtester --tool scene-3d --conversation <id> "换成黄昏光线"`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := chatService.StreamRequest{
			ToolID:         opts.toolID,
			ConversationID: opts.conversationID,
		}
		if len(args) == 1 {
			req.Message = args[0]
		}
		if opts.imageURL != "" {
			req.Attachments = []chat.Attachment{{
				ID:       "cli-image",
				Name:     "reference",
				MimeType: "image/jpeg",
				URL:      opts.imageURL,
			}}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
		defer cancel()
		return run(ctx, cmd.OutOrStdout(), req)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "backend base URL")
	f.StringVar(&opts.toolID, "tool", "scene-3d", "tool id")
	f.StringVar(&opts.conversationID, "conversation", "", "continue an existing conversation")
	f.StringVar(&opts.userID, "user", "streamtester", "value of the X-User-ID header")
	f.StringVar(&opts.imageURL, "image", "", "reference image URL sent as an attachment")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall request timeout")
	f.BoolVar(&opts.raw, "raw", false, "print events as JSON lines")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, req chatService.StreamRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.baseURL, "/")+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", opts.userID)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	start := time.Now()
	return render(out, sse.NewDecoder(resp.Body), start)
}

// render prints events until the stream ends and reports what was seen.
func render(out io.Writer, dec *sse.Decoder, start time.Time) error {
	var (
		sessionID string
		events    int
		sawError  bool
	)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, sse.ErrMalformedFrame) {
			fmt.Fprintln(out, errorStyle.Render("malformed frame: "+err.Error()))
			continue
		}
		if err != nil {
			return err
		}
		events++

		if opts.raw {
			line, _ := json.Marshal(ev)
			fmt.Fprintln(out, string(line))
			continue
		}

		switch ev.Event {
		case sse.KindMessage:
			if ev.Data.SessionID != "" {
				sessionID = ev.Data.SessionID
			}
			fmt.Fprint(out, ev.Data.Answer)
		case sse.KindError:
			sawError = true
			fmt.Fprintln(out)
			fmt.Fprintln(out, errorStyle.Render("error: ")+ev.Data.Message)
		case sse.KindDone:
			fmt.Fprintln(out)
			fmt.Fprintln(out, labelStyle.Render("done"))
		}
	}

	summary := fmt.Sprintf("%d events in %s, sentinel=%t", events, time.Since(start).Round(time.Millisecond), dec.Done())
	if sessionID != "" {
		summary += ", conversation=" + sessionID
	}
	fmt.Fprintln(out, dimStyle.Render(summary))

	if !dec.Done() {
		return errors.New("stream ended without [DONE]")
	}
	if sawError {
		return errors.New("stream reported an error")
	}
	return nil
}
