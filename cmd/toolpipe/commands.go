package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/flemzord/toolpipe/internal/agent"
	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/config"
	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/history"
	"github.com/flemzord/toolpipe/internal/session"
	"github.com/flemzord/toolpipe/internal/toolcall"
	"github.com/flemzord/toolpipe/pkg/app"
)

// runtime loads configuration and builds the component graph. The caller
// must Close the runtime.
func (g *globalFlags) runtime(cmd *cobra.Command, opts app.Options) (*app.Runtime, error) {
	cfg, _, err := app.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	opts.Version = version
	if opts.LogOutput == nil {
		opts.LogOutput = cmd.ErrOrStderr()
	}
	return app.Build(cmd.Context(), cfg, opts)
}

func closeRuntime(rt *app.Runtime) {
	_ = rt.Close(context.Background())
}

func classifyCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <text>...",
		Short: "Classify one request and print the tier that decided it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.runtime(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			timed := rt.Classifier.ClassifyTimed(cmd.Context(), strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(timed)
			}
			r := timed.Result
			fmt.Fprintf(out, "category:   %s\n", r.Category)
			fmt.Fprintf(out, "layer:      %d (%s)\n", r.Layer, r.Layer)
			if r.Tool != "" {
				fmt.Fprintf(out, "tool:       %s\n", r.Tool)
			}
			fmt.Fprintf(out, "confidence: %.2f\n", r.Confidence)
			fmt.Fprintf(out, "match:      %s\n", r.MatchType)
			fmt.Fprintf(out, "latency:    %.3fms\n", timed.LatencyMS)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func chatCmd(g *globalFlags) *cobra.Command {
	var (
		sessionID  string
		accessible bool
		trace      bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session; tool calls that need approval are confirmed in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := app.Options{
				Requester: &approval.PromptRequester{
					Accessible: accessible,
					Input:      cmd.InOrStdin(),
					Output:     cmd.ErrOrStderr(),
				},
			}
			if trace {
				opts.ToolTrace = cmd.ErrOrStderr()
			}
			rt, err := g.runtime(cmd, opts)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "session %s (Ctrl-D to exit)\n", sessionID)
			return chatLoop(cmd.Context(), rt.Sessions, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to create or resume")
	cmd.Flags().BoolVar(&accessible, "accessible", false, "Use line-based approval prompts")
	cmd.Flags().BoolVar(&trace, "trace", false, "Write a JSON line per tool execution to stderr")
	return cmd
}

func chatLoop(ctx context.Context, sessions *session.Manager, sessionID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		streamed := false
		turn, err := sessions.Handle(ctx, session.Input{
			SessionID: sessionID,
			Text:      text,
			OnEvent: func(ev agent.StreamEvent) {
				if ev.Type == agent.StreamEventText {
					streamed = true
					fmt.Fprint(out, ev.Content)
				}
			},
		})
		if err != nil {
			if errors.Is(err, session.ErrNoProvider) {
				fmt.Fprintln(out, "no model is configured; only direct commands such as /read or /list work")
				continue
			}
			return err
		}
		if streamed {
			fmt.Fprintln(out)
		} else if turn.Content != "" {
			fmt.Fprintln(out, turn.Content)
		}
		printCalls(out, turn.Calls)
	}
}

func printCalls(out io.Writer, calls []toolcall.Snapshot) {
	for _, c := range calls {
		line := fmt.Sprintf("  [%s] %s", c.Status, c.ToolName)
		if c.RejectionReason != "" {
			line += ": " + c.RejectionReason
		} else if c.Result != nil && !c.Result.Success {
			line += ": " + c.Result.Error
		}
		fmt.Fprintln(out, line)
	}
}

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and maintenance jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := g.runtime(cmd, app.Options{})
			if err != nil {
				return err
			}
			return app.Serve(cmd.Context(), rt)
		},
	}
}

func historyCmd(g *globalFlags) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "history [thread]",
		Short: "Print a stored thread as model-ready history, or list a session's threads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (sessionID == "") {
				return errors.New("pass either a thread id or --session")
			}
			rt, err := g.runtime(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer closeRuntime(rt)
			out := cmd.OutOrStdout()

			if sessionID != "" {
				threads, err := rt.Store.ListThreads(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				for _, t := range threads {
					fmt.Fprintf(out, "%s  %s\n", t.ID, t.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			}

			info, recs, err := rt.Store.LoadThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			thread, errs := conversation.Load(info, recs)
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}
			msgs, err := history.BuildWire(history.Sanitize(thread.Messages()))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}
			for _, m := range msgs {
				switch {
				case m.ToolCallID != "":
					fmt.Fprintf(out, "%s (%s): %s\n", m.Role, m.ToolCallID, m.Content)
				case len(m.ToolCalls) > 0:
					fmt.Fprintf(out, "%s: %s [%d tool calls]\n", m.Role, m.Content, len(m.ToolCalls))
				default:
					fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "List the threads of this session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print wire messages as JSON")
	return cmd
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if len(args) == 1 {
				path = args[0]
			}
			cfg, resolved, err := app.LoadConfig(path)
			if err != nil {
				return err
			}
			mode, err := cfg.ApprovalMode()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if resolved == "" {
				resolved = "(built-in defaults)"
			}
			fmt.Fprintf(out, "Configuration OK: %s\n", resolved)
			fmt.Fprintf(out, "  approval mode:  %s\n", mode)
			fmt.Fprintf(out, "  storage:        %s\n", cfg.Storage.Driver)
			fmt.Fprintf(out, "  agent model:    %s\n", enabled(cfg.Provider.Enabled(), cfg.Provider.Model))
			fmt.Fprintf(out, "  classifier llm: %s\n", enabled(cfg.Classifier.ModelEnabled(), cfg.Classifier.Model.Model))
			fmt.Fprintf(out, "  gateway:        %s\n", gatewayBind(cfg))
			return nil
		},
	})
	return cmd
}

func enabled(on bool, name string) string {
	if !on {
		return "disabled"
	}
	return name
}

func gatewayBind(cfg *config.Config) string {
	if cfg.Gateway.Bind == "" {
		return "127.0.0.1:8080 (default)"
	}
	return cfg.Gateway.Bind
}
