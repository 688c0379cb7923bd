package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/convrag/internal/conversation"
	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/engine"
	"github.com/spf13/cobra"
)

// chatHistoryCap bounds the in-memory history of an interactive session.
const chatHistoryCap = 100

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the corpus",
	Long: `Answer a single question from the corpus and print the sources used.

Examples:
  convrag ask "What is the refund window?"
  convrag ask --corpus handbook "Who approves travel?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation with the corpus",
	Long: `Start an interactive conversation. Follow-up questions can refer to
earlier turns. Type /reset to forget the conversation, exit or quit to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

// turnRunner is the part of the engine the interactive commands use.
type turnRunner interface {
	RunTurn(ctx context.Context, corpus *engine.Corpus, question string, history conversation.History) (*engine.TurnResult, error)
}

func withEngine(cmd *cobra.Command, fn func(ctx context.Context, a *app, corpus *engine.Corpus) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{generate: true, quiet: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	corpus, err := a.corpus(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, a, corpus)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	return withEngine(cmd, func(ctx context.Context, a *app, corpus *engine.Corpus) error {
		res, err := a.engine.RunTurn(ctx, corpus, question, nil)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	})
}

func runChat(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, a *app, corpus *engine.Corpus) error {
		fmt.Fprintf(cmd.OutOrStdout(), "Chatting with %q. Type exit to leave.\n", corpus.ID)
		return chatLoop(ctx, a.engine, corpus, cmd.InOrStdin(), cmd.OutOrStdout())
	})
}

// chatLoop reads one question per line and answers it with the history of
// the session so far. Failed turns are reported and left out of the history.
func chatLoop(ctx context.Context, r turnRunner, corpus *engine.Corpus, in io.Reader, out io.Writer) error {
	var history conversation.History
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit", "/exit", "/quit":
			return nil
		case "/reset":
			history = nil
			fmt.Fprintln(out, "(conversation reset)")
			continue
		}

		res, err := r.RunTurn(ctx, corpus, line, history)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, engine.ErrGenerationFailed) {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			return err
		}
		printResult(out, res)
		history = append(history, conversation.UserTurn(line), conversation.AssistantTurn(res.Answer)).Last(chatHistoryCap)
	}
}

func printResult(out io.Writer, res *engine.TurnResult) {
	fmt.Fprintln(out, res.Answer)
	if len(res.Sources) > 0 {
		fmt.Fprintln(out, "Sources:")
		for i, s := range res.Sources {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, describeSource(s))
		}
	}
	if len(res.Degradations) > 0 {
		fmt.Fprintf(out, "(degraded: %s)\n", strings.Join(res.Degradations, ", "))
	}
}

// describeSource renders "source (chunk N, strategy)" from chunk metadata.
func describeSource(meta map[string]any) string {
	d := document.New("", meta)
	name := d.String(document.KeySourceID)
	if name == "" {
		name = d.String(document.KeyParentID)
	}
	if name == "" {
		name = "unknown source"
	}
	var details []string
	if idx := d.String(document.KeyChunkIndex); idx != "" {
		details = append(details, "chunk "+idx)
	}
	if st := d.String(document.KeyChunkStrategy); st != "" {
		details = append(details, st)
	}
	if len(details) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(details, ", "))
}
