package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/report"
)

// --- Chat Command ---

var chatCmd = &cobra.Command{
	Use:   "chat NAME=FILE [NAME=FILE...]",
	Short: "Analyze companies, then ask follow-up questions",
	Long: `Run an analysis like "analyze" and start an interactive chat about
the results. The assistant sees every computed ratio. Type "exit" to quit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sess, err := runAnalysis(ctx, cmd, args)
		if err != nil {
			return err
		}
		result, err := sess.Result()
		if err != nil {
			return err
		}
		if err := report.RenderRatioTables(os.Stdout, result, report.TableOptions{Color: colorEnabled(cmd)}); err != nil {
			return err
		}

		chat := sess.Chat()
		if chat == nil {
			return errors.New("chat needs an AI provider; set an API key (see `finlens status`)")
		}
		return chatREPL(ctx, stdin, os.Stdout, chat)
	},
}

func init() {
	addAnalysisFlags(chatCmd)
	chatCmd.Flags().Bool("no-color", false, "disable colored output")
}

// chatREPL reads questions line by line and streams each reply.
func chatREPL(ctx context.Context, in io.Reader, out io.Writer, chat *agent.ChatSession) error {
	fmt.Fprintln(out, "💬 Ask about the analysis (\"exit\" to quit)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nyou> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit", ":q":
			return nil
		}

		fmt.Fprint(out, "ai> ")
		_, err := chat.Send(ctx, question, func(chunk string) {
			fmt.Fprint(out, chunk)
		})
		fmt.Fprintln(out)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "⚠️  %v\n", err)
		}
	}
}
