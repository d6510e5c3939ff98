package standard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/volterm/internal/cli/client"
	"github.com/ccheshirecat/volterm/internal/terminal/session"
	"github.com/ccheshirecat/volterm/internal/terminal/suggest"
)

const cliPollInterval = 250 * time.Millisecond

func newAskCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <prompt...>",
		Short: "Ask the assistant and print its suggestions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			resp, err := api.Ask(ctx, client.AskRequest{Prompt: strings.Join(args, " "), SessionID: sessionID})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.TrimSpace(resp))

			var state suggest.State
			state.Apply(suggest.Parse(resp))
			if !state.HasPrimary() {
				return nil
			}
			fmt.Fprintf(out, "\nSuggested: %s\n", state.Primary)
			for i, extra := range state.Extras {
				fmt.Fprintf(out, "  %d. %s\n", i+1, extra)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", session.DefaultID, "session whose context is sent")
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		sessionID string
		wait      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Run a command in a remote session and print its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			line := strings.Join(args, " ")
			submitCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			err = api.SubmitCommand(submitCtx, sessionID, line)
			cancel()
			if err != nil {
				return err
			}
			if wait <= 0 {
				return nil
			}

			output, err := waitForOutput(cmd.Context(), api, sessionID, wait)
			if err != nil {
				return err
			}
			if output == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "no output after %s\n", wait)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			if !strings.HasSuffix(output, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", session.DefaultID, "target session")
	cmd.Flags().DurationVarP(&wait, "wait", "w", 5*time.Second, "how long to wait for output (0 to return immediately)")
	return cmd
}

// waitForOutput polls until the session reports non-blank output or wait
// elapses. A deadline is not an error.
func waitForOutput(parent context.Context, api *client.Client, sessionID string, wait time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	ticker := time.NewTicker(cliPollInterval)
	defer ticker.Stop()
	for {
		out, err := api.PollOutput(ctx, sessionID)
		switch {
		case err == nil && strings.TrimSpace(out) != "":
			return out, nil
		case err != nil && !errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() == nil {
				return "", err
			}
		}
		select {
		case <-ctx.Done():
			return "", nil
		case <-ticker.C:
		}
	}
}

func newStatusCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a session's working directory and files",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			status, err := api.Status(ctx, sessionID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cwd := "(unknown)"
			if status.Cwd != nil {
				cwd = *status.Cwd
			}
			fmt.Fprintf(out, "Session: %s\nDirectory: %s\n", sessionID, cwd)
			if !status.HasFiles {
				return nil
			}
			fmt.Fprintf(out, "Files (%d):\n", len(status.Files))
			for _, f := range status.Files {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", session.DefaultID, "target session")
	return cmd
}
