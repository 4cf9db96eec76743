package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/client"
	"github.com/abhisek/psytest/internal/screens/take"
	"github.com/abhisek/psytest/internal/session"
	"github.com/abhisek/psytest/internal/submit"
)

// snapshotTTL bounds how long an unfinished attempt can be resumed.
const snapshotTTL = 30 * 24 * time.Hour

var takeCmd = &cobra.Command{
	Use:   "take [testType]",
	Short: "Take a test interactively",
	Long: `Take a test in a full-screen terminal UI.

Keys:
  enter             answer the current question
  space, 1-9        toggle options on multiple-choice questions
  tab, shift+tab    next / previous question
  ctrl+s            submit and show the result
  esc, ctrl+c       save progress and quit (resume with --resume <sessionId>)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resume, _ := cmd.Flags().GetString("resume")
		if resume == "" && len(args) == 0 {
			return errors.New("a test type is required unless --resume is given")
		}
		return runTake(cmd, args, resume)
	},
}

func init() {
	takeCmd.Flags().String("resume", "", "Resume a saved session by id")
	takeCmd.Flags().String("server", "", "Submit to a psytest server instead of scoring locally")
	takeCmd.Flags().String("lang", catalog.DefaultLanguage, "Question language")
}

func runTake(cmd *cobra.Command, args []string, resume string) error {
	ctx := cmd.Context()
	d, err := openDeps(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	var sub session.Submitter = submit.Local{Service: d.service}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		c, err := client.New(server, nil)
		if err != nil {
			return err
		}
		sub = client.WithRetry(c, client.DefaultRetryConfig())
	}

	m := session.NewMachine(session.Options{
		Descriptors: d.types,
		Submitter:   sub,
		Store:       d.kv,
		SnapshotTTL: snapshotTTL,
		Logger:      logger,
	})
	lang, _ := cmd.Flags().GetString("lang")

	var sess *session.Session
	if resume != "" {
		saved, err := m.LoadProgress(ctx, resume)
		if err != nil {
			return fmt.Errorf("load saved session: %w", err)
		}
		if saved.Status.Terminal() {
			return &session.TerminalSessionError{SessionID: resume, Status: saved.Status}
		}
		questions, err := d.catalog.Questions(saved.TestType, lang)
		if err != nil {
			return err
		}
		if sess, err = m.ResumeProgress(ctx, resume, questions); err != nil {
			return err
		}
	} else {
		questions, err := d.catalog.Questions(args[0], lang)
		if err != nil {
			return err
		}
		if sess, err = m.StartTest(args[0], questions); err != nil {
			return err
		}
	}
	defer m.Flush(context.Background())

	screen := take.New(ctx, m)
	p := tea.NewProgram(screen, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
	if _, err := p.Run(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res, finished, err := screen.Outcome()
	if err != nil {
		return err
	}
	if !finished {
		if err := m.SaveProgress(ctx); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		fmt.Fprintf(out, "Progress saved. Resume with: psytest take --resume %s\n", sess.ID)
		return nil
	}
	printResult(out, res)
	return nil
}
