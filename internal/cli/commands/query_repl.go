package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const replPrompt = "roadlens> "

// replState is the dataset {{.Alias}} currently binds to.
type replState struct {
	qs      *querySession
	current string
	format  string
}

func (s *replState) prompt() string {
	if s.current == "" {
		return replPrompt
	}
	return "roadlens:" + s.current + "> "
}

func runQueryREPL(cmd *cobra.Command, qs *querySession, sourceID string, opts *QueryOptions) error {
	ctx := cmd.Context()
	state := &replState{qs: qs, format: opts.Format}
	if sourceID != "" {
		if _, ok := qs.cat.Get(sourceID); !ok {
			return fmt.Errorf("dataset %q not in catalog (available: %v)", sourceID, qs.cat.SortedIDs())
		}
		state.current = sourceID
	}

	// Configure readline
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          state.prompt(),
		HistoryFile:     historyFile(),
		AutoComplete:    newDatasetCompleter(qs),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// Print welcome message
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "roadlens query REPL (catalog: %s, %d datasets)\n", qs.cat.Source, qs.cat.Len())
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	// REPL loop
	var multiLineBuffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			rl.SetPrompt(state.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Handle dot-commands
		if multiLineBuffer.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := state.handleDotCommand(ctx, cmd, line); quit {
				break
			}
			rl.SetPrompt(state.prompt())
			continue
		}

		// Accumulate multi-line SQL until semicolon
		multiLineBuffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			multiLineBuffer.WriteString(" ")
			rl.SetPrompt("    ...> ")
			continue
		}
		rl.SetPrompt(state.prompt())

		sqlText := strings.TrimSuffix(multiLineBuffer.String(), ";")
		multiLineBuffer.Reset()

		if err := state.execute(ctx, cmd, sqlText); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

func (s *replState) execute(ctx context.Context, cmd *cobra.Command, sqlText string) error {
	if s.current == "" {
		return fmt.Errorf("no dataset selected (use .use <source_id>)")
	}
	rs, err := s.qs.run(ctx, s.current, sqlText)
	if err != nil {
		return err
	}
	return renderResults(cmd.OutOrStdout(), rs, s.format)
}

// handleDotCommand runs a dot-command and reports whether to quit.
func (s *replState) handleDotCommand(ctx context.Context, cmd *cobra.Command, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	errOut := cmd.ErrOrStderr()

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())

	case ".datasets":
		if err := renderResults(cmd.OutOrStdout(), datasetRows(s.qs.cat), s.format); err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}

	case ".use":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .use <source_id>")
			return false
		}
		if _, ok := s.qs.cat.Get(parts[1]); !ok {
			_, _ = fmt.Fprintf(errOut, "Unknown dataset: %s\n", parts[1])
			return false
		}
		s.current = parts[1]

	case ".schema":
		target := s.current
		if len(parts) > 1 {
			target = parts[1]
		}
		if target == "" {
			_, _ = fmt.Fprintln(errOut, "Usage: .schema <source_id>")
			return false
		}
		rs, err := s.qs.run(ctx, target, schemaSQL)
		if err == nil {
			err = renderResults(cmd.OutOrStdout(), rs, s.format)
		}
		if err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}

	case ".format":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "format: %s\n", s.format)
			return false
		}
		s.format = parts[1]

	case ".clear":
		fmt.Print("\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .datasets          List datasets and their table aliases
  .use <source_id>   Bind {{.Alias}} to a dataset
  .schema [id]       Show the columns of a dataset
  .format <name>     Switch output format (table, json, csv, md)
  .clear             Clear the screen
  .quit / .exit      Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - {{.Alias}} expands to the selected dataset's table
  - Tab completion works for dataset ids
`
	_, _ = fmt.Fprintln(w, help)
}

// historyFile keeps REPL history in the user cache directory.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "roadlens")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ""
	}
	return filepath.Join(dir, "query_history")
}

// newDatasetCompleter completes dot-commands and dataset ids.
func newDatasetCompleter(qs *querySession) *readline.PrefixCompleter {
	ids := qs.cat.SortedIDs()
	idItems := make([]readline.PrefixCompleterInterface, 0, len(ids))
	for _, id := range ids {
		idItems = append(idItems, readline.PcItem(id))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".datasets"),
		readline.PcItem(".use", idItems...),
		readline.PcItem(".schema", idItems...),
		readline.PcItem(".format",
			readline.PcItem("table"), readline.PcItem("json"), readline.PcItem("csv"), readline.PcItem("md")),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
		readline.PcItem("SELECT"),
	)
}
