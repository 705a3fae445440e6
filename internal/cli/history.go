package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lemonlambda/grug-sys/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	Prune int
}

// HistoryEntry is one recorded reload cycle.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Compiled   int       `json:"compiled"`
	Cached     int       `json:"cached"`
	Removed    int       `json:"removed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// HistoryResult lists recent cycles, newest first.
type HistoryResult struct {
	Cycles []HistoryEntry `json:"cycles"`
	Pruned int64          `json:"pruned,omitempty"`
}

func (r HistoryResult) String() string {
	if len(r.Cycles) == 0 {
		return "No reload cycles recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-20s %8s %8s %6s %7s %6s  %s", "SEQ", "STARTED", "DURATION", "COMPILED", "CACHED", "REMOVED", "FAILED", "ERROR")
	for _, c := range r.Cycles {
		errMsg, _, _ := strings.Cut(c.Error, "\n")
		fmt.Fprintf(&b, "\n%-6d %-20s %7dms %8d %6d %7d %6d  %s",
			c.Seq, c.StartedAt.Format(time.DateTime), c.DurationMS, c.Compiled, c.Cached, c.Removed, c.Failed, errMsg)
	}
	if r.Pruned > 0 {
		fmt.Fprintf(&b, "\nPruned %d older cycle(s).", r.Pruned)
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reload cycles from the build cache",
		Long: `List the reload cycles recorded in the build cache, newest first.

Examples:
  grug history
  grug history --limit 50 --format json
  grug history --prune 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of cycles to show")
	cmd.Flags().IntVar(&opts.Prune, "prune", 0, "delete all but the newest N cycles first")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	path := opts.Project.Cache
	if _, err := os.Stat(path); err != nil {
		return f.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("build cache not found: %s", path), nil)
	}
	if opts.Limit < 1 {
		return f.fail(ExitCommandError, ErrCodeGeneric, "--limit must be at least 1", nil)
	}

	st, err := store.Open(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	defer st.Close()

	var result HistoryResult
	ctx := cmd.Context()
	if opts.Prune > 0 {
		n, err := st.PruneCycles(ctx, opts.Prune)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
		result.Pruned = n
	}

	cycles, err := st.RecentCycles(ctx, opts.Limit)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	result.Cycles = make([]HistoryEntry, 0, len(cycles))
	for _, c := range cycles {
		result.Cycles = append(result.Cycles, HistoryEntry{
			ID:         c.ID,
			Seq:        c.Seq,
			StartedAt:  c.StartedAt,
			DurationMS: c.Duration.Milliseconds(),
			Compiled:   c.Compiled,
			Cached:     c.Cached,
			Removed:    c.Removed,
			Failed:     c.Failed,
			Error:      c.Error,
		})
	}
	return f.Success(result)
}
