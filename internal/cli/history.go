package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/storage"
)

type attemptEntry struct {
	ID             string `json:"id" yaml:"id"`
	Contract       string `json:"contract" yaml:"contract"`
	State          string `json:"state" yaml:"state"`
	Salt           string `json:"salt" yaml:"salt"`
	Deployer       string `json:"deployer" yaml:"deployer"`
	DerivedAddress string `json:"derivedAddress" yaml:"derivedAddress"`
	RemoteAddress  string `json:"remoteAddress,omitempty" yaml:"remoteAddress,omitempty"`
	TxHash         string `json:"txHash,omitempty" yaml:"txHash,omitempty"`
	Reason         string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	CreatedAt      string `json:"createdAt" yaml:"createdAt"`
	FinishedAt     string `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
}

type historyPage struct {
	Attempts   []attemptEntry `json:"attempts" yaml:"attempts"`
	HasMore    bool           `json:"hasMore" yaml:"hasMore"`
	NextCursor string         `json:"nextCursor,omitempty" yaml:"nextCursor,omitempty"`
}

func createHistoryCmd() *cobra.Command {
	var contract, state, cursor string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deployment attempts",
		Long: `List attempts recorded in the ledger, newest first.
The ledger is enabled with LEDGER_TYPE (sqlite or postgres) or [ledger] in
deploycheck.toml.

EXAMPLES:
  deploycheck history
  deploycheck history --contract Token --state failed
  deploycheck history --limit 50 -o json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, storage.AttemptFilter{Contract: contract, State: state}, storage.PaginationParams{Limit: limit, Cursor: cursor})
		},
	}

	cmd.Flags().StringVar(&contract, "contract", "", "filter by contract")
	cmd.Flags().StringVar(&state, "state", "", "filter by state (mined, failed, timed_out, pending, submitted, built)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of attempts to show")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")

	return cmd
}

func runHistory(cmd *cobra.Command, filter storage.AttemptFilter, pagination storage.PaginationParams) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	store, err := storage.New(cfg.Ledger, logger)
	if errors.Is(err, storage.ErrDisabled) {
		return fmt.Errorf("%w: set LEDGER_TYPE to sqlite or postgres", err)
	}
	if err != nil {
		return fmt.Errorf("initializing ledger: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	result, err := store.ListAttempts(ctx, filter, pagination)
	if err != nil {
		return fmt.Errorf("failed to list attempts: %w", err)
	}

	page := historyPage{HasMore: result.HasMore, NextCursor: result.NextCursor}
	for _, a := range result.Data {
		page.Attempts = append(page.Attempts, newAttemptEntry(a))
	}

	return render(cmd.OutOrStdout(), page, func(out io.Writer) error {
		if len(page.Attempts) == 0 {
			fmt.Fprintln(out, "No attempts found")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCONTRACT\tSTATE\tADDRESS\tCREATED")
		for _, a := range page.Attempts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID[:min(8, len(a.ID))], a.Contract, a.State, truncateAddress(a.DerivedAddress), a.CreatedAt)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if page.HasMore {
			fmt.Fprintf(out, "\n(more available: --cursor %s)\n", page.NextCursor)
		}
		return nil
	})
}

func newAttemptEntry(a storage.Attempt) attemptEntry {
	e := attemptEntry{
		ID:             a.ID,
		Contract:       a.Contract,
		State:          a.State,
		Salt:           a.Salt,
		Deployer:       a.Deployer,
		DerivedAddress: a.DerivedAddress,
		RemoteAddress:  a.RemoteAddress,
		TxHash:         a.TxHash,
		Reason:         a.Reason,
		Endpoint:       a.Endpoint,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
	if a.FinishedAt != nil {
		e.FinishedAt = a.FinishedAt.Format(time.RFC3339)
	}
	return e
}
