package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/config"
	"github.com/pendergraft/deploycheck/internal/harness"
)

type accountEntry struct {
	Index   int    `json:"index" yaml:"index"`
	Address string `json:"address" yaml:"address"`
	Role    string `json:"role,omitempty" yaml:"role,omitempty"`
	Signer  string `json:"signer" yaml:"signer"`
}

func createAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the provisioned test identities",
		Long: `Wait for the endpoint, fetch its test identities and show the role each
one is assigned. The order is the order the endpoint reports and is stable.

EXAMPLES:
  deploycheck accounts
  deploycheck accounts -o yaml
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccounts(cmd)
		},
	}
}

func runAccounts(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Ledger.Type = config.LedgerNone

	s, err := harness.Open(cmd.Context(), cfg, setupLogger(cfg))
	if err != nil {
		return err
	}
	defer s.Close()

	roleOf := make(map[common.Address]string)
	for name, addr := range roleAddresses(s) {
		roleOf[addr] = name
	}

	var entries []accountEntry
	for i, w := range s.Wallets() {
		signer := "none"
		if w.Signer != nil {
			signer = w.Signer.Kind()
		}
		entries = append(entries, accountEntry{
			Index:   i,
			Address: w.Address.Hex(),
			Role:    roleOf[w.Address],
			Signer:  signer,
		})
	}

	return render(cmd.OutOrStdout(), entries, func(out io.Writer) error {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tADDRESS\tROLE\tSIGNER")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Index, e.Address, e.Role, e.Signer)
		}
		return w.Flush()
	})
}

// roleAddresses maps role names to addresses for "$role" placeholders.
func roleAddresses(s *harness.Session) map[string]common.Address {
	out := make(map[string]common.Address)
	roles := s.Roles()
	for _, role := range roles.Roles() {
		if w, err := roles.Wallet(role); err == nil {
			out[string(role)] = w.Address
		}
	}
	return out
}
