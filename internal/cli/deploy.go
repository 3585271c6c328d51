package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/accounts"
	"github.com/pendergraft/deploycheck/internal/derive"
	"github.com/pendergraft/deploycheck/internal/harness"
)

type deployReport struct {
	Plan        planReport `json:"plan" yaml:"plan"`
	State       string     `json:"state" yaml:"state"`
	TxHash      string     `json:"txHash,omitempty" yaml:"txHash,omitempty"`
	Reported    string     `json:"reportedAddress,omitempty" yaml:"reportedAddress,omitempty"`
	BlockNumber uint64     `json:"blockNumber,omitempty" yaml:"blockNumber,omitempty"`
	GasUsed     uint64     `json:"gasUsed,omitempty" yaml:"gasUsed,omitempty"`
	Polls       int        `json:"polls" yaml:"polls"`
	Elapsed     string     `json:"elapsed" yaml:"elapsed"`
	AttemptID   string     `json:"attemptId,omitempty" yaml:"attemptId,omitempty"`
	Stage       string     `json:"failedStage,omitempty" yaml:"failedStage,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

func createDeployCmd() *cobra.Command {
	var flags contractFlags
	var salt, role string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a contract and verify its address",
		Long: `Wait for the endpoint, provision identities, derive the deployment address,
submit the deployment once and wait until it settles. The command fails unless
the contract is mined at the derived address.

Arguments may use "$deployer" and "$admin" for the provisioned identities.

EXAMPLES:
  # Deploy the bundled Token with admin = identity 1
  deploycheck deploy

  # Deploy a Foundry contract
  deploycheck deploy --contract Vault --args '["$admin", 1000]'

  # Machine-readable result
  deploycheck deploy -o json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, flags, salt, accounts.Role(role), timeout)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&salt, "salt", "", "32-byte hex salt (default: random)")
	cmd.Flags().StringVar(&role, "role", string(accounts.RoleDeployer), "identity that signs the deployment")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "settlement timeout (default from DEPLOY_TIMEOUT_SECONDS)")

	return cmd
}

func runDeploy(cmd *cobra.Command, flags contractFlags, saltHex string, role accounts.Role, timeout time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	project := loadProjectConfigSilent()
	desc, sample, err := flags.descriptor(project)
	if err != nil {
		return err
	}

	req := harness.DeployRequest{Descriptor: desc, Role: role, Timeout: timeout}
	if saltHex != "" {
		salt, err := derive.ParseSalt(saltHex)
		if err != nil {
			return err
		}
		req.Salt = &salt
	}

	ctx := cmd.Context()
	s, err := harness.Open(ctx, cfg, setupLogger(cfg))
	if err != nil {
		return err
	}
	defer s.Close()

	req.Args, err = flags.constructorArgs(project, sample, roleAddresses(s))
	if err != nil {
		return err
	}

	res, deployErr := s.Deploy(ctx, req)
	if res == nil {
		return deployErr
	}

	report := newDeployReport(res, desc.ConstructorSignature(), deployErr)
	if err := render(cmd.OutOrStdout(), report, func(w io.Writer) error {
		report.writeText(w)
		return nil
	}); err != nil {
		return err
	}
	return deployErr
}

func newDeployReport(res *harness.Result, constructor string, err error) deployReport {
	r := deployReport{
		Plan:      newPlanReport(res.Plan, constructor),
		State:     "built",
		AttemptID: res.AttemptID,
	}
	if res.Deployment != nil {
		r.State = string(res.Deployment.State())
	}
	if out := res.Outcome; out != nil {
		r.State = string(out.State)
		if out.TxHash != (common.Hash{}) {
			r.TxHash = out.TxHash.Hex()
		}
		if out.Reported != (common.Address{}) {
			r.Reported = out.Reported.Hex()
		}
		r.BlockNumber = out.BlockNumber
		r.GasUsed = out.GasUsed
		r.Polls = out.Polls
		r.Elapsed = out.Elapsed.Round(time.Millisecond).String()
	}
	if err != nil {
		r.Error = err.Error()
		var stage *harness.StageError
		if errors.As(err, &stage) {
			r.Stage = string(stage.Stage)
		}
	}
	return r
}

func (r deployReport) writeText(w io.Writer) {
	r.Plan.writeText(w)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "State:          %s\n", r.State)
	if r.TxHash != "" {
		fmt.Fprintf(w, "Transaction:    %s\n", r.TxHash)
	}
	if r.Reported != "" {
		fmt.Fprintf(w, "Reported:       %s\n", r.Reported)
	}
	if r.BlockNumber > 0 {
		fmt.Fprintf(w, "Block:          %d (gas %d)\n", r.BlockNumber, r.GasUsed)
	}
	if r.Elapsed != "" {
		fmt.Fprintf(w, "Settled in:     %s after %d poll(s)\n", r.Elapsed, r.Polls)
	}
	if r.AttemptID != "" {
		fmt.Fprintf(w, "Attempt:        %s\n", r.AttemptID)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "\nFAILED at %s: %s\n", r.Stage, r.Error)
		return
	}
	fmt.Fprintln(w, "\nOK: deployed at the derived address")
}
