package cli

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/chains/evm"
	"github.com/pendergraft/deploycheck/internal/derive"
	"github.com/pendergraft/deploycheck/internal/validation"
)

type planReport struct {
	Contract     string   `json:"contract" yaml:"contract"`
	Constructor  string   `json:"constructor" yaml:"constructor"`
	DescriptorID string   `json:"descriptorId" yaml:"descriptorId"`
	Args         []string `json:"args" yaml:"args"`
	Deployer     string   `json:"deployer" yaml:"deployer"`
	Factory      string   `json:"factory" yaml:"factory"`
	Salt         string   `json:"salt" yaml:"salt"`
	GuardedSalt  string   `json:"guardedSalt" yaml:"guardedSalt"`
	InitCodeHash string   `json:"initCodeHash" yaml:"initCodeHash"`
	Address      string   `json:"address" yaml:"address"`
}

func newPlanReport(plan *derive.Plan, constructor string) planReport {
	return planReport{
		Contract:     plan.Contract,
		Constructor:  constructor,
		DescriptorID: plan.DescriptorID.Hex(),
		Args:         formatArgs(plan.Args),
		Deployer:     plan.Deployer.Hex(),
		Factory:      plan.Factory.Hex(),
		Salt:         plan.Salt.String(),
		GuardedSalt:  plan.GuardedSalt.Hex(),
		InitCodeHash: plan.InitCodeHash.Hex(),
		Address:      plan.Address.Hex(),
	}
}

func (r planReport) writeText(w io.Writer) {
	fmt.Fprintf(w, "Contract:       %s\n", r.Contract)
	fmt.Fprintf(w, "Constructor:    %s\n", r.Constructor)
	fmt.Fprintf(w, "Args:           %v\n", r.Args)
	fmt.Fprintf(w, "Deployer:       %s\n", r.Deployer)
	fmt.Fprintf(w, "Factory:        %s\n", r.Factory)
	fmt.Fprintf(w, "Salt:           %s\n", r.Salt)
	fmt.Fprintf(w, "Init code hash: %s\n", r.InitCodeHash)
	fmt.Fprintf(w, "Address:        %s\n", r.Address)
}

func createDeriveCmd() *cobra.Command {
	var flags contractFlags
	var deployer, admin, salt string

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Compute a deployment address offline",
		Long: `Validate constructor arguments and compute the address a deployment will
have, without contacting any endpoint.

EXAMPLES:
  # Bundled Token with a fresh salt
  deploycheck derive --deployer 0xf39F... --admin 0x7099...

  # Reproduce an address from a known salt
  deploycheck derive --artifact out/Token.sol/Token.json \
    --deployer 0xf39F... --salt 0x01... --args '["0x7099...","TokenA","AAA",18]'
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(cmd, flags, deployer, admin, salt)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&deployer, "deployer", "", "deployer address (required)")
	cmd.Flags().StringVar(&admin, "admin", "", "address substituted for $admin")
	cmd.Flags().StringVar(&salt, "salt", "", "32-byte hex salt (default: random)")
	_ = cmd.MarkFlagRequired("deployer")

	return cmd
}

func runDerive(cmd *cobra.Command, flags contractFlags, deployer, admin, saltHex string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	roles := make(map[string]common.Address)
	if err := validation.ValidateAddress(deployer); err != nil {
		return fmt.Errorf("--deployer: %w", err)
	}
	roles["deployer"] = common.HexToAddress(deployer)
	if admin != "" {
		if err := validation.ValidateAddress(admin); err != nil {
			return fmt.Errorf("--admin: %w", err)
		}
		roles["admin"] = common.HexToAddress(admin)
	}

	var salt derive.Salt
	if saltHex != "" {
		salt, err = derive.ParseSalt(saltHex)
	} else {
		salt, err = derive.NewSalt()
	}
	if err != nil {
		return err
	}

	project := loadProjectConfigSilent()
	desc, sample, err := flags.descriptor(project)
	if err != nil {
		return err
	}
	ctorArgs, err := flags.constructorArgs(project, sample, roles)
	if err != nil {
		return err
	}
	if desc.Version != "" && validation.IsPrerelease(desc.Version) {
		setupLogger(cfg).Warn("deriving for a prerelease descriptor", "contract", desc.String())
	}

	d := derive.New(evm.Create2Scheme{}, common.HexToAddress(cfg.Harness.Factory))
	plan, err := d.Derive(derive.Request{
		Descriptor: desc,
		Args:       ctorArgs,
		Salt:       salt,
		Deployer:   roles["deployer"],
	})
	if err != nil {
		return err
	}

	report := newPlanReport(plan, desc.ConstructorSignature())
	return render(cmd.OutOrStdout(), report, func(w io.Writer) error {
		report.writeText(w)
		return nil
	})
}
