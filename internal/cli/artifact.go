package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/chains"
	"github.com/pendergraft/deploycheck/internal/chains/evm"
	"github.com/pendergraft/deploycheck/internal/chains/evm/foundry"
	"github.com/pendergraft/deploycheck/internal/harness"
	"github.com/pendergraft/deploycheck/internal/validation"
)

// contractFlags select the descriptor and constructor arguments.
type contractFlags struct {
	artifact string
	contract string
	version  string
	args     string
}

func (f *contractFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.artifact, "artifact", "", "contract artifact JSON (Foundry or Hardhat)")
	cmd.Flags().StringVar(&f.contract, "contract", "", "contract name to look up under ./out in a Foundry project")
	cmd.Flags().StringVar(&f.version, "version", "", "descriptor version (semver)")
	cmd.Flags().StringVar(&f.args, "args", "", `constructor arguments as a JSON array, e.g. '["$admin","TokenA","AAA",18]'`)
}

// descriptor loads the contract to deploy: an explicit artifact, a Foundry
// contract by name, or the bundled Token. Flags win over the project file.
func (f *contractFlags) descriptor(project *ProjectConfig) (*chains.Descriptor, bool, error) {
	artifact, contract, version := f.artifact, f.contract, f.version
	if project != nil {
		artifact = firstNonEmpty(artifact, project.Artifact)
		contract = firstNonEmpty(contract, project.Contract)
		version = firstNonEmpty(version, project.Version)
	}

	var desc *chains.Descriptor
	var err error
	sample := false
	switch {
	case artifact != "":
		desc, err = evm.LoadDescriptor(artifact)
	case contract != "":
		desc, err = findFoundryContract(".", contract)
	default:
		desc, err = harness.SampleToken()
		sample = true
	}
	if err != nil {
		return nil, false, err
	}

	if version != "" {
		if err := validation.ValidateVersion(version); err != nil {
			return nil, false, err
		}
		desc.Version = validation.NormalizeVersion(version)
	}
	return desc, sample, nil
}

func findFoundryContract(dir, name string) (*chains.Descriptor, error) {
	if err := validation.ValidateContractName(name); err != nil {
		return nil, err
	}
	ok, err := foundry.Detect(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no %s in %s; pass --artifact instead", foundry.ConfigFile, dir)
	}
	path, err := foundry.Find(dir, name)
	if err != nil {
		return nil, err
	}
	return foundry.Parse(path)
}

// constructorArgs returns the raw arguments with "$role" placeholders
// replaced by the matching address.
func (f *contractFlags) constructorArgs(project *ProjectConfig, sample bool, roles map[string]common.Address) ([]any, error) {
	var raw []any
	switch {
	case f.args != "":
		dec := json.NewDecoder(strings.NewReader(f.args))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parsing --args: %w", err)
		}
	case project != nil && project.Args != nil:
		raw = project.Args
	case sample:
		raw = harness.SampleTokenArgs("$admin")
	}
	return expandPlaceholders(raw, roles)
}

func expandPlaceholders(args []any, roles map[string]common.Address) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		s, ok := a.(string)
		if !ok || !strings.HasPrefix(s, "$") {
			out[i] = a
			continue
		}
		addr, ok := roles[strings.TrimPrefix(s, "$")]
		if !ok {
			return nil, fmt.Errorf("argument %d: unknown placeholder %s", i, s)
		}
		out[i] = addr
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// formatArgs renders coerced constructor arguments for reports.
func formatArgs(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case common.Address:
			out[i] = v.Hex()
		case []byte:
			out[i] = fmt.Sprintf("0x%x", v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
