package harness

import (
	_ "embed"

	"github.com/pendergraft/deploycheck/internal/chains"
	"github.com/pendergraft/deploycheck/internal/chains/evm"
)

//go:embed artifacts/Token.json
var tokenArtifact []byte

// SampleToken returns the bundled Token descriptor. Its constructor is
// (address admin, string name, string symbol, uint8 decimals).
func SampleToken() (*chains.Descriptor, error) {
	return evm.ParseDescriptor("Token", tokenArtifact)
}

// SampleTokenArgs returns constructor arguments for SampleToken.
func SampleTokenArgs(admin any) []any {
	return []any{admin, "TokenA", "AAA", 18}
}
