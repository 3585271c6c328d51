package evm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pendergraft/deploycheck/internal/chains"
	"github.com/pendergraft/deploycheck/internal/chains/evm/foundry"
)

// hardhatArtifact is the Hardhat / plain solc layout: bytecode is a hex string.
type hardhatArtifact struct {
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadDescriptor reads a Foundry or Hardhat artifact from disk.
func LoadDescriptor(path string) (*chains.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return ParseDescriptor(strings.TrimSuffix(filepath.Base(path), ".json"), data)
}

// ParseDescriptor detects the artifact layout from the shape of the bytecode field.
func ParseDescriptor(name string, data []byte) (*chains.Descriptor, error) {
	var probe struct {
		Bytecode json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	trimmed := bytes.TrimSpace(probe.Bytecode)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return foundry.ParseBytes(name, data)
	}

	var raw hardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	if raw.ContractName != "" {
		name = raw.ContractName
	}
	if raw.Bytecode == "" || raw.Bytecode == "0x" {
		return nil, fmt.Errorf("%s: %w", name, chains.ErrNoBytecode)
	}

	code, err := hexutil.Decode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	contractABI, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}

	desc, err := chains.NewDescriptor(name, contractABI, code)
	if err != nil {
		return nil, err
	}
	desc.SourcePath = raw.SourceName
	return desc, nil
}
