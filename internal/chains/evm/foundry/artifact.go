// Package foundry loads contract descriptors from Foundry build artifacts.
package foundry

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
)

// ConfigFile marks a Foundry project root.
const ConfigFile = "foundry.toml"

// Detect checks if a directory is a Foundry project
func Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, ConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Find locates the artifact for contractName under dir/out ({Source}.sol/{Contract}.json).
// The first match in walk order wins.
func Find(dir, contractName string) (string, error) {
	outDir := filepath.Join(dir, "out")
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return "", fmt.Errorf("out directory not found - run 'forge build' first")
	}

	var found string
	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if found != "" || info.IsDir() || strings.Contains(path, "build-info") {
			return nil
		}
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		if info.Name() == contractName+".json" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("artifact for %s not found in %s", contractName, outDir)
	}
	return found, nil
}

// Parse reads a Foundry artifact file. The contract name is the file name without .json.
func Parse(artifactPath string) (*chains.Descriptor, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return ParseBytes(strings.TrimSuffix(filepath.Base(artifactPath), ".json"), data)
}

// ParseBytes parses Foundry artifact JSON.
func ParseBytes(name string, data []byte) (*chains.Descriptor, error) {
	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	// Skip if no bytecode (interfaces, abstract contracts)
	if raw.Bytecode.Object == "" || raw.Bytecode.Object == "0x" {
		return nil, fmt.Errorf("%s: %w (likely an interface)", name, chains.ErrNoBytecode)
	}
	if len(raw.Bytecode.LinkReferences) > 0 {
		return nil, fmt.Errorf("%s: bytecode has unlinked library references", name)
	}

	code, err := hexutil.Decode(ensure0x(raw.Bytecode.Object))
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

	// Metadata is optional; only the source path is kept.
	if raw.RawMetadata != "" {
		var metadata Metadata
		if json.Unmarshal([]byte(raw.RawMetadata), &metadata) == nil {
			desc.SourcePath = getFirstKey(metadata.Settings.CompilationTarget)
		}
	}

	return desc, nil
}

// Artifact represents the structure of a Foundry artifact JSON file
type Artifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object         string                       `json:"object"`
	LinkReferences map[string]map[string][]Link `json:"linkReferences"`
}

// Link represents a library link reference
type Link struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Metadata represents the parsed rawMetadata field
type Metadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
}

// getFirstKey returns the first key from a map
func getFirstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
