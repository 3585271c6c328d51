package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// outputFormat resolves the --output flag. Without it, text is used on a
// terminal and JSON when stdout is redirected.
func outputFormat() (string, error) {
	switch output {
	case formatText, formatJSON, formatYAML:
		return output, nil
	case "":
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return formatText, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", output)
	}
}

// render writes v as JSON or YAML, or calls text for the human format.
func render(w io.Writer, v any, text func(io.Writer) error) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

// truncateAddress shortens a hex string for display (0x1234...5678)
func truncateAddress(addr string) string {
	if len(addr) <= 13 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
