package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/readiness"
	"github.com/pendergraft/deploycheck/pkg/client"
)

type checkReport struct {
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	Ready         bool   `json:"ready" yaml:"ready"`
	ClientVersion string `json:"clientVersion,omitempty" yaml:"clientVersion,omitempty"`
	ChainID       string `json:"chainId,omitempty" yaml:"chainId,omitempty"`
	Elapsed       string `json:"elapsed" yaml:"elapsed"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

func createCheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Wait until the endpoint is ready",
		Long: `Poll the endpoint until it answers health checks or the timeout passes.

EXAMPLES:
  # Wait up to READY_TIMEOUT_SECONDS for the local sandbox
  deploycheck check

  # Fail fast against a remote endpoint
  deploycheck check --endpoint http://sandbox:8545 --timeout 10s
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "readiness timeout (default from READY_TIMEOUT_SECONDS)")

	return cmd
}

func runCheck(cmd *cobra.Command, timeout time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	ctx := cmd.Context()

	c, err := client.Dial(ctx, cfg.Harness.Endpoint)
	if err != nil {
		return err
	}
	defer c.Close()

	if timeout <= 0 {
		timeout = cfg.Harness.ReadyTimeout
	}

	start := time.Now()
	waitErr := readiness.WaitUntilReady(ctx, c, timeout,
		readiness.WithInterval(cfg.Harness.ReadyInterval),
		readiness.WithLogger(logger),
	)
	report := checkReport{
		Endpoint: c.Endpoint(),
		Ready:    waitErr == nil,
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
	}
	if waitErr != nil {
		report.Error = waitErr.Error()
	} else {
		if v, err := c.ClientVersion(ctx); err == nil {
			report.ClientVersion = v
		}
		if id, err := c.ChainID(ctx); err == nil {
			report.ChainID = id.String()
		}
	}

	err = render(cmd.OutOrStdout(), report, func(w io.Writer) error {
		if !report.Ready {
			fmt.Fprintf(w, "%s is not ready after %s\n", report.Endpoint, report.Elapsed)
			return nil
		}
		fmt.Fprintf(w, "%s is ready (%s)\n", report.Endpoint, report.Elapsed)
		fmt.Fprintf(w, "  Client:   %s\n", report.ClientVersion)
		fmt.Fprintf(w, "  Chain ID: %s\n", report.ChainID)
		return nil
	})
	if err != nil {
		return err
	}
	return waitErr
}
