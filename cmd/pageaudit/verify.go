package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-check a sample of the report for public reachability",
		Long: `verify reads the report, picks a sample of its URLs, and requests each one
anonymously with a bounded number of requests in flight. Pages that are no
longer reachable are listed with the reason; they do not fail the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			rep, err := a.Verify(cmd.Context())
			if err != nil {
				return stageError("verify", err)
			}
			renderVerify(cmd.OutOrStdout(), rep, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64("sample-rate", 0, "fraction of report rows to check, in (0, 1]")
	flags.Uint64("seed", 0, "sampling seed; 0 picks a fresh sample every run")
	flags.Int("concurrency", 0, "maximum checks in flight")
	flags.Duration("timeout", 0, "per-check timeout")
	flags.String("method", "", "HEAD or GET")
	flags.Float64("rps", 0, "per-host requests per second (0 = unlimited)")
	c.bind(flags, map[string]string{
		"verify.sample_rate":         "sample-rate",
		"verify.seed":                "seed",
		"verify.concurrency":         "concurrency",
		"verify.timeout":             "timeout",
		"verify.method":              "method",
		"verify.requests_per_second": "rps",
	})
	return cmd
}
