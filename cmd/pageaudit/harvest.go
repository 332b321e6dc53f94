package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) harvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "List publicly readable pages and write the report",
		Long: `harvest walks the content listing without credentials, skips pages in
archived spaces, flags pages last modified in or before the threshold year as
archive candidates, and writes one CSV row per remaining page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			rep, err := a.Harvest(cmd.Context())
			if err != nil {
				return stageError("harvest", err)
			}
			renderHarvest(cmd.OutOrStdout(), rep, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("archived-spaces", nil, "space keys to leave out of the report")
	flags.Int("threshold-year", 0, "flag pages last modified in or before this year")
	flags.String("views", "", "CSV of page view counts to add to the report")
	flags.String("on-invalid-item", "", "abort or skip when a listing item cannot be classified")
	flags.Int("max-pages", 0, "stop after this many listing pages (0 = all)")
	c.bind(flags, map[string]string{
		"harvest.archived_spaces":        "archived-spaces",
		"harvest.archive_threshold_year": "threshold-year",
		"report.views_file":              "views",
		"harvest.on_invalid_item":        "on-invalid-item",
		"harvest.max_pages":              "max-pages",
	})
	return cmd
}
