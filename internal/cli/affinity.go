package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var affinityCmd = &cobra.Command{
	Use:   "affinity",
	Short: "Map dimensions onto the interest taxonomy",
	RunE:  runAffinity,
}

func runAffinity(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.mapper == nil {
		return fmt.Errorf("no taxonomy configured: set affinity.taxonomy_path or TWIN3_TAXONOMY")
	}

	edges, err := a.mapper.Run(cmd.Context())
	if err != nil {
		return err
	}

	current := ""
	for _, e := range edges {
		if e.DimensionID != current {
			current = e.DimensionID
			dim, _ := a.reg.Get(current)
			fmt.Printf("%s (%s)\n", current, dim.Name)
		}
		fmt.Printf("  %2d. %.3f  %s\n", e.Rank, e.Score, e.Path)
	}
	return nil
}
