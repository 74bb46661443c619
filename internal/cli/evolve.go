package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Mine recorded tags for new trait themes",
	RunE:  runEvolve,
}

func runEvolve(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	proposals, err := a.miner.Run(cmd.Context())
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		fmt.Println("no proposals: tag data too sparse or nothing clusters")
		return nil
	}

	for _, p := range proposals {
		switch p.Kind {
		case "extend":
			fmt.Printf("%2d. extend %-8s novelty %.3f support %d  [%s]\n",
				p.Rank, p.NearestDimension, p.NoveltyScore, p.SupportCount, strings.Join(p.Tags, ", "))
		default:
			fmt.Printf("%2d. create           novelty %.3f support %d  [%s]\n",
				p.Rank, p.NoveltyScore, p.SupportCount, strings.Join(p.Tags, ", "))
		}
	}
	return nil
}
