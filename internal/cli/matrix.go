package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var matrixCmd = &cobra.Command{
	Use:   "matrix <user-id>",
	Short: "Print a user's trait matrix",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatrix,
}

func runMatrix(cmd *cobra.Command, args []string) error {
	userID := args[0]

	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	matrix, err := a.engine.Matrix(userID)
	if err != nil {
		return err
	}

	fmt.Printf("trait matrix for %s\n", userID)
	for _, s := range matrix {
		dim, _ := a.reg.Get(s.DimensionID)
		if s.UpdateCount == 0 {
			fmt.Printf("  %-8s %-28s 0x%02X %3d  (never updated)\n", s.DimensionID, dim.Name, s.Value, s.Value)
			continue
		}
		updated := time.UnixMilli(s.LastUpdatedAt).Format("2006-01-02")
		fmt.Printf("  %-8s %-28s 0x%02X %3d  (%d updates, last %s)\n",
			s.DimensionID, dim.Name, s.Value, s.Value, s.UpdateCount, updated)
	}
	return nil
}
