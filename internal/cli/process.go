package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pw-Chen-km/Twin3-algo/internal/oracle"
)

var processMedia string

var processCmd = &cobra.Command{
	Use:   "process <user-id> <event text...>",
	Short: "Process one event for a user and print the dimension updates",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processMedia, "media", "", "image URL or file path to attach to the event")
}

func runProcess(cmd *cobra.Command, args []string) error {
	userID := args[0]
	text := strings.Join(args[1:], " ")
	if text == "" && processMedia == "" {
		return fmt.Errorf("event text or --media required")
	}

	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.ProcessEvent(cmd.Context(), userID, oracle.Event{Text: text, Media: processMedia})
	if err != nil {
		return err
	}

	fmt.Printf("tags: %s\n", strings.Join(result.Tags, ", "))
	if len(result.Updates) == 0 {
		fmt.Println("no dimensions matched")
		return nil
	}
	for _, u := range result.Updates {
		if u.Error != "" {
			fmt.Printf("  %-8s %-24s failed: %s\n", u.DimensionID, u.Name, u.Error)
			continue
		}
		fmt.Printf("  %-8s %-24s %3d -> %3d (raw %d, %s, sim %.2f)\n",
			u.DimensionID, u.Name, u.PreviousValue, u.NewValue, u.RawScore, u.Strategy, u.Similarity)
	}
	if result.Failed > 0 {
		fmt.Printf("%d of %d dimensions failed\n", result.Failed, len(result.Updates))
	}
	return nil
}
