package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"circulation/internal/rfid"
)

var scanCount int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Print simulated RFID tag reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := rfid.NewScanner()
		for i := 0; i < scanCount; i++ {
			fmt.Fprintln(cmd.OutOrStdout(), scanner.Scan())
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVarP(&scanCount, "count", "n", 1, "number of tags to read")
}
