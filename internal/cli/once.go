package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var onceDate string

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Perform a single aggregation run and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := time.Now().UTC()
		if onceDate != "" {
			parsed, err := time.Parse("2006-01-02", onceDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			date = parsed
		}

		return getApp().RunOnce(cmd.Context(), date)
	},
}

func init() {
	onceCmd.Flags().StringVar(&onceDate, "date", "", "Price date to record (YYYY-MM-DD, defaults to today)")
}
