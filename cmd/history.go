package cmd

import (
	"fmt"
	"strings"

	"usb-fleet/internal/util"

	"github.com/spf13/cobra"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent install/uninstall/sync operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		return runHistory(a, historyLimitFlag)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "number of records to show")
}

func runHistory(a *app, limit int) error {
	records, err := a.log.Recent(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		util.Default.Println("No operations recorded yet.")
		return nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-20s %-16s %-10s %-36s %s\n", "WHEN", "DEVICE", "ACTION", "ITEM", "OUTCOME"))
	for _, rec := range records {
		name := a.reg.Nickname(rec.DeviceID)
		outcome := rec.Outcome
		if rec.Detail != "" {
			outcome += " (" + rec.Detail + ")"
		}
		b.WriteString(fmt.Sprintf("%-20s %-16s %-10s %-36s %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), name, rec.Action, rec.Item, outcome))
	}
	util.Default.PrintBlock(b.String(), false)
	return nil
}
