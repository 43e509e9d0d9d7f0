package cmd

import (
	"context"
	"fmt"

	"usb-fleet/internal/batch"
	"usb-fleet/internal/tui"
	"usb-fleet/internal/util"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	uninstallDevicesFlag string
	uninstallYesFlag     bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <package>",
	Short: "Uninstall a package from every selected device",
	Long: `Uninstall one package id across the fleet. A device where the
package is already absent counts as "not installed", not as a failure.
System packages require confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		ids, err := a.resolveTargets(cmd.Context(), uninstallDevicesFlag)
		if err != nil {
			return err
		}
		return runUninstall(cmd.Context(), a, args[0], ids, uninstallYesFlag)
	},
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallDevicesFlag, "devices", "", "comma-separated device ids or nicknames (default: all ready devices)")
	uninstallCmd.Flags().BoolVar(&uninstallYesFlag, "yes", false, "skip the system package confirmation")
}

// runUninstall checks the package against the first device's system
// classification before touching anything; removing a system package can
// brick core functionality, so it needs an explicit yes.
func runUninstall(ctx context.Context, a *app, pkg string, ids []string, yes bool) error {
	if !yes && len(ids) > 0 {
		system, err := a.inv.ClassifySystem(ctx, ids[0])
		if err != nil {
			util.Default.Printf("⚠️  Cannot classify %s (%v), continuing without the system check\n", pkg, err)
		} else if system[pkg] {
			confirm := promptui.Prompt{
				Label:     fmt.Sprintf("%s is a SYSTEM package. Uninstall anyway", pkg),
				IsConfirm: true,
			}
			if _, err := confirm.Run(); err != nil {
				util.Default.Println("⏹ Cancelled")
				return nil
			}
		}
	}

	var steps []batch.Step
	err := tui.RunWithProgress(fmt.Sprintf("Uninstalling %s on %d device(s)", pkg, len(ids)), func() error {
		var runErr error
		steps, runErr = a.batch.RunUninstall(ctx, pkg, ids)
		return runErr
	})
	if err != nil {
		return err
	}
	printBatchSummary(steps)
	return nil
}

func runUninstallInteractive(ctx context.Context, a *app) error {
	prompt := promptui.Prompt{Label: "Package id (e.g. com.example.app)"}
	pkg, err := prompt.Run()
	if err != nil {
		return err
	}
	ids, err := a.resolveTargets(ctx, "")
	if err != nil {
		return err
	}
	return runUninstall(ctx, a, pkg, ids, false)
}
