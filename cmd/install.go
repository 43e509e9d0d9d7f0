package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"usb-fleet/internal/batch"
	"usb-fleet/internal/tui"
	"usb-fleet/internal/util"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var installDevicesFlag string

var installCmd = &cobra.Command{
	Use:   "install <apk> [apk...]",
	Short: "Install APKs on every selected device",
	Long: `Install one or more APK files across the fleet, sequentially.
Each apk/device pair gets its own outcome; one failure never stops the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		for _, apk := range args {
			if _, err := os.Stat(apk); err != nil {
				return fmt.Errorf("apk not found: %s", apk)
			}
		}
		ids, err := a.resolveTargets(cmd.Context(), installDevicesFlag)
		if err != nil {
			return err
		}
		return runInstall(cmd.Context(), a, args, ids)
	},
}

func init() {
	installCmd.Flags().StringVar(&installDevicesFlag, "devices", "", "comma-separated device ids or nicknames (default: all ready devices)")
}

func runInstall(ctx context.Context, a *app, apks, ids []string) error {
	var steps []batch.Step
	err := tui.RunWithProgress(fmt.Sprintf("Installing %d APK(s) on %d device(s)", len(apks), len(ids)), func() error {
		var runErr error
		steps, runErr = a.batch.RunInstall(ctx, apks, ids)
		return runErr
	})
	if err != nil {
		return err
	}
	printBatchSummary(steps)
	return nil
}

func printBatchSummary(steps []batch.Step) {
	ok, notInstalled, failed := 0, 0, 0
	for _, s := range steps {
		switch s.Outcome {
		case batch.OutcomeSuccess:
			ok++
		case batch.OutcomeNotInstalled:
			notInstalled++
		default:
			failed++
		}
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Summary: %d ok, %d failed", ok, failed))
	if notInstalled > 0 {
		b.WriteString(fmt.Sprintf(", %d not installed", notInstalled))
	}
	b.WriteString("\n")
	for _, s := range steps {
		if s.Outcome == batch.OutcomeFailed {
			b.WriteString(fmt.Sprintf("  ❌ [%s] %s: %s\n", s.DeviceName, s.Item, s.Detail))
		}
	}
	util.Default.PrintBlock(b.String(), false)
}

func runInstallInteractive(ctx context.Context, a *app) error {
	prompt := promptui.Prompt{
		Label: "APK file or folder of APKs",
		Validate: func(s string) error {
			if _, err := os.Stat(strings.TrimSpace(s)); err != nil {
				return fmt.Errorf("path does not exist")
			}
			return nil
		},
	}
	path, err := prompt.Run()
	if err != nil {
		return err
	}
	path = strings.TrimSpace(path)

	var apks []string
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		matches, _ := filepath.Glob(filepath.Join(path, "*.apk"))
		apks = matches
	} else {
		apks = []string{path}
	}
	if len(apks) == 0 {
		return fmt.Errorf("no .apk files under %s", path)
	}

	ids, err := a.resolveTargets(ctx, "")
	if err != nil {
		return err
	}
	return runInstall(ctx, a, apks, ids)
}
