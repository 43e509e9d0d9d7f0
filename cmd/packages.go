package cmd

import (
	"context"
	"fmt"
	"strings"

	"usb-fleet/internal/inventory"
	"usb-fleet/internal/util"

	"github.com/spf13/cobra"
)

var (
	packagesDevicesFlag string
	packagesMissingFlag bool
)

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "Show the package presence matrix across devices",
	Long: `List every package seen on any selected device and whether each
device has it. --missing-only narrows the list to packages absent from at
least one device, which is the practical "what do I still need to install"
view for a fleet that should be uniform.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		ids, err := a.resolveTargets(cmd.Context(), packagesDevicesFlag)
		if err != nil {
			return err
		}
		return runPackagesOn(cmd.Context(), a, ids, packagesMissingFlag)
	},
}

func init() {
	packagesCmd.Flags().StringVar(&packagesDevicesFlag, "devices", "", "comma-separated device ids or nicknames (default: all ready devices)")
	packagesCmd.Flags().BoolVar(&packagesMissingFlag, "missing-only", false, "only packages missing from at least one device")
}

func runPackages(ctx context.Context, a *app, missingOnly bool) error {
	ids, err := a.resolveTargets(ctx, "")
	if err != nil {
		return err
	}
	return runPackagesOn(ctx, a, ids, missingOnly)
}

func runPackagesOn(ctx context.Context, a *app, ids []string, missingOnly bool) error {
	matrix, warnings := a.inv.Scan(ctx, ids)
	for _, w := range warnings {
		util.Default.Printf("⚠️  %s\n", w)
	}

	pkgs := matrix.Packages
	if missingOnly {
		pkgs = inventory.MissingOnly(matrix)
	}
	if len(pkgs) == 0 {
		if missingOnly {
			util.Default.Println("✅ Every package is present on every device.")
		} else {
			util.Default.Println("No packages found.")
		}
		return nil
	}

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = a.reg.Nickname(id)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-48s %s\n", "PACKAGE", strings.Join(names, "  ")))
	for _, pkg := range pkgs {
		cells := make([]string, len(ids))
		for i, id := range ids {
			mark := "✗"
			if matrix.Present(pkg, id) {
				mark = "✓"
			}
			cells[i] = fmt.Sprintf("%-*s", len(names[i])+2, mark)
		}
		b.WriteString(fmt.Sprintf("%-48s %s\n", pkg, strings.Join(cells, "")))
	}
	b.WriteString(fmt.Sprintf("\n%d package(s), %d device(s)\n", len(pkgs), len(ids)))
	for i, id := range ids {
		count := 0
		for _, pkg := range matrix.Packages {
			if matrix.Present(pkg, id) {
				count++
			}
		}
		b.WriteString(fmt.Sprintf("  %s: %d installed\n", names[i], count))
	}
	util.Default.PrintBlock(b.String(), false)
	return nil
}
