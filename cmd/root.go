package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"usb-fleet/internal/batch"
	"usb-fleet/internal/bridge"
	"usb-fleet/internal/config"
	"usb-fleet/internal/events"
	"usb-fleet/internal/history"
	"usb-fleet/internal/inventory"
	"usb-fleet/internal/registry"
	"usb-fleet/internal/syncdata"
	"usb-fleet/internal/tui"
	"usb-fleet/internal/util"

	"github.com/spf13/cobra"
)

// app bundles the wired components every command needs. One sqlite file
// under the state dir backs both the registry and the operation history.
type app struct {
	cfg   *config.Config
	exec  *bridge.Executor
	reg   *registry.Registry
	inv   *inventory.Inventory
	log   *history.Log
	batch *batch.Orchestrator
	sync  *syncdata.Engine
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state dir %s: %v", cfg.StateDir, err)
	}

	exec := bridge.NewExecutor(cfg.AdbPath, cfg.Timeout())
	if err := exec.Verify(ctx); err != nil {
		return nil, err
	}

	store, err := registry.OpenStore(cfg.RegistryDBPath())
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(store)
	if err != nil {
		return nil, err
	}
	log, err := history.Open(cfg.RegistryDBPath())
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:   cfg,
		exec:  exec,
		reg:   reg,
		inv:   inventory.New(exec),
		log:   log,
		batch: batch.New(exec, reg, log),
		sync:  syncdata.New(exec, reg, log),
	}, nil
}

// refresh re-enumerates attached devices and folds the sighting into the
// registry before a command acts on the fleet.
func (a *app) refresh(ctx context.Context) ([]bridge.LiveDevice, error) {
	live, err := a.exec.Devices(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.reg.Reconcile(live); err != nil {
		return nil, err
	}
	return live, nil
}

// resolveTargets turns a --devices flag value (comma-separated ids or
// nicknames) into device ids, defaulting to every device that reports ready.
func (a *app) resolveTargets(ctx context.Context, flag string) ([]string, error) {
	live, err := a.refresh(ctx)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(flag) == "" {
		var ids []string
		for _, d := range live {
			if d.Status == bridge.StatusDevice {
				ids = append(ids, d.ID)
			}
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no ready devices attached")
		}
		return ids, nil
	}

	byName := make(map[string]string)
	for _, rec := range a.reg.List() {
		byName[rec.Nickname] = rec.DeviceID
		byName[rec.DeviceID] = rec.DeviceID
	}
	var ids []string
	for _, part := range strings.Split(flag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, ok := byName[part]
		if !ok {
			return nil, fmt.Errorf("unknown device %q (not an id or nickname)", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no devices selected")
	}
	return ids, nil
}

var rootCmd = &cobra.Command{
	Use:   "usb-fleet",
	Short: "USB Android fleet manager",
	Long: `Manage a fleet of USB-attached Android devices through adb:
device naming, batch APK install/uninstall, package inventory and
one-way folder sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if !config.ConfigExists() {
			fmt.Println("Config file not found")
			fmt.Println("USAGE:")
			fmt.Println("Make sure you have the config file by running.")
			fmt.Println("usb-fleet init")
			return
		}

		a, err := openApp(ctx)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return
		}
		fmt.Println("✅ Configuration is valid, adb is reachable!")

		for {
			select {
			case <-ctx.Done():
				fmt.Println("⏹ Cancelled")
				return
			default:
			}
			if !showMainMenu(ctx, a) {
				break
			}
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize config file",
	Long:  `Generate a default usb-fleet.yaml config file in the current directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		if config.ConfigExists() {
			fmt.Println("Config file already exists.")
			return
		}
		if err := config.Save(config.DefaultConfig()); err != nil {
			fmt.Printf("❌ %v\n", err)
			return
		}
		fmt.Printf("✅ Created %s\n", config.GetConfigPath())
		fmt.Println("💡 Adjust adb_path if adb is not on your PATH")
	},
}

func showMainMenu(ctx context.Context, a *app) bool {
	items := []string{
		"devices :: Scan & list devices",
		"rename :: Rename a device",
		"install :: Install APKs on the fleet",
		"uninstall :: Uninstall a package",
		"packages :: Package presence matrix",
		"sync :: Sync a folder to the fleet",
		"history :: Recent operations",
		"Exit",
	}

	// The bubbletea menu keeps forwarded SafePrinter output (watch re-runs,
	// late progress lines) visible underneath instead of corrupting it.
	result, err := tui.ShowMenuWithPrints(items, "Select an option")
	if err != nil {
		fmt.Printf("Menu failed %v\n", err)
		return false
	}

	var opErr error
	switch result {
	case "cancelled", "Exit":
		fmt.Println("Exiting...")
		return false
	case "devices :: Scan & list devices":
		opErr = runDevicesList(ctx, a)
	case "rename :: Rename a device":
		opErr = runRenameInteractive(ctx, a)
	case "install :: Install APKs on the fleet":
		opErr = runInstallInteractive(ctx, a)
	case "uninstall :: Uninstall a package":
		opErr = runUninstallInteractive(ctx, a)
	case "packages :: Package presence matrix":
		opErr = runPackages(ctx, a, false)
	case "sync :: Sync a folder to the fleet":
		opErr = runSyncInteractive(ctx, a)
	case "history :: Recent operations":
		opErr = runHistory(a, 20)
	}
	if opErr != nil {
		util.Default.Printf("❌ %v\n", opErr)
		// A launch failure mid-session means the adb binary is gone or the
		// config broke; keeping the menu alive would fail every option.
		if errors.Is(opErr, bridge.ErrLaunch) {
			events.GlobalBus.Publish(events.EventShutdownRequested, "adb bridge unavailable")
			return false
		}
	}
	return true
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(packagesCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(historyCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// ExecuteContext allows running the root command with a supplied context for cancellation.
func ExecuteContext(ctx context.Context) error {
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}
