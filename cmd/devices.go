package cmd

import (
	"context"
	"fmt"
	"strings"

	"usb-fleet/internal/bridge"
	"usb-fleet/internal/util"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#50fa7b"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555"))
	absentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272a4"))
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Scan attached devices and list the registry",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(cmd.Context())
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return
		}
		if err := runDevicesList(cmd.Context(), a); err != nil {
			fmt.Printf("❌ %v\n", err)
		}
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <id-or-nickname> <new-nickname>",
	Short: "Rename a registered device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := a.refresh(cmd.Context()); err != nil {
			return err
		}
		id := args[0]
		for _, rec := range a.reg.List() {
			if rec.Nickname == args[0] {
				id = rec.DeviceID
				break
			}
		}
		if err := a.reg.Rename(id, args[1]); err != nil {
			return err
		}
		util.Default.Printf("✅ %s is now %q\n", id, args[1])
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id-or-nickname>",
	Short: "Remove a device from the registry",
	Long: `Drop a remembered device. The registry never removes devices on its
own when they unplug; this is the only way an entry goes away.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		id := args[0]
		for _, rec := range a.reg.List() {
			if rec.Nickname == args[0] {
				id = rec.DeviceID
				break
			}
		}
		if err := a.reg.Remove(id); err != nil {
			return err
		}
		util.Default.Printf("✅ Forgot %s\n", id)
		return nil
	},
}

func init() {
	devicesCmd.AddCommand(renameCmd)
	devicesCmd.AddCommand(forgetCmd)
}

func statusText(st bridge.Status) string {
	switch st {
	case bridge.StatusDevice:
		return readyStyle.Render("ready")
	case bridge.StatusUnauthorized:
		return pendingStyle.Render("unauthorized")
	case bridge.StatusOffline:
		return offlineStyle.Render("offline")
	default:
		return absentStyle.Render("absent")
	}
}

// runDevicesList reconciles a fresh scan into the registry and prints every
// known device: attached ones with their live status, remembered ones as
// absent with their last seen date.
func runDevicesList(ctx context.Context, a *app) error {
	live, err := a.refresh(ctx)
	if err != nil {
		return err
	}
	status := make(map[string]bridge.Status, len(live))
	for _, d := range live {
		status[d.ID] = d.Status
	}

	records := a.reg.List()
	if len(records) == 0 {
		util.Default.Println("No devices known yet. Attach a device over USB and rescan.")
		return nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-24s %-20s %-14s %s\n", "NICKNAME", "DEVICE ID", "STATUS", "LAST SEEN"))
	unauthorized := false
	for _, rec := range records {
		st := bridge.StatusAbsent
		if s, ok := status[rec.DeviceID]; ok {
			st = s
		}
		if st == bridge.StatusUnauthorized {
			unauthorized = true
		}
		b.WriteString(fmt.Sprintf("%-24s %-20s %-14s %s\n", rec.Nickname, rec.DeviceID, statusText(st), rec.LastSeen))
	}
	util.Default.PrintBlock(b.String(), false)

	if unauthorized {
		util.Default.Println("💡 Unauthorized devices: accept the USB debugging prompt on the device screen.")
	}
	return nil
}

func runRenameInteractive(ctx context.Context, a *app) error {
	if _, err := a.refresh(ctx); err != nil {
		return err
	}
	records := a.reg.List()
	if len(records) == 0 {
		return fmt.Errorf("no devices known yet")
	}

	items := make([]string, len(records))
	for i, rec := range records {
		items[i] = fmt.Sprintf("%s (%s)", rec.Nickname, rec.DeviceID)
	}
	sel := promptui.Select{Label: "Device to rename", Items: items}
	idx, _, err := sel.Run()
	if err != nil {
		return err
	}

	prompt := promptui.Prompt{
		Label:   "New nickname",
		Default: records[idx].Nickname,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("nickname cannot be empty")
			}
			return nil
		},
	}
	name, err := prompt.Run()
	if err != nil {
		return err
	}
	if err := a.reg.Rename(records[idx].DeviceID, strings.TrimSpace(name)); err != nil {
		return err
	}
	util.Default.Printf("✅ %s is now %q\n", records[idx].DeviceID, strings.TrimSpace(name))
	return nil
}
