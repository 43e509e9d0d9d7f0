package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"usb-fleet/internal/config"
	"usb-fleet/internal/events"
	"usb-fleet/internal/syncdata"
	"usb-fleet/internal/tui"
	"usb-fleet/internal/util"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	syncDevicesFlag string
	syncLocalFlag   string
	syncRemoteFlag  string
	syncWatchFlag   bool
	syncYesFlag     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync a PC folder onto every selected device",
	Long: `One-way sync: the local folder is the source of truth. New files are
pushed, conflicting files are resolved by the chosen policy (skip,
overwrite, rename with timestamp) and device-only files can be kept or
deleted. With --yes the run is non-interactive: overwrite conflicts, keep
orphans. --watch keeps re-syncing after local changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}

		local := strings.TrimSpace(syncLocalFlag)
		remote := strings.TrimSpace(syncRemoteFlag)
		if local == "" || remote == "" {
			if syncYesFlag {
				return fmt.Errorf("--yes requires --local and --remote")
			}
			return runSyncInteractive(cmd.Context(), a)
		}
		if _, err := os.Stat(local); err != nil {
			return fmt.Errorf("local folder not found: %s", local)
		}

		ids, err := a.resolveTargets(cmd.Context(), syncDevicesFlag)
		if err != nil {
			return err
		}

		policy := syncdata.HeadlessPolicy()
		hooks := syncdata.Hooks{}
		if !syncYesFlag {
			policy = syncdata.Policy{
				OnConflict: syncdata.ConflictOverwrite,
				OnOrphan:   syncdata.OrphanKeep,
				Scope:      syncdata.ScopePerDecision,
			}
			hooks = promptHooks()
		}
		return runSync(cmd.Context(), a, ids, local, remote, policy, hooks, syncWatchFlag)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncDevicesFlag, "devices", "", "comma-separated device ids or nicknames (default: all ready devices)")
	syncCmd.Flags().StringVar(&syncLocalFlag, "local", "", "PC folder to sync from")
	syncCmd.Flags().StringVar(&syncRemoteFlag, "remote", "", "device folder to sync to (e.g. /sdcard/Movies/)")
	syncCmd.Flags().BoolVar(&syncWatchFlag, "watch", false, "keep watching the local folder and re-sync on change")
	syncCmd.Flags().BoolVar(&syncYesFlag, "yes", false, "non-interactive: overwrite conflicts, keep device-only files")
}

func runSync(ctx context.Context, a *app, ids []string, local, remote string, policy syncdata.Policy, hooks syncdata.Hooks, watch bool) error {
	if err := ensureRemoteRoots(ctx, a, ids, remote, hooks.AskOrphan == nil); err != nil {
		return err
	}

	// The progress view owns the terminal, so it is only used when no
	// decision prompt can fire mid-run.
	interactive := hooks.AskOrphan != nil || hooks.AskConflict != nil

	doRun := func(ctx context.Context) error {
		var outcomes []syncdata.FileOutcome
		var err error
		if interactive {
			onFile := func(out syncdata.FileOutcome) {
				mark := "✅"
				if !out.OK {
					mark = "❌"
				}
				util.Default.Printf("%s [%s] %s %s %s\n", mark, out.DeviceName, out.Action, out.RelPath, out.Detail)
			}
			_ = events.GlobalBus.Subscribe(events.EventSyncFileOutcome, onFile)
			outcomes, err = a.sync.Run(ctx, ids, local, remote, policy, hooks)
			_ = events.GlobalBus.Unsubscribe(events.EventSyncFileOutcome, onFile)
		} else {
			err = tui.RunWithProgress(fmt.Sprintf("Syncing %s -> %s on %d device(s)", local, remote, len(ids)), func() error {
				var runErr error
				outcomes, runErr = a.sync.Run(ctx, ids, local, remote, policy, hooks)
				return runErr
			})
		}
		if err != nil {
			return err
		}
		printSyncSummary(outcomes)
		return nil
	}

	if err := doRun(ctx); err != nil {
		return err
	}
	rememberLastFolder(a.cfg, local)

	if !watch {
		return nil
	}
	// Watch re-runs are always headless; prompting on every file change is
	// not workable.
	headless := syncdata.HeadlessPolicy()
	w := syncdata.NewWatcher(local, func(ctx context.Context) error {
		var outcomes []syncdata.FileOutcome
		outcomes, err := a.sync.Run(ctx, ids, local, remote, headless, syncdata.Hooks{})
		if err != nil {
			return err
		}
		printSyncSummary(outcomes)
		return nil
	})
	err := w.Watch(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// ensureRemoteRoots probes the remote folder on each device and creates it
// when missing, after confirmation in interactive mode.
func ensureRemoteRoots(ctx context.Context, a *app, ids []string, remote string, headless bool) error {
	for _, id := range ids {
		exists, err := a.sync.RemoteRootExists(ctx, id, remote)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		name := a.reg.Nickname(id)
		if !headless {
			confirm := promptui.Prompt{
				Label:     fmt.Sprintf("%s does not exist on %s. Create it", remote, name),
				IsConfirm: true,
			}
			if _, err := confirm.Run(); err != nil {
				return fmt.Errorf("remote folder %s missing on %s", remote, name)
			}
		}
		if err := a.sync.EnsureRemoteRoot(ctx, id, remote); err != nil {
			return err
		}
		util.Default.Printf("📁 Created %s on %s\n", remote, name)
	}
	return nil
}

func printSyncSummary(outcomes []syncdata.FileOutcome) {
	pushed, skipped, deleted, failed := 0, 0, 0, 0
	var b strings.Builder
	for _, o := range outcomes {
		switch {
		case o.Action == "gate" || !o.OK:
			failed++
			b.WriteString(fmt.Sprintf("  ❌ [%s] %s %s: %s\n", o.DeviceName, o.Action, o.RelPath, o.Detail))
		case o.Action == "skip":
			skipped++
		case o.Action == "delete":
			deleted++
		default:
			pushed++
		}
	}
	head := fmt.Sprintf("Summary: %d pushed, %d skipped, %d deleted, %d failed\n", pushed, skipped, deleted, failed)
	util.Default.PrintBlock(head+b.String(), false)
}

func rememberLastFolder(cfg *config.Config, local string) {
	if cfg.Sync.LastPCFolder == local {
		return
	}
	cfg.Sync.LastPCFolder = local
	if err := config.Save(cfg); err != nil {
		util.Default.Printf("⚠️  Could not remember last folder: %v\n", err)
	}
}

// promptHooks builds the interactive conflict/orphan strategies. "Apply to
// all" answers are pinned inside the closures for the rest of the run.
func promptHooks() syncdata.Hooks {
	var pinnedConflict *syncdata.ConflictAction
	return syncdata.Hooks{
		AskConflict: func(relPath, deviceName string, firstDevice bool) syncdata.ConflictAction {
			if pinnedConflict != nil {
				return *pinnedConflict
			}
			items := []string{
				"Skip",
				"Overwrite",
				"Rename with timestamp",
				"Overwrite (apply to all)",
				"Skip (apply to all)",
			}
			sel := promptui.Select{
				Label: fmt.Sprintf("%s already exists on %s", relPath, deviceName),
				Items: items,
			}
			// Background progress lines would tear the prompt apart.
			util.Default.Suspend()
			_, result, err := sel.Run()
			util.Default.Resume()
			if err != nil {
				return syncdata.ConflictSkip
			}
			switch result {
			case "Overwrite":
				return syncdata.ConflictOverwrite
			case "Rename with timestamp":
				return syncdata.ConflictRename
			case "Overwrite (apply to all)":
				a := syncdata.ConflictOverwrite
				pinnedConflict = &a
				return a
			case "Skip (apply to all)":
				a := syncdata.ConflictSkip
				pinnedConflict = &a
				return a
			default:
				return syncdata.ConflictSkip
			}
		},
		AskOrphan: func(deviceName string, files []string, firstDevice bool) syncdata.OrphanDecision {
			util.Default.Printf("🗑  %d file(s) exist on %s but not locally:\n", len(files), deviceName)
			max := len(files)
			if max > 10 {
				max = 10
			}
			for _, f := range files[:max] {
				util.Default.Printf("    %s\n", f)
			}
			if len(files) > max {
				util.Default.Printf("    ... and %d more\n", len(files)-max)
			}

			items := []string{
				"Keep them",
				"Keep them (apply to all devices)",
				"Delete them",
				"Delete them (apply to all devices)",
			}
			sel := promptui.Select{
				Label: fmt.Sprintf("Device-only files on %s", deviceName),
				Items: items,
			}
			util.Default.Suspend()
			_, result, err := sel.Run()
			util.Default.Resume()
			if err != nil {
				return syncdata.OrphanDecision{Action: syncdata.OrphanKeep}
			}
			switch result {
			case "Delete them":
				return syncdata.OrphanDecision{Action: syncdata.OrphanDelete}
			case "Delete them (apply to all devices)":
				return syncdata.OrphanDecision{Action: syncdata.OrphanDelete, RememberForDevices: true}
			case "Keep them (apply to all devices)":
				return syncdata.OrphanDecision{Action: syncdata.OrphanKeep, RememberForDevices: true}
			default:
				return syncdata.OrphanDecision{Action: syncdata.OrphanKeep}
			}
		},
	}
}

func runSyncInteractive(ctx context.Context, a *app) error {
	presets := []string{
		fmt.Sprintf("Videos (%s)", a.cfg.Sync.VideosDefaultPath),
		fmt.Sprintf("Photos (%s)", a.cfg.Sync.PhotosDefaultPath),
		"Other (custom device path)",
	}
	sel := promptui.Select{Label: "Sync destination", Items: presets}
	idx, _, err := sel.Run()
	if err != nil {
		return err
	}

	var remote string
	switch idx {
	case 0:
		remote = a.cfg.Sync.VideosDefaultPath
	case 1:
		remote = a.cfg.Sync.PhotosDefaultPath
	default:
		prompt := promptui.Prompt{
			Label:   "Device folder",
			Default: a.cfg.Sync.OtherDefaultPath,
			Validate: func(s string) error {
				if !strings.HasPrefix(strings.TrimSpace(s), "/") {
					return fmt.Errorf("device path must be absolute")
				}
				return nil
			},
		}
		remote, err = prompt.Run()
		if err != nil {
			return err
		}
		remote = strings.TrimSpace(remote)
		if remote != a.cfg.Sync.OtherDefaultPath {
			a.cfg.Sync.OtherDefaultPath = remote
			if err := config.Save(a.cfg); err != nil {
				util.Default.Printf("⚠️  Could not remember device folder: %v\n", err)
			}
		}
	}

	localPrompt := promptui.Prompt{
		Label:   "PC folder to sync from",
		Default: a.cfg.Sync.LastPCFolder,
		Validate: func(s string) error {
			info, err := os.Stat(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("folder does not exist")
			}
			if !info.IsDir() {
				return fmt.Errorf("not a folder")
			}
			return nil
		},
	}
	local, err := localPrompt.Run()
	if err != nil {
		return err
	}
	local = strings.TrimSpace(local)

	ids, err := a.resolveTargets(ctx, "")
	if err != nil {
		return err
	}

	policy := syncdata.Policy{
		OnConflict: syncdata.ConflictOverwrite,
		OnOrphan:   syncdata.OrphanKeep,
		Scope:      syncdata.ScopePerDecision,
	}
	return runSync(ctx, a, ids, local, remote, policy, promptHooks(), false)
}
