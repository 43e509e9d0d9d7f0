package inventory

import (
	"context"
	"fmt"
	"strings"
)

// ClassifySystem parses `dumpsys package` output and returns the set of
// packages whose metadata block carries a SYSTEM flag. Best-effort:
// malformed blocks are skipped, never raised. The result is a display and
// confirmation gate only; it never blocks an operation outright.
func (inv *Inventory) ClassifySystem(ctx context.Context, deviceID string) (map[string]bool, error) {
	res, err := inv.exec.Execute(ctx, deviceID, "shell", "dumpsys", "package")
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("inventory: dumpsys package exited %d on %s: %s",
			res.ExitCode, deviceID, strings.TrimSpace(res.Stderr))
	}
	return ParseSystemPackages(res.Stdout), nil
}

// ParseSystemPackages walks dumpsys blocks: a `Package [<name>]` header opens
// a block, and a later `flags=` line containing SYSTEM marks that package as
// system-owned.
func ParseSystemPackages(out string) map[string]bool {
	system := make(map[string]bool)
	current := ""
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "Package [") {
			rest := strings.TrimPrefix(line, "Package [")
			end := strings.Index(rest, "]")
			if end <= 0 {
				current = ""
				continue
			}
			current = rest[:end]
			continue
		}
		// Older dumps use `flags=`, newer ones `pkgFlags=`.
		if current != "" && strings.Contains(strings.ToLower(line), "flags=") && strings.Contains(line, "SYSTEM") {
			system[current] = true
		}
	}
	return system
}
