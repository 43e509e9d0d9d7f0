package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"usb-fleet/internal/bridge"
)

// Matrix is the package presence matrix for one scan: which package is
// installed on which device. Built once per scan; projections like
// MissingOnly never re-query.
type Matrix struct {
	Packages []string                   // sorted package ids
	Devices  []string                   // device ids in scan order
	Presence map[string]map[string]bool // package -> device -> installed
}

// Present reports whether pkg is installed on device.
func (m Matrix) Present(pkg, device string) bool {
	row, ok := m.Presence[pkg]
	if !ok {
		return false
	}
	return row[device]
}

// Inventory queries installed packages through the bridge.
type Inventory struct {
	exec *bridge.Executor
}

func New(exec *bridge.Executor) *Inventory {
	return &Inventory{exec: exec}
}

// ListPackages returns the installed package ids for one device, parsed from
// `pm list packages` output (`package:<id>` lines).
func (inv *Inventory) ListPackages(ctx context.Context, deviceID string) ([]string, error) {
	res, err := inv.exec.Execute(ctx, deviceID, "shell", "pm", "list", "packages")
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("inventory: pm list packages exited %d on %s: %s",
			res.ExitCode, deviceID, strings.TrimSpace(res.Stderr))
	}

	var pkgs []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "package:") {
			if id := strings.TrimPrefix(line, "package:"); id != "" {
				pkgs = append(pkgs, id)
			}
		}
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// Scan builds the presence matrix across devices. A device whose query fails
// contributes an empty package set; the failure becomes a warning and the
// scan continues, because partial results beat none.
func (inv *Inventory) Scan(ctx context.Context, deviceIDs []string) (Matrix, []string) {
	m := Matrix{
		Devices:  append([]string(nil), deviceIDs...),
		Presence: make(map[string]map[string]bool),
	}

	var warnings []string
	perDevice := make(map[string]map[string]bool, len(deviceIDs))
	all := make(map[string]struct{})

	for _, id := range deviceIDs {
		pkgs, err := inv.ListPackages(ctx, id)
		installed := make(map[string]bool)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("package scan failed on %s: %v", id, err))
		} else {
			for _, p := range pkgs {
				installed[p] = true
				all[p] = struct{}{}
			}
		}
		perDevice[id] = installed
	}

	m.Packages = make([]string, 0, len(all))
	for p := range all {
		m.Packages = append(m.Packages, p)
	}
	sort.Strings(m.Packages)

	for _, p := range m.Packages {
		row := make(map[string]bool, len(deviceIDs))
		for _, id := range deviceIDs {
			row[id] = perDevice[id][p]
		}
		m.Presence[p] = row
	}
	return m, warnings
}

// MissingOnly projects the packages absent from at least one scanned device.
// Pure view over fetched data; no re-query.
func MissingOnly(m Matrix) []string {
	var missing []string
	for _, p := range m.Packages {
		for _, id := range m.Devices {
			if !m.Presence[p][id] {
				missing = append(missing, p)
				break
			}
		}
	}
	return missing
}
