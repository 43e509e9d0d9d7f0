package syncdata

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// LocalEntry is one file under the local root: where it lives on disk and
// its forward-slash path relative to the root.
type LocalEntry struct {
	AbsPath string
	RelPath string
}

// Plan is the computed diff for one device, frozen before execution so
// conflict and orphan counts are known before anything destructive runs.
type Plan struct {
	Additions []LocalEntry // local only
	Conflicts []LocalEntry // present on both sides at the same relative path
	ToDelete  []string     // remote only (relative paths)
}

// ListLocal enumerates the local tree recursively. Traversal is sorted by
// relative path so repeated runs over an unchanged tree produce an
// identical plan.
func ListLocal(root string) ([]LocalEntry, error) {
	var entries []LocalEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		entries = append(entries, LocalEntry{AbsPath: p, RelPath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

// listRemote enumerates files under remoteRoot on the device via
// `shell find -type f`. A failing listing (typically: the folder does not
// exist yet) reads as an empty remote tree.
func (e *Engine) listRemote(ctx context.Context, deviceID, remoteRoot string) ([]string, error) {
	res, err := e.exec.Execute(ctx, deviceID, "shell", "find", remoteRoot, "-type", "f")
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, nil
	}

	root := strings.TrimSuffix(remoteRoot, "/")
	var rels []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, root) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(line, root), "/")
		if rel != "" {
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)
	return rels, nil
}

// BuildPlan computes the diff between the local listing and the remote
// relative paths. Pure: both listings are taken as-is and the result is
// deterministic for deterministic inputs.
func BuildPlan(local []LocalEntry, remote []string) Plan {
	remoteSet := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		remoteSet[r] = struct{}{}
	}
	localSet := make(map[string]struct{}, len(local))

	var plan Plan
	for _, entry := range local {
		localSet[entry.RelPath] = struct{}{}
		if _, exists := remoteSet[entry.RelPath]; exists {
			plan.Conflicts = append(plan.Conflicts, entry)
		} else {
			plan.Additions = append(plan.Additions, entry)
		}
	}
	for _, r := range remote {
		if _, exists := localSet[r]; !exists {
			plan.ToDelete = append(plan.ToDelete, r)
		}
	}
	sort.Strings(plan.ToDelete)
	return plan
}

// renameWithTimestamp inserts a `_YYYYMMDD_HHMMSS` suffix before the file
// extension of a relative path.
func renameWithTimestamp(relPath, stamp string) string {
	ext := ""
	base := relPath
	if dot := strings.LastIndex(relPath, "."); dot > strings.LastIndex(relPath, "/") {
		base = relPath[:dot]
		ext = relPath[dot:]
	}
	return base + "_" + stamp + ext
}
