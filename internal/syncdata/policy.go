package syncdata

// ConflictAction resolves a file present both locally and remotely at the
// same relative path.
type ConflictAction string

const (
	ConflictSkip      ConflictAction = "skip"
	ConflictOverwrite ConflictAction = "overwrite"
	// ConflictRename transfers to a new remote path with a timestamp suffix
	// inserted before the extension. Never overwrites, always additive.
	ConflictRename ConflictAction = "rename"
)

// OrphanAction resolves remote files with no local counterpart.
type OrphanAction string

const (
	OrphanDelete OrphanAction = "delete"
	OrphanKeep   OrphanAction = "keep"
)

// Scope controls whether the policy's actions are pinned for the whole run
// or decided per prompt.
type Scope int

const (
	ScopePerDecision Scope = iota
	ScopeAllFilesThisSession
	ScopeAllDevicesThisSession
)

// Policy is the session-scoped conflict/orphan policy. It is a plain value
// threaded through one run and reset at the start of the next; the
// "remember my choice" behavior lives in explicit fields, not process-wide
// state.
type Policy struct {
	OnConflict ConflictAction
	OnOrphan   OrphanAction
	Scope      Scope
}

// HeadlessPolicy is the non-interactive default: overwrite conflicts, keep
// orphans, pinned for the whole run so no hook is ever consulted.
func HeadlessPolicy() Policy {
	return Policy{OnConflict: ConflictOverwrite, OnOrphan: OrphanKeep, Scope: ScopeAllDevicesThisSession}
}

// OrphanDecision is the answer of the orphan hook: what to do with this
// device's orphan set, and whether to reuse the answer for the rest of the
// session.
type OrphanDecision struct {
	Action             OrphanAction
	RememberForDevices bool
	RememberForFiles   bool
}

// Hooks are the caller-supplied decision strategies. The engine works
// headlessly with zero hooks: missing AskOrphan keeps orphans, missing
// AskConflict applies the policy's OnConflict. Interactivity is an external
// concern.
type Hooks struct {
	AskOrphan   func(deviceName string, files []string, firstDevice bool) OrphanDecision
	AskConflict func(relPath, deviceName string, firstDevice bool) ConflictAction
}

// session is the per-run decision memory derived from the policy scope and
// hook "remember" signals. Always rebuilt at run start.
type session struct {
	policy         Policy
	conflictPinned *ConflictAction
	orphanPinned   *OrphanAction
}

func newSession(policy Policy) *session {
	s := &session{policy: policy}
	if policy.Scope != ScopePerDecision {
		c := policy.OnConflict
		o := policy.OnOrphan
		s.conflictPinned = &c
		s.orphanPinned = &o
	}
	return s
}

func (s *session) conflictAction(hooks Hooks, relPath, deviceName string, firstDevice bool) ConflictAction {
	if s.conflictPinned != nil {
		return *s.conflictPinned
	}
	if hooks.AskConflict == nil {
		return s.policy.OnConflict
	}
	return hooks.AskConflict(relPath, deviceName, firstDevice)
}

func (s *session) orphanAction(hooks Hooks, deviceName string, files []string, firstDevice bool) OrphanAction {
	if s.orphanPinned != nil {
		return *s.orphanPinned
	}
	if hooks.AskOrphan == nil {
		return OrphanKeep
	}
	dec := hooks.AskOrphan(deviceName, files, firstDevice)
	if dec.RememberForDevices || dec.RememberForFiles {
		a := dec.Action
		s.orphanPinned = &a
	}
	// "Apply to all files" also silences per-file conflict prompting for the
	// rest of the session, falling back to the policy default.
	if dec.RememberForFiles && s.conflictPinned == nil {
		c := s.policy.OnConflict
		s.conflictPinned = &c
	}
	return dec.Action
}
