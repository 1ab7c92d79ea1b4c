// Package security implements the sandbox policy enforced on every
// side-effecting tool: autonomy gating, shell-command allow-listing, path
// traversal prevention, and a sliding-window action rate limiter.
package security

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

// AutonomyLevel controls which operations may proceed without human
// approval.
type AutonomyLevel int

const (
	// ReadOnly forbids all side-effecting tools.
	ReadOnly AutonomyLevel = iota
	// Supervised allows side effects but expects higher layers to gate risk.
	Supervised
	// Full grants autonomous execution within policy bounds.
	Full
)

// ParseAutonomyLevel converts a config string ("read_only", "supervised",
// "full") into an AutonomyLevel. Unknown values default to Supervised.
func ParseAutonomyLevel(s string) AutonomyLevel {
	switch s {
	case "read_only":
		return ReadOnly
	case "full":
		return Full
	default:
		return Supervised
	}
}

func (a AutonomyLevel) String() string {
	switch a {
	case ReadOnly:
		return "read_only"
	case Full:
		return "full"
	default:
		return "supervised"
	}
}

// DefaultAllowedCommands mirrors the conservative default allow-list: a
// handful of read-only/inspection commands plus the common package
// managers.
var DefaultAllowedCommands = []string{
	"git", "npm", "cargo", "go", "ls", "cat", "grep", "find",
	"echo", "pwd", "wc", "head", "tail",
}

// DefaultForbiddenPaths mirrors the conservative default deny-list of
// system and credential directories.
var DefaultForbiddenPaths = []string{
	"/etc", "/root", "/home", "/usr", "/bin", "/sbin", "/lib", "/opt",
	"/boot", "/dev", "/proc", "/sys", "/var", "/tmp",
	"~/.ssh", "~/.gnupg", "~/.aws", "~/.config",
}

// actionTracker is a mutex-protected sliding one-hour window of action
// timestamps.
type actionTracker struct {
	mu      sync.Mutex
	actions []time.Time
}

func (t *actionTracker) record(maxPerHour int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Hour)
	t.prune(cutoff)
	t.actions = append(t.actions, now)
	return len(t.actions) <= maxPerHour
}

func (t *actionTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(time.Now().Add(-time.Hour))
	return len(t.actions)
}

// prune must be called with the mutex held.
func (t *actionTracker) prune(cutoff time.Time) {
	kept := t.actions[:0]
	for _, ts := range t.actions {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.actions = kept
}

// Policy is the security sandbox enforced on every tool execution.
type Policy struct {
	Autonomy          AutonomyLevel
	WorkspaceDir      string
	WorkspaceOnly     bool
	AllowedCommands   []string
	ForbiddenPaths    []string
	MaxActionsPerHour int

	tracker actionTracker
}

// New constructs a Policy with the given workspace root and the package
// defaults for everything else. Callers typically override the defaults
// from config.
func New(workspaceDir string) *Policy {
	return &Policy{
		Autonomy:          Supervised,
		WorkspaceDir:      workspaceDir,
		WorkspaceOnly:     true,
		AllowedCommands:   append([]string(nil), DefaultAllowedCommands...),
		ForbiddenPaths:    append([]string(nil), DefaultForbiddenPaths...),
		MaxActionsPerHour: 20,
	}
}

// CanAct reports whether the autonomy level permits any action at all.
func (p *Policy) CanAct() bool {
	return p.Autonomy != ReadOnly
}

// IsCommandAllowed validates a shell-like command string against the
// allow-list. Every segment split on `&&`, `||`, `;`, `|`, and newline must
// resolve to an allowed basename; command substitution and redirection are
// always rejected.
func (p *Policy) IsCommandAllowed(command string) bool {
	if p.Autonomy == ReadOnly {
		return false
	}
	if strings.ContainsAny(command, "`") || strings.Contains(command, "$(") || strings.Contains(command, "${") {
		return false
	}
	if strings.Contains(command, ">") {
		return false
	}

	normalized := command
	for _, sep := range []string{"&&", "||"} {
		normalized = strings.ReplaceAll(normalized, sep, "\x00")
	}
	for _, sep := range []string{"\n", ";", "|"} {
		normalized = strings.ReplaceAll(normalized, sep, "\x00")
	}

	segments := strings.Split(normalized, "\x00")
	sawCommand := false
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		cmdPart := skipEnvAssignments(segment)
		fields := strings.Fields(cmdPart)
		if len(fields) == 0 {
			continue
		}
		sawCommand = true

		baseCmd := basename(fields[0])
		if baseCmd == "" || !containsString(p.AllowedCommands, baseCmd) {
			return false
		}
	}

	return sawCommand
}

// skipEnvAssignments strips leading `KEY=value` tokens (e.g. `FOO=bar cmd
// args`) and returns the remainder.
func skipEnvAssignments(s string) string {
	rest := s
	for {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return rest
		}
		word := fields[0]
		if isEnvAssignment(word) {
			rest = strings.TrimPrefix(rest, word)
			rest = strings.TrimLeft(rest, " \t")
			continue
		}
		return rest
	}
}

func isEnvAssignment(word string) bool {
	eq := strings.IndexByte(word, '=')
	if eq <= 0 {
		return false
	}
	first := rune(word[0])
	return unicode.IsLetter(first) || first == '_'
}

func basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// IsPathAllowed validates a path string prior to any filesystem access: no
// null bytes, no `..` components, no URL-encoded traversal, and (when
// WorkspaceOnly is set) no absolute paths. Forbidden-path prefixes are
// checked after tilde expansion on both sides.
func (p *Policy) IsPathAllowed(path string) bool {
	if strings.ContainsRune(path, 0) {
		return false
	}
	if hasParentDirComponent(path) {
		return false
	}

	lower := strings.ToLower(path)
	if strings.Contains(lower, "..%2f") || strings.Contains(lower, "%2f..") {
		return false
	}

	expanded := expandTilde(path)

	if p.WorkspaceOnly && filepath.IsAbs(expanded) {
		return false
	}

	for _, forbidden := range p.ForbiddenPaths {
		forbiddenExpanded := expandTilde(forbidden)
		if hasPathPrefix(expanded, forbiddenExpanded) {
			return false
		}
	}

	return true
}

// IsResolvedPathAllowed validates a symlink-resolved path is still a
// descendant of the canonical workspace root. Call after
// filepath.EvalSymlinks on any path accepted by IsPathAllowed.
func (p *Policy) IsResolvedPathAllowed(resolved string) bool {
	root := p.WorkspaceDir
	if canon, err := filepath.EvalSymlinks(root); err == nil {
		root = canon
	}
	return hasPathPrefix(resolved, root)
}

// RecordAction appends now() to the rolling one-hour window and reports
// whether the window is still within MaxActionsPerHour.
func (p *Policy) RecordAction() bool {
	return p.tracker.record(p.MaxActionsPerHour)
}

// IsRateLimited reports whether the rate limit is already exceeded without
// recording a new action.
func (p *Policy) IsRateLimited() bool {
	return p.tracker.count() >= p.MaxActionsPerHour
}

func hasParentDirComponent(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home := os.Getenv("HOME")
	if home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

// hasPathPrefix reports whether path is child is equal to, or nested
// under, prefix, comparing by path component rather than raw string
// prefix (so "/tmpfoo" is not treated as nested under "/tmp").
func hasPathPrefix(child, prefix string) bool {
	childClean := filepath.Clean(child)
	prefixClean := filepath.Clean(prefix)
	if childClean == prefixClean {
		return true
	}
	rel, err := filepath.Rel(prefixClean, childClean)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
