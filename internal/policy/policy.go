// Package policy is the single declarative source of truth for forbidden
// imports, allowed import prefixes, dangerous call patterns, forbidden path
// characters, and per-job resource caps. Pure data; no I/O. Every other
// component imports this package rather than redefining any of these sets.
package policy

import "github.com/go-playground/validator/v10"

var profileValidator = validator.New()

// Validate enforces Profile's struct-tag constraints, called once when a
// PolicyProfile is loaded from config rather than on every read.
func (p Profile) Validate() error {
	return profileValidator.Struct(p)
}

// ForbiddenImports names and dotted prefixes known to enable arbitrary code
// execution, filesystem escape, network bypass, or sandbox-evasion via
// introspection. Matched exactly or as a dotted prefix by the analyzer's
// static import check; the sandbox installs no runtime import hook.
var ForbiddenImports = []string{
	"os",
	"os.path",
	"sys",
	"subprocess",
	"multiprocessing",
	"ctypes",
	"importlib",
	"pickle",
	"marshal",
	"shelve",
	"socket",
	"ftplib",
	"telnetlib",
	"ssl",
	"ast",
	"code",
	"codeop",
	"inspect",
	"gc",
	"resource",
	"signal",
	"pty",
	"fcntl",
	"__builtin__",
	"builtins",
}

// SafeBuiltins is the whitelist of builtin names generated adapters may
// reference without triggering a POLICY_VIOLATION.
var SafeBuiltins = []string{
	"len", "range", "enumerate", "zip", "map", "filter", "sorted", "reversed",
	"min", "max", "sum", "abs", "round", "str", "int", "float", "bool",
	"list", "dict", "set", "tuple", "frozenset", "isinstance", "issubclass",
	"print", "repr", "format", "type", "super", "property", "staticmethod",
	"classmethod", "Exception", "ValueError", "TypeError", "KeyError",
	"IndexError", "StopIteration", "None", "True", "False",
}

// ForbiddenCallPatterns are dynamic-execution and reflection entry points
// that must never appear in generated source, regardless of import status.
var ForbiddenCallPatterns = []string{
	"eval(",
	"exec(",
	"compile(",
	"__import__(",
	"getattr(",
	"setattr(",
	"globals(",
	"locals(",
	"vars(",
	"open(",
	"os.system(",
	"os.popen(",
	"subprocess.",
}

// ForbiddenPathChars are path characters that indicate traversal or
// absolute-path escape attempts in a FileEntry path or changed-file path.
var ForbiddenPathChars = []string{"..", "~", "\x00"}

// NetworkMode is the sandbox's outbound network posture.
type NetworkMode string

const (
	NetworkNone      NetworkMode = "none"
	NetworkAllowlist NetworkMode = "allowlist"
)

// SandboxBackend selects which isolation mechanism the Sandbox Runner uses.
type SandboxBackend string

const (
	BackendDocker     SandboxBackend = "docker"
	BackendKubernetes SandboxBackend = "kubernetes"
)

// Profile is a named bundle of security and resource limits applied to a
// BuildJob end to end. Loaded once at process start (internal/config);
// immutable once handed to an in-flight job.
type Profile struct {
	Name    string      `yaml:"name" validate:"required"`
	Network NetworkMode `yaml:"network" validate:"required,oneof=none allowlist"`
	// Allowlist is the set of outbound destinations permitted when Network
	// is NetworkAllowlist. Ignored otherwise.
	Allowlist []string `yaml:"allowlist,omitempty"`

	Backend SandboxBackend `yaml:"backend" validate:"required,oneof=docker kubernetes"`

	CPUSeconds     float64 `yaml:"cpu_seconds" validate:"gt=0"`
	MemoryBytes    int64   `yaml:"memory_bytes" validate:"gt=0"`
	WallClockSec   int     `yaml:"wall_clock_seconds" validate:"gt=0"`
	MaxProcesses   int     `yaml:"max_processes" validate:"gt=0"`
	MaxOpenFiles   int     `yaml:"max_open_files" validate:"gt=0"`

	// AllowedImportPrefixes extends the baseline allowed-import list: a
	// non-forbidden import must match one of these prefixes or a baseline
	// entry to be accepted; other stdlib modules are rejected.
	AllowedImportPrefixes []string `yaml:"allowed_import_prefixes,omitempty"`

	MaxChangedFiles  int `yaml:"max_changed_files" validate:"gt=0"`
	MaxBytesPerFile  int `yaml:"max_bytes_per_file" validate:"gt=0"`
	MaxRepairAttempts int `yaml:"max_repair_attempts" validate:"gt=0"`

	// CriticGateEnabled applies the confidence rubric to SCAFFOLD plans.
	// Optional per spec §9(b); default false.
	CriticGateEnabled bool `yaml:"critic_gate_enabled"`

	// DeterministicRendering pins the chart rendering backend/fonts and
	// compares an image hash. Disabled by default per spec §4.5.
	DeterministicRendering bool `yaml:"deterministic_rendering"`

	// RandomSeed is injected into the sandbox's clock/random facade so
	// generated-code test runs are reproducible.
	RandomSeed int64 `yaml:"random_seed"`
}

// Default returns the baseline profile used when none is configured.
func Default() Profile {
	return Profile{
		Name:              "default",
		Network:           NetworkNone,
		Backend:           BackendDocker,
		CPUSeconds:        30,
		MemoryBytes:       512 * 1024 * 1024,
		WallClockSec:      120,
		MaxProcesses:      32,
		MaxOpenFiles:      256,
		MaxChangedFiles:   10,
		MaxBytesPerFile:   100 * 1024,
		MaxRepairAttempts: 10,
	}
}

// IsForbiddenImport reports whether name matches ForbiddenImports exactly
// or as a dotted prefix.
func IsForbiddenImport(name string) bool {
	for _, forbidden := range ForbiddenImports {
		if name == forbidden || hasDottedPrefix(name, forbidden) {
			return true
		}
	}
	return false
}

// IsAllowedImport reports whether name is permitted under profile: not
// forbidden, and matching a baseline allowance or one of the profile's
// extra allowed prefixes.
func IsAllowedImport(name string, profile Profile) bool {
	if IsForbiddenImport(name) {
		return false
	}
	for _, prefix := range profile.AllowedImportPrefixes {
		if name == prefix || hasDottedPrefix(name, prefix) {
			return true
		}
	}
	return isBaselineAllowedImport(name)
}

// baselineAllowedImports are modules the adapter contract itself requires
// (typing/dataclasses-style support and HTTP access for fetch_raw), always
// permitted even with no profile extension.
var baselineAllowedImports = []string{
	"typing", "dataclasses", "enum", "datetime", "json", "re", "math",
	"decimal", "itertools", "functools", "collections", "abc", "logging",
	"requests", "httpx", "urllib.request", "urllib.parse", "time",
}

func isBaselineAllowedImport(name string) bool {
	for _, allowed := range baselineAllowedImports {
		if name == allowed || hasDottedPrefix(name, allowed) {
			return true
		}
	}
	return false
}

func hasDottedPrefix(name, prefix string) bool {
	return len(name) > len(prefix) && name[:len(prefix)] == prefix && name[len(prefix)] == '.'
}

// HasForbiddenPathChar reports whether path contains a traversal or escape
// sequence from ForbiddenPathChars.
func HasForbiddenPathChar(path string) bool {
	for _, bad := range ForbiddenPathChars {
		if contains(path, bad) {
			return true
		}
	}
	return false
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// IsForbiddenCallPattern reports whether line contains one of
// ForbiddenCallPatterns.
func IsForbiddenCallPattern(line string) (string, bool) {
	for _, pattern := range ForbiddenCallPatterns {
		if contains(line, pattern) {
			return pattern, true
		}
	}
	return "", false
}
