// Package safety implements the static SafetyFilter (C4): a textual scan
// for forbidden imports. It is the first gate, not the last — it does not
// reason about transitive imports, build constraints, or reflection; the
// outer container provides containment.
package safety

import (
	"regexp"
	"strings"
)

// DefaultBlacklist is the initial denylist from spec.md §4.4/§6: process
// execution, direct syscalls, unsafe memory, raw network, raw HTTP,
// dynamic plugins.
var DefaultBlacklist = []string{
	"os/exec",
	"syscall",
	"unsafe",
	"net",
	"net/http",
	"plugin",
}

// importPattern matches both block (`import ( ... )`) and single
// (`import "..."`) import declarations.
var importPattern = regexp.MustCompile(`(?m)^\s*import\s*(\((?:[^)]+)\)|"[^"]+")`)

// Filter checks source text against a fixed denylist, matching entries by
// byte-exact equality after stripping parens/comments/quotes/whitespace.
type Filter struct {
	blacklist map[string]struct{}
}

// New builds a Filter over the given denylist (typically DefaultBlacklist,
// optionally extended by configuration).
func New(blacklist []string) *Filter {
	set := make(map[string]struct{}, len(blacklist))
	for _, b := range blacklist {
		set[b] = struct{}{}
	}
	return &Filter{blacklist: set}
}

// ContainsBlacklistedImport implements spec.md §4.4's
// containsBlacklistedImport(source) contract. It is a pure function of
// source: repeated calls on the same input return identical results.
func (f *Filter) ContainsBlacklistedImport(source string) (bool, string) {
	matches := importPattern.FindAllStringSubmatch(source, -1)

	for _, match := range matches {
		importStatement := match[1]
		importStatement = strings.ReplaceAll(importStatement, "(", "")
		importStatement = strings.ReplaceAll(importStatement, ")", "")

		for _, line := range strings.Split(importStatement, "\n") {
			imp := strings.TrimSpace(strings.SplitN(line, "//", 2)[0])
			imp = strings.Trim(imp, `"`)
			if imp == "" {
				continue
			}
			if _, blocked := f.blacklist[imp]; blocked {
				return true, imp
			}
		}
	}
	return false, ""
}
