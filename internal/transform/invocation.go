// Package transform invokes the external transformation engine (dbt) for a
// pipeline layer and reports per-model outcomes.
package transform

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Settings are the invocation parameters shared by every call site.
type Settings struct {
	ProjectDir  string
	ProfilesDir string
	Target      string
	FullRefresh bool
	Vars        map[string]string
}

// Invocation is one engine command with its arguments.
type Invocation struct {
	Command     []string
	ProjectDir  string
	ProfilesDir string
	Target      string
	Select      string
	FullRefresh bool
	Vars        map[string]string
}

// ForLayer builds "run --select tag:<tag>".
func (s Settings) ForLayer(tag string) Invocation {
	inv := s.invocation("run")
	inv.Select = "tag:" + tag
	inv.FullRefresh = s.FullRefresh
	return inv
}

// Docs builds "docs generate". FullRefresh only applies to model runs.
func (s Settings) Docs() Invocation {
	return s.invocation("docs", "generate")
}

func (s Settings) invocation(command ...string) Invocation {
	profiles := s.ProfilesDir
	if profiles == "" {
		profiles = s.ProjectDir
	}
	return Invocation{
		Command:     command,
		ProjectDir:  s.ProjectDir,
		ProfilesDir: profiles,
		Target:      s.Target,
		Vars:        maps.Clone(s.Vars),
	}
}

// Args renders the argument vector:
//
//	<command...> --project-dir P --profiles-dir Q [--target T] [--select S] [--full-refresh] [--vars "k:v k2:v2"]
//
// Vars are rendered in key order.
func (inv Invocation) Args() []string {
	args := slices.Clone(inv.Command)
	args = append(args,
		"--project-dir", inv.ProjectDir,
		"--profiles-dir", inv.ProfilesDir,
	)
	if inv.Target != "" {
		args = append(args, "--target", inv.Target)
	}
	if inv.Select != "" {
		args = append(args, "--select", inv.Select)
	}
	if inv.FullRefresh {
		args = append(args, "--full-refresh")
	}
	if len(inv.Vars) > 0 {
		pairs := make([]string, 0, len(inv.Vars))
		for _, k := range slices.Sorted(maps.Keys(inv.Vars)) {
			pairs = append(pairs, fmt.Sprintf("%s:%s", k, inv.Vars[k]))
		}
		args = append(args, "--vars", strings.Join(pairs, " "))
	}
	return args
}

// String returns the command line as logged and reported in errors.
func (inv Invocation) String() string {
	return strings.Join(inv.Args(), " ")
}
