package message

import "github.com/arclane/conduit/pkg/chunk"

// rule decides whether a (role, type) pair is included by a strategy.
type rule struct {
	role chunk.Role
	typ  chunk.Type
}

// strategy is a named filter policy: an explicit allow-table plus a
// "recent N turns" window applied after the table (§4.3 "Filtering").
type strategy struct {
	name     string
	allow    map[rule]bool
	allowAll map[chunk.Role]bool // role-level wildcard, checked if no exact rule matches
	recentN  int                 // 0 means unbounded
}

func (s strategy) includes(m *Message) bool {
	if ok, hit := s.allow[rule{m.Role, m.Type}]; hit {
		return ok
	}
	if s.allowAll != nil {
		if ok, hit := s.allowAll[m.Role]; hit {
			return ok
		}
	}
	return false
}

// strategies are the named rule tables canonical to the specialized
// agents of §4.5. Each table is intentionally explicit rather than
// derived, so a reviewer can read the included (role,type) pairs for a
// given agent directly off this table.
var strategies = map[string]strategy{
	"task_analysis": {
		name: "task_analysis",
		allow: map[rule]bool{
			{chunk.RoleUser, chunk.TypeNormal}:   true,
			{chunk.RoleUser, chunk.TypeChunk}:     true,
			{chunk.RoleSystem, chunk.TypeGuide}:   true,
		},
		recentN: 1,
	},
	"planning": {
		name: "planning",
		allow: map[rule]bool{
			{chunk.RoleUser, chunk.TypeNormal}:        true,
			{chunk.RoleAssistant, chunk.TypeTaskAnalysis}: true,
			{chunk.RoleAssistant, chunk.TypePlanning}:     true,
			{chunk.RoleAssistant, chunk.TypeObservation}:  true,
			{chunk.RoleTool, chunk.TypeToolResult}:        true,
			{chunk.RoleAssistant, chunk.TypeStageSummary}: true,
		},
	},
	"execution": {
		name: "execution",
		allow: map[rule]bool{
			{chunk.RoleUser, chunk.TypeNormal}:        true,
			{chunk.RoleAssistant, chunk.TypePlanning}:     true,
			{chunk.RoleAssistant, chunk.TypeExecution}:    true,
			{chunk.RoleTool, chunk.TypeToolResult}:        true,
			{chunk.RoleAssistant, chunk.TypeStageSummary}: true,
		},
	},
	"observation": {
		name: "observation",
		allow: map[rule]bool{
			{chunk.RoleAssistant, chunk.TypeExecution}: true,
			{chunk.RoleTool, chunk.TypeToolResult}:      true,
			{chunk.RoleAssistant, chunk.TypePlanning}:   true,
		},
	},
	"summary": {
		name:     "summary",
		allowAll: map[chunk.Role]bool{chunk.RoleUser: true, chunk.RoleAssistant: true, chunk.RoleTool: true},
	},
	"default": {
		name:     "default",
		allowAll: map[chunk.Role]bool{chunk.RoleUser: true, chunk.RoleAssistant: true, chunk.RoleTool: true},
		recentN:  20,
	},
}

// Filter applies the named strategy to a logical message list without
// mutating the manager's stored state.
func Filter(messages []*Message, name string) []*Message {
	s, ok := strategies[name]
	if !ok {
		s = strategies["default"]
	}

	out := make([]*Message, 0, len(messages))
	for _, m := range messages {
		if s.includes(m) {
			out = append(out, m)
		}
	}

	if s.recentN > 0 && len(out) > s.recentN {
		out = out[len(out)-s.recentN:]
	}

	return out
}

// RegisterStrategy installs or overwrites a named filter strategy.
// rule is unexported, so code outside this package can only pass a nil
// allow table, which admits no message.
func RegisterStrategy(name string, allow map[rule]bool, recentN int) {
	strategies[name] = strategy{name: name, allow: allow, recentN: recentN}
}
