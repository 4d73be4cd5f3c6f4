// Package permission answers player permission checks for modules.
//
// Permissions are dotted names such as "chat.mute". Groups hold lists of
// permissions, players belong to groups and may carry permissions of their
// own. A "-" prefix revokes a permission and "a.b.*" grants everything below
// "a.b". Every player is implicitly in the "*" group if it exists.
// Matching is case-insensitive and revocations always win.
package permission

import (
	"strings"
)

const (
	CatchAll  = "*"
	Revoke    = "-"
	Separator = "."
)

// TriState can be in three states (True, False, Undefined).
type TriState uint8

const (
	Undefined TriState = iota // Nothing grants or revokes the permission.
	True                      // The permission is granted.
	False                     // The permission is explicitly revoked.
)

// Bool returns the bool value of a TriState where
// Undefined is converted to false.
func (t TriState) Bool() bool {
	return t == True
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "undefined"
}

// Rules is the permission data of a Store.
type Rules struct {
	// Groups maps group names to their permissions.
	Groups map[string][]string
	// PlayerGroups maps Steam IDs to group names.
	PlayerGroups map[uint64][]string
	// PlayerPermissions maps Steam IDs to permissions.
	PlayerPermissions map[uint64][]string
}

// DefaultRules contains the empty catch-all group.
func DefaultRules() Rules {
	return Rules{
		Groups:            map[string][]string{CatchAll: {}},
		PlayerGroups:      map[uint64][]string{},
		PlayerPermissions: map[uint64][]string{},
	}
}

func contains(list []string, perm string) bool {
	for _, p := range list {
		if strings.EqualFold(p, perm) {
			return true
		}
	}
	return false
}

// Value evaluates perm for a player.
func (r *Rules) Value(steamID uint64, perm string) TriState {
	if perm == CatchAll {
		return True
	}
	groups := append([]string(nil), r.PlayerGroups[steamID]...)
	if _, ok := r.Groups[CatchAll]; ok {
		groups = append(groups, CatchAll)
	}
	own := r.PlayerPermissions[steamID]

	result := Undefined
	grant := func(list []string, p string) bool {
		if contains(list, Revoke+p) {
			return false
		}
		if contains(list, p) {
			result = True
		}
		return true
	}

	if !grant(own, perm) {
		return False
	}
	for _, g := range groups {
		perms, ok := r.Groups[g]
		if !ok {
			continue
		}
		if contains(perms, Revoke+CatchAll) || !grant(perms, perm) {
			return False
		}
	}

	// Wildcards of every prefix: "a.*", "a.b.*", ...
	var prefix strings.Builder
	for _, part := range strings.Split(perm, Separator) {
		prefix.WriteString(part)
		prefix.WriteString(Separator)
		wildcard := prefix.String() + CatchAll
		if !grant(own, wildcard) {
			return False
		}
		for _, g := range groups {
			if perms, ok := r.Groups[g]; ok && !grant(perms, wildcard) {
				return False
			}
		}
	}
	return result
}

// UnknownGroups returns groups players are assigned to that do not exist.
func (r *Rules) UnknownGroups() []string {
	var unknown []string
	seen := map[string]bool{}
	for _, groups := range r.PlayerGroups {
		for _, g := range groups {
			if _, ok := r.Groups[g]; !ok && !seen[g] {
				seen[g] = true
				unknown = append(unknown, g)
			}
		}
	}
	return unknown
}
