package roster

import "strings"

// IgnoreSet holds identities exempt from delete and role-update
// actions. Membership never prevents account creation.
type IgnoreSet map[string]struct{}

// ParseIgnoreSet splits a comma-separated list of usernames or emails
// into an IgnoreSet, normalizing each entry and dropping empties.
func ParseIgnoreSet(raw string) IgnoreSet {
	set := make(IgnoreSet)
	for _, entry := range strings.Split(raw, ",") {
		key := JoinKey(entry)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

// Contains reports whether the normalized identifier is exempt.
func (s IgnoreSet) Contains(identifier string) bool {
	_, ok := s[JoinKey(identifier)]
	return ok
}
