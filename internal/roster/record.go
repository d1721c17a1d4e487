package roster

import "strings"

// UserRecord is one row of the authoritative user table. The password
// column is only consulted when a new Auth0 account has to be created;
// existing accounts are never touched through it.
type UserRecord struct {
	Username string `gorm:"column:username"`
	Email    string `gorm:"column:email"`
	Role     string `gorm:"column:role"`
	Password string `gorm:"column:password"`
}

// Normalized returns a copy of the record with username and email
// lowercased and trimmed. All comparisons in the reconciler operate on
// normalized values.
func (r UserRecord) Normalized() UserRecord {
	r.Username = JoinKey(r.Username)
	r.Email = JoinKey(r.Email)
	return r
}

// JoinKey lowercases and trims an identifier. A database record and a
// remote identity denote the same person iff JoinKey(record.Username)
// equals JoinKey(remote email). Keeping the predicate in one place
// makes that equivalence visible instead of being scattered through
// ad-hoc ToLower calls.
func JoinKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// LookupByUsername returns the first record whose normalized username
// matches the given key.
func LookupByUsername(records []UserRecord, key string) (UserRecord, bool) {
	want := JoinKey(key)
	for _, record := range records {
		if JoinKey(record.Username) == want {
			return record, true
		}
	}
	return UserRecord{}, false
}
