package roster

import "testing"

func TestNormalizedLowercasesAndTrims(t *testing.T) {
	record := UserRecord{
		Username: "  Alice ",
		Email:    " Alice@Example.COM ",
		Role:     "Editor",
		Password: " Secret ",
	}

	normalized := record.Normalized()
	if normalized.Username != "alice" {
		t.Fatalf("expected normalized username, got %q", normalized.Username)
	}
	if normalized.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", normalized.Email)
	}
	if normalized.Role != "Editor" {
		t.Fatalf("expected role untouched, got %q", normalized.Role)
	}
	if normalized.Password != " Secret " {
		t.Fatalf("expected password untouched, got %q", normalized.Password)
	}
}

func TestJoinKeyMatchesAcrossSystems(t *testing.T) {
	if JoinKey(" Alice@Example.com ") != JoinKey("alice@example.com") {
		t.Fatalf("expected join keys to match after normalization")
	}
	if JoinKey("alice") == JoinKey("bob") {
		t.Fatalf("expected distinct identities to stay distinct")
	}
}

func TestLookupByUsernameIsCaseInsensitive(t *testing.T) {
	records := []UserRecord{
		{Username: "alice", Role: "editor"},
		{Username: "bob", Role: "viewer"},
	}

	found, ok := LookupByUsername(records, " BOB ")
	if !ok {
		t.Fatalf("expected lookup to find bob")
	}
	if found.Role != "viewer" {
		t.Fatalf("expected bob's record, got %+v", found)
	}

	if _, ok := LookupByUsername(records, "carol"); ok {
		t.Fatalf("expected lookup miss for unknown username")
	}
}
