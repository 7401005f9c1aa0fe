package core

import (
	"context"
	"testing"
)

func TestWithOrg_OrgFromContext(t *testing.T) {
	tests := []struct {
		name string
		id   OrgID
	}{
		{name: "normal_id", id: OrgID("org-123")},
		{name: "empty_id", id: OrgID("")},
		{name: "special_chars", id: OrgID("org/team:prod")},
		{name: "unicode", id: OrgID("組織")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithOrg(context.Background(), tt.id)
			got, ok := OrgFromContext(ctx)
			if !ok {
				t.Fatalf("OrgFromContext() ok = false, want true")
			}
			if got != tt.id {
				t.Errorf("OrgFromContext() = %q, want %q", got, tt.id)
			}
		})
	}
}

func TestOrgFromContext_NotSet(t *testing.T) {
	got, ok := OrgFromContext(context.Background())
	if ok {
		t.Errorf("OrgFromContext() ok = true, want false")
	}
	if got != "" {
		t.Errorf("OrgFromContext() = %q, want empty", got)
	}
}

func TestWithOrg_Overwrite(t *testing.T) {
	ctx := WithOrg(context.Background(), OrgID("first"))
	ctx = WithOrg(ctx, OrgID("second"))

	got, ok := OrgFromContext(ctx)
	if !ok || got != OrgID("second") {
		t.Errorf("OrgFromContext() = %q, %v, want %q, true", got, ok, "second")
	}
}

func TestWithOrg_DoesNotAffectParent(t *testing.T) {
	parent := context.Background()
	_ = WithOrg(parent, OrgID("child-org"))

	_, ok := OrgFromContext(parent)
	if ok {
		t.Errorf("parent OrgFromContext() ok = true, want false")
	}
}

func TestOrgID_Type(t *testing.T) {
	var id OrgID = "test"
	s := string(id)
	if s != "test" {
		t.Errorf("string(OrgID) = %q, want %q", s, "test")
	}
}
