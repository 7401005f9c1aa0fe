package core

import "context"

// orgKey is the context key for org-scoping.
type orgKey struct{}

// OrgID identifies the organization a request is scoped to. It mirrors
// domain.Document.OrgID and its siblings; kept as a plain string here
// rather than importing domain, since core sits below domain in the
// dependency graph.
type OrgID string

// WithOrg returns a copy of ctx carrying the given org ID. storage/postgres
// consults it (via OrgFromContext) to guard against a handler accidentally
// passing the wrong org's id into a repository call.
func WithOrg(ctx context.Context, id OrgID) context.Context {
	return context.WithValue(ctx, orgKey{}, id)
}

// OrgFromContext extracts the org ID from ctx, reporting whether one was
// set at all. A request path that never scopes by org (a background
// migration, a test) is expected to see ok == false and skip the check.
func OrgFromContext(ctx context.Context) (OrgID, bool) {
	id, ok := ctx.Value(orgKey{}).(OrgID)
	return id, ok
}
