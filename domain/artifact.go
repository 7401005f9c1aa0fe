package domain

// ArtifactPointer is an opaque descriptor for a stage's persisted output. It
// is either an inline payload (small JSON stored directly on the record) or
// a pointer into the object store backend (spec §6).
type ArtifactPointer struct {
	// Inline holds the payload directly when small enough to avoid a round
	// trip to the object store. Mutually exclusive with Backend/Key.
	Inline []byte

	Backend     string
	Key         string
	Size        int64
	ContentType string
}

// IsInline reports whether the pointer carries its payload directly rather
// than referencing the object store.
func (p ArtifactPointer) IsInline() bool {
	return len(p.Inline) > 0 && p.Backend == ""
}

// IsZero reports whether the pointer carries no payload at all.
func (p ArtifactPointer) IsZero() bool {
	return len(p.Inline) == 0 && p.Backend == "" && p.Key == ""
}
