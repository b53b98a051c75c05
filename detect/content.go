package detect

// Content is the evaluated context: one message from one account in one
// community. Immutable during evaluation.
type Content struct {
	MessageID   string
	AccountID   string
	CommunityID string
	Text        string
	// Edited is true when this content is a re-evaluation of a message
	// that was modified after a prior evaluation.
	Edited bool
	// MediaRefs are opaque handles to attached media, passed through to
	// media-capable checks.
	MediaRefs []string
}
