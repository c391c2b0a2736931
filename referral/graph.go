/*
graph.go - Read-only view over the referral tree

PURPOSE:

	The distributor walks ancestry through this interface and nothing else.
	Nothing above the storage layer may mutate graph shape; registration (an
	external collaborator) is the only writer of parent links.

TRAVERSAL SAFETY:

	Ancestry is an explicit parent reference resolved per step through the
	store, never an in-memory pointer chain. Each ParentOf call re-fetches,
	so a traversal observes committed graph state even while registrations
	land concurrently.
*/
package referral

import "context"

// Graph is the read-only referral tree.
//
// Absence of a result is reported as ErrUserNotFound; callers decide how to
// react (the distributor turns it into outcome data).
type Graph interface {
	// FindByVantageKey resolves a user by external vantage key.
	FindByVantageKey(ctx context.Context, key VantageKey) (*User, error)

	// ParentOf returns the direct referrer of u, or nil for a root node.
	ParentOf(ctx context.Context, u *User) (*User, error)

	// DirectReferralCount counts nodes whose parent is exactly u.
	DirectReferralCount(ctx context.Context, u *User) (int, error)
}
