// Package match implements partner selection over the search queue.
//
// Selection runs in two passes. When the requester has a completed profile,
// candidates with completed profiles are screened with a symmetric gender
// check (both preferences must accept the other's gender) and the survivor
// sharing the most interests wins, ties broken by queue order. Candidates
// eliminated there never come back: the fallback pass only considers
// candidates without a completed profile, earliest enqueued first. A
// requester without a profile skips straight to the fallback over the
// whole queue.
//
// The queue snapshot can go stale between the read and the commit, so the
// chosen candidate is claimed with an atomic not-searching transition
// against the store. Losing that claim is not an error; selection retries
// with the remaining candidates.
package match

import (
	"context"
	"fmt"
	"log"

	"github.com/veilchat/anonbot/internal/domain"
	"github.com/veilchat/anonbot/internal/presence"
)

// Matchmaker selects and claims a compatible partner for a searching user.
type Matchmaker struct {
	store domain.Store
	cache *presence.Cache
}

// New creates a Matchmaker over the given store and presence cache.
func New(store domain.Store, cache *presence.Cache) *Matchmaker {
	return &Matchmaker{store: store, cache: cache}
}

// candidate is one queue entry with its profile data resolved.
type candidate struct {
	entry     domain.QueueEntry
	profile   *domain.Profile
	interests []string
}

// FindMatch returns a claimed partner for userID, or found=false when the
// queue (after exclusions) holds no compatible candidate. On success the
// partner has already been atomically removed from the search queue.
func (m *Matchmaker) FindMatch(ctx context.Context, userID int64) (int64, bool, error) {
	queue, err := m.store.ListQueue(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("match: list queue: %w", err)
	}

	cands := make([]candidate, 0, len(queue))
	for _, e := range queue {
		if e.UserID == userID {
			continue
		}
		// Defensive check against state drift: a queued user who already
		// has an active session must not be matched again.
		sess, err := m.store.ActiveSessionFor(ctx, e.UserID)
		if err != nil {
			log.Printf("[match] active session lookup for %d: %v", e.UserID, err)
			continue
		}
		if sess != nil {
			continue
		}
		cands = append(cands, candidate{entry: e})
	}
	if len(cands) == 0 {
		return 0, false, nil
	}

	reqProfile, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("match: requester profile: %w", err)
	}
	var reqInterests []string
	if reqProfile.Complete() {
		if reqInterests, err = m.store.GetInterests(ctx, userID); err != nil {
			return 0, false, fmt.Errorf("match: requester interests: %w", err)
		}
		for i := range cands {
			m.resolve(ctx, &cands[i])
		}
	}

	// Claim loop: the selected candidate may have been taken by a
	// concurrent match between the queue read and now. Losing the claim
	// drops the candidate and retries selection with the rest.
	for len(cands) > 0 {
		idx := selectCandidate(reqProfile, reqInterests, cands)
		if idx < 0 {
			return 0, false, nil
		}
		chosen := cands[idx].entry.UserID

		won, err := m.store.ClaimSearching(ctx, chosen)
		if err != nil {
			return 0, false, fmt.Errorf("match: claim %d: %w", chosen, err)
		}
		if won {
			m.cache.ClearSearching(chosen)
			return chosen, true, nil
		}
		log.Printf("[match] lost claim race for %d, retrying", chosen)
		cands = append(cands[:idx], cands[idx+1:]...)
	}
	return 0, false, nil
}

// resolve loads a candidate's profile and, when complete, interests.
func (m *Matchmaker) resolve(ctx context.Context, c *candidate) {
	p, err := m.store.GetProfile(ctx, c.entry.UserID)
	if err != nil {
		log.Printf("[match] profile for %d: %v", c.entry.UserID, err)
		return
	}
	c.profile = p
	if !p.Complete() {
		return
	}
	if c.interests, err = m.store.GetInterests(ctx, c.entry.UserID); err != nil {
		log.Printf("[match] interests for %d: %v", c.entry.UserID, err)
	}
}

// selectCandidate returns the index of the best candidate, or -1.
// Candidates are in queue order, so the first strict maximum wins ties.
func selectCandidate(reqProfile *domain.Profile, reqInterests []string, cands []candidate) int {
	if reqProfile.Complete() {
		best, bestShared := -1, -1
		for i, c := range cands {
			if !c.profile.Complete() {
				continue
			}
			if !mutuallyCompatible(reqProfile, c.profile) {
				continue
			}
			if shared := sharedCount(reqInterests, c.interests); shared > bestShared {
				best, bestShared = i, shared
			}
		}
		if best >= 0 {
			return best
		}
		// No profiled survivor. Fall back to the earliest candidate
		// without a completed profile; profiled candidates were already
		// rejected on preference and stay rejected.
		for i, c := range cands {
			if !c.profile.Complete() {
				return i
			}
		}
		return -1
	}
	// Unprofiled requester: earliest enqueued wins outright.
	return 0
}

// mutuallyCompatible applies the symmetric gender check: each side's
// preference must accept the other side's gender.
func mutuallyCompatible(a, b *domain.Profile) bool {
	return a.Accepts(b.Gender) && b.Accepts(a.Gender)
}

func sharedCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, tag := range a {
		set[tag] = true
	}
	n := 0
	for _, tag := range b {
		if set[tag] {
			n++
		}
	}
	return n
}
