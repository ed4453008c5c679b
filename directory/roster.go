/*
Package directory tracks who is in each community and which roles they hold.

PURPOSE:
  The chat platform owns membership; this package keeps the bot's view of
  it, fed by roster sync (PUT/DELETE on the HTTP API). It answers the
  display-name and role questions of the leaderboard and the dispatcher,
  and maps roles to capabilities.

KEY TYPES:
  Roster:         in-memory member list per community
  RoleAuthorizer: capability checks from a capability -> roles table

SEE ALSO:
  - bot/types.go: the Directory and Authorizer contracts
  - api/handlers.go: roster sync endpoints
*/
package directory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/warp/clanpoints/bot"
	"github.com/warp/clanpoints/ledger"
)

// Member is one roster entry.
type Member struct {
	ID          ledger.MemberID `json:"id"`
	DisplayName string          `json:"display_name"`
	Roles       []string        `json:"roles"`
}

// Roster is a concurrency-safe in-memory directory.
type Roster struct {
	mu      sync.RWMutex
	members map[ledger.CommunityID]map[ledger.MemberID]Member
}

var _ bot.Directory = (*Roster)(nil)

func NewRoster() *Roster {
	return &Roster{members: make(map[ledger.CommunityID]map[ledger.MemberID]Member)}
}

// Upsert adds or replaces a member and returns the roles they held before
// (nil for a new member).
func (r *Roster) Upsert(c ledger.CommunityID, m Member) (previous []string, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.members[c]
	if !ok {
		members = make(map[ledger.MemberID]Member)
		r.members[c] = members
	}
	old, existed := members[m.ID]
	if m.DisplayName == "" {
		m.DisplayName = string(m.ID)
	}
	m.Roles = slices.Clone(m.Roles)
	members[m.ID] = m
	return old.Roles, existed
}

// Remove drops a member. Reports whether they were present.
func (r *Roster) Remove(c ledger.CommunityID, id ledger.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.members[c]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	return true
}

// Get returns a copy of the member.
func (r *Roster) Get(c ledger.CommunityID, id ledger.MemberID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[c][id]
	m.Roles = slices.Clone(m.Roles)
	return m, ok
}

func (r *Roster) DisplayName(_ context.Context, c ledger.CommunityID, id ledger.MemberID) (string, bool) {
	m, ok := r.Get(c, id)
	return m.DisplayName, ok
}

// MembersWithRole matches role names case-insensitively. A role is known
// if at least one member holds it.
func (r *Roster) MembersWithRole(_ context.Context, c ledger.CommunityID, role string) ([]ledger.MemberID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ledger.MemberID
	for id, m := range r.members[c] {
		if hasRole(m.Roles, role) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, len(out) > 0
}

// Roles returns the member's roles.
func (r *Roster) Roles(c ledger.CommunityID, id ledger.MemberID) []string {
	m, _ := r.Get(c, id)
	return m.Roles
}

func hasRole(roles []string, role string) bool {
	return slices.ContainsFunc(roles, func(r string) bool { return strings.EqualFold(r, role) })
}
