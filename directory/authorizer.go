package directory

import (
	"context"
	"slices"

	"github.com/warp/clanpoints/bot"
	"github.com/warp/clanpoints/ledger"
)

// DefaultCapabilities mirrors the roles the community used from the start.
func DefaultCapabilities() map[bot.Capability][]string {
	return map[bot.Capability][]string{
		bot.CapEligible:     {"Member", "Trial"},
		bot.CapAdmin:        {"Admin"},
		bot.CapRanked:       {"Ranked"},
		bot.CapGuest:        {"Guest"},
		bot.CapSpecialGuest: {"Special Guest"},
	}
}

// RoleAuthorizer grants a capability to anyone holding one of its roles.
type RoleAuthorizer struct {
	Roster       *Roster
	Capabilities map[bot.Capability][]string
}

var (
	_ bot.Authorizer = (*RoleAuthorizer)(nil)
	_ bot.RoleMapper = (*RoleAuthorizer)(nil)
)

func NewRoleAuthorizer(roster *Roster, capabilities map[bot.Capability][]string) *RoleAuthorizer {
	if capabilities == nil {
		capabilities = DefaultCapabilities()
	}
	return &RoleAuthorizer{Roster: roster, Capabilities: capabilities}
}

// HasCapability is false for members not on the roster.
func (a *RoleAuthorizer) HasCapability(_ context.Context, c ledger.CommunityID, m ledger.MemberID, capability bot.Capability) bool {
	member, ok := a.Roster.Get(c, m)
	if !ok {
		return false
	}
	return a.Confers(member.Roles, capability)
}

// Confers reports whether any of roles maps to capability.
func (a *RoleAuthorizer) Confers(roles []string, capability bot.Capability) bool {
	return slices.ContainsFunc(a.Capabilities[capability], func(role string) bool {
		return hasRole(roles, role)
	})
}
