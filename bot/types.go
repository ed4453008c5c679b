/*
Package bot is the command surface of the points economy.

PURPOSE:
  Turns chat commands into ledger operations. The dispatcher checks the
  channel and the caller's capability, runs the claim engine, the admin
  operations or the leaderboard, and converts every outcome (including
  errors) into a Response the chat adapter can post as-is.

COLLABORATORS (interfaces, implemented elsewhere):
  Authorizer: does a member hold a capability (directory.RoleAuthorizer)
  Directory:  display names and role membership (directory.Roster)
  Notifier:   best-effort direct messages (notify.Webhook, notify.Log)

CAPABILITIES:
  eligible:      claim, balance, leaderboard
  admin:         grant, grant-role, deduct, resets, prune
  ranked:        rank-ups; gaining it triggers the promotion notice
  guest, special-guest: excluded from rank-up suggestions

SEE ALSO:
  - dispatcher.go: command handling
  - parse.go: prefix text commands
  - messages.go: error to reply mapping
*/
package bot

import (
	"context"

	"github.com/warp/clanpoints/ledger"
)

// =============================================================================
// CAPABILITIES
// =============================================================================

// Capability is an abstract permission; which roles confer it is configuration.
type Capability string

const (
	CapEligible     Capability = "eligible"
	CapAdmin        Capability = "admin"
	CapRanked       Capability = "ranked"
	CapGuest        Capability = "guest"
	CapSpecialGuest Capability = "special-guest"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Authorizer answers capability checks.
type Authorizer interface {
	HasCapability(ctx context.Context, c ledger.CommunityID, m ledger.MemberID, capability Capability) bool
}

// Directory resolves members and roles of a community.
type Directory interface {
	// DisplayName returns ok=false for members not in the community.
	DisplayName(ctx context.Context, c ledger.CommunityID, m ledger.MemberID) (name string, ok bool)

	// MembersWithRole lists the holders of role; ok=false if the role is unknown.
	MembersWithRole(ctx context.Context, c ledger.CommunityID, role string) (members []ledger.MemberID, ok bool)
}

// Notifier delivers a direct message. Failures are expected (closed DMs)
// and never fail the command that triggered them.
type Notifier interface {
	Notify(ctx context.Context, c ledger.CommunityID, m ledger.MemberID, message string) error
}

// =============================================================================
// COMMANDS
// =============================================================================

// Command names.
const (
	CmdClaim            = "claim"
	CmdBalance          = "balance"
	CmdLeaderboard      = "leaderboard"
	CmdGrant            = "grant"
	CmdGrantRole        = "grant-role"
	CmdDeduct           = "deduct"
	CmdResetBalances    = "reset-balances"
	CmdResetDailyClaims = "reset-daily-claims"
	CmdPrune            = "prune"
	CmdRankUps          = "rank-ups"
)

// Command is one invocation. Only the fields the named command uses are read.
type Command struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Community ledger.CommunityID `json:"community_id"`
	Channel   string             `json:"channel_id"`
	Actor     ledger.MemberID    `json:"actor_id"`

	Member ledger.MemberID `json:"member_id,omitempty"`
	Role   string          `json:"role,omitempty"`
	Amount int64           `json:"amount,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Page   int             `json:"page,omitempty"` // 1-based; 0 means first
	Metric string          `json:"metric,omitempty"`
}

// Response is what the chat adapter posts back. Ephemeral replies are only
// visible to the caller.
type Response struct {
	CommandID string `json:"command_id"`
	Command   string `json:"command"`
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Ephemeral bool   `json:"ephemeral"`
}
