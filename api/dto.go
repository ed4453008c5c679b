/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures exchanged with the chat adapter and admin
  tooling. The ledger types stay free of HTTP concerns.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Commands:
    CommandRequest, MessageRequest (replies are bot.Response)

  Ledger:
    BalanceDTO, RankUpDTO, AuditEntryDTO

  Roster:
    MemberRequest, MemberDTO

  Operations:
    SweepReportDTO, ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
  - bot/types.go: Command and Response
*/
package api

import (
	"time"

	"github.com/warp/clanpoints/bot"
	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/sweep"
)

// =============================================================================
// COMMANDS
// =============================================================================

// CommandRequest is a structured (slash) command. The community comes from the URL.
type CommandRequest struct {
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name"`
	Channel string          `json:"channel_id"`
	Actor   ledger.MemberID `json:"actor_id"`
	Member  ledger.MemberID `json:"member_id,omitempty"`
	Role    string          `json:"role,omitempty"`
	Amount  int64           `json:"amount,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Page    int             `json:"page,omitempty"`
	Metric  string          `json:"metric,omitempty"`
}

func (r CommandRequest) command(c ledger.CommunityID) bot.Command {
	return bot.Command{
		ID:        r.ID,
		Name:      r.Name,
		Community: c,
		Channel:   r.Channel,
		Actor:     r.Actor,
		Member:    r.Member,
		Role:      r.Role,
		Amount:    r.Amount,
		Reason:    r.Reason,
		Page:      r.Page,
		Metric:    r.Metric,
	}
}

// MessageRequest is a raw chat message that may hold a prefix command.
type MessageRequest struct {
	Channel string          `json:"channel_id"`
	Actor   ledger.MemberID `json:"actor_id"`
	Text    string          `json:"text"`
}

// =============================================================================
// LEDGER
// =============================================================================

// BalanceDTO is one member's standing.
type BalanceDTO struct {
	Community      ledger.CommunityID `json:"community_id"`
	Member         ledger.MemberID    `json:"member_id"`
	Balance        int64              `json:"balance"`
	LifetimeEarned int64              `json:"lifetime_earned"`
	Streak         int                `json:"streak"`
	LastClaimed    *ledger.Date       `json:"last_claimed,omitempty"`
	Tier           string             `json:"tier,omitempty"`
}

type RankUpDTO struct {
	Member      ledger.MemberID `json:"member_id"`
	DisplayName string          `json:"display_name"`
	Tier        string          `json:"tier"`
	Threshold   int64           `json:"threshold"`
}

// AuditEntryDTO represents an admin mutation in API responses.
type AuditEntryDTO struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Actor     ledger.MemberID    `json:"actor_id"`
	Action    ledger.AuditAction `json:"action"`
	Member    ledger.MemberID    `json:"member_id,omitempty"`
	Amount    int64              `json:"amount,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Affected  int                `json:"affected"`
}

func toAuditDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Action:    e.Action,
		Member:    e.Member,
		Amount:    e.Amount,
		Reason:    e.Reason,
		Affected:  e.Affected,
	}
}

// =============================================================================
// ROSTER
// =============================================================================

// MemberRequest replaces a member's display name and roles.
type MemberRequest struct {
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

type MemberDTO struct {
	ID          ledger.MemberID `json:"id"`
	DisplayName string          `json:"display_name"`
	Roles       []string        `json:"roles"`
	Created     bool            `json:"created"`
	Promoted    bool            `json:"promotion_notice_sent"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

type SweepReportDTO struct {
	Community ledger.CommunityID `json:"community_id"`
	Day       ledger.Date        `json:"day"`
	Scanned   int                `json:"scanned"`
	Lapsed    int                `json:"lapsed"`
}

func toSweepDTO(r sweep.Report) SweepReportDTO {
	return SweepReportDTO{Community: r.Community, Day: r.Day, Scanned: r.Scanned, Lapsed: r.Lapsed}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
