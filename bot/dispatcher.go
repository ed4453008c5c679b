package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/clanpoints/claim"
	"github.com/warp/clanpoints/leaderboard"
	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/metrics"
	"github.com/warp/clanpoints/rewards"
)

// RoleMapper reports whether a set of role names confers a capability.
// Used to detect promotions from role-change events.
type RoleMapper interface {
	Confers(roles []string, capability Capability) bool
}

// Command results recorded in metrics.
const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultDenied   = "denied"
	resultError    = "error"
)

var required = map[string]Capability{
	CmdClaim:            CapEligible,
	CmdBalance:          CapEligible,
	CmdLeaderboard:      CapEligible,
	CmdGrant:            CapAdmin,
	CmdGrantRole:        CapAdmin,
	CmdDeduct:           CapAdmin,
	CmdResetBalances:    CapAdmin,
	CmdResetDailyClaims: CapAdmin,
	CmdPrune:            CapAdmin,
	CmdRankUps:          CapRanked,
}

// Members holding any of these are never suggested for a rank-up.
var rankUpExcluded = []Capability{CapRanked, CapGuest, CapSpecialGuest}

// Dispatcher routes commands to the ledger components.
type Dispatcher struct {
	Claims      *claim.Engine
	Admin       *ledger.Admin
	Leaderboard *leaderboard.Renderer
	Auth        Authorizer
	Directory   Directory
	Notifier    Notifier   // optional
	Roles       RoleMapper // optional; enables promotion notices
	Tiers       rewards.Tiers

	// AllowedChannels restricts where commands are accepted (empty = anywhere).
	AllowedChannels []string
	// GrantableRoles restricts grant-role targets (empty = any role).
	GrantableRoles []string

	Unit     string
	PageSize int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewDispatcher wires a dispatcher with default unit, page size and clock.
func NewDispatcher(claims *claim.Engine, admin *ledger.Admin, board *leaderboard.Renderer, auth Authorizer, dir Directory) *Dispatcher {
	return &Dispatcher{
		Claims:      claims,
		Admin:       admin,
		Leaderboard: board,
		Auth:        auth,
		Directory:   dir,
		Unit:        "CP",
		PageSize:    leaderboard.DefaultPageSize,
		Logger:      slog.Default().With("component", "dispatcher"),
		Now:         time.Now,
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch runs cmd and always returns a Response; errors become replies.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Response {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	resp := Response{CommandID: cmd.ID, Command: cmd.Name, Ephemeral: true}

	msg, err := d.run(ctx, cmd)
	result := resultOK
	if err != nil {
		result = d.classify(err)
		logger := d.Logger.With("command", cmd.Name, "command_id", cmd.ID,
			"community", cmd.Community, "actor", cmd.Actor)
		switch result {
		case resultError:
			logger.Error("command failed", "error", err)
		default:
			logger.Debug("command rejected", "error", err)
		}
		msg = UserMessage(err, d.Unit)
	}
	d.Metrics.ObserveCommand(cmd.Name, result)

	resp.OK = err == nil
	resp.Message = msg
	return resp
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) (string, error) {
	capability, ok := required[cmd.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	if !d.channelAllowed(cmd.Channel) {
		return "", ErrChannelNotAllowed
	}
	if d.Auth == nil || !d.Auth.HasCapability(ctx, cmd.Community, cmd.Actor, capability) {
		return "", ErrUnauthorized
	}

	switch cmd.Name {
	case CmdClaim:
		return d.claim(ctx, cmd)
	case CmdBalance:
		return d.balance(ctx, cmd)
	case CmdLeaderboard:
		return d.leaderboard(ctx, cmd)
	case CmdGrant:
		return d.grant(ctx, cmd)
	case CmdGrantRole:
		return d.grantRole(ctx, cmd)
	case CmdDeduct:
		return d.deduct(ctx, cmd)
	case CmdResetBalances:
		return d.resetBalances(ctx, cmd)
	case CmdResetDailyClaims:
		return d.resetDailyClaims(ctx, cmd)
	case CmdPrune:
		return d.prune(ctx, cmd)
	default:
		return d.rankUps(ctx, cmd)
	}
}

func (d *Dispatcher) classify(err error) string {
	var usage *UsageError
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrChannelNotAllowed):
		return resultDenied
	case ledger.IsClientError(err), ledger.IsNotFound(err), errors.As(err, &usage),
		errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrRoleNotEligible), errors.Is(err, ErrUnknownRole):
		return resultRejected
	default:
		return resultError
	}
}

func (d *Dispatcher) channelAllowed(channel string) bool {
	return len(d.AllowedChannels) == 0 || slices.Contains(d.AllowedChannels, channel)
}

// =============================================================================
// MEMBER COMMANDS
// =============================================================================

func (d *Dispatcher) claim(ctx context.Context, cmd Command) (string, error) {
	res, err := d.Claims.Claim(ctx, cmd.Community, cmd.Actor, d.now())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<@%s> You claimed %d %s successfully! Total %s: %d, you have a streak of %d",
		cmd.Actor, res.Reward, d.Unit, d.Unit, res.NewBalance, res.NewStreak), nil
}

func (d *Dispatcher) balance(ctx context.Context, cmd Command) (string, error) {
	rec, ok, err := d.Admin.Balance(ctx, cmd.Community, cmd.Actor)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("<@%s> You have no %s.", cmd.Actor, d.Unit), nil
	}
	return fmt.Sprintf("<@%s> You have %d %s (lifetime %d).", cmd.Actor, rec.Balance, d.Unit, rec.LifetimeEarned), nil
}

func (d *Dispatcher) leaderboard(ctx context.Context, cmd Command) (string, error) {
	metric, err := leaderboard.ParseMetric(cmd.Metric)
	if err != nil {
		return "", &UsageError{Command: cmd.Name, Usage: Usage(cmd.Name)}
	}
	view, err := d.Leaderboard.Render(ctx, cmd.Community, metric, max(cmd.Page-1, 0), d.PageSize)
	if err != nil {
		return "", err
	}
	return view.Text(), nil
}

// =============================================================================
// ADMIN COMMANDS
// =============================================================================

func (d *Dispatcher) grant(ctx context.Context, cmd Command) (string, error) {
	if cmd.Member == "" {
		return "", &UsageError{Command: cmd.Name, Usage: Usage(cmd.Name)}
	}
	_, err := d.Admin.Grant(ctx, ledger.GrantRequest{
		Community: cmd.Community, Member: cmd.Member, Amount: cmd.Amount,
		Reason: cmd.Reason, Actor: cmd.Actor,
	})
	if err != nil {
		return "", err
	}

	dm := fmt.Sprintf("You have been given %d %s by %s.", cmd.Amount, d.Unit, d.displayName(ctx, cmd.Community, cmd.Actor))
	reply := fmt.Sprintf("%d %s added to <@%s>.", cmd.Amount, d.Unit, cmd.Member)
	if cmd.Reason != "" {
		dm += " Reason: " + cmd.Reason + "."
		reply = fmt.Sprintf("%d %s added to <@%s> for reason: %s.", cmd.Amount, d.Unit, cmd.Member, cmd.Reason)
	}
	d.notify(ctx, cmd.Community, dm, cmd.Member)
	return reply, nil
}

func (d *Dispatcher) grantRole(ctx context.Context, cmd Command) (string, error) {
	if cmd.Role == "" {
		return "", &UsageError{Command: cmd.Name, Usage: Usage(cmd.Name)}
	}
	if cmd.Amount < 0 {
		return "", ledger.ErrNegativeAmount
	}
	if len(d.GrantableRoles) > 0 && !slices.ContainsFunc(d.GrantableRoles, func(r string) bool {
		return strings.EqualFold(r, cmd.Role)
	}) {
		return "", ErrRoleNotEligible
	}
	members, ok := d.Directory.MembersWithRole(ctx, cmd.Community, cmd.Role)
	if !ok {
		return "", ErrUnknownRole
	}
	n, err := d.Admin.GrantMany(ctx, ledger.GrantManyRequest{
		Community: cmd.Community, Members: members, Amount: cmd.Amount,
		Reason: cmd.Reason, Actor: cmd.Actor,
	})
	if err != nil {
		return "", err
	}

	reason := cmd.Reason
	if reason == "" {
		reason = "None"
	}
	d.notify(ctx, cmd.Community, fmt.Sprintf(
		"You have been given %d %s as part of the distribution to members with the role %s. Reason: %s.",
		cmd.Amount, d.Unit, cmd.Role, reason), members...)

	reply := fmt.Sprintf("%d %s given to %d members with the role %s.", cmd.Amount, d.Unit, n, cmd.Role)
	if cmd.Reason != "" {
		reply += " Reason: " + cmd.Reason + "."
	}
	return reply, nil
}

func (d *Dispatcher) deduct(ctx context.Context, cmd Command) (string, error) {
	if cmd.Member == "" {
		return "", &UsageError{Command: cmd.Name, Usage: Usage(cmd.Name)}
	}
	rec, err := d.Admin.Deduct(ctx, ledger.DeductRequest{
		Community: cmd.Community, Member: cmd.Member, Amount: cmd.Amount,
		Reason: cmd.Reason, Actor: cmd.Actor,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %s deducted from <@%s> for reason: %s. New balance: %d %s.",
		cmd.Amount, d.Unit, cmd.Member, cmd.Reason, rec.Balance, d.Unit), nil
}

func (d *Dispatcher) resetBalances(ctx context.Context, cmd Command) (string, error) {
	if _, err := d.Admin.ResetBalances(ctx, cmd.Community, cmd.Actor); err != nil {
		return "", err
	}
	msg := fmt.Sprintf("%s count has been reset for all members.", d.Unit)
	if d.Admin.BackupPath != "" {
		msg += " A backup has been saved."
	}
	return msg, nil
}

func (d *Dispatcher) resetDailyClaims(ctx context.Context, cmd Command) (string, error) {
	if _, err := d.Admin.ResetDailyClaims(ctx, cmd.Community, cmd.Actor); err != nil {
		return "", err
	}
	return "Daily claims have been reset for all users.", nil
}

func (d *Dispatcher) prune(ctx context.Context, cmd Command) (string, error) {
	gone, err := d.Admin.Prune(ctx, cmd.Community, func(m ledger.MemberID) bool {
		_, ok := d.Directory.DisplayName(ctx, cmd.Community, m)
		return ok
	}, cmd.Actor)
	if err != nil {
		return "", err
	}
	if len(gone) == 0 {
		return "No departed members to remove.", nil
	}
	return fmt.Sprintf("Removed %d departed members from the ledger.", len(gone)), nil
}

// =============================================================================
// RANKS
// =============================================================================

// RankUp is a member eligible for a tier they do not hold yet.
type RankUp struct {
	Member      ledger.MemberID
	DisplayName string
	Tier        rewards.Tier
}

// RankUps lists members whose balance reaches a tier and who hold none of
// the excluded capabilities, in member ID order.
func (d *Dispatcher) RankUps(ctx context.Context, c ledger.CommunityID) ([]RankUp, error) {
	entries, err := d.Admin.Store.Snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	var out []RankUp
	for _, e := range entries {
		tier, ok := d.Tiers.TierFor(e.Record.Balance)
		if !ok {
			continue
		}
		name, ok := d.Directory.DisplayName(ctx, c, e.Member)
		if !ok || d.holdsAny(ctx, c, e.Member, rankUpExcluded) {
			continue
		}
		out = append(out, RankUp{Member: e.Member, DisplayName: name, Tier: tier})
	}
	return out, nil
}

func (d *Dispatcher) rankUps(ctx context.Context, cmd Command) (string, error) {
	eligible, err := d.RankUps(ctx, cmd.Community)
	if err != nil {
		return "", err
	}
	if len(eligible) == 0 {
		return "No users are eligible for rank-up at this moment.", nil
	}
	var b strings.Builder
	b.WriteString("Users eligible for rank-up:")
	for _, r := range eligible {
		fmt.Fprintf(&b, "\n%s - Eligible for rank: %s", r.DisplayName, r.Tier.Name)
	}
	return b.String(), nil
}

// OnRolesChanged sends the promotion notice when a member newly gains the
// ranked capability and their balance reaches a tier. Reports whether a
// notice was sent.
func (d *Dispatcher) OnRolesChanged(ctx context.Context, c ledger.CommunityID, m ledger.MemberID, before, after []string) bool {
	if d.Roles == nil || d.Roles.Confers(before, CapRanked) || !d.Roles.Confers(after, CapRanked) {
		return false
	}
	rec, _, err := d.Admin.Balance(ctx, c, m)
	if err != nil {
		d.Logger.Error("promotion check failed", "community", c, "member", m, "error", err)
		return false
	}
	tier, ok := d.Tiers.TierFor(rec.Balance)
	if !ok {
		return false
	}
	name := d.displayName(ctx, c, m)
	return d.notify(ctx, c, fmt.Sprintf(
		"Congratulations %s! You are now eligible for the rank of %s. Please check your rank and ensure it matches the rank assigned to you.",
		name, tier.Name), m) > 0
}

// =============================================================================
// HELPERS
// =============================================================================

func (d *Dispatcher) holdsAny(ctx context.Context, c ledger.CommunityID, m ledger.MemberID, caps []Capability) bool {
	for _, capability := range caps {
		if d.Auth.HasCapability(ctx, c, m, capability) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) displayName(ctx context.Context, c ledger.CommunityID, m ledger.MemberID) string {
	if d.Directory != nil {
		if name, ok := d.Directory.DisplayName(ctx, c, m); ok {
			return name
		}
	}
	return string(m)
}

// notify messages each recipient and returns how many were delivered.
// Delivery failures are logged at debug level and otherwise ignored.
func (d *Dispatcher) notify(ctx context.Context, c ledger.CommunityID, message string, recipients ...ledger.MemberID) int {
	if d.Notifier == nil {
		return 0
	}
	sent := 0
	for _, m := range recipients {
		if err := d.Notifier.Notify(ctx, c, m, message); err != nil {
			d.Logger.Debug("notification not delivered", "community", c, "member", m, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
