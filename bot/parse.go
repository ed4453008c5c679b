package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/clanpoints/ledger"
)

var (
	// ErrNotCommand is returned by Parse for text without the prefix.
	ErrNotCommand = errors.New("not a command")

	// ErrUnknownCommand is returned for a prefixed word that names no command.
	ErrUnknownCommand = errors.New("unknown command")
)

// UsageError reports malformed arguments.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s", e.Usage)
}

var usages = map[string]string{
	CmdClaim:            "claim",
	CmdBalance:          "balance",
	CmdLeaderboard:      "leaderboard [page] [balance|lifetime]",
	CmdGrant:            "grant <@member> <amount> [reason]",
	CmdGrantRole:        "grant-role <@role> <amount> [reason]",
	CmdDeduct:           "deduct <@member> <amount> <reason>",
	CmdResetBalances:    "reset-balances",
	CmdResetDailyClaims: "reset-daily-claims",
	CmdPrune:            "prune",
	CmdRankUps:          "rank-ups",
}

// Names the bot used to answer to.
var aliases = map[string]string{
	"cp":             CmdBalance,
	"give":           CmdGrant,
	"give-role-cp":   CmdGrantRole,
	"reset-cp":       CmdResetBalances,
	"check-rank-ups": CmdRankUps,
}

// Parse turns a prefixed text message such as "!grant <@42> 10 good game"
// into a Command. Community, channel and actor are left for the caller.
func Parse(prefix, text string) (Command, error) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Command{}, ErrNotCommand
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return Command{}, ErrNotCommand
	}

	name := strings.ReplaceAll(strings.ToLower(fields[0]), "_", "-")
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	usage, ok := usages[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	cmd := Command{Name: name}
	args := fields[1:]
	bad := &UsageError{Command: name, Usage: prefix + usage}

	switch name {
	case CmdLeaderboard:
		for _, a := range args {
			if n, err := strconv.Atoi(a); err == nil {
				cmd.Page = n
			} else {
				cmd.Metric = strings.ToLower(a)
			}
		}
	case CmdGrant, CmdDeduct, CmdGrantRole:
		if len(args) < 2 {
			return Command{}, bad
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return Command{}, bad
		}
		cmd.Amount = amount
		cmd.Reason = strings.Join(args[2:], " ")
		if name == CmdGrantRole {
			cmd.Role = roleName(args[0])
		} else {
			cmd.Member = memberID(args[0])
		}
		if cmd.Member == "" && cmd.Role == "" {
			return Command{}, bad
		}
	default:
		if len(args) > 0 {
			return Command{}, bad
		}
	}
	return cmd, nil
}

// Usage returns the argument synopsis of a command.
func Usage(name string) string { return usages[name] }

// memberID accepts "<@42>", "<@!42>", "@42" and "42".
func memberID(s string) ledger.MemberID {
	s = strings.TrimPrefix(strings.TrimSuffix(s, ">"), "<")
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimPrefix(s, "!")
	if strings.HasPrefix(s, "&") {
		return ""
	}
	return ledger.MemberID(s)
}

// roleName accepts "<@&7>", "@Member" and "Member".
func roleName(s string) string {
	s = strings.TrimPrefix(strings.TrimSuffix(s, ">"), "<")
	s = strings.TrimPrefix(s, "@")
	return strings.TrimPrefix(s, "&")
}
