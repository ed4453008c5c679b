/*
Package leaderboard renders paginated standings of a community.

PURPOSE:
  Turns the ledger snapshot of one community into a page of ranked lines
  for the chat surface (or JSON for the HTTP API).

ORDERING:
  Descending by the chosen metric, ties broken by member ID ascending, so
  the same ledger always renders the same page.

PAGINATION:
  Pages are 0-based here (the command surface shows them 1-based).
  TotalPages = max(ceil(count / pageSize), 1); out-of-range pages are
  clamped. Ranks are global: with 25 per page, page 1 starts at rank 26.

RESOLUTION:
  Members the directory cannot resolve (they left the community) are
  skipped in the lines and listed in PageView.Unresolved. Rendering never
  mutates the ledger; removing departed members is ledger.Admin.Prune.

SEE ALSO:
  - bot/dispatcher.go: the "leaderboard" command
  - api/handlers.go: GET /leaderboard
*/
package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/clanpoints/ledger"
)

// DefaultPageSize is used when the caller passes pageSize <= 0.
const DefaultPageSize = 25

// Metric is the field standings are ranked by.
type Metric string

const (
	MetricBalance  Metric = "balance"
	MetricLifetime Metric = "lifetime"
)

// ParseMetric accepts "balance", "lifetime" or "" (balance).
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricBalance:
		return MetricBalance, nil
	case MetricLifetime:
		return MetricLifetime, nil
	default:
		return "", fmt.Errorf("unknown leaderboard metric %q", s)
	}
}

func (m Metric) value(r ledger.BalanceRecord) int64 {
	if m == MetricLifetime {
		return r.LifetimeEarned
	}
	return r.Balance
}

// Resolver maps member IDs to display names. ok is false for members who
// are no longer part of the community.
type Resolver interface {
	DisplayName(ctx context.Context, c ledger.CommunityID, m ledger.MemberID) (name string, ok bool)
}

// Line is one ranked row.
type Line struct {
	Rank        int             `json:"rank"`
	Member      ledger.MemberID `json:"member_id"`
	DisplayName string          `json:"display_name"`
	Value       int64           `json:"value"`
}

// Text renders "{rank}. {name}: {value} {unit}".
func (l Line) Text(unit string) string {
	return fmt.Sprintf("%d. %s: %d %s", l.Rank, l.DisplayName, l.Value, unit)
}

// PageView is one rendered page.
type PageView struct {
	Header     string            `json:"header"`
	Lines      []Line            `json:"lines"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	HasPrev    bool              `json:"has_prev"`
	HasNext    bool              `json:"has_next"`
	Unresolved []ledger.MemberID `json:"unresolved,omitempty"`
	Unit       string            `json:"unit"`
}

// Text renders the header and every line, one per row.
func (p PageView) Text() string {
	out := p.Header
	for _, l := range p.Lines {
		out += "\n" + l.Text(p.Unit)
	}
	return out
}

// Renderer builds pages from a Store.
type Renderer struct {
	Store    ledger.Store
	Resolver Resolver

	// Titles per metric and the currency unit shown after each value.
	BalanceTitle  string
	LifetimeTitle string
	Unit          string
}

// NewRenderer creates a Renderer with the default titles and unit.
func NewRenderer(store ledger.Store, resolver Resolver) *Renderer {
	return &Renderer{
		Store:         store,
		Resolver:      resolver,
		BalanceTitle:  "Leaderboard",
		LifetimeTitle: "All-time Leaderboard",
		Unit:          "CP",
	}
}

// Render returns page (0-based) of the community's standings.
func (r *Renderer) Render(ctx context.Context, c ledger.CommunityID, metric Metric, page, pageSize int) (PageView, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	entries, err := r.Store.Snapshot(ctx, c)
	if err != nil {
		return PageView{}, err
	}

	// Snapshot is ordered by member ID; a stable sort keeps that as the tiebreak.
	sort.SliceStable(entries, func(i, j int) bool {
		return metric.value(entries[i].Record) > metric.value(entries[j].Record)
	})

	totalPages := max((len(entries)+pageSize-1)/pageSize, 1)
	page = min(max(page, 0), totalPages-1)

	view := PageView{
		Header:     fmt.Sprintf("%s (page %d/%d)", r.title(metric), page+1, totalPages),
		Page:       page,
		TotalPages: totalPages,
		HasPrev:    page > 0,
		HasNext:    page < totalPages-1,
		Unit:       r.Unit,
		Lines:      []Line{},
	}

	start := page * pageSize
	end := min(start+pageSize, len(entries))
	for i := start; i < end; i++ {
		e := entries[i]
		name, ok := r.resolve(ctx, c, e.Member)
		if !ok {
			view.Unresolved = append(view.Unresolved, e.Member)
			continue
		}
		view.Lines = append(view.Lines, Line{
			Rank:        i + 1,
			Member:      e.Member,
			DisplayName: name,
			Value:       metric.value(e.Record),
		})
	}
	return view, nil
}

func (r *Renderer) resolve(ctx context.Context, c ledger.CommunityID, m ledger.MemberID) (string, bool) {
	if r.Resolver == nil {
		return string(m), true
	}
	return r.Resolver.DisplayName(ctx, c, m)
}

func (r *Renderer) title(m Metric) string {
	if m == MetricLifetime {
		return r.LifetimeTitle
	}
	return r.BalanceTitle
}
