/*
handlers.go - HTTP API handlers for the points bot

PURPOSE:
  Exposes the command surface and the roster sync to the chat adapter,
  plus read-only views for admin tooling. Handlers parse the request,
  delegate to the bot, ledger or directory packages and serialize the
  result.

ENDPOINTS:
  Commands:
    POST   /api/communities/{community}/commands   Structured command -> bot.Response
    POST   /api/communities/{community}/messages   Prefix text command -> bot.Response

  Ledger views:
    GET    /api/communities/{community}/leaderboard          ?metric=&page=&page_size=
    GET    /api/communities/{community}/members/{member}/balance
    GET    /api/communities/{community}/rank-ups
    GET    /api/communities/{community}/audit                ?member=&action=&limit=

  Roster:
    PUT    /api/communities/{community}/members/{member}     Upsert, may send promotion notice
    DELETE /api/communities/{community}/members/{member}     Member left

  Operations:
    POST   /api/sweep                                        Run the reset sweep now

COMMAND REPLIES:
  Commands always answer 200 with a bot.Response; a rejected command is a
  reply for the chat, not an HTTP failure. Only malformed bodies get 400.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body or query
  - 404: Unknown member or community
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/clanpoints/bot"
	"github.com/warp/clanpoints/directory"
	"github.com/warp/clanpoints/leaderboard"
	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/sweep"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Dispatcher *bot.Dispatcher
	Roster     *directory.Roster
	Audit      ledger.AuditLog  // optional
	Sweep      *sweep.Scheduler // optional

	// Prefix marks text commands in POST /messages.
	Prefix string

	Logger *slog.Logger
}

// NewHandler creates a handler serving the given dispatcher and roster.
func NewHandler(d *bot.Dispatcher, roster *directory.Roster, prefix string) *Handler {
	return &Handler{
		Dispatcher: d,
		Roster:     roster,
		Prefix:     prefix,
		Logger:     slog.Default().With("component", "api"),
	}
}

func community(r *http.Request) ledger.CommunityID {
	return ledger.CommunityID(chi.URLParam(r, "community"))
}

func member(r *http.Request) ledger.MemberID {
	return ledger.MemberID(chi.URLParam(r, "member"))
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// PostCommand dispatches a structured command.
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "name and actor_id are required", nil)
		return
	}

	writeJSON(w, http.StatusOK, h.Dispatcher.Dispatch(r.Context(), req.command(community(r))))
}

// PostMessage parses a chat message and dispatches it if it is a command.
// Messages without the prefix answer 204.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cmd, err := bot.Parse(h.Prefix, req.Text)
	switch {
	case errors.Is(err, bot.ErrNotCommand):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		writeJSON(w, http.StatusOK, bot.Response{
			Command:   cmd.Name,
			Message:   bot.UserMessage(err, h.Dispatcher.Unit),
			Ephemeral: true,
		})
		return
	}

	cmd.Community = community(r)
	cmd.Channel = req.Channel
	cmd.Actor = req.Actor
	writeJSON(w, http.StatusOK, h.Dispatcher.Dispatch(r.Context(), cmd))
}

// =============================================================================
// LEDGER VIEWS
// =============================================================================

// GetLeaderboard renders one page. page is 1-based here, as in chat.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	metric, err := leaderboard.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid metric", err)
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}
	size, err := intParam(r, "page_size", h.Dispatcher.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page_size", err)
		return
	}

	view, err := h.Dispatcher.Leaderboard.Render(r.Context(), community(r), metric, page-1, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetBalance returns a member's record without creating one.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	c, m := community(r), member(r)
	rec, found, err := h.Dispatcher.Admin.Balance(r.Context(), c, m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Member has no points record", nil)
		return
	}

	dto := BalanceDTO{
		Community:      c,
		Member:         m,
		Balance:        rec.Balance,
		LifetimeEarned: rec.LifetimeEarned,
		Streak:         rec.Streak,
		LastClaimed:    rec.LastClaimed,
	}
	if tier, ok := h.Dispatcher.Tiers.TierFor(rec.Balance); ok {
		dto.Tier = tier.Name
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetRankUps lists members eligible for a tier they do not hold.
func (h *Handler) GetRankUps(w http.ResponseWriter, r *http.Request) {
	eligible, err := h.Dispatcher.RankUps(r.Context(), community(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rank-ups", err)
		return
	}

	dtos := make([]RankUpDTO, len(eligible))
	for i, e := range eligible {
		dtos[i] = RankUpDTO{
			Member:      e.Member,
			DisplayName: e.DisplayName,
			Tier:        e.Tier.Name,
			Threshold:   e.Tier.Threshold,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAudit returns admin mutations, newest first.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeError(w, http.StatusNotFound, "Audit log is not enabled", nil)
		return
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	q := r.URL.Query()
	filter := ledger.AuditFilter{Community: community(r), Limit: limit}
	if m := q.Get("member"); m != "" {
		id := ledger.MemberID(m)
		filter.Member = &id
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, ledger.AuditAction(a))
	}

	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ROSTER HANDLERS
// =============================================================================

// PutMember records a member's current name and roles. A role change that
// grants the ranked capability triggers the promotion notice.
func (h *Handler) PutMember(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c, m := community(r), member(r)

	before, existed := h.Roster.Upsert(c, directory.Member{ID: m, DisplayName: req.DisplayName, Roles: req.Roles})
	dto := MemberDTO{ID: m, DisplayName: req.DisplayName, Roles: req.Roles, Created: !existed}
	if existed {
		dto.Promoted = h.Dispatcher.OnRolesChanged(r.Context(), c, m, before, req.Roles)
	}

	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto)
}

// DeleteMember drops a departed member from the roster. Their ledger record
// stays until an admin runs prune.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	if !h.Roster.Remove(community(r), member(r)) {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// TriggerSweep runs the reset sweep over every community immediately.
// Partial failures still return the successful reports, with status 500.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweep == nil {
		writeError(w, http.StatusNotFound, "Sweep is not configured", nil)
		return
	}

	reports, err := h.Sweep.RunNow(r.Context())
	dtos := make([]SweepReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toSweepDTO(rep)
	}
	if err != nil {
		h.Logger.Error("manual sweep failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"reports": dtos,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": dtos})
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
