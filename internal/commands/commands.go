// Package commands implements the chat command surface: argument
// validation, authorization, the deferred-reason flow, and reply rendering.
// It is platform-neutral; the gateway adapter translates Responses.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloxmod/modbridge/internal/auth"
	"github.com/bloxmod/modbridge/internal/metrics"
	"github.com/bloxmod/modbridge/internal/pending"
	"github.com/bloxmod/modbridge/internal/profile"
	"github.com/bloxmod/modbridge/internal/registry"
	"github.com/rs/zerolog"
)

var (
	// ErrUnauthorized means the caller lacks the required role. No state changed.
	ErrUnauthorized = errors.New("not allowed")
	// ErrInvalidArgument means a malformed argument. No state changed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// File is an attachment to deliver instead of inline text.
type File struct {
	Name string
	Data []byte
}

// Response is a rendered reply for the chat platform.
type Response struct {
	Text      string
	File      *File
	Ephemeral bool
}

// Handler executes chat commands against the registry.
type Handler struct {
	registry *registry.Registry
	pending  *pending.Tracker
	policy   *auth.Policy
	profiles profile.Client
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the time source used for rendering, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler builds a command Handler.
func NewHandler(reg *registry.Registry, tracker *pending.Tracker, policy *auth.Policy,
	profiles profile.Client, log zerolog.Logger, opts ...Option) *Handler {

	h := &Handler{
		registry: reg,
		pending:  tracker,
		policy:   policy,
		profiles: profiles,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ban permanently bans targetID. An empty reason defers the ban until the
// caller's next message supplies one.
func (h *Handler) Ban(ctx context.Context, callerID, targetID, reason string) (Response, error) {
	targetID, err := cleanUserID(targetID)
	if err != nil {
		metrics.CommandsProcessed.WithLabelValues("ban", "invalid").Inc()
		return Response{}, err
	}
	if !h.policy.IsAdmin(callerID) {
		metrics.CommandsProcessed.WithLabelValues("ban", "denied").Inc()
		return Response{}, ErrUnauthorized
	}

	prof := h.lookup(ctx, targetID)

	if reason == "" {
		h.pending.Begin(callerID, pending.Action{Kind: pending.PermanentBan, TargetID: targetID})
		metrics.PendingOpened.Inc()
		metrics.CommandsProcessed.WithLabelValues("ban", "deferred").Inc()
		return Response{Text: renderPrompt("PERM BAN", prof, targetID), Ephemeral: true}, nil
	}

	if _, err := h.registry.Ban(targetID, reason, registry.Permanent(), prof.Username, prof.DisplayName); err != nil {
		metrics.CommandsProcessed.WithLabelValues("ban", "error").Inc()
		return Response{}, err
	}
	metrics.CommandsProcessed.WithLabelValues("ban", "ok").Inc()
	h.log.Info().Str("caller", callerID).Str("target", targetID).Msg("permanent ban")
	return Response{Text: renderBanned("PERM BANNED", prof, targetID, reason)}, nil
}

// TempBan bans targetID for the given minutes. An empty reason defers the
// ban; the expiry countdown is then anchored at reason-supply time, not now.
func (h *Handler) TempBan(ctx context.Context, callerID, targetID string, minutes int, reason string) (Response, error) {
	targetID, err := cleanUserID(targetID)
	if err != nil {
		metrics.CommandsProcessed.WithLabelValues("tempban", "invalid").Inc()
		return Response{}, err
	}
	if minutes <= 0 {
		metrics.CommandsProcessed.WithLabelValues("tempban", "invalid").Inc()
		return Response{}, fmt.Errorf("%w: minutes must be positive, got %d", ErrInvalidArgument, minutes)
	}
	if !h.policy.IsAdmin(callerID) {
		metrics.CommandsProcessed.WithLabelValues("tempban", "denied").Inc()
		return Response{}, ErrUnauthorized
	}

	prof := h.lookup(ctx, targetID)

	if reason == "" {
		h.pending.Begin(callerID, pending.Action{Kind: pending.TemporaryBan, TargetID: targetID, Minutes: minutes})
		metrics.PendingOpened.Inc()
		metrics.CommandsProcessed.WithLabelValues("tempban", "deferred").Inc()
		return Response{Text: renderPrompt(fmt.Sprintf("TEMP BAN (%dm)", minutes), prof, targetID), Ephemeral: true}, nil
	}

	exp := registry.TemporaryFor(time.Duration(minutes) * time.Minute)
	if _, err := h.registry.Ban(targetID, reason, exp, prof.Username, prof.DisplayName); err != nil {
		metrics.CommandsProcessed.WithLabelValues("tempban", "error").Inc()
		return Response{}, err
	}
	metrics.CommandsProcessed.WithLabelValues("tempban", "ok").Inc()
	h.log.Info().Str("caller", callerID).Str("target", targetID).Int("minutes", minutes).Msg("temporary ban")
	return Response{Text: renderBanned(fmt.Sprintf("TEMP BANNED (%dm)", minutes), prof, targetID, reason)}, nil
}

// Unban removes targetID from the registry. Unbanning an id that was never
// banned is a no-op, confirmed all the same.
func (h *Handler) Unban(ctx context.Context, callerID, targetID string) (Response, error) {
	targetID, err := cleanUserID(targetID)
	if err != nil {
		metrics.CommandsProcessed.WithLabelValues("unban", "invalid").Inc()
		return Response{}, err
	}
	if !h.policy.IsAdmin(callerID) {
		metrics.CommandsProcessed.WithLabelValues("unban", "denied").Inc()
		return Response{}, ErrUnauthorized
	}

	prof := h.lookup(ctx, targetID)
	removed, err := h.registry.Unban(targetID)
	if err != nil {
		metrics.CommandsProcessed.WithLabelValues("unban", "error").Inc()
		return Response{}, err
	}
	metrics.CommandsProcessed.WithLabelValues("unban", "ok").Inc()
	h.log.Info().Str("caller", callerID).Str("target", targetID).Bool("removed", removed).Msg("unban")
	return Response{Text: renderSubject("UNBANNED", prof, targetID)}, nil
}

// List renders all active entries with their status. Output larger than
// AttachmentThreshold is delivered as a file attachment instead of inline.
func (h *Handler) List(ctx context.Context, callerID string) (Response, error) {
	if !h.policy.IsAdmin(callerID) {
		metrics.CommandsProcessed.WithLabelValues("list", "denied").Inc()
		return Response{}, ErrUnauthorized
	}

	entries, err := h.registry.List()
	if err != nil {
		metrics.CommandsProcessed.WithLabelValues("list", "error").Inc()
		return Response{}, err
	}
	metrics.CommandsProcessed.WithLabelValues("list", "ok").Inc()

	if len(entries) == 0 {
		return Response{Text: "No one blocked.", Ephemeral: true}, nil
	}

	body := renderList(entries, h.now())
	if len(body) > AttachmentThreshold {
		return Response{
			Text:      "Sending file...",
			File:      &File{Name: "blocked.txt", Data: []byte(body)},
			Ephemeral: true,
		}, nil
	}
	return Response{Text: "**BLOCKED USERS:**\n" + body, Ephemeral: true}, nil
}

// Clear removes every registry entry.
func (h *Handler) Clear(ctx context.Context, callerID string) (Response, error) {
	if !h.policy.IsAdmin(callerID) {
		metrics.CommandsProcessed.WithLabelValues("clear", "denied").Inc()
		return Response{}, ErrUnauthorized
	}
	if err := h.registry.ClearAll(); err != nil {
		metrics.CommandsProcessed.WithLabelValues("clear", "error").Inc()
		return Response{}, err
	}
	metrics.CommandsProcessed.WithLabelValues("clear", "ok").Inc()
	h.log.Info().Str("caller", callerID).Msg("registry cleared")
	return Response{Text: "All bans cleared!", Ephemeral: true}, nil
}

// AddAdmin grants admin rights. Owner only.
func (h *Handler) AddAdmin(ctx context.Context, callerID, targetID string) (Response, error) {
	targetID = strings.TrimSpace(targetID)
	if !isSnowflake(targetID) {
		metrics.CommandsProcessed.WithLabelValues("addadmin", "invalid").Inc()
		return Response{}, fmt.Errorf("%w: moderator id must be numeric, got %q", ErrInvalidArgument, targetID)
	}
	if !h.policy.IsOwner(callerID) {
		metrics.CommandsProcessed.WithLabelValues("addadmin", "denied").Inc()
		return Response{}, ErrUnauthorized
	}

	if _, err := h.policy.AddAdmin(targetID); err != nil {
		metrics.CommandsProcessed.WithLabelValues("addadmin", "error").Inc()
		return Response{}, err
	}
	metrics.CommandsProcessed.WithLabelValues("addadmin", "ok").Inc()
	text := fmt.Sprintf("Admin added: %s\nAdmins: %s", targetID, strings.Join(h.policy.Admins(), ", "))
	return Response{Text: text, Ephemeral: true}, nil
}

// HandleMessage consumes authorID's pending action, if any, treating the
// message content as the ban reason. consumed is false when the author has
// nothing pending and the message should flow on untouched. Whitespace-only
// content yields an empty reason; it is accepted, not rejected.
func (h *Handler) HandleMessage(ctx context.Context, authorID, content string) (resp Response, consumed bool, err error) {
	action, ok := h.pending.Consume(authorID)
	if !ok {
		return Response{}, false, nil
	}
	metrics.PendingConsumed.Inc()

	reason := strings.TrimSpace(content)
	prof := h.lookup(ctx, action.TargetID)

	// The commit happens now, so a temporary ban's countdown starts here,
	// however long the moderator took to type the reason.
	title := "PERM BANNED"
	exp := registry.Permanent()
	if action.Kind == pending.TemporaryBan {
		title = fmt.Sprintf("TEMP BANNED (%dm)", action.Minutes)
		exp = registry.TemporaryFor(time.Duration(action.Minutes) * time.Minute)
	}

	if _, err := h.registry.Ban(action.TargetID, reason, exp, prof.Username, prof.DisplayName); err != nil {
		return Response{}, true, err
	}
	h.log.Info().Str("caller", authorID).Str("target", action.TargetID).Msg("deferred ban committed")
	return Response{Text: renderBanned(title, prof, action.TargetID, reason)}, true, nil
}

// lookup resolves display metadata, degrading to Unknown on any failure.
func (h *Handler) lookup(ctx context.Context, userID string) profile.Profile {
	prof, err := h.profiles.Fetch(ctx, userID)
	if err != nil {
		h.log.Debug().Err(err).Str("user_id", userID).Msg("profile lookup degraded")
		return profile.Unknown
	}
	return prof
}

// cleanUserID trims and validates a target user id. The platform's id format
// is opaque, so the only shape check is non-emptiness.
func cleanUserID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: user id must not be empty", ErrInvalidArgument)
	}
	return id, nil
}

// isSnowflake reports whether id is a non-empty decimal string.
func isSnowflake(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
