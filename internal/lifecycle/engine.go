// Package lifecycle owns the suggestion state machine: creation,
// validated transitions, their side effects and the intents they emit.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/metrics"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/status"
)

// DefaultSecondPartyWindow is how long the second party has to answer.
const DefaultSecondPartyWindow = 72 * time.Hour

const createdNote = "Initial suggestion created and sent to first party"

// Engine orchestrates suggestion lifecycle operations.
type Engine struct {
	store    Store
	parties  PartyLookup
	notifier Notifier
	clock    Clock
	log      *slog.Logger

	secondPartyWindow time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSecondPartyWindow sets the response window that starts when a
// suggestion reaches PENDING_SECOND_PARTY. Non-positive values are ignored.
func WithSecondPartyWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.secondPartyWindow = d
		}
	}
}

// NewEngine wires the engine to its ports.
func NewEngine(store Store, parties PartyLookup, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		parties:           parties,
		notifier:          notifier,
		clock:             systemClock{},
		log:               logger.Named("lifecycle"),
		secondPartyWindow: DefaultSecondPartyWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// now is UTC truncated to the millisecond, the precision both databases keep.
func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Millisecond)
}

// Create validates and stores a new suggestion at PENDING_FIRST_PARTY.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*db.Suggestion, error) {
	now := e.now()

	if err := validateStruct(req); err != nil {
		return nil, e.fail("create", err)
	}
	if !req.DecisionDeadline.After(now) {
		return nil, e.fail("create", svcErr.Validation("decision deadline must be in the future"))
	}

	matchmaker, err := e.parties.ResolveParty(ctx, req.MatchmakerID)
	if err != nil {
		return nil, e.fail("resolve matchmaker", err)
	}
	if !matchmaker.Exists {
		return nil, e.fail("create", svcErr.Newf(svcErr.KindPartyNotFound, "matchmaker %d", req.MatchmakerID))
	}
	if matchmaker.Role != db.RoleMatchmaker {
		return nil, e.fail("create", svcErr.Newf(svcErr.KindForbidden,
			"user %d is not a matchmaker", req.MatchmakerID))
	}

	for _, id := range []uint64{req.FirstPartyID, req.SecondPartyID} {
		party, err := e.parties.ResolveParty(ctx, id)
		if err != nil {
			return nil, e.fail("resolve party", err)
		}
		if !party.Exists {
			return nil, e.fail("create", svcErr.Newf(svcErr.KindPartyNotFound, "party %d", id))
		}
		if party.Availability != db.AvailabilityAvailable {
			return nil, e.fail("create", svcErr.Newf(svcErr.KindPartyUnavailable,
				"party %d is %s", id, party.Availability))
		}
	}

	existing, err := e.store.FindActiveBetween(ctx, req.FirstPartyID, req.SecondPartyID)
	if err != nil {
		return nil, e.fail("find active suggestion", err)
	}
	if existing != nil {
		return nil, e.fail("create", svcErr.Newf(svcErr.KindDuplicateActive,
			"suggestion %s is already active between %d and %d", existing.ID, req.FirstPartyID, req.SecondPartyID))
	}

	priority := req.Priority
	if priority == "" {
		priority = db.PriorityMedium
	}
	key := db.PairKey(req.FirstPartyID, req.SecondPartyID)
	deadline := req.DecisionDeadline.UTC().Truncate(time.Millisecond)
	responseDeadline := deadline
	sent := now

	s := &db.Suggestion{
		ID:               uuid.NewString(),
		MatchmakerID:     req.MatchmakerID,
		FirstPartyID:     req.FirstPartyID,
		SecondPartyID:    req.SecondPartyID,
		Status:           status.PendingFirstParty,
		Category:         status.PendingFirstParty.Category(),
		Priority:         priority,
		ActivePairKey:    &key,
		MatchingReason:   req.MatchingReason,
		FirstPartyNotes:  req.FirstPartyNotes,
		SecondPartyNotes: req.SecondPartyNotes,
		InternalNotes:    req.InternalNotes,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastStatusChange: now,
		LastActivity:     now,
		FirstPartySent:   &sent,
		DecisionDeadline: &deadline,
		ResponseDeadline: &responseDeadline,
	}
	h := &db.SuggestionStatusHistory{
		Status:    status.PendingFirstParty,
		Notes:     createdNote,
		Actor:     string(RoleMatchmaker),
		CreatedAt: now,
	}

	if err := e.store.CreateSuggestionWithHistory(ctx, s, h); err != nil {
		return nil, e.fail("create suggestion", err)
	}

	metrics.TransitionsTotal.WithLabelValues("", string(status.PendingFirstParty), string(RoleMatchmaker)).Inc()
	e.log.Info("suggestion created",
		"suggestion_id", s.ID,
		"matchmaker_id", s.MatchmakerID,
		"first_party_id", s.FirstPartyID,
		"second_party_id", s.SecondPartyID,
	)

	e.enqueue(context.WithoutCancel(ctx), IntentSent, s.ID, []uint64{s.FirstPartyID})
	return s, nil
}

// Transition moves a suggestion to req.RequestedStatus.
//
// Behavior:
//   - The move must be in the transition table; the system actor may also
//     expire a suggestion that is still waiting on a party.
//   - The actor must be allowed to make the move (see authorize).
//   - Stamps, the status change and one history row commit together, and
//     only if nobody changed the status since it was read.
//   - Exactly one notification intent is enqueued after commit; enqueue
//     failures are logged, never returned.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*db.Suggestion, error) {
	if err := validateStruct(req); err != nil {
		return nil, e.fail("transition", err)
	}
	target := req.RequestedStatus
	if !target.Valid() {
		return nil, e.fail("transition", svcErr.Newf(svcErr.KindValidation, "unknown status %q", target))
	}

	s, err := e.store.GetSuggestion(ctx, req.SuggestionID)
	if err != nil {
		return nil, e.fail("load suggestion", err)
	}
	current := s.Status

	if !status.IsAllowed(current, target) && !systemExpiry(req.Actor, current, target) {
		return nil, e.fail("transition", svcErr.Newf(svcErr.KindInvalidTransition,
			"cannot move suggestion %s from %s to %s", s.ID, current, target))
	}
	if err := authorize(req.Actor, s, target); err != nil {
		return nil, e.fail("transition", err)
	}

	now := e.now()
	next, patch := e.plan(s, target, now)

	notes := req.Notes
	if notes == "" {
		notes = fmt.Sprintf("Status changed from %s to %s", current, target)
	}
	h := &db.SuggestionStatusHistory{
		Status:    target,
		Notes:     notes,
		Actor:     string(req.Actor.Role),
		CreatedAt: now,
	}

	if err := e.store.UpdateSuggestionWithHistory(ctx, s.ID, current, patch, h); err != nil {
		return nil, e.fail("update suggestion", err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(current), string(target), string(req.Actor.Role)).Inc()
	e.log.Info("suggestion transitioned",
		"suggestion_id", s.ID,
		"from", current,
		"to", target,
		"actor", req.Actor.Role,
	)

	// The transition is committed; side effects must not be cut short by the caller.
	after := context.WithoutCancel(ctx)
	intent, recipients := intentFor(next, target)
	e.enqueue(after, intent, next.ID, recipients)
	e.writeBackAvailability(after, next, target)

	return next, nil
}

// plan computes the record after the move and the column patch that
// produces it. Stamps other than the response deadline are set only once.
func (e *Engine) plan(s *db.Suggestion, target status.Status, now time.Time) (*db.Suggestion, repository.Patch) {
	next := *s
	prev := s.Status
	next.PreviousStatus = &prev
	next.Status = target
	next.Category = target.Category()
	next.LastStatusChange = now
	next.LastActivity = now
	next.UpdatedAt = now

	patch := repository.Patch{
		"status":             target,
		"previous_status":    prev,
		"category":           next.Category,
		"last_status_change": now,
		"last_activity":      now,
		"updated_at":         now,
	}

	stampOnce := func(column string, field **time.Time) {
		if *field != nil {
			return
		}
		t := now
		*field = &t
		patch[column] = now
	}

	switch target {
	case status.PendingFirstParty:
		stampOnce("first_party_sent", &next.FirstPartySent)
	case status.FirstPartyApproved, status.FirstPartyDeclined:
		stampOnce("first_party_responded", &next.FirstPartyResponded)
	case status.PendingSecondParty:
		stampOnce("second_party_sent", &next.SecondPartySent)
		deadline := now.Add(e.secondPartyWindow)
		next.ResponseDeadline = &deadline
		patch["response_deadline"] = deadline
	case status.SecondPartyApproved, status.SecondPartyDeclined:
		stampOnce("second_party_responded", &next.SecondPartyResponded)
	case status.ContactDetailsShared:
		stampOnce("contact_shared_at", &next.ContactSharedAt)
	case status.MeetingScheduled:
		stampOnce("first_meeting_scheduled", &next.FirstMeetingScheduled)
	}

	if !target.IsActive() {
		next.ActivePairKey = nil
		patch["active_pair_key"] = nil
	}
	if target.IsTerminal() {
		stampOnce("closed_at", &next.ClosedAt)
	}

	return &next, patch
}

// UpdateDetails edits narrative fields, priority and deadlines. Only the
// suggestion's matchmaker may do it; status and history are untouched.
func (e *Engine) UpdateDetails(ctx context.Context, id string, actor Actor, p DetailsPatch) (*db.Suggestion, error) {
	if err := validateStruct(p); err != nil {
		return nil, e.fail("update details", err)
	}
	if p.empty() {
		return nil, e.fail("update details", svcErr.Validation("nothing to update"))
	}
	if actor.Role != RoleMatchmaker {
		return nil, e.fail("update details", svcErr.New(svcErr.KindForbidden, "only the matchmaker can edit a suggestion"))
	}

	s, err := e.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, e.fail("load suggestion", err)
	}
	if err := checkIdentity(actor, s); err != nil {
		return nil, e.fail("update details", err)
	}

	now := e.now()
	next := *s
	patch := repository.Patch{}

	setText := func(column string, v *string, field *string) {
		if v != nil {
			*field = *v
			patch[column] = *v
		}
	}
	setText("matching_reason", p.MatchingReason, &next.MatchingReason)
	setText("first_party_notes", p.FirstPartyNotes, &next.FirstPartyNotes)
	setText("second_party_notes", p.SecondPartyNotes, &next.SecondPartyNotes)
	setText("internal_notes", p.InternalNotes, &next.InternalNotes)
	setText("follow_up_notes", p.FollowUpNotes, &next.FollowUpNotes)

	if p.Priority != nil {
		next.Priority = *p.Priority
		patch["priority"] = *p.Priority
	}

	setDeadline := func(column string, v *time.Time, field **time.Time) error {
		if v == nil {
			return nil
		}
		if s.Status.IsTerminal() {
			return svcErr.Newf(svcErr.KindValidation, "deadlines of a %s suggestion cannot change", s.Status)
		}
		d := v.UTC().Truncate(time.Millisecond)
		if !d.After(now) {
			return svcErr.Newf(svcErr.KindValidation, "%s must be in the future", column)
		}
		*field = &d
		patch[column] = d
		return nil
	}
	if err := setDeadline("decision_deadline", p.DecisionDeadline, &next.DecisionDeadline); err != nil {
		return nil, e.fail("update details", err)
	}
	if err := setDeadline("response_deadline", p.ResponseDeadline, &next.ResponseDeadline); err != nil {
		return nil, e.fail("update details", err)
	}

	next.LastActivity = now
	next.UpdatedAt = now
	patch["last_activity"] = now
	patch["updated_at"] = now

	if err := e.store.UpdateDetails(ctx, id, patch); err != nil {
		return nil, e.fail("update details", err)
	}
	e.log.Info("suggestion details updated", "suggestion_id", id, "fields", len(patch)-2)
	return &next, nil
}

// Get loads one suggestion.
func (e *Engine) Get(ctx context.Context, id string) (*db.Suggestion, error) {
	if id == "" {
		return nil, e.fail("get", svcErr.Validation("suggestion id is required"))
	}
	s, err := e.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, e.fail("get suggestion", err)
	}
	return s, nil
}

// ListActive pages through active suggestions, newest status change first.
// The returned token is empty on the last page.
func (e *Engine) ListActive(ctx context.Context, f ListFilter) ([]db.Suggestion, string, error) {
	if err := validateStruct(f); err != nil {
		return nil, "", e.fail("list active", err)
	}
	out, next, err := e.store.ListActive(ctx, repository.ActiveFilter{
		MatchmakerID: f.MatchmakerID,
		PartyID:      f.PartyID,
		PageToken:    f.PageToken,
		Limit:        f.Limit,
	})
	if err != nil {
		return nil, "", e.fail("list active", err)
	}
	if next == nil {
		return out, "", nil
	}
	return out, *next, nil
}

// History returns the status history of a suggestion in append order.
func (e *Engine) History(ctx context.Context, id string, f HistoryFilter) ([]db.SuggestionStatusHistory, error) {
	if err := validateStruct(f); err != nil {
		return nil, e.fail("history", err)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, e.fail("history", svcErr.Validation("history range ends before it starts"))
	}
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}
	out, err := e.store.ListHistory(ctx, id, repository.HistoryRange{From: f.From, To: f.To, Limit: f.Limit})
	if err != nil {
		return nil, e.fail("list history", err)
	}
	return out, nil
}

// AvailableActions lists the statuses actor may move the suggestion to now.
func (e *Engine) AvailableActions(ctx context.Context, id string, actor Actor) ([]status.Status, error) {
	if err := validateStruct(actor); err != nil {
		return nil, e.fail("available actions", err)
	}
	s, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkIdentity(actor, s); err != nil {
		return nil, e.fail("available actions", err)
	}
	return availableTargets(actor, s), nil
}

func (e *Engine) enqueue(ctx context.Context, intent, suggestionID string, recipients []uint64) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Enqueue(ctx, intent, suggestionID, recipients); err != nil {
		metrics.NotificationsTotal.WithLabelValues(intent, metrics.ResultError).Inc()
		e.log.Warn("failed to enqueue notification intent",
			"suggestion_id", suggestionID,
			"intent", intent,
			"err", err,
		)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(intent, metrics.ResultOK).Inc()
}

func (e *Engine) writeBackAvailability(ctx context.Context, s *db.Suggestion, target status.Status) {
	availability, ok := availabilityFor[target]
	if !ok {
		return
	}
	updater, ok := e.parties.(AvailabilityUpdater)
	if !ok {
		return
	}
	if err := updater.SetAvailability(ctx, availability, s.FirstPartyID, s.SecondPartyID); err != nil {
		e.log.Warn("failed to update party availability",
			"suggestion_id", s.ID,
			"availability", availability,
			"err", err,
		)
	}
}

// fail classifies err, counts it and returns it. Anything that is not a
// domain error becomes an infrastructure error with the cause kept.
func (e *Engine) fail(op string, err error) error {
	err = svcErr.Infrastructure(op, err)
	kind := svcErr.KindOf(err)
	metrics.TransitionErrorsTotal.WithLabelValues(string(kind)).Inc()
	if kind == svcErr.KindInfrastructure {
		e.log.Error("lifecycle operation failed", "op", op, "err", err)
	} else {
		e.log.Debug("lifecycle operation rejected", "op", op, "kind", kind, "err", err)
	}
	return err
}
