package suggestion

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/lifecycle"
	"github.com/oggyb/matchmaker/internal/status"
)

// Service implements the SuggestionService gRPC API on top of the
// lifecycle engine. It only translates wire shapes; every rule lives in
// the engine.
type Service struct {
	appCtx *app.AppContext
}

var _ SuggestionServiceServer = (*Service)(nil)

// NewSuggestionService creates the service with dependencies from AppContext.
func NewSuggestionService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

func (s *Service) engine() *lifecycle.Engine { return s.appCtx.Engine }

// CreateSuggestion proposes a pairing and sends it to the first party.
//
// Example request:
//
//	{"matchmaker_id": "100", "first_party_id": "1", "second_party_id": "2",
//	 "decision_deadline": "2025-03-04T12:00:00Z", "matching_reason": "..."}
func (s *Service) CreateSuggestion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	var in lifecycle.CreateRequest
	var err error

	if in.MatchmakerID, err = a.id("matchmaker_id"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if in.FirstPartyID, err = a.id("first_party_id"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if in.SecondPartyID, err = a.id("second_party_id"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	priority, err := a.str("priority")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	in.Priority = db.Priority(priority)

	for key, dst := range map[string]*string{
		"matching_reason":    &in.MatchingReason,
		"first_party_notes":  &in.FirstPartyNotes,
		"second_party_notes": &in.SecondPartyNotes,
		"internal_notes":     &in.InternalNotes,
	} {
		if *dst, err = a.str(key); err != nil {
			return nil, svcErr.InvalidArgument(err.Error())
		}
	}

	deadline, err := a.timestamp("decision_deadline")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if deadline != nil {
		in.DecisionDeadline = *deadline
	}

	s.appCtx.Logger.Debug("CreateSuggestion called",
		"matchmaker", in.MatchmakerID, "first_party", in.FirstPartyID, "second_party", in.SecondPartyID)

	created, err := s.engine().Create(ctx, in)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wrap(map[string]any{"suggestion": suggestionMap(created)})
}

// TransitionSuggestion moves a suggestion to requested_status on behalf of actor.
func (s *Service) TransitionSuggestion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)

	id, err := a.str("suggestion_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	raw, err := a.str("requested_status")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	target, err := status.Parse(raw)
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	notes, err := a.str("notes")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	actor, err := callerActor(a)
	if err != nil {
		return nil, err
	}

	s.appCtx.Logger.Debug("TransitionSuggestion called", "suggestion_id", id, "to", target, "actor", actor.Role)

	updated, err := s.engine().Transition(ctx, lifecycle.TransitionRequest{
		SuggestionID:    id,
		RequestedStatus: target,
		Notes:           notes,
		Actor:           actor,
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wrap(map[string]any{"suggestion": suggestionMap(updated)})
}

func (s *Service) GetSuggestion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := argsOf(req).str("suggestion_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	found, err := s.engine().Get(ctx, id)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wrap(map[string]any{"suggestion": suggestionMap(found)})
}

// ListActiveSuggestions pages through active suggestions, optionally for
// one matchmaker or one party. next_page_token is empty on the last page.
func (s *Service) ListActiveSuggestions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	var f lifecycle.ListFilter
	var err error

	if f.MatchmakerID, err = a.id("matchmaker_id"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if f.PartyID, err = a.id("party_id"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if f.PageToken, err = a.str("page_token"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if f.Limit, err = a.count("limit"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	out, next, err := s.engine().ListActive(ctx, f)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	items := make([]any, 0, len(out))
	for i := range out {
		items = append(items, suggestionMap(&out[i]))
	}
	s.appCtx.Logger.Debug("ListActiveSuggestions result", "count", len(items), "next_token", next)

	return wrap(map[string]any{"suggestions": items, "next_page_token": next})
}

// ListSuggestionHistory returns history rows oldest first, optionally
// bounded by from/to.
func (s *Service) ListSuggestionHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	var f lifecycle.HistoryFilter

	id, err := a.str("suggestion_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if f.From, err = a.timestamp("from"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if f.To, err = a.timestamp("to"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if f.Limit, err = a.count("limit"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	rows, err := s.engine().History(ctx, id, f)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	items := make([]any, 0, len(rows))
	for _, h := range rows {
		items = append(items, historyMap(h))
	}
	return wrap(map[string]any{"history": items})
}

// UpdateSuggestionDetails edits notes, priority and deadlines. Absent keys
// are left unchanged.
func (s *Service) UpdateSuggestionDetails(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)
	var p lifecycle.DetailsPatch

	id, err := a.str("suggestion_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	actor, err := callerActor(a)
	if err != nil {
		return nil, err
	}

	for key, dst := range map[string]**string{
		"matching_reason":    &p.MatchingReason,
		"first_party_notes":  &p.FirstPartyNotes,
		"second_party_notes": &p.SecondPartyNotes,
		"internal_notes":     &p.InternalNotes,
		"follow_up_notes":    &p.FollowUpNotes,
	} {
		if *dst, err = a.optStr(key); err != nil {
			return nil, svcErr.InvalidArgument(err.Error())
		}
	}

	priority, err := a.optStr("priority")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if priority != nil {
		pr := db.Priority(*priority)
		p.Priority = &pr
	}
	if p.DecisionDeadline, err = a.timestamp("decision_deadline"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	if p.ResponseDeadline, err = a.timestamp("response_deadline"); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	updated, err := s.engine().UpdateDetails(ctx, id, actor, p)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wrap(map[string]any{"suggestion": suggestionMap(updated)})
}

// AvailableActions lists the statuses actor may request next.
func (s *Service) AvailableActions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := argsOf(req)

	id, err := a.str("suggestion_id")
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	actor, err := callerActor(a)
	if err != nil {
		return nil, err
	}

	actions, err := s.engine().AvailableActions(ctx, id, actor)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return wrap(map[string]any{"actions": statusList(actions)})
}

// callerActor reads the actor of an inbound request. The system role is
// held by the sweeper and the auto-advance worker only.
func callerActor(a args) (lifecycle.Actor, error) {
	actor, err := a.actor("actor")
	if err != nil {
		return lifecycle.Actor{}, svcErr.InvalidArgument(err.Error())
	}
	if actor.Role == lifecycle.RoleSystem {
		return lifecycle.Actor{}, svcErr.Map(svcErr.New(svcErr.KindForbidden, "system actor is not accepted from callers"))
	}
	return actor, nil
}

func wrap(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, svcErr.Map(svcErr.Infrastructure("encode response", err))
	}
	return out, nil
}
