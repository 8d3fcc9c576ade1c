package suggestion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/lifecycle"
	"github.com/oggyb/matchmaker/internal/status"
)

// args reads typed fields out of a request struct. Ids may be sent as
// numbers or decimal strings; times are RFC3339 strings.
type args map[string]any

func argsOf(req *structpb.Struct) args {
	if req == nil {
		return args{}
	}
	return args(req.AsMap())
}

func (a args) has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

func (a args) str(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

func (a args) optStr(key string) (*string, error) {
	if !a.has(key) {
		return nil, nil
	}
	s, err := a.str(key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (a args) id(key string) (uint64, error) {
	switch v := a[key].(type) {
	case nil:
		return 0, nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v > 1<<53 {
			return 0, fmt.Errorf("%s must be a positive integer", key)
		}
		return uint64(v), nil
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid uint64", key)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number or a numeric string", key)
	}
}

func (a args) count(key string) (int, error) {
	n, err := a.id(key)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%s is too large", key)
	}
	return int(n), nil
}

func (a args) timestamp(key string) (*time.Time, error) {
	s, err := a.str(key)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC3339 timestamp", key)
	}
	return &t, nil
}

// actor reads the nested {"role": ..., "id": ...} object.
func (a args) actor(key string) (lifecycle.Actor, error) {
	raw, ok := a[key].(map[string]any)
	if !ok {
		return lifecycle.Actor{}, fmt.Errorf("%s is required", key)
	}
	in := args(raw)
	role, err := in.str("role")
	if err != nil {
		return lifecycle.Actor{}, err
	}
	id, err := in.id("id")
	if err != nil {
		return lifecycle.Actor{}, err
	}
	return lifecycle.Actor{Role: lifecycle.Role(strings.ToLower(role)), ID: id}, nil
}

//
// Responses
//

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func suggestionMap(s *db.Suggestion) map[string]any {
	var prev any
	if s.PreviousStatus != nil {
		prev = string(*s.PreviousStatus)
	}
	created, changed, activity := s.CreatedAt, s.LastStatusChange, s.LastActivity

	return map[string]any{
		"id":                      s.ID,
		"matchmaker_id":           strconv.FormatUint(s.MatchmakerID, 10),
		"first_party_id":          strconv.FormatUint(s.FirstPartyID, 10),
		"second_party_id":         strconv.FormatUint(s.SecondPartyID, 10),
		"status":                  string(s.Status),
		"previous_status":         prev,
		"category":                string(s.Category),
		"priority":                string(s.Priority),
		"matching_reason":         s.MatchingReason,
		"first_party_notes":       s.FirstPartyNotes,
		"second_party_notes":      s.SecondPartyNotes,
		"internal_notes":          s.InternalNotes,
		"follow_up_notes":         s.FollowUpNotes,
		"created_at":              timeValue(&created),
		"last_status_change":      timeValue(&changed),
		"last_activity":           timeValue(&activity),
		"first_party_sent":        timeValue(s.FirstPartySent),
		"first_party_responded":   timeValue(s.FirstPartyResponded),
		"second_party_sent":       timeValue(s.SecondPartySent),
		"second_party_responded":  timeValue(s.SecondPartyResponded),
		"decision_deadline":       timeValue(s.DecisionDeadline),
		"response_deadline":       timeValue(s.ResponseDeadline),
		"contact_shared_at":       timeValue(s.ContactSharedAt),
		"first_meeting_scheduled": timeValue(s.FirstMeetingScheduled),
		"closed_at":               timeValue(s.ClosedAt),
	}
}

func historyMap(h db.SuggestionStatusHistory) map[string]any {
	created := h.CreatedAt
	return map[string]any{
		"id":         strconv.FormatUint(h.ID, 10),
		"status":     string(h.Status),
		"notes":      h.Notes,
		"actor":      h.Actor,
		"created_at": timeValue(&created),
	}
}

func statusList(in []status.Status) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
