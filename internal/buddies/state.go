package buddies

import (
	"fmt"
	"maps"
	"sort"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// Relation is the current user's side of a buddy edge.
type Relation string

const (
	RelationNone     Relation = "none"
	RelationOutgoing Relation = "outgoing"
	RelationIncoming Relation = "incoming"
	RelationAccepted Relation = "accepted"
)

// Resolve reports how edge relates to me and who the other endpoint is.
// Edges that do not touch me resolve to RelationNone.
func Resolve(me string, edge models.BuddyEdge) (Relation, string) {
	var counterpart string
	switch me {
	case edge.UserID:
		counterpart = edge.BuddyID
	case edge.BuddyID:
		counterpart = edge.UserID
	default:
		return RelationNone, ""
	}
	if counterpart == "" || counterpart == me {
		return RelationNone, ""
	}

	switch {
	case edge.Status == models.BuddyStatusAccepted:
		return RelationAccepted, counterpart
	case edge.UserID == me:
		return RelationOutgoing, counterpart
	default:
		return RelationIncoming, counterpart
	}
}

// View is the projection of the edge set served to the presentation layer.
type View struct {
	Accepted    []string                  `json:"accepted"`
	Incoming    []string                  `json:"incoming"`
	Outgoing    []string                  `json:"outgoing"`
	Highlighted []string                  `json:"highlighted"`
	Profiles    map[string]models.Profile `json:"profiles"`
}

// State is the reducer state for one user.
type State struct {
	me       string
	edges    map[string]models.BuddyEdge
	profiles map[string]models.Profile
	// incoming ids observed by the last refresh
	seen map[string]struct{}
}

func newState(me string) State {
	return State{
		me:       me,
		edges:    map[string]models.BuddyEdge{},
		profiles: map[string]models.Profile{},
		seen:     map[string]struct{}{},
	}
}

// Edge returns the edge shared with counterpart and how it relates to me.
func (s State) Edge(counterpart string) (models.BuddyEdge, Relation) {
	edge, ok := s.edges[counterpart]
	if !ok {
		return models.BuddyEdge{}, RelationNone
	}
	rel, _ := Resolve(s.me, edge)
	return edge, rel
}

// View derives the four id projections.
func (s State) View() View {
	v := View{
		Accepted:    []string{},
		Incoming:    []string{},
		Outgoing:    []string{},
		Highlighted: []string{},
		Profiles:    make(map[string]models.Profile, len(s.profiles)),
	}
	for counterpart, edge := range s.edges {
		rel, _ := Resolve(s.me, edge)
		switch rel {
		case RelationAccepted:
			v.Accepted = append(v.Accepted, counterpart)
			if edge.Highlighted {
				v.Highlighted = append(v.Highlighted, counterpart)
			}
		case RelationIncoming:
			v.Incoming = append(v.Incoming, counterpart)
		case RelationOutgoing:
			v.Outgoing = append(v.Outgoing, counterpart)
		}
	}
	sort.Strings(v.Accepted)
	sort.Strings(v.Incoming)
	sort.Strings(v.Outgoing)
	sort.Strings(v.Highlighted)
	maps.Copy(v.Profiles, s.profiles)
	return v
}

// Event is an input to reduce.
type Event interface{ isEvent() }

// Refreshed carries the complete remote edge set for the user. When
// ProfilesFailed is set when the previous profile summaries are kept.
type Refreshed struct {
	Edges          []models.BuddyEdge
	Profiles       []models.Profile
	ProfilesFailed bool
}

// EdgeSaved records a confirmed local insert or update.
type EdgeSaved struct {
	Edge models.BuddyEdge
}

// EdgeRemoved records a confirmed local delete.
type EdgeRemoved struct {
	Counterpart string
}

func (Refreshed) isEvent()   {}
func (EdgeSaved) isEvent()   {}
func (EdgeRemoved) isEvent() {}

// Effect is a side effect requested by reduce.
type Effect interface{ isEffect() }

// NotifyEffect asks for one user notification.
type NotifyEffect struct {
	Counterpart string
	Description string
}

// BadgeEffect asks for the badge count to be set.
type BadgeEffect struct {
	Count int
}

func (NotifyEffect) isEffect() {}
func (BadgeEffect) isEffect()  {}

// reduce applies ev to s. It never mutates s; only Refreshed produces effects.
func reduce(s State, ev Event) (State, []Effect) {
	next := State{
		me:       s.me,
		edges:    make(map[string]models.BuddyEdge, len(s.edges)),
		profiles: s.profiles,
		seen:     s.seen,
	}

	switch ev := ev.(type) {
	case Refreshed:
		for _, edge := range ev.Edges {
			rel, counterpart := Resolve(s.me, edge)
			if rel == RelationNone {
				continue
			}
			// at most one edge per pair; an accepted row wins over a stray pending one
			if prev, ok := next.edges[counterpart]; ok && prev.Status == models.BuddyStatusAccepted {
				continue
			}
			next.edges[counterpart] = edge
		}
		if !ev.ProfilesFailed {
			next.profiles = make(map[string]models.Profile, len(ev.Profiles))
			for _, p := range ev.Profiles {
				next.profiles[p.ID] = p
			}
		}
		return next, next.diffIncoming()

	case EdgeSaved:
		maps.Copy(next.edges, s.edges)
		if rel, counterpart := Resolve(s.me, ev.Edge); rel != RelationNone {
			next.edges[counterpart] = ev.Edge
		}
		return next, nil

	case EdgeRemoved:
		maps.Copy(next.edges, s.edges)
		delete(next.edges, ev.Counterpart)
		return next, nil
	}

	maps.Copy(next.edges, s.edges)
	return next, nil
}

// diffIncoming replaces the seen set with the current incoming ids and
// returns one notification and one badge update per id not seen before.
func (s *State) diffIncoming() []Effect {
	incoming := s.View().Incoming
	current := make(map[string]struct{}, len(incoming))
	var effects []Effect
	for _, id := range incoming {
		current[id] = struct{}{}
		if _, ok := s.seen[id]; ok {
			continue
		}
		effects = append(effects,
			NotifyEffect{Counterpart: id, Description: s.requestDescription(id)},
			BadgeEffect{Count: len(incoming)},
		)
	}
	s.seen = current
	return effects
}

func (s State) requestDescription(id string) string {
	name := id
	if p, ok := s.profiles[id]; ok && p.DisplayName != "" {
		name = p.DisplayName
	}
	return fmt.Sprintf("New buddy request from %s", name)
}
