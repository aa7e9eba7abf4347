// Package graph models the classroom communication graph: who talked to
// whom, over which kind of channel, and with what payload. Every directed
// message in a session becomes an activation on a directed edge; edges
// reinforce slightly with use. Low-confidence activations represent
// overheard speech rather than a direct channel.
package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Relationship classifies the standing between two nodes.
type Relationship string

const (
	RelationshipGood    Relationship = "good"
	RelationshipNeutral Relationship = "neutral"
	RelationshipBad     Relationship = "bad"
)

// NodeKind identifies what a graph node represents.
type NodeKind string

const (
	NodeTeacher NodeKind = "teacher"
	NodeStudent NodeKind = "student"
	NodeUser    NodeKind = "user"
)

// Interaction action types carried in activation payloads.
const (
	ActionTeacherBroadcast = "teacher_broadcast"
	ActionTeacherToStudent = "teacher_to_student"
	ActionTeacherQuestion  = "teacher_question"
	ActionTeacherPraise    = "teacher_praise"
	ActionTaskFeedback     = "task_feedback"
	ActionStudentToStudent = "student_to_student"
	ActionStudentToTeacher = "student_to_teacher"
)

// Weight bounds and defaults for edges.
const (
	MinEdgeWeight     = 0.2
	MaxEdgeWeight     = 2.0
	defaultEdgeWeight = 0.6
	reinforceDelta    = 0.04
)

// Node is a participant in the communication graph.
type Node struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Kind  NodeKind `json:"kind"`
}

// Payload is the typed content attached to an activation. ActionType is the
// discriminator for the known payload kinds; Extra is the escape hatch for
// free-form fields.
type Payload struct {
	ActionType string         `json:"actionType,omitempty"`
	Text       string         `json:"text,omitempty"`
	Confidence string         `json:"confidence,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	Solved     *bool          `json:"solved,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// LowConfidence reports whether the payload marks an overheard channel.
func (p Payload) LowConfidence() bool {
	return p.Confidence == "low" || p.Phase == "clarification_overhear"
}

// Edge is a directed communication channel between two nodes. Exactly one
// edge exists per ordered (from, to) pair.
type Edge struct {
	ID                   string       `json:"id"`
	From                 string       `json:"from"`
	To                   string       `json:"to"`
	Relationship         Relationship `json:"relationship"`
	Weight               float64      `json:"weight"`
	InteractionTypes     []string     `json:"interactionTypes"`
	CurrentTurnActive    bool         `json:"currentTurnActive"`
	ActivationCount      int          `json:"activationCount"`
	LastActivatedAt      *time.Time   `json:"lastActivatedAt,omitempty"`
	LastActivationTurnID string       `json:"lastActivationTurnId,omitempty"`
}

// Activation records one directed message over an edge.
type Activation struct {
	ID              string    `json:"id"`
	EdgeID          string    `json:"edgeId"`
	TurnID          string    `json:"turnId"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	InteractionType string    `json:"interactionType"`
	Payload         Payload   `json:"payload"`
	At              time.Time `json:"at"`
}

// RelationshipOverride seeds a non-neutral relationship between two nodes
// at graph creation (from session config).
type RelationshipOverride struct {
	From         string       `json:"from"`
	To           string       `json:"to"`
	Relationship Relationship `json:"relationship"`
	Weight       float64      `json:"weight,omitempty"`
}

// CommunicationGraph holds nodes, edges, and the append-only activation log.
// CurrentTurnActivations is transient: it is emptied at the start of every
// request turn.
type CommunicationGraph struct {
	Nodes                  []Node        `json:"nodes"`
	Edges                  []*Edge       `json:"edges"`
	Activations            []Activation  `json:"activations"`
	CurrentTurnActivations []Activation  `json:"currentTurnActivations"`
}

// New builds a graph over the given nodes with every ordered pair
// pre-populated as a neutral edge, then applies relationship overrides.
func New(nodes []Node, overrides []RelationshipOverride) *CommunicationGraph {
	g := &CommunicationGraph{Nodes: nodes}
	for _, from := range nodes {
		for _, to := range nodes {
			if from.ID == to.ID {
				continue
			}
			g.Edges = append(g.Edges, &Edge{
				ID:               uuid.New().String(),
				From:             from.ID,
				To:               to.ID,
				Relationship:     RelationshipNeutral,
				Weight:           defaultEdgeWeight,
				InteractionTypes: allowedInteractionTypes(from.Kind, to.Kind),
			})
		}
	}
	for _, o := range overrides {
		e := g.EdgeBetween(o.From, o.To)
		if e == nil {
			continue
		}
		if o.Relationship != "" {
			e.Relationship = o.Relationship
		}
		if o.Weight > 0 {
			e.Weight = clampWeight(o.Weight)
		}
	}
	return g
}

func allowedInteractionTypes(from, to NodeKind) []string {
	switch {
	case from == NodeTeacher && (to == NodeStudent || to == NodeUser):
		return []string{
			ActionTeacherBroadcast, ActionTeacherToStudent,
			ActionTeacherQuestion, ActionTeacherPraise, ActionTaskFeedback,
		}
	case from == NodeStudent && to == NodeTeacher:
		return []string{ActionStudentToTeacher}
	case from == NodeStudent && to == NodeStudent:
		return []string{ActionStudentToStudent}
	default:
		return []string{ActionStudentToTeacher}
	}
}

// HasNode reports whether a node with the given id exists.
func (g *CommunicationGraph) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// EdgeBetween returns the edge for the ordered (from, to) pair, or nil.
func (g *CommunicationGraph) EdgeBetween(from, to string) *Edge {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return e
		}
	}
	return nil
}

// ResetCurrentTurnActivity clears per-turn edge activity. Called exactly
// once at the start of a request turn.
func (g *CommunicationGraph) ResetCurrentTurnActivity() {
	for _, e := range g.Edges {
		e.CurrentTurnActive = false
	}
	g.CurrentTurnActivations = nil
}

// ActivateInput names one directed message to record.
type ActivateInput struct {
	TurnID          string
	From            string
	To              string
	InteractionType string
	Payload         Payload
}

// Activate records an activation for the (from, to) edge, creating the edge
// if it does not exist yet. The edge weight reinforces by a small bounded
// delta per activation.
func (g *CommunicationGraph) Activate(in ActivateInput) (*Activation, error) {
	if !g.HasNode(in.From) {
		return nil, fmt.Errorf("activate edge: unknown from node %q", in.From)
	}
	if !g.HasNode(in.To) {
		return nil, fmt.Errorf("activate edge: unknown to node %q", in.To)
	}

	e := g.EdgeBetween(in.From, in.To)
	if e == nil {
		e = &Edge{
			ID:               uuid.New().String(),
			From:             in.From,
			To:               in.To,
			Relationship:     RelationshipNeutral,
			Weight:           defaultEdgeWeight,
			InteractionTypes: []string{in.InteractionType},
		}
		g.Edges = append(g.Edges, e)
	}

	now := time.Now().UTC()
	a := Activation{
		ID:              uuid.New().String(),
		EdgeID:          e.ID,
		TurnID:          in.TurnID,
		From:            in.From,
		To:              in.To,
		InteractionType: in.InteractionType,
		Payload:         in.Payload,
		At:              now,
	}

	e.CurrentTurnActive = true
	e.ActivationCount++
	e.LastActivatedAt = &now
	e.LastActivationTurnID = in.TurnID
	e.Weight = clampWeight(e.Weight + reinforceDelta)

	g.Activations = append(g.Activations, a)
	g.CurrentTurnActivations = append(g.CurrentTurnActivations, a)
	return &a, nil
}

// CurrentActivationsTo returns this turn's activations addressed to the
// given node, in emission order.
func (g *CommunicationGraph) CurrentActivationsTo(to string) []Activation {
	var out []Activation
	for _, a := range g.CurrentTurnActivations {
		if a.To == to {
			out = append(out, a)
		}
	}
	return out
}

// TopEdgesFrom returns the n heaviest edges whose endpoints are both in the
// given node set, ordered by descending weight.
func (g *CommunicationGraph) TopEdgesFrom(nodeIDs []string, n int) []*Edge {
	in := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		in[id] = true
	}
	var candidates []*Edge
	for _, e := range g.Edges {
		if in[e.From] && in[e.To] {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Weight > candidates[j].Weight
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func clampWeight(w float64) float64 {
	if w < MinEdgeWeight {
		return MinEdgeWeight
	}
	if w > MaxEdgeWeight {
		return MaxEdgeWeight
	}
	return w
}
