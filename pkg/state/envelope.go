package state

import (
	"encoding/json"
	"fmt"

	domain "github.com/goliatone/go-domain"
)

// EnvelopeVersion is the snapshot format written by Capture.
const EnvelopeVersion = 1

// NodeState is what JSON cannot carry for one node of the graph.
type NodeState struct {
	Path  string             `json:"path"`
	State domain.ObjectState `json:"state"`
	ID    string             `json:"id,omitempty"`
	Audit *domain.AuditTrail `json:"audit,omitempty"`
}

// Envelope is the stored form of a graph.
type Envelope struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	Graph   json.RawMessage `json:"graph"`
	Nodes   []NodeState     `json:"nodes"`
}

type stateful interface {
	State() domain.ObjectState
	RestoreState(state domain.ObjectState)
}

// Capture serializes root and records per-node state by graph path.
func Capture(kind string, root domain.Holder) (Envelope, error) {
	graph, err := json.Marshal(root)
	if err != nil {
		return Envelope{}, fmt.Errorf("state: encode graph: %w", err)
	}
	env := Envelope{Version: EnvelopeVersion, Kind: kind, Graph: graph}
	node, ok := root.(domain.Node)
	if !ok {
		return env, nil
	}
	err = domain.Walk(node, func(v domain.Visit) error {
		s, ok := v.Node.(stateful)
		if !ok {
			return nil
		}
		ns := NodeState{Path: v.Path, State: s.State()}
		if entity, ok := v.Node.(domain.EntityNode); ok {
			ns.ID = entity.IdentityKey()
			if audit := entity.Audit(); !audit.IsZero() {
				ns.Audit = &audit
			}
		}
		env.Nodes = append(env.Nodes, ns)
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Marshal encodes the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes a stored envelope.
func UnmarshalEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("state: decode envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return Envelope{}, fmt.Errorf("state: unsupported envelope version %d", env.Version)
	}
	return env, nil
}

// Restore decodes the graph into root, rebinds it to provider and puts back
// the recorded flags, identities and audit trails. Nodes whose path no
// longer exists are ignored.
func (e Envelope) Restore(root domain.Holder, provider domain.ValidationEngineProvider) error {
	if err := json.Unmarshal(e.Graph, root); err != nil {
		return fmt.Errorf("state: decode graph: %w", err)
	}
	if err := domain.Reconstruct(root, provider); err != nil {
		return err
	}
	node, ok := root.(domain.Node)
	if !ok {
		return nil
	}
	byPath := make(map[string]NodeState, len(e.Nodes))
	for _, ns := range e.Nodes {
		byPath[ns.Path] = ns
	}
	return domain.Walk(node, func(v domain.Visit) error {
		ns, ok := byPath[v.Path]
		if !ok {
			return nil
		}
		if s, ok := v.Node.(stateful); ok {
			s.RestoreState(ns.State)
		}
		entity, ok := v.Node.(domain.EntityNode)
		if !ok {
			return nil
		}
		if ns.ID != "" {
			if err := entity.AssignIdentityKey(ns.ID); err != nil {
				return fmt.Errorf("state: restore %q: %w", v.Path, err)
			}
		}
		if ns.Audit != nil {
			entity.RestoreAudit(*ns.Audit)
		}
		return nil
	})
}
