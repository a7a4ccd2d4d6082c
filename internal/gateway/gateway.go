// Package gateway implements the Privacy Gate: the pipeline step that
// classifies inbound content and routes it to local or TEE processing
// before it becomes a Resource.
package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/classifier"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/memory"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/policy"
)

// GateInput is everything the Privacy Gate needs to classify and route one
// inbound message.
type GateInput struct {
	UserID      string
	ChannelID   string
	ChatID      string
	Content     string
	ContentType memory.ContentType
	RawContent  []byte
	DataType    string // optional policy.Engine type-rule key, e.g. "api_key"
	PolicyName  string // optional named policy; empty uses the engine default
	Metadata    map[string]string
}

// Gate runs the composite classifier over inbound content, consults the
// policy engine, and builds a routed Resource. It holds no state beyond its
// two collaborators, so Gate is safe for concurrent use and every run is
// pure and deterministic.
type Gate struct {
	classifier *classifier.CompositeClassifier
	policy     *policy.Engine
}

// NewGate builds a Privacy Gate from a composite classifier and a policy
// engine.
func NewGate(c *classifier.CompositeClassifier, p *policy.Engine) *Gate {
	return &Gate{classifier: c, policy: p}
}

// Process classifies in.Content, evaluates the routing decision, and
// returns the resulting Resource together with the decision that produced
// its storage location. Reject and RequireConfirmation still produce a
// Resource stored in memory — the caller decides whether to surface it.
func (g *Gate) Process(ctx context.Context, in GateInput) (*memory.Resource, policy.Decision, error) {
	result := g.classifier.Classify(ctx, in.Content)

	decision := g.policy.Evaluate(result.Level, in.DataType, in.PolicyName)

	storage := memory.MemoryStorage()
	if decision == policy.ProcessInTee {
		storage = memory.TeeStorage(uuid.New().String())
	}

	builder := memory.NewResourceBuilder().
		UserID(in.UserID).
		ChannelID(in.ChannelID).
		ChatID(in.ChatID).
		ContentType(in.ContentType).
		Raw(in.RawContent).
		Text(in.Content).
		Storage(storage).
		Classification(result)

	for k, v := range in.Metadata {
		builder = builder.Metadata(k, v)
	}

	resource, err := builder.Build()
	if err != nil {
		return nil, decision, err
	}

	return resource, decision, nil
}
