// Package policy evaluates the access policy that gates remote calls on the session state.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
)

// Engine is the OPA access policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document the access policy evaluates.
type Input struct {
	Action        domain.Action       `json:"action"`
	State         domain.SessionState `json:"state"`
	Roles         []string            `json:"roles"`
	ActiveRole    string              `json:"active_role"`
	RequestedRole string              `json:"requested_role,omitempty"`
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.access_policy.decision"),
		rego.Module("access_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns allow, defer or deny for the input.
func (e *Engine) Evaluate(ctx context.Context, input Input) (domain.Decision, error) {
	if input.Roles == nil {
		input.Roles = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.DecisionDeny, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// The policy defines a default, so an empty result set means the policy is broken.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.DecisionDeny, fmt.Errorf("policy returned no decision")
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return domain.DecisionDeny, fmt.Errorf("policy returned unexpected type %T", results[0].Expressions[0].Value)
	}
	switch d := domain.Decision(s); d {
	case domain.DecisionAllow, domain.DecisionDefer, domain.DecisionDeny:
		return d, nil
	default:
		return domain.DecisionDeny, fmt.Errorf("policy returned unknown decision %q", s)
	}
}

// DefaultPolicy gates remote reads and writes on the session state.
const DefaultPolicy = `
package access_policy

default decision = "deny"

session_actions := {"poll_conversations", "poll_messages", "send_message", "open_conversation", "delete_account"}

decision = "allow" {
	session_actions[input.action]
	input.state == "AUTHENTICATED"
}

decision = "defer" {
	session_actions[input.action]
	input.state == "AUTHENTICATING"
}

decision = "allow" {
	input.action == "switch_role"
	input.state == "AUTHENTICATED"
	input.roles[_] == input.requested_role
}
`
