// Package turn implements the Turn Controller (C7): the only component
// that decides what activity to schedule next, computed statelessly from
// (messages, turn events, agent config) on every invocation (spec.md
// §4.7). Grounded on the teacher's runtime/agent/runtime/workflow_turn.go
// and agent_tools.go capability-aggregation pattern, and on
// expr/agent/toolset.go's ordered-capability merge for the
// later-overrides-earlier-by-position rule.
package turn

import (
	"turnengine/session"
	"turnengine/workflow"
)

// ToolDefinition is a deduplicated tool entry gathered from an agent's
// capability list and passed to the LLM provider adapter. GatherTools sets
// only Name: Description and Schema stay empty, since a Capability lists
// tool names, not their descriptions or schemas.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Decision is what turn.Controller says the engine owes the turn next: the
// reason/tool activities to schedule, plus the fully assembled reason
// input when Action is ActionEnqueueReason.
type Decision struct {
	Action workflow.ActionKind
	// ReasonInput is populated when Action == ActionEnqueueReason.
	ReasonInput ReasonInput
	// ToolCalls is populated when Action == ActionEnqueueTools.
	ToolCalls []workflow.ToolCall
	ErrorCode string
}

// ReasonInput is everything a reason activity needs to call the LLM
// provider adapter: spec.md §4.7's generate(model_ref, messages,
// tool_schemas, controls).
type ReasonInput struct {
	ModelRef string
	Messages []session.Message
	Tools    []ToolDefinition
}

// Controller computes the next Decision for a turn. It holds no per-turn
// state: Decide is a pure function of its arguments, called fresh after
// every event-log append (workflow.Machine.Fold feeds it the NextAction,
// Controller fills in the payload that action needs).
type Controller struct{}

// NewController returns a stateless Controller.
func NewController() Controller { return Controller{} }

// Decide turns a workflow.NextAction into a fully populated Decision,
// resolving the effective model and assembling the reason message list
// when the action is ActionEnqueueReason (spec.md §4.7's "Message
// construction for reason").
func (Controller) Decide(next workflow.NextAction, agent session.Agent, sess session.Session, messages []session.Message) Decision {
	switch next.Kind {
	case workflow.ActionEnqueueReason:
		return Decision{
			Action: next.Kind,
			ReasonInput: ReasonInput{
				ModelRef: EffectiveModel(sess, agent, messages),
				Messages: buildReasonMessages(agent, messages),
				Tools:    GatherTools(agent.Capabilities),
			},
		}
	case workflow.ActionEnqueueTools:
		return Decision{Action: next.Kind, ToolCalls: next.ToolCalls}
	default:
		return Decision{Action: next.Kind, ErrorCode: next.ErrorCode}
	}
}

// GatherTools collects tool definitions across capabilities, deduplicated
// by name: when two capabilities name the same tool, the one later in
// Agent.Capabilities order wins (spec.md §4.7).
func GatherTools(capabilities []session.Capability) []ToolDefinition {
	byName := make(map[string]ToolDefinition)
	order := make([]string, 0)
	for _, cap := range capabilities {
		for _, toolName := range cap.ToolNames {
			if _, seen := byName[toolName]; !seen {
				order = append(order, toolName)
			}
			byName[toolName] = ToolDefinition{Name: toolName}
		}
	}
	out := make([]ToolDefinition, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// EffectiveModel resolves the model reference with precedence
// message-level override > session override > agent default > system
// default (spec.md §4.7). No per-message override field exists on
// session.Message today, so that tier is reserved for the controls payload
// a future HTTP surface would thread through; callers pass the resolved
// per-request override, if any, via messages being empty of the concern —
// EffectiveModel here resolves session/agent/system only.
func EffectiveModel(sess session.Session, agent session.Agent, _ []session.Message) string {
	if sess.ModelOverride != "" {
		return sess.ModelOverride
	}
	if agent.DefaultModel != "" {
		return agent.DefaultModel
	}
	return DefaultSystemModel
}

// DefaultSystemModel is the system-wide fallback when neither the session
// nor the agent names a model.
const DefaultSystemModel = "default"

// buildReasonMessages assembles the ordered conversation: agent system
// prompt + per-capability prompt additions (ordered by capability
// position) + all messages in sequence, including the agent's own prior
// tool calls so the model sees its prior actions (spec.md §4.7).
func buildReasonMessages(agent session.Agent, messages []session.Message) []session.Message {
	out := make([]session.Message, 0, len(messages)+1)
	systemPrompt := agent.SystemPrompt
	for _, cap := range agent.Capabilities {
		if cap.PromptAddition != "" {
			systemPrompt += "\n" + cap.PromptAddition
		}
	}
	if systemPrompt != "" {
		out = append(out, session.Message{
			Role:    "system",
			Content: []session.ContentPart{{Kind: session.PartText, Text: systemPrompt}},
		})
	}
	out = append(out, messages...)
	return out
}
