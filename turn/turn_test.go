package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"turnengine/session"
	"turnengine/workflow"
)

func TestGatherToolsDedupsLaterCapabilityWins(t *testing.T) {
	caps := []session.Capability{
		{Name: "math", ToolNames: []string{"add", "divide"}},
		{Name: "math-v2", ToolNames: []string{"add"}},
	}
	tools := GatherTools(caps)
	names := make([]string, len(tools))
	for i, tl := range tools {
		names[i] = tl.Name
	}
	assert.Equal(t, []string{"add", "divide"}, names)
}

func TestEffectiveModelPrecedence(t *testing.T) {
	agent := session.Agent{DefaultModel: "agent-model"}
	sess := session.Session{}
	assert.Equal(t, "agent-model", EffectiveModel(sess, agent, nil))

	sess.ModelOverride = "session-model"
	assert.Equal(t, "session-model", EffectiveModel(sess, agent, nil))

	assert.Equal(t, DefaultSystemModel, EffectiveModel(session.Session{}, session.Agent{}, nil))
}

func TestDecideEnqueueReasonAssemblesMessages(t *testing.T) {
	c := NewController()
	agent := session.Agent{
		SystemPrompt: "be helpful",
		Capabilities: []session.Capability{{Name: "math", PromptAddition: "you can do math", ToolNames: []string{"add"}}},
	}
	sess := session.Session{}
	messages := []session.Message{{Role: session.RoleUser, Content: []session.ContentPart{{Kind: session.PartText, Text: "2+2"}}}}

	decision := c.Decide(workflow.NextAction{Kind: workflow.ActionEnqueueReason}, agent, sess, messages)
	assert.Equal(t, workflow.ActionEnqueueReason, decision.Action)
	assert.Len(t, decision.ReasonInput.Messages, 2)
	assert.Equal(t, session.Role("system"), decision.ReasonInput.Messages[0].Role)
	assert.Len(t, decision.ReasonInput.Tools, 1)
}

func TestDecideEnqueueToolsPassesThroughCalls(t *testing.T) {
	c := NewController()
	calls := []workflow.ToolCall{{ID: "call_1", Name: "add"}}
	decision := c.Decide(workflow.NextAction{Kind: workflow.ActionEnqueueTools, ToolCalls: calls}, session.Agent{}, session.Session{}, nil)
	assert.Equal(t, calls, decision.ToolCalls)
}
