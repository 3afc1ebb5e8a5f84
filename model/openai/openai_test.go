package openai

import (
	"testing"

	"github.com/hupe1980/agentsim/core"
	"github.com/hupe1980/agentsim/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_ToolRoundTrip(t *testing.T) {
	req := model.Request{
		Instructions: "be brief",
		Contents: []core.Content{
			core.NewTextContent(core.ContentRoleUser, "what is 2+3?"),
			{Role: core.ContentRoleAssistant, Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "add", Arguments: `{"a":2,"b":3}`}},
			}},
			{Role: core.ContentRoleTool, Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "add", Response: 5}},
			}},
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
}

func TestBuildParams_TemperatureOverride(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "gpt-4o-mini"
		o.APIKey = "test"
	})
	temp := 0.1
	params := m.buildParams(model.Request{
		Contents:    []core.Content{core.NewTextContent(core.ContentRoleUser, "hi")},
		Temperature: &temp,
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name:       "add",
			Parameters: map[string]any{"type": "object"},
		}}},
	})

	assert.Equal(t, 0.1, params.Temperature.Value)
	assert.Len(t, params.Tools, 1)
	assert.Equal(t, "openai", m.Info().Provider)
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "ok", responseText(core.FunctionResponse{Response: "ok"}))
	assert.Equal(t, "5", responseText(core.FunctionResponse{Response: 5}))
	assert.Equal(t, "error: boom", responseText(core.FunctionResponse{Error: "boom"}))
}
