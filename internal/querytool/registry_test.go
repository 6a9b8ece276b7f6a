package querytool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) (*Registry, *fakeSearch, *fakeFinance) {
	t.Helper()
	search := &fakeSearch{replies: []searchReply{{items: items(2)}}}
	finance := &fakeFinance{f: Fundamentals{MarketCap: ptr(1000), TotalDebt: ptr(500), TotalCash: ptr(10), Summary: "Makes widgets."}}
	r, err := NewRegistry(
		NewSearchTool(search, SearchSettings{}),
		NewRatioTool(finance),
		NewBusinessTool(finance),
	)
	require.NoError(t, err)
	return r, search, finance
}

func TestRegistry_Names(t *testing.T) {
	r, _, _ := testRegistry(t)
	assert.Equal(t, []string{BusinessToolName, SearchToolName, RatioToolName}, r.Names())
}

func TestRegistry_DuplicateName(t *testing.T) {
	r, _, _ := testRegistry(t)
	err := r.Register(NewSearchTool(&fakeSearch{}, SearchSettings{}))
	assert.EqualError(t, err, "tool ghost_hunter_search already registered")
	assert.Error(t, r.Register(nil))
}

func TestRegistry_InvokeDispatchesByName(t *testing.T) {
	r, search, finance := testRegistry(t)

	text := r.Invoke(context.Background(), RatioToolName, "wid")
	assert.Contains(t, text, "Debt Ratio: 50.00%")
	assert.Contains(t, text, "Overall Status: FAIL")
	assert.Equal(t, 1, finance.calls)
	assert.Zero(t, search.calls)

	text = r.Invoke(context.Background(), SearchToolName, "widgets")
	assert.Contains(t, text, "Result 2:")
	assert.Equal(t, 1, search.calls)
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r, _, _ := testRegistry(t)
	text := r.Invoke(context.Background(), "crystal_ball", "x")
	assert.Contains(t, text, `Unknown tool "crystal_ball"`)
	assert.Contains(t, text, SearchToolName)
}

func TestAgentTool_Execute(t *testing.T) {
	r, _, _ := testRegistry(t)
	tools := r.AgentTools()
	require.Len(t, tools, 3)

	searchTool := tools[1]
	require.Equal(t, SearchToolName, searchTool.Name())
	schema := searchTool.Schema()
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"query"}, schema.Required)
	assert.Contains(t, schema.Properties, "query")

	out, err := searchTool.Execute(context.Background(), map[string]interface{}{"query": "widgets"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Output, "Result 1:")
	res, ok := out.Data.(Result)
	require.True(t, ok)
	assert.Equal(t, KindSuccess, res.Kind)
}

func TestAgentTool_ExecuteFailureIsNotAnError(t *testing.T) {
	finance := &fakeFinance{f: Fundamentals{}}
	a := NewAgentTool(NewBusinessTool(finance))

	out, err := a.Execute(context.Background(), map[string]interface{}{"ticker": "nada"})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Output, "InvalidInput")
	assert.Contains(t, out.Output, "business summary unavailable")
}

func TestAgentTool_ExecuteMissingParam(t *testing.T) {
	search := &fakeSearch{replies: []searchReply{{items: items(1)}}}
	a := NewAgentTool(NewSearchTool(search, SearchSettings{}))

	out, err := a.Execute(context.Background(), map[string]interface{}{})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Zero(t, search.calls)
}
