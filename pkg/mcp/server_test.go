package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/graph"
	"github.com/orneryd/theomcp/pkg/metrics"
	"github.com/orneryd/theomcp/pkg/schema"
	"github.com/orneryd/theomcp/pkg/storage"
)

func newTestServer(t *testing.T, tools map[string]bool) *Server {
	t.Helper()
	reg := schema.Default(false)
	engine := storage.NewMemoryEngine(graph.UniqueConstraints(reg)...)
	t.Cleanup(func() { engine.Close() })

	config := DefaultServerConfig()
	config.Tools = tools
	config.Metrics = metrics.New()
	config.EnableCORS = true
	return NewServer(graph.NewService(engine, reg, graph.Options{}), config)
}

func call(t *testing.T, s *Server, tool, rawArgs string) any {
	t.Helper()
	result, err := s.CallTool(context.Background(), tool, decodeArgs(t, rawArgs))
	require.NoError(t, err)
	return result
}

func TestDefaultServerConfig(t *testing.T) {
	config := DefaultServerConfig()
	assert.Equal(t, "localhost", config.Address)
	assert.Equal(t, 8765, config.Port)
	assert.Equal(t, "/mcp", config.Endpoint)
	assert.True(t, config.EnableMetrics)
	assert.Nil(t, config.Tools)
}

func TestNewServer(t *testing.T) {
	s := NewServer(nil, nil)
	require.NotNil(t, s)
	assert.Len(t, s.handlers, 21)
	assert.NotNil(t, s.MCPServer())
}

func TestCallTool_EdgeLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	created := call(t, s, ToolCreateVertex, `{"label": "Notion", "properties": {"caption": "To"}}`)
	to := created.(map[string]any)["created"].(graph.Record)
	assert.Equal(t, "notion", to.Label())

	created = call(t, s, ToolCreateVertex, `{"label": "notion", "properties": {"caption": "From"}}`)
	from := created.(map[string]any)["created"].(graph.Record)

	result := call(t, s, ToolConnectVertices,
		`{"edge_label": "ISSUPPORTEDBY", "out_vertex": {"caption": "To"}, "in_vertex": {"caption": "From"}}`)
	edge := result.(map[string]any)["edge_created"].(graph.EdgeSummary)
	assert.Equal(t, "isSupportedBy", edge.EdgeLabel)
	assert.Equal(t, "To", edge.Out.Caption)
	assert.Equal(t, "From", edge.In.Caption)

	call(t, s, ToolAddEdge,
		`{"edge_label": "refersTo", "out_vertex": {"caption": "To"}, "in_vertex": {"caption": "From", "label": "notion"}}`)

	read, err := s.CallTool(context.Background(), ToolReadVertex, map[string]any{"internal_id": from.InternalID()})
	require.NoError(t, err)
	rels := read.(graph.Record)[graph.KeyRelationships].(graph.Relationships)
	require.Len(t, rels["supports"], 1)
	assert.Equal(t, "To", rels["supports"][0].Caption)
	require.Len(t, rels["isReferredBy"], 1)

	deleteArgs := `{"edge_label": "refersTo", "out_vertex": {"caption": "To"}, "in_vertex": {"caption": "From"}}`
	deleted := call(t, s, ToolDeleteEdge, deleteArgs).(*graph.DeleteEdgesResult)
	assert.Equal(t, 1, deleted.DeletedEdges)
	deleted = call(t, s, ToolDeleteEdge, deleteArgs).(*graph.DeleteEdgesResult)
	assert.Equal(t, 0, deleted.DeletedEdges)

	gone := call(t, s, ToolDeleteVertex, `{"caption": "To", "label": "notion"}`).(*graph.DeleteResult)
	assert.True(t, gone.Deleted)
	assert.Equal(t, 1, gone.RemovedEdges)

	gone = call(t, s, ToolDeleteVertex, `{"caption": "To"}`).(*graph.DeleteResult)
	assert.False(t, gone.Deleted)
	assert.Equal(t, graph.ReasonNotFound, gone.Reason)

	_, err = s.CallTool(context.Background(), ToolDeleteVertex, map[string]any{"internal_id": to.InternalID()})
	require.NoError(t, err)
}

func TestCallTool_CreateNotionAndConnect(t *testing.T) {
	s := newTestServer(t, nil)
	call(t, s, ToolCreateVertex, `{"label": "verse", "properties": {"caption": "Jn 1:1", "id": 43001}}`)
	call(t, s, ToolCreateVertex, `{"label": "person", "properties": {"caption": "John"}}`)

	result := call(t, s, ToolCreateNotionAndConnect, `{
		"properties": {"caption": "Logos"},
		"supported_by": [{"id": 43001, "label": "verse"}],
		"refers_to": [{"caption": "John"}]
	}`).(*graph.ConnectResult)

	assert.Equal(t, "notion", result.Created.Label())
	require.Len(t, result.EdgesCreated, 2)
	assert.Equal(t, defaultSupportedEdgeLabel, result.EdgesCreated[0].EdgeLabel)
	assert.Equal(t, "Jn 1:1", result.EdgesCreated[0].In.Caption)
	assert.Equal(t, defaultRefersEdgeLabel, result.EdgesCreated[1].EdgeLabel)

	group := call(t, s, ToolCreateNotionGroupAndConnect, `{
		"properties": {"caption": "Word"},
		"refers_to": [{"caption": "Logos"}],
		"refers_edge_label": "contains"
	}`).(*graph.ConnectResult)
	assert.Equal(t, "notionGroup", group.Created.Label())
	require.Len(t, group.EdgesCreated, 1)
	assert.Equal(t, "contains", group.EdgesCreated[0].EdgeLabel)
}

func TestCallTool_Queries(t *testing.T) {
	s := newTestServer(t, nil)
	call(t, s, ToolCreateVertex, `{"label": "verse", "properties": {"caption": "Jn 1:11", "RST": "text", "id": 43011}}`)
	call(t, s, ToolCreateVertex, `{"label": "verse", "properties": {"caption": "Jn 1:12", "id": 43012}}`)
	call(t, s, ToolCreateNotion, `{"caption": "Grace", "relationships": {"refersTo": ["Jn 1:12"]}}`)

	verse := call(t, s, ToolGetVerseByCaption, `{"caption": "Jn 1:11"}`).(*graph.VerseRecord)
	assert.Equal(t, "text", verse.RST)

	listed := call(t, s, ToolListVerticesByLabel, `{"label": "verse", "limit": 1, "offset": 1}`).([]graph.Summary)
	require.Len(t, listed, 1)
	assert.Equal(t, "Jn 1:12", listed[0].Caption)

	found := call(t, s, ToolSearchVertices, `{"query": "Jn 1:", "labels": ["VERSE"]}`).([]graph.Summary)
	assert.Len(t, found, 2)

	byCaption := call(t, s, ToolFindVerticesByCaption, `{"caption": "Grace"}`).([]graph.Summary)
	require.Len(t, byCaption, 1)

	records := call(t, s, ToolGetVerticesByCaptions, `{"captions": ["Grace", "Jn 1:11"]}`).([]graph.Record)
	require.Len(t, records, 2)
	assert.Equal(t, "Grace", records[0].Caption())

	updated := call(t, s, ToolUpdateVertexByID,
		`{"label": "verse", "id": 43011, "set_properties": {"chapter": 1}, "unset_properties": ["RST"]}`).(graph.Record)
	assert.Equal(t, int64(1), updated["chapter"])
	assert.NotContains(t, updated, "RST")

	read := call(t, s, ToolReadVertexByID, `{"label": "verse", "id": 43012}`).(graph.Record)
	rels := read[graph.KeyRelationships].(graph.Relationships)
	require.Len(t, rels["isReferredBy"], 1)

	_, err := s.CallTool(context.Background(), ToolGetNotionByID, map[string]any{"internal_id": read.InternalID()})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	def := call(t, s, ToolGetSchema, `{}`).(schema.Definition)
	assert.NotEmpty(t, def.Labels)
}

func TestCallTool_Errors(t *testing.T) {
	s := newTestServer(t, ProfileRead)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args string
		want apperror.Kind
	}{
		{name: "unknown tool", tool: "drop_graph", args: `{}`, want: apperror.KindInvalidArgument},
		{name: "tool outside allow-list", tool: ToolCreateVertex, args: `{"label": "notion"}`, want: apperror.KindInvalidArgument},
		{name: "missing label", tool: ToolReadVertexByID, args: `{"id": 1}`, want: apperror.KindInvalidArgument},
		{name: "non-integer id", tool: ToolReadVertexByID, args: `{"label": "verse", "id": "one"}`, want: apperror.KindInvalidArgument},
		{name: "unknown label", tool: ToolListVerticesByLabel, args: `{"label": "planet"}`, want: apperror.KindUnknownLabel},
		{name: "empty reference", tool: ToolResolveVertex, args: `{"reference": {}}`, want: apperror.KindInvalidReference},
		{name: "not found", tool: ToolResolveVertex, args: `{"reference": {"caption": "nobody"}}`, want: apperror.KindNotFound},
		{name: "verse not found", tool: ToolGetVerseByCaption, args: `{"caption": "Jn 99:1"}`, want: apperror.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CallTool(ctx, tt.tool, decodeArgs(t, tt.args))
			require.Error(t, err)
			assert.Equal(t, tt.want, apperror.KindOf(err))
		})
	}
}

func TestToolResult(t *testing.T) {
	t.Run("typed failure", func(t *testing.T) {
		res, err := toolResult(nil, apperror.New(apperror.KindAmbiguous, "2 vertices match").
			WithDetails(map[string]any{"reference": map[string]any{"caption": "X"}}))
		require.NoError(t, err)
		assert.True(t, res.IsError)

		var body map[string]map[string]any
		require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &body))
		assert.Equal(t, "ambiguous", body["error"]["kind"])
		assert.Equal(t, "2 vertices match", body["error"]["message"])
		assert.NotNil(t, body["error"]["details"])
	})

	t.Run("untyped failure hides its text", func(t *testing.T) {
		res, err := toolResult(nil, errors.New("dial tcp 10.0.0.1:8182: refused"))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.NotContains(t, textOf(t, res), "10.0.0.1")
		assert.Contains(t, textOf(t, res), "internal_error")
	})

	t.Run("object", func(t *testing.T) {
		res, err := toolResult(map[string]any{"deleted": true}, nil)
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.JSONEq(t, `{"deleted": true}`, textOf(t, res))
		assert.NotNil(t, res.StructuredContent)
	})

	t.Run("list", func(t *testing.T) {
		res, err := toolResult([]graph.Summary{{Label: "verse", Caption: "Jn 1:1"}}, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"label": "verse", "id": null, "internal_id": null, "caption": "Jn 1:1"}]`, textOf(t, res))
		assert.Nil(t, res.StructuredContent)
	})
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

// handleMessage drives the protocol server in process and decodes the
// JSON-RPC response.
func handleMessage(t *testing.T, s *Server, method string, params any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)

	resp := s.MCPServer().HandleMessage(context.Background(), raw)
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestMCPServer_ToolsList(t *testing.T) {
	resp := handleMessage(t, newTestServer(t, ProfileRead), "tools/list", map[string]any{})
	result := resp["result"].(map[string]any)
	assert.Len(t, result["tools"], len(ProfileRead))

	resp = handleMessage(t, newTestServer(t, nil), "tools/list", map[string]any{})
	result = resp["result"].(map[string]any)
	assert.Len(t, result["tools"], 21)
}

func TestMCPServer_ToolsCall(t *testing.T) {
	s := newTestServer(t, nil)

	resp := handleMessage(t, s, "tools/call", map[string]any{
		"name":      ToolCreateVertex,
		"arguments": map[string]any{"label": "notion", "properties": map[string]any{"caption": "Grace"}},
	})
	result := resp["result"].(map[string]any)
	assert.NotEqual(t, true, result["isError"])
	structured := result["structuredContent"].(map[string]any)
	assert.Equal(t, "Grace", structured["created"].(map[string]any)["caption"])

	resp = handleMessage(t, s, "tools/call", map[string]any{
		"name":      ToolCreateVertex,
		"arguments": map[string]any{"label": "notion", "properties": map[string]any{"caption": "Grace"}},
	})
	result = resp["result"].(map[string]any)
	assert.Equal(t, true, result["isError"])
	content := result["content"].([]any)[0].(map[string]any)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(content["text"].(string)), &body))
	assert.Equal(t, "already_exists", body["error"]["kind"])

	resp = handleMessage(t, s, "tools/call", map[string]any{
		"name":      ToolListVerticesByLabel,
		"arguments": map[string]any{"label": "notion"},
	})
	result = resp["result"].(map[string]any)
	content = result["content"].([]any)[0].(map[string]any)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(content["text"].(string)), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Grace", listed[0]["caption"])
}

func TestMCPServer_DisallowedToolIsNotRegistered(t *testing.T) {
	resp := handleMessage(t, newTestServer(t, ProfileRead), "tools/call", map[string]any{
		"name":      ToolCreateVertex,
		"arguments": map[string]any{"label": "notion", "properties": map[string]any{"caption": "Grace"}},
	})
	assert.NotNil(t, resp["error"])
	assert.Nil(t, resp["result"])
}

func TestHTTPRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.CallTool(context.Background(), ToolGetSchema, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, float64(21), body["tools"])
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(data), `theomcp_tool_calls_total{status="ok",tool="get_schema"} 1`)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/mcp", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestListenAndServe_StopsWithContext(t *testing.T) {
	config := DefaultServerConfig()
	config.Port = 0
	s := NewServer(nil, config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
