package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names.
const (
	ToolGetSchema                   = "get_schema"
	ToolResolveVertex               = "resolve_vertex"
	ToolCreateVertex                = "create_vertex"
	ToolCreateVertexAndConnect      = "create_vertex_and_connect"
	ToolCreateNotion                = "create_notion"
	ToolCreateNotionAndConnect      = "create_notion_and_connect"
	ToolCreateNotionGroupAndConnect = "create_notion_group_and_connect"
	ToolConnectVertices             = "connect_vertices"
	ToolAddEdge                     = "add_edge"
	ToolDeleteEdge                  = "delete_edge"
	ToolReadVertex                  = "read_vertex"
	ToolReadVertexByID              = "read_vertex_by_id"
	ToolGetNotionByID               = "get_notion_by_id"
	ToolUpdateVertexByID            = "update_vertex_by_id"
	ToolDeleteVertex                = "delete_vertex"
	ToolDeleteVertexByID            = "delete_vertex_by_id"
	ToolListVerticesByLabel         = "list_vertices_by_label"
	ToolFindVerticesByCaption       = "find_vertices_by_caption"
	ToolSearchVertices              = "search_vertices"
	ToolGetVerticesByCaptions       = "get_vertices_by_captions"
	ToolGetVerseByCaption           = "get_verse_by_caption"
)

// Edge labels used by the notion connect tools when the caller names none.
const (
	defaultSupportedEdgeLabel  = "isSupportedBy"
	defaultChallengedEdgeLabel = "isChallengedBy"
	defaultRefersEdgeLabel     = "refersTo"
)

const (
	referenceDescriptionSuffix     = " Object with internal_id, id or caption, and optionally label."
	referenceListDescriptionSuffix = " List of objects with internal_id, id or caption, and optionally label."
	captionMapDescriptionSuffix    = " Object mapping an edge label to a list of captions."
	internalIDDescription          = "Store identity of the vertex (internal_id in results)."
	labelDescription               = "Vertex label (case-insensitive): person, book, verse, verseGroup, notion, notionGroup, quotation."
	edgeLabelDescription           = "Edge label (case-insensitive), e.g. isSupportedBy, refersTo, writtenBy."
)

// ProfileRead contains the tools that never mutate the graph.
var ProfileRead = map[string]bool{
	ToolGetSchema:             true,
	ToolResolveVertex:         true,
	ToolReadVertex:            true,
	ToolReadVertexByID:        true,
	ToolGetNotionByID:         true,
	ToolListVerticesByLabel:   true,
	ToolFindVerticesByCaption: true,
	ToolSearchVertices:        true,
	ToolGetVerticesByCaptions: true,
	ToolGetVerseByCaption:     true,
}

// ProfileWrite contains the tools that create, change or delete vertices and edges.
var ProfileWrite = map[string]bool{
	ToolCreateVertex:                true,
	ToolCreateVertexAndConnect:      true,
	ToolCreateNotion:                true,
	ToolCreateNotionAndConnect:      true,
	ToolCreateNotionGroupAndConnect: true,
	ToolConnectVertices:             true,
	ToolAddEdge:                     true,
	ToolDeleteEdge:                  true,
	ToolUpdateVertexByID:            true,
	ToolDeleteVertex:                true,
	ToolDeleteVertexByID:            true,
}

// Profiles maps profile names usable in MCP_TOOLS to their tool sets.
var Profiles = map[string]map[string]bool{
	"read":  ProfileRead,
	"write": ProfileWrite,
}

// ResolveTools turns a comma-separated list of profile and tool names into an
// allow-list. Empty input or "all" yields nil, meaning every tool.
func ResolveTools(input string) (map[string]bool, error) {
	input = strings.TrimSpace(input)
	if input == "" || input == "all" {
		return nil, nil
	}

	result := make(map[string]bool)
	var unknown []string
	for _, token := range strings.Split(input, ",") {
		token = strings.TrimSpace(token)
		switch {
		case token == "":
			continue
		case token == "all":
			return nil, nil
		}
		if profile, ok := Profiles[token]; ok {
			for name := range profile {
				result[name] = true
			}
			continue
		}
		if !ProfileRead[token] && !ProfileWrite[token] {
			unknown = append(unknown, token)
			continue
		}
		result[token] = true
	}

	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown tools: %s", strings.Join(unknown, ", "))
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

// ToolNames returns the sorted names of the tools in allowlist, or of every
// tool when allowlist is nil.
func ToolNames(allowlist map[string]bool) []string {
	var names []string
	for _, tool := range GetToolDefinitions() {
		if shouldRegister(tool.Name, allowlist) {
			names = append(names, tool.Name)
		}
	}
	sort.Strings(names)
	return names
}

func shouldRegister(name string, allowlist map[string]bool) bool {
	if allowlist == nil {
		return true
	}
	return allowlist[name]
}

func readOnly(title string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithTitleAnnotation(title),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func mutating(title string, destructive, idempotent bool) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithTitleAnnotation(title),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(destructive),
		mcp.WithIdempotentHintAnnotation(idempotent),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func newTool(name, description string, annotations []mcp.ToolOption, params ...mcp.ToolOption) mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription(description)}, annotations...)
	return mcp.NewTool(name, append(opts, params...)...)
}

func referenceParam(name, description string) mcp.ToolOption {
	return mcp.WithObject(name, mcp.Required(), mcp.Description(description+referenceDescriptionSuffix))
}

func referenceListParam(name, description string) mcp.ToolOption {
	return mcp.WithArray(name,
		mcp.Description(description+referenceListDescriptionSuffix),
		mcp.Items(map[string]any{"type": "object"}),
	)
}

func stringListParam(name, description string, opts ...mcp.PropertyOption) mcp.ToolOption {
	return mcp.WithArray(name, append([]mcp.PropertyOption{
		mcp.Description(description),
		mcp.Items(map[string]any{"type": "string"}),
	}, opts...)...)
}

// GetToolDefinitions returns the definition of every tool the server can expose.
func GetToolDefinitions() []mcp.Tool {
	connectParams := func() []mcp.ToolOption {
		return []mcp.ToolOption{
			mcp.WithString("edge_label", mcp.Required(), mcp.Description(edgeLabelDescription)),
			referenceParam("out_vertex", "Source of the edge."),
			referenceParam("in_vertex", "Target of the edge."),
		}
	}
	notionConnectParams := func(what string) []mcp.ToolOption {
		return []mcp.ToolOption{
			mcp.WithObject("properties", mcp.Required(), mcp.Description("Properties of the new "+what+".")),
			referenceListParam("supported_by", "Vertices supporting the new "+what+"."),
			referenceListParam("challenged_by", "Vertices challenging the new "+what+"."),
			referenceListParam("refers_to", "Vertices the new "+what+" refers to."),
			mcp.WithString("supported_edge_label", mcp.DefaultString(defaultSupportedEdgeLabel),
				mcp.Description("Edge label used for supported_by.")),
			mcp.WithString("challenged_edge_label", mcp.DefaultString(defaultChallengedEdgeLabel),
				mcp.Description("Edge label used for challenged_by.")),
			mcp.WithString("refers_edge_label", mcp.DefaultString(defaultRefersEdgeLabel),
				mcp.Description("Edge label used for refers_to.")),
		}
	}

	return []mcp.Tool{
		newTool(ToolGetSchema,
			"Return the knowledge graph schema: vertex labels with their allowed, required and unique properties, and the edge labels.",
			readOnly("Get Schema")),

		newTool(ToolResolveVertex,
			"Resolve a reference to exactly one vertex. Fails with not_found when nothing matches and ambiguous (listing the matches) when several vertices do.",
			readOnly("Resolve Vertex"),
			referenceParam("reference", "Vertex to resolve."),
		),

		newTool(ToolCreateVertex,
			"Create a vertex after validating its properties against the schema. Fails with already_exists when a vertex with the same unique property value exists.",
			mutating("Create Vertex", false, false),
			mcp.WithString("label", mcp.Required(), mcp.Description(labelDescription)),
			mcp.WithObject("properties", mcp.Required(), mcp.Description("Vertex properties.")),
		),

		newTool(ToolCreateVertexAndConnect,
			"Create a vertex and connect it to existing vertices identified by caption. Every caption must resolve to exactly one vertex. Not atomic: on failure the vertex and the edges created so far remain and are reported in the error details.",
			mutating("Create Vertex And Connect", false, false),
			mcp.WithString("label", mcp.Required(), mcp.Description(labelDescription)),
			mcp.WithObject("properties", mcp.Required(), mcp.Description("Vertex properties.")),
			mcp.WithObject("edges_out", mcp.Description("Edges from the new vertex."+captionMapDescriptionSuffix)),
			mcp.WithObject("edges_in", mcp.Description("Edges into the new vertex."+captionMapDescriptionSuffix)),
			mcp.WithString("target_label", mcp.Description("Restrict caption lookups to this label.")),
		),

		newTool(ToolCreateNotion,
			"Create a notion with a caption and connect it using relationship names. Direct names (isSupportedBy, refersTo) create edges from the notion; inverse names (supports, isReferredBy) create edges into it.",
			mutating("Create Notion", false, false),
			mcp.WithString("caption", mcp.Required(), mcp.Description("Caption of the new notion.")),
			mcp.WithObject("relationships", mcp.Description("Relationships of the notion."+captionMapDescriptionSuffix)),
			mcp.WithObject("properties", mcp.Description("Additional notion properties.")),
		),

		newTool(ToolCreateNotionAndConnect,
			"Create a notion and connect it to vertices resolved by internal_id, id or caption.",
			mutating("Create Notion And Connect", false, false),
			notionConnectParams("notion")...,
		),

		newTool(ToolCreateNotionGroupAndConnect,
			"Create a notion group and connect it to vertices resolved by internal_id, id or caption.",
			mutating("Create Notion Group And Connect", false, false),
			notionConnectParams("notion group")...,
		),

		newTool(ToolConnectVertices,
			"Create an edge from out_vertex to in_vertex. Both references must resolve to exactly one vertex.",
			mutating("Connect Vertices", false, false),
			connectParams()...,
		),

		newTool(ToolAddEdge,
			"Alias of connect_vertices.",
			mutating("Add Edge", false, false),
			connectParams()...,
		),

		newTool(ToolDeleteEdge,
			"Delete every edge with the given label from out_vertex to in_vertex. Returns the number of deleted edges, which may be zero.",
			mutating("Delete Edge", true, true),
			connectParams()...,
		),

		newTool(ToolReadVertex,
			"Read a vertex by store identity, with its relationships grouped by edge label. Incoming edges use their inverse names.",
			readOnly("Read Vertex"),
			mcp.WithString("internal_id", mcp.Required(), mcp.Description(internalIDDescription)),
		),

		newTool(ToolReadVertexByID,
			"Read a vertex by label and business id, with its relationships.",
			readOnly("Read Vertex By ID"),
			mcp.WithString("label", mcp.Required(), mcp.Description(labelDescription)),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Business id of the vertex.")),
		),

		newTool(ToolGetNotionByID,
			"Read a notion by store identity, with its relationships.",
			readOnly("Get Notion"),
			mcp.WithString("internal_id", mcp.Required(), mcp.Description(internalIDDescription)),
		),

		newTool(ToolUpdateVertexByID,
			"Set and unset properties of the vertex with the given label and business id. Required properties cannot be unset.",
			mutating("Update Vertex", false, true),
			mcp.WithString("label", mcp.Required(), mcp.Description(labelDescription)),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Business id of the vertex.")),
			mcp.WithObject("set_properties", mcp.Description("Properties to set.")),
			stringListParam("unset_properties", "Properties to remove."),
		),

		newTool(ToolDeleteVertex,
			"Delete a vertex and its edges. The vertex is identified by internal_id, or by id or caption with an optional label. A missing vertex is reported with deleted=false.",
			mutating("Delete Vertex", true, true),
			mcp.WithString("internal_id", mcp.Description(internalIDDescription)),
			mcp.WithNumber("id", mcp.Description("Business id of the vertex.")),
			mcp.WithString("caption", mcp.Description("Caption of the vertex.")),
			mcp.WithString("label", mcp.Description(labelDescription)),
		),

		newTool(ToolDeleteVertexByID,
			"Delete the vertex with the given label and business id, and its edges.",
			mutating("Delete Vertex By ID", true, true),
			mcp.WithString("label", mcp.Required(), mcp.Description(labelDescription)),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Business id of the vertex.")),
		),

		newTool(ToolListVerticesByLabel,
			"List vertices of a label in creation order.",
			readOnly("List Vertices"),
			mcp.WithString("label", mcp.Required(), mcp.Description(labelDescription)),
			mcp.WithNumber("limit", mcp.DefaultNumber(1000), mcp.Description("Maximum number of vertices.")),
			mcp.WithNumber("offset", mcp.DefaultNumber(0), mcp.Description("Number of vertices to skip.")),
		),

		newTool(ToolFindVerticesByCaption,
			"Find vertices whose caption equals the given caption, optionally within one label.",
			readOnly("Find Vertices By Caption"),
			mcp.WithString("caption", mcp.Required(), mcp.Description("Exact caption.")),
			mcp.WithString("label", mcp.Description(labelDescription)),
			mcp.WithNumber("limit", mcp.DefaultNumber(50), mcp.Description("Maximum number of vertices.")),
		),

		newTool(ToolSearchVertices,
			"Find vertices whose caption contains the query (case-sensitive).",
			readOnly("Search Vertices"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Substring to look for in captions.")),
			stringListParam("labels", "Restrict the search to these labels."),
			mcp.WithNumber("limit", mcp.DefaultNumber(10), mcp.Description("Maximum number of vertices.")),
		),

		newTool(ToolGetVerticesByCaptions,
			"Fetch every vertex whose caption is one of the given captions, in the order of the captions.",
			readOnly("Get Vertices By Captions"),
			stringListParam("captions", "Captions to fetch.", mcp.Required()),
		),

		newTool(ToolGetVerseByCaption,
			"Get a verse by its caption, such as \"Jn 1:11\", with its text.",
			readOnly("Get Verse"),
			mcp.WithString("caption", mcp.Required(), mcp.Description("Verse caption.")),
		),
	}
}
