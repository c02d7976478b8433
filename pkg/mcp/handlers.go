package mcp

import (
	"context"

	"github.com/orneryd/theomcp/pkg/graph"
)

// labelNotionGroup is the label created by create_notion_group_and_connect.
const labelNotionGroup = "notionGroup"

func (s *Server) handleGetSchema(ctx context.Context, args map[string]any) (any, error) {
	return s.service.Schema(), nil
}

func (s *Server) handleResolveVertex(ctx context.Context, args map[string]any) (any, error) {
	ref, err := getReference(args, "reference")
	if err != nil {
		return nil, err
	}
	return s.service.ResolveUniqueVertex(ctx, ref)
}

func (s *Server) handleCreateVertex(ctx context.Context, args map[string]any) (any, error) {
	label, err := requireString(args, "label")
	if err != nil {
		return nil, err
	}
	props, err := getMap(args, "properties")
	if err != nil {
		return nil, err
	}

	created, err := s.service.CreateVertex(ctx, label, props)
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": created}, nil
}

func (s *Server) handleCreateVertexAndConnect(ctx context.Context, args map[string]any) (any, error) {
	label, err := requireString(args, "label")
	if err != nil {
		return nil, err
	}
	props, err := getMap(args, "properties")
	if err != nil {
		return nil, err
	}
	edgesOut, err := getCaptionMap(args, "edges_out")
	if err != nil {
		return nil, err
	}
	edgesIn, err := getCaptionMap(args, "edges_in")
	if err != nil {
		return nil, err
	}

	return s.service.CreateVertexAndConnect(ctx, graph.ConnectByCaptions{
		Label:       label,
		Properties:  props,
		EdgesOut:    edgesOut,
		EdgesIn:     edgesIn,
		TargetLabel: getString(args, "target_label"),
	})
}

func (s *Server) handleCreateNotion(ctx context.Context, args map[string]any) (any, error) {
	relationships, err := getCaptionMap(args, "relationships")
	if err != nil {
		return nil, err
	}
	props, err := getMap(args, "properties")
	if err != nil {
		return nil, err
	}
	return s.service.CreateNotion(ctx, getString(args, "caption"), relationships, props)
}

func (s *Server) handleCreateNotionAndConnect(ctx context.Context, args map[string]any) (any, error) {
	return s.createAndLink(ctx, graph.LabelNotion, args)
}

func (s *Server) handleCreateNotionGroupAndConnect(ctx context.Context, args map[string]any) (any, error) {
	return s.createAndLink(ctx, labelNotionGroup, args)
}

// createAndLink creates a vertex of label and links it through the
// supported_by, challenged_by and refers_to reference lists, in that order.
func (s *Server) createAndLink(ctx context.Context, label string, args map[string]any) (any, error) {
	props, err := getMap(args, "properties")
	if err != nil {
		return nil, err
	}

	groups := []struct {
		targets   string
		edgeLabel string
		fallback  string
	}{
		{"supported_by", "supported_edge_label", defaultSupportedEdgeLabel},
		{"challenged_by", "challenged_edge_label", defaultChallengedEdgeLabel},
		{"refers_to", "refers_edge_label", defaultRefersEdgeLabel},
	}

	var links []graph.Link
	for _, g := range groups {
		refs, err := getReferences(args, g.targets)
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			continue
		}
		edgeLabel := getString(args, g.edgeLabel)
		if edgeLabel == "" {
			edgeLabel = g.fallback
		}
		links = append(links, graph.Link{EdgeLabel: edgeLabel, Targets: refs})
	}

	return s.service.Connect(ctx, label, props, links)
}

func (s *Server) handleConnectVertices(ctx context.Context, args map[string]any) (any, error) {
	edgeLabel, out, in, err := edgeArgs(args)
	if err != nil {
		return nil, err
	}
	edge, err := s.service.CreateEdge(ctx, edgeLabel, out, in)
	if err != nil {
		return nil, err
	}
	return map[string]any{"edge_created": edge}, nil
}

func (s *Server) handleDeleteEdge(ctx context.Context, args map[string]any) (any, error) {
	edgeLabel, out, in, err := edgeArgs(args)
	if err != nil {
		return nil, err
	}
	return s.service.DeleteEdges(ctx, edgeLabel, out, in)
}

func edgeArgs(args map[string]any) (string, graph.Reference, graph.Reference, error) {
	edgeLabel, err := requireString(args, "edge_label")
	if err != nil {
		return "", graph.Reference{}, graph.Reference{}, err
	}
	out, err := getReference(args, "out_vertex")
	if err != nil {
		return "", graph.Reference{}, graph.Reference{}, err
	}
	in, err := getReference(args, "in_vertex")
	if err != nil {
		return "", graph.Reference{}, graph.Reference{}, err
	}
	return edgeLabel, out, in, nil
}

func (s *Server) handleReadVertex(ctx context.Context, args map[string]any) (any, error) {
	internalID, err := requireInternalID(args)
	if err != nil {
		return nil, err
	}
	return s.service.ReadVertex(ctx, internalID)
}

func (s *Server) handleReadVertexByID(ctx context.Context, args map[string]any) (any, error) {
	label, err := requireString(args, "label")
	if err != nil {
		return nil, err
	}
	id, err := requireID(args)
	if err != nil {
		return nil, err
	}
	return s.service.ReadVertexByID(ctx, label, id)
}

func (s *Server) handleGetNotionByID(ctx context.Context, args map[string]any) (any, error) {
	internalID, err := requireInternalID(args)
	if err != nil {
		return nil, err
	}
	return s.service.GetNotionByID(ctx, internalID)
}

func (s *Server) handleUpdateVertexByID(ctx context.Context, args map[string]any) (any, error) {
	label, err := requireString(args, "label")
	if err != nil {
		return nil, err
	}
	id, err := requireID(args)
	if err != nil {
		return nil, err
	}
	set, err := getMap(args, "set_properties")
	if err != nil {
		return nil, err
	}
	unset, err := getStringSlice(args, "unset_properties")
	if err != nil {
		return nil, err
	}
	return s.service.UpdateVertex(ctx, label, id, set, unset)
}

func (s *Server) handleDeleteVertex(ctx context.Context, args map[string]any) (any, error) {
	if _, ok := args["internal_id"]; ok {
		internalID, err := requireInternalID(args)
		if err != nil {
			return nil, err
		}
		return s.service.DeleteVertexByInternalID(ctx, internalID)
	}
	ref, err := inlineReference(args)
	if err != nil {
		return nil, err
	}
	return s.service.DeleteVertexByReference(ctx, ref)
}

func (s *Server) handleDeleteVertexByID(ctx context.Context, args map[string]any) (any, error) {
	label, err := requireString(args, "label")
	if err != nil {
		return nil, err
	}
	id, err := requireID(args)
	if err != nil {
		return nil, err
	}
	return s.service.DeleteVertex(ctx, label, id)
}

func (s *Server) handleListVerticesByLabel(ctx context.Context, args map[string]any) (any, error) {
	label, err := requireString(args, "label")
	if err != nil {
		return nil, err
	}
	limit, err := getInt(args, "limit", graph.DefaultListLimit)
	if err != nil {
		return nil, err
	}
	offset, err := getInt(args, "offset", 0)
	if err != nil {
		return nil, err
	}
	return s.service.ListVerticesByLabel(ctx, label, limit, offset)
}

func (s *Server) handleFindVerticesByCaption(ctx context.Context, args map[string]any) (any, error) {
	limit, err := getInt(args, "limit", graph.DefaultFindLimit)
	if err != nil {
		return nil, err
	}
	return s.service.FindVerticesByCaption(ctx, getString(args, "caption"), getString(args, "label"), limit)
}

func (s *Server) handleSearchVertices(ctx context.Context, args map[string]any) (any, error) {
	labels, err := getStringSlice(args, "labels")
	if err != nil {
		return nil, err
	}
	limit, err := getInt(args, "limit", graph.DefaultSearchLimit)
	if err != nil {
		return nil, err
	}
	return s.service.SearchVertices(ctx, getString(args, "query"), labels, limit)
}

func (s *Server) handleGetVerticesByCaptions(ctx context.Context, args map[string]any) (any, error) {
	captions, err := getStringSlice(args, "captions")
	if err != nil {
		return nil, err
	}
	return s.service.GetVerticesByCaptions(ctx, captions)
}

func (s *Server) handleGetVerseByCaption(ctx context.Context, args map[string]any) (any, error) {
	return s.service.GetVerseByCaption(ctx, getString(args, "caption"))
}
