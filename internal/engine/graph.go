package engine

// BuildGraph converts the final PageResult set into a node/edge graph. One
// node is created per result (first occurrence of a URL wins); an edge is
// added for each link that targets another result in the same set. Links
// pointing outside the crawled set produce no edge.
func BuildGraph(results []PageResult) NetworkGraph {
	graph := NetworkGraph{
		Nodes: make([]NetworkNode, 0, len(results)),
		Edges: make([]NetworkEdge, 0),
	}

	idByURL := make(map[string]string, len(results))
	for _, r := range results {
		if _, dup := idByURL[r.URL]; dup {
			continue
		}
		idByURL[r.URL] = r.ID
		graph.Nodes = append(graph.Nodes, NetworkNode{
			ID:            r.ID,
			Label:         nodeLabel(r),
			Color:         r.PageType.Color(),
			Type:          r.PageType,
			URL:           r.URL,
			Title:         r.Title,
			ScreenshotRef: r.ScreenshotRef,
		})
	}

	seen := make(map[NetworkEdge]struct{})
	for _, r := range results {
		from, ok := idByURL[r.URL]
		if !ok || from != r.ID {
			continue
		}
		for _, link := range r.Links {
			to, ok := idByURL[link]
			if !ok || to == from {
				continue
			}
			edge := NetworkEdge{From: from, To: to}
			if _, dup := seen[edge]; dup {
				continue
			}
			seen[edge] = struct{}{}
			graph.Edges = append(graph.Edges, edge)
		}
	}
	return graph
}

func nodeLabel(r PageResult) string {
	if r.Title != "" {
		return r.Title
	}
	return r.URL
}
