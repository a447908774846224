package graph

// Stats summarises a graph.
type Stats struct {
	Nodes            int            `json:"nodes"`
	Edges            int            `json:"edges"`
	Components       int            `json:"components"`
	LargestComponent int            `json:"largest_component"`
	Relations        map[string]int `json:"relations"` // relation -> edge count
}

// undirected builds a neighbour list per node position, ignoring direction.
func (g *Graph) undirected() ([]string, [][]int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := append([]string(nil), g.nodes...)
	adj := make([][]int, len(nodes))
	for _, e := range g.edges {
		a, b := g.index[e.From], g.index[e.To]
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	return nodes, adj
}

// Components returns the weakly connected components. Components are ordered
// by their first node, and nodes within a component by insertion order.
func (g *Graph) Components() [][]string {
	nodes, adj := g.undirected()

	comp := make([]int, len(nodes))
	for i := range comp {
		comp[i] = -1
	}

	n := 0
	for start := range nodes {
		if comp[start] >= 0 {
			continue
		}
		comp[start] = n
		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range adj[cur] {
				if comp[nb] < 0 {
					comp[nb] = n
					queue = append(queue, nb)
				}
			}
		}
		n++
	}

	out := make([][]string, n)
	for i, label := range nodes {
		out[comp[i]] = append(out[comp[i]], label)
	}
	return out
}

// Neighbourhood returns the nodes within maxDepth hops of label, walking
// edges in both directions, with label first and the rest in BFS order.
// An unknown label gives nil.
func (g *Graph) Neighbourhood(label string, maxDepth int) []string {
	nodes, adj := g.undirected()

	g.mu.RLock()
	start, ok := g.index[label]
	g.mu.RUnlock()
	if !ok || start >= len(nodes) || maxDepth < 0 {
		return nil
	}

	visited := map[int]bool{start: true}
	out := []string{label}
	queue := []int{start}
	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []int
		for _, cur := range queue {
			for _, nb := range adj[cur] {
				if !visited[nb] {
					visited[nb] = true
					next = append(next, nb)
					out = append(out, nodes[nb])
				}
			}
		}
		queue = next
	}
	return out
}

// Stats computes summary counts.
func (g *Graph) Stats() Stats {
	comps := g.Components()
	s := Stats{
		Nodes:      g.NodeCount(),
		Components: len(comps),
		Relations:  make(map[string]int),
	}
	for _, c := range comps {
		s.LargestComponent = max(s.LargestComponent, len(c))
	}
	for _, e := range g.Edges() {
		s.Edges++
		s.Relations[e.Relation]++
	}
	return s
}
