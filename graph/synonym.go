package graph

import "sort"

// AddSynonyms links each canonical term to those of its synonyms that are
// already nodes, with a Synonym edge. It never creates nodes, so a canonical
// term that is not a node is skipped. Canonical terms are visited in sorted
// order. It returns the number of edges added.
func (g *Graph) AddSynonyms(mapping map[string][]string) int {
	canon := make([]string, 0, len(mapping))
	for c := range mapping {
		canon = append(canon, c)
	}
	sort.Strings(canon)

	added := 0
	for _, c := range canon {
		if !g.HasNode(c) {
			continue
		}
		for _, syn := range mapping[c] {
			if syn == c || !g.HasNode(syn) {
				continue
			}
			if g.AddEdge(Edge{From: c, To: syn, Relation: RelationSynonym}) {
				added++
			}
		}
	}
	return added
}
