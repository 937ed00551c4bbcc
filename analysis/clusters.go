package analysis

import "fmt"

const minTopicsForClustering = 3

// IdentifyClusters groups topics that transitioned into each other. Adjacency
// is undirected (A->B links both ways). The grouping is a single greedy pass:
// each unvisited topic seeds a cluster holding itself plus its not-yet-visited
// direct neighbors. One hop only; this intentionally is NOT connected-component
// detection and must stay that shallow.
//
// Clusters of size 1 are dropped. CentralTopic is the member with the most
// neighbors overall, first encountered winning ties. Cohesion is cluster size
// over the total topic count.
func IdentifyClusters(topics []Topic, transitions []TopicTransition) []TopicCluster {
	if len(topics) < minTopicsForClustering {
		return nil
	}

	neighbors := make(map[string]map[string]struct{}, len(topics))
	addEdge := func(a, b string) {
		if neighbors[a] == nil {
			neighbors[a] = make(map[string]struct{})
		}
		neighbors[a][b] = struct{}{}
	}
	for _, tr := range transitions {
		if tr.From == "" || tr.To == "" || tr.From == tr.To {
			continue
		}
		addEdge(tr.From, tr.To)
		addEdge(tr.To, tr.From)
	}

	visited := make(map[string]struct{}, len(topics))
	var clusters []TopicCluster

	for _, t := range topics {
		if _, ok := visited[t.ID]; ok {
			continue
		}
		visited[t.ID] = struct{}{}

		members := []string{t.ID}
		for _, other := range topics {
			if other.ID == t.ID {
				continue
			}
			if _, ok := visited[other.ID]; ok {
				continue
			}
			if _, ok := neighbors[t.ID][other.ID]; !ok {
				continue
			}
			visited[other.ID] = struct{}{}
			members = append(members, other.ID)
		}

		if len(members) < 2 {
			continue
		}

		central := members[0]
		for _, id := range members[1:] {
			if len(neighbors[id]) > len(neighbors[central]) {
				central = id
			}
		}

		clusters = append(clusters, TopicCluster{
			ID:           fmt.Sprintf("cluster_%d", len(clusters)+1),
			Topics:       members,
			CentralTopic: central,
			Cohesion:     float64(len(members)) / float64(len(topics)),
		})
	}
	return clusters
}
