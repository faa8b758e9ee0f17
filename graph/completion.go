package graph

// CompletionSet builds the set of completed node ids from progress records.
// A record counts when it has a completion timestamp or its mastery score
// reaches threshold.
func CompletionSet(records []Progress, threshold float64) map[string]bool {
	done := make(map[string]bool, len(records))
	for _, r := range records {
		if (r.CompletedAt != nil && *r.CompletedAt != "") || r.MasteryScore >= threshold {
			done[r.NodeID] = true
		}
	}
	return done
}

// ApplyCompletion sets Completed on each node from done. Roots are always completed.
func ApplyCompletion(nodes []Node, done map[string]bool) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		n.Completed = n.Kind == KindRoot || done[n.ID]
		out[i] = n
	}
	return out
}
