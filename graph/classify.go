package graph

// Partition names the rendering partition a dependency edge belongs to
type Partition int

const (
	// PartitionNone edges are kept as raw graph edges but excluded from both views
	PartitionNone Partition = iota
	// PartitionConcept edges are keyed by the branch root id
	PartitionConcept
	// PartitionSubconcept edges are keyed by the owning concept id
	PartitionSubconcept
)

func (p Partition) String() string {
	switch p {
	case PartitionConcept:
		return "concept"
	case PartitionSubconcept:
		return "subconcept"
	default:
		return "none"
	}
}

// Classify places an edge between two resolved nodes and returns its partition key.
//
//   - concept -> concept under the same root: concept partition keyed by the root id
//   - either endpoint a subconcept: subconcept partition keyed by the owning concept
//     (the source's parent when the source is a subconcept, else the source itself)
//   - anything else is unclassified
func Classify(source, target Node) (Partition, string) {
	if source.Kind == KindConcept && target.Kind == KindConcept &&
		source.ParentID != "" && source.ParentID == target.ParentID {
		return PartitionConcept, source.ParentID
	}

	if source.Kind == KindSubconcept || target.Kind == KindSubconcept {
		conceptID := source.ID
		if source.Kind == KindSubconcept {
			conceptID = source.ParentID
		}
		if conceptID != "" {
			return PartitionSubconcept, conceptID
		}
	}

	return PartitionNone, ""
}
