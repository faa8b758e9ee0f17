package session

import (
	"context"

	"github.com/teranos/sprout/backend"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/logger"
	"golang.org/x/sync/errgroup"
)

// maxEdgeLoads bounds concurrent dependency-edge requests during Refresh
const maxEdgeLoads = 4

var errNoBackend = errors.New("session has no backend client")

// Refresh reloads every node and progress record of userID from the backend,
// replaces the store contents, loads the concept edges of every branch and
// re-seeds the resolver with the refreshed node ids.
func (s *Session) Refresh(ctx context.Context, userID string) error {
	if s.backend == nil {
		return errNoBackend
	}
	if userID == "" {
		return errors.NewInvalidRequestError("user id is required")
	}
	ctx = logger.WithUserID(ctx, userID)

	var (
		nodes    []graph.Node
		progress []graph.Progress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nodes, err = s.backend.ListNodes(gctx, backend.NodeFilter{UserID: userID})
		return errors.Wrap(err, "failed to list nodes")
	})
	g.Go(func() error {
		var err error
		progress, err = s.backend.ListProgress(gctx, userID)
		return errors.Wrap(err, "failed to list progress")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	done := graph.CompletionSet(progress, s.threshold)
	s.store.Replace(nodes, done)

	var roots []string
	for _, n := range nodes {
		if n.Kind == graph.KindRoot {
			roots = append(roots, n.ID)
		}
	}
	if err := s.loadPartitions(ctx, graph.PartitionConcept, roots); err != nil {
		return err
	}

	s.resolver.SeedKnownNodes(s.store.NodeIDs())
	s.log.Infow("Refreshed graph",
		logger.FieldUserID, userID,
		logger.FieldCount, len(nodes),
		"completed", len(done),
		"branches", len(roots))
	return nil
}

// LoadBranchEdges reloads the concept dependency edges of one branch
func (s *Session) LoadBranchEdges(ctx context.Context, branchID string) error {
	root, ok := s.store.Snapshot().Root(branchID)
	if !ok {
		return errors.NewNotFoundError("branch %s has no root node", branchID)
	}
	return s.loadPartitions(ctx, graph.PartitionConcept, []string{root.ID})
}

// LoadConceptEdges reloads the subconcept dependency edges of one concept
func (s *Session) LoadConceptEdges(ctx context.Context, conceptID string) error {
	if _, ok := s.store.Node(conceptID); !ok {
		return errors.NewNotFoundError("concept %s", conceptID)
	}
	return s.loadPartitions(ctx, graph.PartitionSubconcept, []string{conceptID})
}

// loadPartitions fetches the dependency edges among the children of each parent
// and stores them as partition p keyed by parent id.
func (s *Session) loadPartitions(ctx context.Context, p graph.Partition, parents []string) error {
	if s.backend == nil {
		return errNoBackend
	}

	childType := graph.KindConcept
	if p == graph.PartitionSubconcept {
		childType = graph.KindSubconcept
	}

	loaded := make([][]graph.Edge, len(parents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEdgeLoads)
	for i, parent := range parents {
		g.Go(func() error {
			rows, err := s.backend.ListDependencyEdges(gctx, parent, childType)
			if err != nil {
				return errors.Wrapf(err, "failed to list dependency edges of %s", parent)
			}
			edges := make([]graph.Edge, len(rows))
			for j, row := range rows {
				edges[j] = row.Edge()
			}
			loaded[i] = edges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, parent := range parents {
		if err := s.store.SetPartition(p, parent, loaded[i]); err != nil {
			return err
		}
		s.log.Debugw("Loaded dependency edges",
			logger.FieldPartition, p.String(),
			logger.FieldNodeID, parent,
			logger.FieldCount, len(loaded[i]))
	}
	return nil
}
