package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/backend"
	"github.com/teranos/sprout/display"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/session"
)

// LocksCmd shows which nodes are locked for a user
var LocksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Refresh a user's graph and show lock state",
	Long: `Load every node and progress record of a user from the backend and print
which nodes are locked behind an incomplete direct prerequisite.

Without --branch every branch of the user is shown. With --concept the
subconcepts of that concept are shown instead.`,
	Args: cobra.NoArgs,
	RunE: runLocks,
}

var (
	locksUserID    string
	locksBranchID  string
	locksConceptID string
)

func init() {
	LocksCmd.Flags().StringVarP(&locksUserID, "user", "u", "", "User whose graph is loaded (required)")
	LocksCmd.Flags().StringVarP(&locksBranchID, "branch", "b", "", "Only show this branch")
	LocksCmd.Flags().StringVarP(&locksConceptID, "concept", "c", "", "Show the subconcepts of this concept")
	_ = LocksCmd.MarkFlagRequired("user")
}

// lockReport is the JSON form of one rendered view
type lockReport struct {
	Title string            `json:"title"`
	Rows  []display.ViewRow `json:"rows"`
}

func runLocks(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := backend.NewClientFromConfig(cfg)
	s := session.NewFromConfig(cfg, session.WithBackend(client))
	if err := s.Refresh(ctx, locksUserID); err != nil {
		return err
	}

	var reports []lockReport
	add := func(title string, rows []display.ViewRow) {
		reports = append(reports, lockReport{Title: title, Rows: rows})
	}

	switch {
	case locksConceptID != "":
		if err := s.LoadConceptEdges(ctx, locksConceptID); err != nil {
			return err
		}
		add("Concept "+locksConceptID, display.ViewRows(s.ConceptView(locksConceptID)))

	case locksBranchID != "":
		add("Branch "+locksBranchID, display.ViewRows(s.BranchView(locksBranchID)))

	default:
		branches, err := client.ListBranches(ctx, locksUserID)
		if err != nil {
			return err
		}
		for _, b := range branches {
			title := b.Title
			if title == "" {
				title = "Branch " + b.ID
			}
			add(title, display.ViewRows(s.BranchView(b.ID)))
		}
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(reports)
	}
	for _, r := range reports {
		if err := display.RenderRows(r.Title, r.Rows); err != nil {
			return err
		}
	}
	return nil
}
