package commands

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/sprout/activity"
	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/display"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/logger"
	"github.com/teranos/sprout/session"
	"golang.org/x/time/rate"
)

// StreamCmd runs one pipeline stream against the graph store
var StreamCmd = &cobra.Command{
	Use:   "stream <concept-id | url>",
	Short: "Run a pipeline stream and apply its mutations",
	Long: `Open the event stream of a graph-generation run and apply its mutations.

A concept id is expanded to {stream.base_url}/api/agents/concepts/<id>/run.
Existing nodes are loaded from the backend first so edges that reference them
resolve immediately. Press Ctrl+C to cancel; queued mutations are discarded.

Output by verbosity:
  (default) final lock table or summary
  -v        one line per applied batch
  -vv       pipeline activity
  -vvv      every mutation`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

var (
	streamUserID    string
	streamBranchID  string
	streamSmall     bool
	streamNoRefresh bool
	streamRedraw    time.Duration
)

func init() {
	StreamCmd.Flags().StringVarP(&streamUserID, "user", "u", "", "User id sent with the run and used for the initial refresh")
	StreamCmd.Flags().StringVarP(&streamBranchID, "branch", "b", "", "Branch whose lock table is shown as the graph changes")
	StreamCmd.Flags().BoolVar(&streamSmall, "small", false, "Ask the pipeline for its small agents")
	StreamCmd.Flags().BoolVar(&streamNoRefresh, "no-refresh", false, "Skip loading existing nodes before streaming")
	StreamCmd.Flags().DurationVar(&streamRedraw, "redraw", time.Second, "Minimum interval between lock table redraws")
}

// streamURL expands a bare concept id into the concept run endpoint
func streamURL(base, target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return strings.TrimRight(base, "/") + "/api/agents/concepts/" + url.PathEscape(target) + "/run"
}

// streamBody is the JSON body of a concept run
func streamBody(userID string, small bool) map[string]any {
	body := map[string]any{}
	if userID != "" {
		body["userId"] = userID
	}
	if small {
		body["small"] = true
	}
	return body
}

func runStream(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	jsonOutput := display.ShouldOutputJSON(cmd)

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := session.NewFromConfig(cfg)
	if streamUserID != "" && !streamNoRefresh {
		if err := s.Refresh(ctx, streamUserID); err != nil {
			pterm.Warning.Printfln("Could not load existing graph: %v", err)
		}
	}

	if !jsonOutput {
		attachStreamOutput(s, verbosity)
	}

	target := streamURL(cfg.Stream.BaseURL, args[0])
	if logger.ShouldOutput(verbosity, logger.OutputLifecycle) && !jsonOutput {
		pterm.Info.Printfln("Streaming %s", target)
	}
	if err := s.StartStream(ctx, target, streamBody(streamUserID, streamSmall)); err != nil {
		return err
	}

	err = s.Wait()
	switch {
	case errors.IsCancelled(err):
		if !jsonOutput {
			pterm.Info.Println("Stream cancelled, queued mutations discarded")
		}
	case err != nil:
		return err
	}

	if notice := s.Notice(); notice != "" && !jsonOutput {
		pterm.Info.Println(notice)
	}

	snap := s.Store().Snapshot()
	if jsonOutput {
		return display.OutputJSON(snap)
	}
	if streamBranchID != "" {
		return display.RenderView("Branch "+streamBranchID, snap.BranchView(streamBranchID))
	}
	pterm.Success.Printfln("%d nodes, %d edges, %d locked", len(snap.Nodes), len(snap.Edges), len(snap.Locked()))
	return nil
}

// attachStreamOutput prints batches, activity and errors as they arrive
func attachStreamOutput(s *session.Session, verbosity int) {
	redraw := rate.NewLimiter(rate.Every(streamRedraw), 1)

	s.OnBatch(func(r session.BatchResult) {
		if len(r.Mutations) > 0 && logger.ShouldOutput(verbosity, logger.OutputBatches) {
			pterm.Info.Println(display.BatchSummary(r.Mutations, len(r.Locked)))
		}
		if streamBranchID != "" && redraw.Allow() {
			_ = display.RenderView("Branch "+streamBranchID, r.Snapshot.BranchView(streamBranchID))
		}
	})

	if logger.ShouldOutput(verbosity, logger.OutputMutations) {
		s.OnMutation(func(m graph.Mutation) {
			pterm.Printfln("  %s %+v", m.MutationType(), m)
		})
	}

	if logger.ShouldOutput(verbosity, logger.OutputActivity) {
		s.Activity().Subscribe(func(e activity.Entry) {
			pterm.Println(display.ActivityLine(e))
		})
	}

	s.OnError(func(err error) {
		if !logger.ShouldOutput(verbosity, logger.OutputErrors) {
			return
		}
		pterm.Warning.Println(err.Error())
		if hint := errors.FlattenHints(err); hint != "" {
			pterm.Info.Println(hint)
		}
	})
}
