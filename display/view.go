package display

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/teranos/sprout/activity"
	"github.com/teranos/sprout/graph"
)

// ViewRow is one node of a rendered view, in dependency order
type ViewRow struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Kind      string   `json:"type"`
	State     string   `json:"state"`
	Completed bool     `json:"completed"`
	Locked    bool     `json:"locked"`
	Parents   []string `json:"parents,omitempty"`
}

// ViewRows flattens view into rows ordered by dependency
func ViewRows(view graph.View) []ViewRow {
	byID := make(map[string]graph.Node, len(view.Nodes))
	for _, n := range view.Nodes {
		byID[n.ID] = n
	}
	parents := make(map[string][]string)
	for _, e := range view.Edges {
		if e.Structural {
			continue
		}
		parents[e.Target] = append(parents[e.Target], e.Source)
	}

	ordered := view.Ordered()
	rows := make([]ViewRow, 0, len(ordered))
	for _, id := range ordered {
		n, ok := byID[id]
		if !ok {
			continue
		}
		rows = append(rows, ViewRow{
			ID:        n.ID,
			Title:     n.Title,
			Kind:      string(n.Kind),
			State:     n.State.String(),
			Completed: n.Completed,
			Locked:    view.IsLocked(n.ID),
			Parents:   parents[n.ID],
		})
	}
	return rows
}

// TableData builds pterm table data for rows, header first
func TableData(rows []ViewRow) pterm.TableData {
	data := pterm.TableData{{"Node", "Title", "Status", "Depends on"}}
	for _, r := range rows {
		data = append(data, []string{r.ID, r.Title, status(r), strings.Join(r.Parents, ", ")})
	}
	return data
}

// RenderView prints view as a table
func RenderView(title string, view graph.View) error {
	return RenderRows(title, ViewRows(view))
}

// RenderRows prints rows under a section title
func RenderRows(title string, rows []ViewRow) error {
	if len(rows) == 0 {
		pterm.Info.Printfln("%s: no nodes", title)
		return nil
	}

	pterm.DefaultSection.Println(title)
	return pterm.DefaultTable.WithHasHeader().WithData(TableData(rows)).Render()
}

// BatchSummary describes an applied batch in one line
func BatchSummary(mutations []graph.Mutation, locked int) string {
	counts := make(map[graph.MutationType]int)
	for _, m := range mutations {
		counts[m.MutationType()]++
	}

	parts := []string{fmt.Sprintf("%d mutations", len(mutations))}
	for _, t := range []graph.MutationType{
		graph.TypeNodeCreated, graph.TypeEdgeCreated,
		graph.TypeNodeRemoved, graph.TypeEdgeRemoved, graph.TypeFallback,
	} {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
		}
	}
	parts = append(parts, fmt.Sprintf("locked=%d", locked))
	return strings.Join(parts, " ")
}

// ActivityLine describes one activity entry in one line
func ActivityLine(e activity.Entry) string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.Agent != "" {
		b.WriteString(" " + e.Agent)
	}
	if e.Tool != "" {
		b.WriteString(" -> " + e.Tool)
	}
	for _, text := range []string{e.Summary, e.Message} {
		if text != "" {
			b.WriteString(": " + text)
		}
	}
	return b.String()
}

func status(r ViewRow) string {
	switch {
	case r.State != graph.StateActive.String():
		return pterm.Gray(r.State)
	case r.Completed:
		return pterm.Green("completed")
	case r.Locked:
		return pterm.Red("locked")
	default:
		return pterm.Yellow("open")
	}
}
