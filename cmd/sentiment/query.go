package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/sentiment/orchestrator"
)

var (
	queryURL  string
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run one query against an orchestrator",
	Long:  "Opens the orchestrator websocket, sends the query and prints the session stream until it ends.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, queryURL, nil)
		if err != nil {
			return fmt.Errorf("connect %s: %w", queryURL, err)
		}
		defer conn.Close()

		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		if err := conn.WriteJSON(map[string]string{"query": strings.Join(args, " ")}); err != nil {
			return fmt.Errorf("send query: %w", err)
		}

		printer := newStreamPrinter(cmd.OutOrStdout(), queryJSON)
		for {
			var msg orchestrator.StreamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					break
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("read stream: %w", err)
			}
			printer.print(msg)
		}

		if printer.failed {
			return fmt.Errorf("session failed")
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryURL, "url", "ws://localhost:8080/ws", "Orchestrator websocket URL")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print raw stream messages as JSON lines")

	rootCmd.AddCommand(queryCmd)
}

type streamTheme struct {
	stage   lipgloss.Style
	info    lipgloss.Style
	warning lipgloss.Style
	score   lipgloss.Style
	label   lipgloss.Style
	result  lipgloss.Style
	failure lipgloss.Style
}

func defaultStreamTheme() streamTheme {
	return streamTheme{
		stage: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")).
			Padding(0, 1),
		info: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		score: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("114")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(10),
		result: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("44")).
			Padding(0, 1),
		failure: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("160")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
	}
}

type streamPrinter struct {
	w      io.Writer
	raw    bool
	theme  streamTheme
	failed bool
}

func newStreamPrinter(w io.Writer, raw bool) *streamPrinter {
	return &streamPrinter{w: w, raw: raw, theme: defaultStreamTheme()}
}

func (p *streamPrinter) print(msg orchestrator.StreamMessage) {
	if msg.Type == orchestrator.TypeError {
		p.failed = true
	}

	if p.raw {
		line, _ := json.Marshal(msg)
		fmt.Fprintln(p.w, string(line))
		return
	}

	payload, _ := msg.Payload.(map[string]any)

	switch msg.Type {
	case orchestrator.TypeStatus:
		line := p.theme.stage.Render(fmt.Sprint(payload["stage"]))
		if ticker, ok := payload["ticker"].(string); ok {
			line += " " + ticker
		}
		fmt.Fprintln(p.w, line)
	case orchestrator.TypeLog:
		style := p.theme.info
		if payload["level"] == "warning" {
			style = p.theme.warning
		}
		fmt.Fprintln(p.w, style.Render("  "+fmt.Sprint(payload["message"])))
	case orchestrator.TypeChartUpdate:
		fmt.Fprintln(p.w, p.renderChart(payload))
	case orchestrator.TypeResult:
		fmt.Fprintln(p.w, p.theme.result.Render(p.renderReport(msg.Payload)))
	case orchestrator.TypeError:
		fmt.Fprintln(p.w, p.theme.failure.Render(fmt.Sprintf("%v: %v (stage %v)",
			payload["code"], payload["message"], payload["stage"])))
	}
}

func (p *streamPrinter) renderChart(payload map[string]any) string {
	lines := []string{p.theme.score.Render(fmt.Sprintf("  score %v", payload["final_score"]))}

	breakdown, _ := payload["breakdown"].(map[string]any)
	sources := make([]string, 0, len(breakdown))
	for source := range breakdown {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		entry, _ := breakdown[source].(map[string]any)
		lines = append(lines, fmt.Sprintf("  %s n=%v mean=%.2f weight=%v",
			p.theme.label.Render(source), entry["count"], toFloat(entry["mean"]), entry["weight"]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (p *streamPrinter) renderReport(report any) string {
	m, ok := report.(map[string]any)
	if !ok {
		return fmt.Sprint(report)
	}
	if summary, ok := m["summary"].(string); ok {
		return summary
	}
	data, _ := json.MarshalIndent(m, "", "  ")
	return string(data)
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
