package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/pipeline"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/run"
)

// WriteResult prints the end-of-run summary: what came in, which stems came
// out and where they live.
func WriteResult(w io.Writer, result pipeline.Result) {
	fmt.Fprintf(w, "Input: %s\n", result.Run.Input)

	if result.InputMeta.Title != "" {
		fmt.Fprintf(w, "Title: %s", result.InputMeta.Title)
		if result.InputMeta.Artist != "" {
			fmt.Fprintf(w, " - %s", result.InputMeta.Artist)
		}
		fmt.Fprintln(w)
	}

	if result.InputDuration > 0 {
		fmt.Fprintf(w, "Duration: %s\n", result.InputDuration.Round(time.Second))
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Stem", "File", "Size"})

	for i, label := range sortedLabels(result.StemPaths) {
		path := result.StemPaths[label]
		t.AppendRow(table.Row{i + 1, label, path, fileSize(path)})
	}

	t.Render()

	fmt.Fprintf(w, "All files saved in: %s\n", result.OutputDir)

	if len(result.RemoteURLs) > 0 {
		fmt.Fprintln(w, "Uploaded stems:")
		for _, label := range sortedLabels(result.RemoteURLs) {
			fmt.Fprintf(w, "  %s: %s\n", label, result.RemoteURLs[label])
		}
	}
}

// WriteRuns prints the run history listing.
func WriteRuns(w io.Writer, runs []run.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run", "Input", "Status", "Output", "Started"})

	for _, rn := range runs {
		t.AppendRow(table.Row{
			shortID(rn.ID),
			rn.Input,
			string(rn.Status),
			rn.OutputDir,
			rn.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}

	t.Render()
}

func sortedLabels(m map[string]string) []string {
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}

	return fmt.Sprintf("%.2f MB", float64(info.Size())/(1024*1024))
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
