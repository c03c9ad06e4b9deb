package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

func newIngestCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <source>...",
		Short: "Load, chunk, embed and store sources",
		Long: `Each source is a PDF or text file, a glob, a directory or an http(s) URL.
Chunks beyond the collection quota are dropped with a warning.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := st.context(cmd)
			ing, err := st.app.Ingestor(ctx)
			if err != nil {
				return err
			}
			report, err := ing.Ingest(ctx, args...)
			if err != nil {
				return err
			}
			printReport(cmd, report, st.app.Collection.Limit())
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, r *service.Report, limit int) {
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d documents, %d chunks.\n", r.Documents, r.Requested)
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d chunks (%d updated).\n", r.Stored, r.Updated)
	if r.Truncated() {
		fmt.Fprintf(cmd.OutOrStdout(), "Quota of %d reached: %d chunks dropped.\n", limit, r.Dropped)
	}
	if r.Summary != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nSummary: %s\n", r.Summary)
	}
}

func newSearchCmd(st *rootState) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the chunks retrieved for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := st.context(cmd)
			r, err := st.app.Retriever(ctx)
			if err != nil {
				return err
			}
			res, err := r.Retrieve(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			printResults(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

type jsonResult struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Locator  string  `json:"locator,omitempty"`
	Distance float64 `json:"distance"`
	Text     string  `json:"text"`
}

func printJSON(cmd *cobra.Command, res domain.RetrievalResult) error {
	out := make([]jsonResult, len(res))
	for i, r := range res {
		out[i] = jsonResult{ID: r.Chunk.ID, Source: r.Chunk.SourceID, Locator: r.Chunk.Locator, Distance: r.Distance, Text: r.Chunk.Text}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func printResults(cmd *cobra.Command, res domain.RetrievalResult) {
	if len(res) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return
	}
	for i, r := range res {
		where := r.Chunk.SourceID
		if r.Chunk.Locator != "" {
			where += " @ " + r.Chunk.Locator
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s (distance %.3f)\n", i+1, where, r.Distance)
		fmt.Fprintf(cmd.OutOrStdout(), "    %s\n\n", snippet(r.Chunk.Text, 200))
	}
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

func newAskCmd(st *rootState) *cobra.Command {
	var showSources bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the stored documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := st.context(cmd)
			graph, err := st.app.Graph(ctx)
			if err != nil {
				return err
			}
			state, err := graph.Run(ctx, args[0], nil)
			if err != nil {
				return err
			}
			for d := range state.Stream {
				if d.Err != nil {
					fmt.Fprintln(cmd.OutOrStdout())
					return d.Err
				}
				fmt.Fprint(cmd.OutOrStdout(), d.Content)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if showSources && len(state.Context) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nSources:")
				for i, r := range state.Context {
					fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s %s\n", i+1, r.Chunk.SourceID, r.Chunk.Locator)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "list the retrieved chunks after the answer")
	return cmd
}

func newChatCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [source...]",
		Short: "Ingest optional sources, then answer questions interactively",
		Long: `Starts a question loop on stdin. Type "exit" or "quit" to leave.
Sources given as arguments are ingested first, which is required for the
in-memory store and the tfidf embedder since neither outlives the process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := st.context(cmd)
			if len(args) > 0 {
				ing, err := st.app.Ingestor(ctx)
				if err != nil {
					return err
				}
				report, err := ing.Ingest(ctx, args...)
				if err != nil {
					return err
				}
				printReport(cmd, report, st.app.Collection.Limit())
				fmt.Fprintln(cmd.OutOrStdout())
			}
			sess, err := st.app.Session(ctx)
			if err != nil {
				return err
			}
			return sess.Loop(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newCountCmd(st *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print how many chunks the collection holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := st.context(cmd)
			n, err := st.app.Collection.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d chunks\n", st.app.Collection.Name(), n, st.app.Collection.Limit())
			return nil
		},
	}
}
