package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paper-citations-rag/internal/app"
	"paper-citations-rag/internal/locate"
	"paper-citations-rag/internal/models"
	"paper-citations-rag/internal/processor"
	"paper-citations-rag/internal/rag"
)

var (
	askQuery       string
	askPDF         string
	askDocumentID  string
	askInteractive bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question with citations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !askInteractive && askQuery == "" {
			return eris.New("query is required in non-interactive mode, use -q 'your question'")
		}

		ctx := cmd.Context()
		env, err := app.New(ctx, cfg, "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		var hl *highlighter
		if askPDF != "" {
			hl, err = openHighlighter(askPDF, locate.RetryConfig{
				MaxAttempts: cfg.Locate.MaxAttempts,
				Delay:       cfg.Locate.Delay(),
			})
			if err != nil {
				return err
			}
			defer hl.Close()
		}

		if askInteractive {
			runInteractiveMode(ctx, env.Service, hl)
			return nil
		}

		out, err := processQuery(ctx, env.Service, hl, askQuery)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question to answer")
	askCmd.Flags().StringVar(&askPDF, "pdf", "", "PDF to locate citation pages and fragments in")
	askCmd.Flags().StringVar(&askDocumentID, "document", "", "document id the conversation is saved under")
	askCmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "run in interactive mode")
	rootCmd.AddCommand(askCmd)
}

func runInteractiveMode(ctx context.Context, svc *rag.Service, hl *highlighter) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Paper assistant - ask questions about your papers (type 'exit' to quit)")

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			break
		}
		if input == "" {
			continue
		}

		fmt.Print("Searching papers... ")
		out, err := processQuery(ctx, svc, hl, input)
		if err != nil {
			fmt.Printf("\rError: %v\n", err)
			continue
		}
		fmt.Println("\r" + out)
	}
}

func processQuery(ctx context.Context, svc *rag.Service, hl *highlighter, query string) (string, error) {
	res, err := svc.Answer(ctx, query, askDocumentID)
	if err != nil {
		return "", err
	}

	var locs map[int]location
	if hl != nil {
		locs = hl.locateAll(ctx, res.Result)
	}
	return formatAnswer(res, locs), nil
}

// location is where one citation was found in the PDF
type location struct {
	Page      int
	Span      models.SpanMatch
	Found     bool
	Fragments []string
}

type highlighter struct {
	doc   *processor.PDFDocument
	pages []string
	h     *locate.Highlighter
}

func openHighlighter(path string, retry locate.RetryConfig) (*highlighter, error) {
	doc, err := processor.OpenDocument(path)
	if err != nil {
		return nil, err
	}
	pages, err := doc.PageTexts()
	if err != nil {
		_ = doc.Close()
		return nil, err
	}
	return &highlighter{doc: doc, pages: pages, h: locate.NewHighlighter(doc, retry)}, nil
}

// locateAll finds the page and fragment range of every resolved citation,
// keyed by the citation's position in the block.
func (hl *highlighter) locateAll(ctx context.Context, block *models.CitationBlock) map[int]location {
	out := make(map[int]location, len(block.Citations))
	for i, c := range block.Citations {
		if !c.Resolved() {
			continue
		}

		page, ok := locate.FindPage(hl.pages, c.SourceText)
		if !ok {
			continue
		}
		loc := location{Page: page}

		span, found, err := hl.h.Locate(ctx, strconv.Itoa(i), page, c.SourceText)
		if err != nil {
			zap.L().Debug("ask: highlight abandoned", zap.Int("citation", i), zap.Error(err))
		}
		if found {
			loc.Span, loc.Found = span, true
			if frags, err := hl.doc.Fragments(ctx, page); err == nil {
				for j := span.StartFragment; j <= span.EndFragment && j < len(frags); j++ {
					loc.Fragments = append(loc.Fragments, frags[j].Text)
				}
			}
		}
		out[i] = loc
	}
	return out
}

func (hl *highlighter) Close() {
	hl.h.CancelAll()
	_ = hl.doc.Close()
}

func formatAnswer(res *models.QueryResult, locs map[int]location) string {
	var sb strings.Builder

	sb.WriteString(res.Result.AnswerText)
	sb.WriteString("\n")

	if len(res.Result.Citations) > 0 {
		sb.WriteString("\nCitations:\n")

		// number citations in reading order, keeping their block index for lookups
		order := make([]int, len(res.Result.Citations))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return res.Result.Citations[order[a]].SnippetStart < res.Result.Citations[order[b]].SnippetStart
		})

		for n, i := range order {
			c := res.Result.Citations[i]
			fmt.Fprintf(&sb, "  [%d] %q\n", n+1, c.Snippet)
			if !c.Resolved() {
				fmt.Fprintf(&sb, "      %s, chunk %d, sentences %s (not found)\n", c.DocumentName, c.PassageIndex, c.SentenceRange)
				continue
			}
			fmt.Fprintf(&sb, "      %s, chunk %d, sentences %s: %q\n", c.DocumentName, c.PassageIndex, c.SentenceRange, c.SourceText)

			loc, ok := locs[i]
			if !ok {
				continue
			}
			if !loc.Found {
				fmt.Fprintf(&sb, "      page %d\n", loc.Page)
				continue
			}
			partial := ""
			if loc.Span.Partial {
				partial = ", partial"
			}
			fmt.Fprintf(&sb, "      page %d, fragments %d-%d%s: %s\n",
				loc.Page, loc.Span.StartFragment, loc.Span.EndFragment, partial, strings.Join(loc.Fragments, " | "))
		}
	}

	if len(res.Passages) > 0 {
		sb.WriteString("\nSources:\n")
		for i, p := range res.Passages {
			fmt.Fprintf(&sb, "  %d. %s, chunk %d (similarity %.2f)\n", i, p.DocumentName, p.SequenceIndex, p.Similarity)
		}
	}

	return sb.String()
}
