package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/seekerworks/searchagent/action"
	"github.com/seekerworks/searchagent/memory"
)

const searchDocumentsK = 5

// Retriever is the slice of the memory manager the document tools use.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter memory.Filter) ([]memory.SearchResult, error)
}

// Processor re-scans the documents directory on demand.
type Processor interface {
	Run(ctx context.Context) (indexed, skipped int, err error)
}

// SearchDocumentsTool retrieves the most similar indexed document
// chunks for a query.
func SearchDocumentsTool(retriever Retriever) action.Tool {
	return action.NewFunc("search_documents", "Search indexed documents for relevant passages",
		"query=string",
		func(ctx context.Context, args map[string]string) (string, error) {
			query, ok := args["query"]
			if !ok || strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("missing argument %q", "query")
			}

			results, err := retriever.Retrieve(ctx, query, searchDocumentsK,
				memory.Filter{Kind: memory.KindDocument})
			if err != nil {
				return "", fmt.Errorf("search documents: %w", err)
			}
			if len(results) == 0 {
				return "No matching documents found.", nil
			}

			var sb strings.Builder
			for i, r := range results {
				source := "unknown"
				if len(r.Item.Tags) > 0 {
					source = r.Item.Tags[0]
				}
				fmt.Fprintf(&sb, "%d. [%s] (score %.3f) %s\n", i+1, source, r.Score, r.Item.Text)
			}
			return sb.String(), nil
		})
}

// ProcessDocumentsTool triggers a fresh ingest run.
func ProcessDocumentsTool(processor Processor) action.Tool {
	return action.NewFunc("process_documents", "Index new or changed files in the documents directory",
		"",
		func(ctx context.Context, args map[string]string) (string, error) {
			indexed, skipped, err := processor.Run(ctx)
			if err != nil {
				return "", fmt.Errorf("process documents: %w", err)
			}
			return fmt.Sprintf("Indexed %d chunks, skipped %d unchanged files.", indexed, skipped), nil
		})
}
