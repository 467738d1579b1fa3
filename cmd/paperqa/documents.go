package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"paper-citations-rag/internal/app"
	"paper-citations-rag/internal/models"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := app.New(cmd.Context(), cfg, "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		docs, err := env.DB.ListDocuments(cmd.Context())
		if err != nil {
			return err
		}

		printDocuments(docs)
		return nil
	},
}

func printDocuments(docs []models.Document) {
	if len(docs) == 0 {
		fmt.Println("No documents indexed.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPAGES\tCHUNKS\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			d.ID, d.Name, d.Status, d.PageCount, d.ChunkCount, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(documentsCmd)
}
