package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/redlinelabs/clauselens/internal/analyzer"
	"github.com/redlinelabs/clauselens/internal/rules"
)

var (
	analyzeFile        string
	analyzePerspective string
	analyzeClauseTypes []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a document against the playbook",
	Long: `Analyze a legal document: detect clauses per clause type, score them
from the given party perspective, and report risk with suggested language
for gaps.

Examples:
  # Analyze an NDA from the receiving party's position
  clauselens analyze --file nda.txt --perspective receiving

  # Restrict to specific clause types, fully offline
  clauselens analyze --file nda.txt --perspective mutual \
    --clause-types governing_law,confidentiality --offline`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "document to analyze (required)")
	analyzeCmd.Flags().StringVar(&analyzePerspective, "perspective", "mutual", "party perspective: receiving, disclosing or mutual")
	analyzeCmd.Flags().StringSliceVar(&analyzeClauseTypes, "clause-types", nil, "clause types to analyze (default all)")
	_ = analyzeCmd.MarkFlagRequired("file")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	text, err := os.ReadFile(analyzeFile)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	perspective := rules.Perspective(analyzePerspective)
	if !perspective.Valid() {
		return fmt.Errorf("invalid perspective %q", analyzePerspective)
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.orchestrator.AnalyzeDocument(ctx, analyzer.Document{
		ID:          analyzeFile,
		Text:        string(text),
		Perspective: perspective,
		ClauseTypes: analyzeClauseTypes,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
