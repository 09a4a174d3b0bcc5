package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringP("file", "f", "", "JSON file with a transaction or an array of transactions (- for stdin)")
	evaluateCmd.Flags().Bool("json", false, "Print results and summary as JSON")
	_ = evaluateCmd.MarkFlagRequired("file")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a dataset of transactions in-process",
	Long: `Evaluate every transaction in a JSON dataset against the configured rules
and print each result with a risk-level summary. Transactions of the same
user are evaluated in timestamp order so velocity and travel rules see the
dataset as a sequence.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := readDataset(cmd, file)
	if err != nil {
		return err
	}

	reqs, err := domain.ParseRequests(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}

	now := time.Now()
	txs := make([]domain.Transaction, len(reqs))
	for i := range reqs {
		tx, err := reqs[i].ToTransaction(now)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		txs[i] = tx
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// In-process runs always use memory state; a dataset replay must not
	// disturb a shared Redis view.
	cfg.State.Backend = "memory"
	engine, stores, err := newEngine(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer stores.Close()

	results, err := engine.EvaluateBatch(ctx, txs)
	if err != nil {
		return err
	}
	summary := domain.Summarize(results)

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"results": results,
			"summary": summary,
		})
	}

	printResults(cmd.OutOrStdout(), results, summary)
	return nil
}

func readDataset(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return data, nil
}

func printResults(out io.Writer, results []*domain.FraudResult, summary domain.BatchSummary) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tRISK\tSCORE\tREASONS")
	for _, r := range results {
		reasons := strings.Join(r.Reasons(), "; ")
		if reasons == "" {
			reasons = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.UserID, r.RiskLevel, r.TotalScore, reasons)
	}
	tw.Flush()

	fmt.Fprintf(out, "\nTotal: %d  HIGH: %d  MEDIUM: %d  LOW: %d\n",
		summary.Total, summary.High, summary.Medium, summary.Low)
}

func printRules(out io.Writer, infos []domain.RuleInfo) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tWEIGHT")
	for _, r := range infos {
		fmt.Fprintf(tw, "%s\t%d\n", r.Name, r.Weight)
	}
	tw.Flush()
}

