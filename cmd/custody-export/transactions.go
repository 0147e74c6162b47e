package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fystack/custody-export/export"
)

var transactionsFlags struct {
	output   string
	pageSize int
	input    string
}

var transactionsCmd = &cobra.Command{
	Use:     "transactions",
	Aliases: []string{"tx"},
	Short:   "Export transaction history with policy decisions",
	Long: `Fetches every transaction and writes one CSV row per transaction: network,
type, initiator, origin vault, the policy rule that matched, and each
approver's decision.`,
	RunE: runTransactions,
}

func init() {
	f := transactionsCmd.Flags()
	f.StringVarP(&transactionsFlags.output, "output", "o", export.DefaultTransactionsOutput,
		"destination CSV file")
	f.IntVar(&transactionsFlags.pageSize, "page-size", export.DefaultTransactionsPageSize,
		"transactions fetched per request")
	f.StringVar(&transactionsFlags.input, "input", "",
		"read transactions from a local JSON dump instead of the API")
	rootCmd.AddCommand(transactionsCmd)
}

func runTransactions(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := buildFilter()
	if err != nil {
		return err
	}

	cfg := export.TransactionsConfig{
		Input:    transactionsFlags.input,
		PageSize: transactionsFlags.pageSize,
		Output:   transactionsFlags.output,
		Filter:   eng,
		Log:      log,
	}
	if cfg.Input == "" {
		cfg.Client, err = newClient(log)
		if err != nil {
			return err
		}
	}

	n, err := export.Transactions(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	log.Info("transactions export complete", zap.Int("rows", n))
	return nil
}
