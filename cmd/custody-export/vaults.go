package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fystack/custody-export/custody"
	"github.com/fystack/custody-export/export"
)

var vaultsFlags struct {
	output   string
	pageSize int
	input    string
	truncate bool
	tokens   []string
}

var vaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "Export vault addresses across organizations",
	Long: `Fetches every vault and writes one CSV row per resolved address. Cosmos
vaults expand to one row per chain, TON vaults use their raw account, and
utxo or black_box vaults without a direct address are resolved through the
derived addresses listing.

The output file is appended to rather than overwritten, deduplicating on the
address column, so several organizations can be exported into one file by
passing --api-tokens or running the command once per token.`,
	RunE: runVaults,
}

func init() {
	f := vaultsCmd.Flags()
	f.StringVarP(&vaultsFlags.output, "output", "o", export.DefaultVaultsOutput,
		"destination CSV file, appended to if it exists")
	f.IntVar(&vaultsFlags.pageSize, "page-size", export.DefaultVaultsPageSize,
		"vaults fetched per request")
	f.StringVar(&vaultsFlags.input, "input", "",
		"read vaults from a local JSON dump instead of the API")
	f.BoolVar(&vaultsFlags.truncate, "truncate", false,
		"discard the existing output file instead of appending")
	f.StringSliceVar(&vaultsFlags.tokens, "api-tokens", nil,
		"bearer tokens, one per organization (defaults to --api-token)")
	rootCmd.AddCommand(vaultsCmd)
}

func runVaults(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := buildFilter()
	if err != nil {
		return err
	}

	cfg := export.VaultsConfig{
		Input:    vaultsFlags.input,
		PageSize: vaultsFlags.pageSize,
		Output:   vaultsFlags.output,
		Truncate: vaultsFlags.truncate,
		Filter:   eng,
		Log:      log,
	}
	if cfg.Input == "" {
		cfg.Clients, err = vaultClients(log)
		if err != nil {
			return err
		}
	}

	n, err := export.Vaults(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	log.Info("vaults export complete", zap.Int("rows", n))
	return nil
}

// vaultClients builds one API client per organization token: --api-tokens if
// set, else the CUSTODY_API_TOKENS environment list, else the single root
// token.
func vaultClients(log *zap.Logger) ([]*custody.Client, error) {
	if rootFlags.apiURL == "" {
		return nil, errors.New("missing --api-url (or CUSTODY_API_URL)")
	}

	tokens := vaultsFlags.tokens
	if len(tokens) == 0 {
		if env := os.Getenv("CUSTODY_API_TOKENS"); env != "" {
			tokens = strings.Split(env, ",")
		} else if rootFlags.apiToken != "" {
			tokens = []string{rootFlags.apiToken}
		}
	}

	clients := make([]*custody.Client, 0, len(tokens))
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			continue
		}
		clients = append(clients, custody.NewClient(rootFlags.apiURL, token, custody.WithLogger(log)))
	}
	if len(clients) == 0 {
		return nil, errors.New("missing API tokens (--api-token, --api-tokens, or CUSTODY_API_TOKENS)")
	}
	return clients, nil
}
