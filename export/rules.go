package export

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fystack/custody-export/csvout"
	"github.com/fystack/custody-export/custody"
	"github.com/fystack/custody-export/filter"
	"github.com/fystack/custody-export/policy"
)

// rulesPath is the policy rules listing endpoint.
const rulesPath = "/api/v1/policies/transactions"

const (
	// DefaultRulesOutput is where Rules writes when no output path is set.
	DefaultRulesOutput = "rules_output.csv"
	// DefaultRulesPageSize bounds one rules listing request.
	DefaultRulesPageSize = 50
)

// ruleColumns is the preferred column order of the rules export. Columns no
// row carries are dropped, and unexpected columns are appended alphabetically.
var ruleColumns = []string{
	"rule_name",
	"rule_id",
	"rule_action",
	"transaction_types",
	"initiator_users",
	"initiator_user_groups",
	"origin_vaults",
	"origin_vault_groups",
	"recipient_dapps",
	"recipient_addresses",
	"recipient_address_groups",
	"recipient_contacts",
	"recipient_contact_groups",
	"recipient_vaults",
	"recipient_vault_groups",
	"abi_methods",
	"transaction_assets",
	"amount_limit",
	"eip712_domains",
	"eip712_primary_types",
	"approval_groups",
	"created_at",
	"modified_at",
	"modified_by",
}

// RulesConfig configures one policy rules export run.
type RulesConfig struct {
	// Client talks to the custody API. Ignored when Input is set.
	Client *custody.Client
	// Input reads rules from a local JSON dump instead of the API.
	Input string
	// PageSize bounds one listing request. Defaults to DefaultRulesPageSize.
	PageSize int
	// Output is the destination CSV path. Defaults to DefaultRulesOutput.
	Output string
	// Filter optionally narrows which rows are written.
	Filter *filter.Engine
	// Log defaults to a no-op logger.
	Log *zap.Logger
}

// Rules exports every policy rule as one flattened CSV row and reports how
// many rows were written.
func Rules(ctx context.Context, cfg RulesConfig) (int, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultRulesPageSize
	}
	if cfg.Output == "" {
		cfg.Output = DefaultRulesOutput
	}

	rules, err := fetchRules(ctx, cfg)
	if err != nil {
		return 0, err
	}
	cfg.Log.Info("fetched rules", zap.Int("count", len(rules)))

	rows := make([]map[string]string, 0, len(rules))
	for _, row := range policy.FlattenRules(rules) {
		rows = append(rows, row)
	}
	rows = selectRows(rows, cfg.Filter)

	header := csvout.Columns(rows, ruleColumns)
	if err := csvout.Write(cfg.Output, header, rows); err != nil {
		return 0, err
	}
	cfg.Log.Info("wrote rules export",
		zap.String("path", cfg.Output),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(header)))
	return len(rows), nil
}

func fetchRules(ctx context.Context, cfg RulesConfig) ([]policy.Rule, error) {
	if cfg.Input != "" {
		page, err := policy.LoadRulesPage(cfg.Input)
		if err != nil {
			return nil, err
		}
		return page.Rules, nil
	}
	if cfg.Client == nil {
		return nil, errors.New("rules export needs an API client or an input file")
	}

	var rules []policy.Rule
	err := fetchAllPages(ctx, cfg.PageSize, func(ctx context.Context, page, size int) (bool, error) {
		var pg policy.RulesPage
		if err := cfg.Client.Get(ctx, rulesPath, custody.PageQuery(page, size), &pg); err != nil {
			return false, fmt.Errorf("fetch rules page %d: %w", page, err)
		}
		rules = append(rules, pg.Rules...)
		cfg.Log.Debug("fetched rules page",
			zap.Int("page", page),
			zap.Int("rules", len(pg.Rules)),
			zap.Int("total", pg.Total))
		return len(pg.Rules) == 0 || page*size >= pg.Total, nil
	})
	return rules, err
}
