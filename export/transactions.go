package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fystack/custody-export/csvout"
	"github.com/fystack/custody-export/custody"
	"github.com/fystack/custody-export/filter"
	"github.com/fystack/custody-export/policy"
)

// transactionsPath is the transaction history listing endpoint.
const transactionsPath = "/api/v1/transactions"

const (
	// DefaultTransactionsOutput is where Transactions writes when no output
	// path is set.
	DefaultTransactionsOutput = "transactions_output.csv"
	// DefaultTransactionsPageSize bounds one transactions listing request.
	DefaultTransactionsPageSize = 50
)

// transactionColumns is the fixed header of the transactions export.
var transactionColumns = []string{
	"Transaction ID",
	"Transaction Network",
	"Transaction Type",
	"Created At",
	"Initiator",
	"Origin Vault",
	"Policy Match - Is Default",
	"Policy Match - Rule Name",
	"Policy Match - Action Type",
	"Direction",
	"Approvers",
}

// TransactionsPage is one page of the transactions listing.
type TransactionsPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
}

// Transaction carries the slice of the transaction payload the export reads.
// Fields the API adds beyond these are ignored, and a malformed transaction
// decodes to a blank one.
type Transaction struct {
	ID          policy.Scalar `json:"id"`
	Type        policy.Scalar `json:"type"`
	CreatedAt   policy.Scalar `json:"created_at"`
	Direction   policy.Scalar `json:"direction"`
	Chain       *NameRef      `json:"chain"`
	Vault       *NameRef      `json:"vault"`
	ManagedData *ManagedData  `json:"managed_transaction_data"`
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	return lenient(data, (*plain)(t))
}

// NameRef is an embedded object read only for its display name.
type NameRef struct {
	Name policy.Scalar `json:"name"`
}

func (n *NameRef) UnmarshalJSON(data []byte) error {
	type plain NameRef
	return lenient(data, (*plain)(n))
}

// ManagedData groups the policy decision attached to a managed transaction.
type ManagedData struct {
	CreatedBy   *NameRef         `json:"created_by"`
	PolicyMatch *PolicyMatch     `json:"policy_match"`
	Approval    *ApprovalRequest `json:"approval_request"`
}

func (m *ManagedData) UnmarshalJSON(data []byte) error {
	type plain ManagedData
	return lenient(data, (*plain)(m))
}

// PolicyMatch records which policy rule selected the transaction's action.
type PolicyMatch struct {
	IsDefault  policy.Scalar `json:"is_default"`
	RuleName   policy.Scalar `json:"rule_name"`
	ActionType policy.Scalar `json:"action_type"`
}

func (p *PolicyMatch) UnmarshalJSON(data []byte) error {
	type plain PolicyMatch
	return lenient(data, (*plain)(p))
}

// ApprovalRequest lists the approvers consulted for a transaction.
type ApprovalRequest struct {
	Approvers []Approver `json:"approvers"`
}

func (a *ApprovalRequest) UnmarshalJSON(data []byte) error {
	type plain ApprovalRequest
	return lenient(data, (*plain)(a))
}

// Approver is one user's approval decision.
type Approver struct {
	User  *NameRef      `json:"user"`
	State policy.Scalar `json:"state"`
}

func (a *Approver) UnmarshalJSON(data []byte) error {
	type plain Approver
	return lenient(data, (*plain)(a))
}

// TransactionsConfig configures one transaction history export run.
type TransactionsConfig struct {
	// Client talks to the custody API. Ignored when Input is set.
	Client *custody.Client
	// Input reads transactions from a local JSON dump instead of the API.
	Input string
	// PageSize bounds one listing request. Defaults to
	// DefaultTransactionsPageSize.
	PageSize int
	// Output is the destination CSV path. Defaults to
	// DefaultTransactionsOutput.
	Output string
	// Filter optionally narrows which rows are written.
	Filter *filter.Engine
	// Log defaults to a no-op logger.
	Log *zap.Logger
}

// Transactions exports the transaction history as one CSV row per
// transaction and reports how many rows were written.
func Transactions(ctx context.Context, cfg TransactionsConfig) (int, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultTransactionsPageSize
	}
	if cfg.Output == "" {
		cfg.Output = DefaultTransactionsOutput
	}

	txs, err := fetchTransactions(ctx, cfg)
	if err != nil {
		return 0, err
	}
	cfg.Log.Info("fetched transactions", zap.Int("count", len(txs)))

	rows := make([]map[string]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, transactionRow(tx))
	}
	rows = selectRows(rows, cfg.Filter)

	if err := csvout.Write(cfg.Output, transactionColumns, rows); err != nil {
		return 0, err
	}
	cfg.Log.Info("wrote transactions export",
		zap.String("path", cfg.Output),
		zap.Int("rows", len(rows)))
	return len(rows), nil
}

func fetchTransactions(ctx context.Context, cfg TransactionsConfig) ([]Transaction, error) {
	if cfg.Input != "" {
		page, err := loadDump[TransactionsPage](cfg.Input, "transactions")
		if err != nil {
			return nil, err
		}
		return page.Transactions, nil
	}
	if cfg.Client == nil {
		return nil, errors.New("transactions export needs an API client or an input file")
	}

	var txs []Transaction
	err := fetchAllPages(ctx, cfg.PageSize, func(ctx context.Context, page, size int) (bool, error) {
		var pg TransactionsPage
		if err := cfg.Client.Get(ctx, transactionsPath, custody.PageQuery(page, size), &pg); err != nil {
			return false, fmt.Errorf("fetch transactions page %d: %w", page, err)
		}
		txs = append(txs, pg.Transactions...)
		cfg.Log.Debug("fetched transactions page",
			zap.Int("page", page),
			zap.Int("transactions", len(pg.Transactions)),
			zap.Int("total", pg.Total))
		return len(pg.Transactions) == 0 || page*size >= pg.Total, nil
	})
	return txs, err
}

// transactionRow flattens one transaction into its CSV row.
func transactionRow(tx Transaction) map[string]string {
	md := tx.ManagedData
	if md == nil {
		md = &ManagedData{}
	}
	var match PolicyMatch
	if md.PolicyMatch != nil {
		match = *md.PolicyMatch
	}

	return map[string]string{
		"Transaction ID":             tx.ID.String(),
		"Transaction Network":        refName(tx.Chain),
		"Transaction Type":           tx.Type.String(),
		"Created At":                 tx.CreatedAt.String(),
		"Initiator":                  refName(md.CreatedBy),
		"Origin Vault":               refName(tx.Vault),
		"Policy Match - Is Default":  strings.ToLower(match.IsDefault.String()),
		"Policy Match - Rule Name":   match.RuleName.String(),
		"Policy Match - Action Type": match.ActionType.String(),
		"Direction":                  tx.Direction.String(),
		"Approvers":                  approverSummary(md.Approval),
	}
}

func refName(ref *NameRef) string {
	if ref == nil {
		return ""
	}
	return ref.Name.String()
}

// approverSummary renders "Name (state)" per approver, joined with
// semicolons, skipping approvers whose user has no resolvable name.
func approverSummary(req *ApprovalRequest) string {
	if req == nil {
		return ""
	}
	var parts []string
	for _, a := range req.Approvers {
		name := ""
		if a.User != nil {
			name = a.User.Name.String()
		}
		if name == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, a.State.String()))
	}
	return strings.Join(parts, "; ")
}
