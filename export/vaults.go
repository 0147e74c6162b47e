package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/fystack/custody-export/csvout"
	"github.com/fystack/custody-export/custody"
	"github.com/fystack/custody-export/filter"
	"github.com/fystack/custody-export/policy"
)

// vaultsPath is the vaults listing endpoint. Derived addresses of a single
// vault live under vaultsPath/{id}/addresses.
const vaultsPath = "/api/v1/vaults"

const (
	// DefaultVaultsOutput is where Vaults writes when no output path is set.
	DefaultVaultsOutput = "vault_addresses.csv"
	// DefaultVaultsPageSize bounds one vaults listing request.
	DefaultVaultsPageSize = 100
)

// vaultColumns is the fixed header of the vault addresses export.
var vaultColumns = []string{"Vault Name", "Vault Type", "Vault Address"}

// VaultsPage is one page of the vaults listing. Size echoes the page size
// the server actually applied.
type VaultsPage struct {
	Vaults []Vault `json:"vaults"`
	Total  int     `json:"total"`
	Size   int     `json:"size"`
}

// Vault carries the slice of the vault payload the export reads. A malformed
// vault decodes to a blank one.
type Vault struct {
	ID             policy.Scalar  `json:"id"`
	Name           policy.Scalar  `json:"name"`
	Type           policy.Scalar  `json:"type"`
	Address        policy.Scalar  `json:"address"`
	RawAccount     policy.Scalar  `json:"raw_account"`
	ChainAddresses []ChainAddress `json:"chains_addresses"`
}

func (v *Vault) UnmarshalJSON(data []byte) error {
	type plain Vault
	return lenient(data, (*plain)(v))
}

// ChainAddress is one per-chain address of a cosmos vault.
type ChainAddress struct {
	Chain   policy.Scalar `json:"chain"`
	Address policy.Scalar `json:"address"`
}

func (c *ChainAddress) UnmarshalJSON(data []byte) error {
	type plain ChainAddress
	return lenient(data, (*plain)(c))
}

// vaultAddressesPage is one page of a vault's derived addresses listing.
type vaultAddressesPage struct {
	Addresses []vaultAddress `json:"addresses"`
	Total     int            `json:"total"`
	Size      int            `json:"size"`
}

// vaultAddress wraps one derived address entry.
type vaultAddress struct {
	Address addressBody `json:"address"`
}

func (v *vaultAddress) UnmarshalJSON(data []byte) error {
	type plain vaultAddress
	return lenient(data, (*plain)(v))
}

type addressBody struct {
	Address policy.Scalar `json:"address"`
}

func (a *addressBody) UnmarshalJSON(data []byte) error {
	type plain addressBody
	return lenient(data, (*plain)(a))
}

// addrLookup fetches the derived addresses of one vault.
type addrLookup func(ctx context.Context, vaultID string) ([]string, error)

// VaultsConfig configures one vault addresses export run.
type VaultsConfig struct {
	// Clients talk to the custody API, one per organization token. Ignored
	// when Input is set.
	Clients []*custody.Client
	// Input reads vaults from a local JSON dump instead of the API. Derived
	// address lookups are skipped offline, leaving those cells blank.
	Input string
	// PageSize bounds one listing request. Defaults to
	// DefaultVaultsPageSize.
	PageSize int
	// Output is the destination CSV path. Defaults to DefaultVaultsOutput.
	// Unlike the other exports this file is appended to, deduplicating on
	// the address column, so repeated runs accumulate one organization after
	// another.
	Output string
	// Truncate discards any existing output file before writing.
	Truncate bool
	// Filter optionally narrows which rows are written.
	Filter *filter.Engine
	// Log defaults to a no-op logger.
	Log *zap.Logger
}

// Vaults exports vault addresses across every configured organization and
// reports how many rows were appended. Rows whose address already appears in
// the output file are skipped; rows with no address are always kept since
// they describe distinct vaults.
func Vaults(ctx context.Context, cfg VaultsConfig) (int, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultVaultsPageSize
	}
	if cfg.Output == "" {
		cfg.Output = DefaultVaultsOutput
	}
	if cfg.Truncate {
		if err := os.Remove(cfg.Output); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("truncate %s: %w", cfg.Output, err)
		}
	}

	if cfg.Input != "" {
		page, err := loadDump[VaultsPage](cfg.Input, "vaults")
		if err != nil {
			return 0, err
		}
		rows := vaultRows(ctx, page.Vaults, nil, cfg.Log)
		return appendVaultRows(cfg, rows)
	}
	if len(cfg.Clients) == 0 {
		return 0, errors.New("vaults export needs at least one API client or an input file")
	}

	written := 0
	for i, client := range cfg.Clients {
		vaults, err := fetchVaults(ctx, client, cfg)
		if err != nil {
			return written, fmt.Errorf("organization %d: %w", i+1, err)
		}
		cfg.Log.Info("fetched vaults",
			zap.Int("organization", i+1),
			zap.Int("count", len(vaults)))

		rows := vaultRows(ctx, vaults, vaultAddressLookup(client, cfg.PageSize), cfg.Log)
		n, err := appendVaultRows(cfg, rows)
		written += n
		if err != nil {
			return written, fmt.Errorf("organization %d: %w", i+1, err)
		}
	}
	return written, nil
}

func fetchVaults(ctx context.Context, client *custody.Client, cfg VaultsConfig) ([]Vault, error) {
	var vaults []Vault
	err := fetchAllPages(ctx, cfg.PageSize, func(ctx context.Context, page, size int) (bool, error) {
		var pg VaultsPage
		if err := client.Get(ctx, vaultsPath, custody.PageQuery(page, size), &pg); err != nil {
			return false, fmt.Errorf("fetch vaults page %d: %w", page, err)
		}
		vaults = append(vaults, pg.Vaults...)
		cfg.Log.Debug("fetched vaults page",
			zap.Int("page", page),
			zap.Int("vaults", len(pg.Vaults)),
			zap.Int("total", pg.Total))
		return len(pg.Vaults) == 0 || page*sizeOr(pg.Size, size) >= pg.Total, nil
	})
	return vaults, err
}

// vaultAddressLookup walks the derived addresses listing of one vault,
// keeping non-empty address strings. Partial results come back alongside the
// error when a page fails.
func vaultAddressLookup(client *custody.Client, size int) addrLookup {
	return func(ctx context.Context, vaultID string) ([]string, error) {
		if vaultID == "" {
			return nil, nil
		}
		path := fmt.Sprintf("%s/%s/addresses", vaultsPath, url.PathEscape(vaultID))

		var addrs []string
		err := fetchAllPages(ctx, size, func(ctx context.Context, page, size int) (bool, error) {
			var pg vaultAddressesPage
			if err := client.Get(ctx, path, custody.PageQuery(page, size), &pg); err != nil {
				return false, fmt.Errorf("fetch addresses page %d: %w", page, err)
			}
			for _, a := range pg.Addresses {
				if s := a.Address.Address.String(); s != "" {
					addrs = append(addrs, s)
				}
			}
			return len(pg.Addresses) == 0 || page*sizeOr(pg.Size, size) >= pg.Total, nil
		})
		return addrs, err
	}
}

// vaultRows flattens vaults into CSV rows, one or more per vault depending
// on its type.
func vaultRows(ctx context.Context, vaults []Vault, lookup addrLookup, log *zap.Logger) []map[string]string {
	rows := make([]map[string]string, 0, len(vaults))
	for _, v := range vaults {
		rows = append(rows, oneVaultRows(ctx, v, lookup, log)...)
	}
	return rows
}

// oneVaultRows resolves the addresses of a single vault. Cosmos vaults carry
// per-chain addresses inline, TON vaults expose a raw account, and utxo or
// black_box vaults without a direct address need the derived addresses
// listing. Everything else uses the address field as is.
func oneVaultRows(ctx context.Context, v Vault, lookup addrLookup, log *zap.Logger) []map[string]string {
	name := v.Name.String()
	vtype := v.Type.String()

	switch {
	case vtype == "cosmos":
		if len(v.ChainAddresses) == 0 {
			return []map[string]string{vaultRow(name, vtype, "")}
		}
		rows := make([]map[string]string, 0, len(v.ChainAddresses))
		for _, ca := range v.ChainAddresses {
			chainName := fmt.Sprintf("%s (%s)", name, ca.Chain.String())
			rows = append(rows, vaultRow(chainName, vtype, ca.Address.String()))
		}
		return rows

	case vtype == "ton":
		return []map[string]string{vaultRow(name, vtype, v.RawAccount.String())}

	case (vtype == "utxo" || vtype == "black_box") && !v.Address.Truthy():
		addrs := derivedAddresses(ctx, v, lookup, log)
		if len(addrs) == 0 {
			return []map[string]string{vaultRow(name, vtype, "")}
		}
		rows := make([]map[string]string, 0, len(addrs))
		for _, addr := range addrs {
			rows = append(rows, vaultRow(name, vtype, addr))
		}
		return rows

	default:
		return []map[string]string{vaultRow(name, vtype, v.Address.String())}
	}
}

// derivedAddresses runs the lookup when one is available. A failed lookup
// degrades to whatever addresses were fetched before the failure rather than
// aborting the run.
func derivedAddresses(ctx context.Context, v Vault, lookup addrLookup, log *zap.Logger) []string {
	if lookup == nil {
		return nil
	}
	addrs, err := lookup(ctx, v.ID.String())
	if err != nil {
		log.Warn("vault address lookup failed",
			zap.String("vault", v.Name.String()),
			zap.Error(err))
	}
	return addrs
}

func vaultRow(name, vtype, address string) map[string]string {
	return map[string]string{
		"Vault Name":    name,
		"Vault Type":    vtype,
		"Vault Address": address,
	}
}

func appendVaultRows(cfg VaultsConfig, rows []map[string]string) (int, error) {
	rows = selectRows(rows, cfg.Filter)
	written, skipped, err := csvout.AppendUnique(cfg.Output, vaultColumns, rows, "Vault Address")
	if err != nil {
		return written, err
	}
	if skipped > 0 {
		cfg.Log.Info("skipped duplicate addresses", zap.Int("count", skipped))
	}
	cfg.Log.Info("appended vault rows",
		zap.String("path", cfg.Output),
		zap.Int("rows", written))
	return written, nil
}

// sizeOr prefers the page size the server echoed over the requested one.
func sizeOr(echoed, requested int) int {
	if echoed > 0 {
		return echoed
	}
	return requested
}
