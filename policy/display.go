package policy

import (
	"fmt"
	"strings"
)

// LabelAnyAll renders the aggregate display label for any/all condition
// types. Unrecognised types produce an empty label.
func LabelAnyAll(condType, nounPlural string) string {
	switch strings.ToLower(condType) {
	case "all":
		return "All " + nounPlural
	case "any":
		return "Any " + nounPlural
	}
	return ""
}

// label resolves the display label of a chain entry.
func (c ChainInfo) label() string {
	if !c.object {
		return c.text
	}
	for _, s := range []Scalar{c.Name, c.UniqueID, c.ChainType} {
		if s.Truthy() {
			return s.String()
		}
	}
	return ""
}

// Format renders a contact as "Name <address> (ChainLabel)", dropping the
// segments it has no data for.
func (c Contact) Format() string {
	name := "Unknown"
	for _, s := range []Scalar{c.Name, c.ID} {
		if s.Truthy() {
			name = s.String()
			break
		}
	}

	var address, chainLabel string
	if ref := c.AddressRef; ref != nil {
		if ref.Address.Truthy() {
			address = ref.Address.String()
		}
		if ref.ChainType.Truthy() {
			chainLabel = ref.ChainType.String()
		}
		if chainLabel == "" && len(ref.Chains) > 0 {
			var names []string
			for _, ch := range ref.Chains {
				if l := ch.label(); l != "" {
					names = append(names, l)
				}
			}
			chainLabel = strings.Join(names, ", ")
		}
	}

	switch {
	case chainLabel != "" && address != "":
		return fmt.Sprintf("%s <%s> (%s)", name, address, chainLabel)
	case address != "":
		return fmt.Sprintf("%s <%s>", name, address)
	default:
		return name
	}
}

// Format renders a dapp as "Name (ID: id, Chain: chainName)". Missing keys
// fall back to Unknown and N/A; present-but-empty values stay empty.
func (d Dapp) Format() string {
	name := scalarOr(d.Name, "Unknown")
	id := scalarOr(d.ID, "N/A")
	chain := "N/A"
	if d.Chain != nil {
		chain = scalarOr(d.Chain.Name, "N/A")
	}
	return fmt.Sprintf("%s (ID: %s, Chain: %s)", name, id, chain)
}

func scalarOr(s *Scalar, fallback string) string {
	if s == nil {
		return fallback
	}
	return s.String()
}

// Format renders an asset as "Name (ChainName)".
func (a Asset) Format() string {
	name := "Unknown"
	for _, s := range []Scalar{a.Info.Name, a.Info.Symbol} {
		if s.Truthy() {
			name = s.String()
			break
		}
	}
	return fmt.Sprintf("%s (%s)", name, a.chainName())
}

// chainName walks the chain fallbacks: asset_identifier.chain.name, then
// chain.name, then asset_identifier.details.chain.
func (a Asset) chainName() string {
	if ai := a.Info.AssetIdentifier; ai != nil && ai.Chain != nil && ai.Chain.Name.Truthy() {
		return ai.Chain.Name.String()
	}
	if ch := a.Info.Chain; ch != nil && ch.Name.Truthy() {
		return ch.Name.String()
	}
	if ai := a.Info.AssetIdentifier; ai != nil && ai.Details != nil && ai.Details.Chain.Truthy() {
		return ai.Details.Chain.String()
	}
	return "N/A"
}

// format renders the amount limit cell.
func (l *AmountLimit) format() string {
	currency := "N/A"
	if l.Currency.Truthy() {
		currency = strings.ToUpper(l.Currency.String())
	}
	if l.Amount != nil {
		return fmt.Sprintf("%s %s (Net: %s)", l.Amount, currency, l.IsNet)
	}
	return fmt.Sprintf("(No numeric amount) %s (Net: %s)", currency, l.IsNet)
}
