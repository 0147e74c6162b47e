package policy

import "encoding/json"

// Rule is one transaction policy rule as returned by the management API.
// Every field is optional on the wire; missing or malformed pieces decode to
// their zero value so a single odd rule never sinks an export.
type Rule struct {
	ID         Scalar          `json:"id"`
	Name       Scalar          `json:"name"`
	Action     *RuleAction     `json:"rule_action"`
	CreatedAt  Scalar          `json:"created_at"`
	ModifiedAt Scalar          `json:"modified_at"`
	ModifiedBy *EntityRef      `json:"modified_by"`
	Conditions *RuleConditions `json:"rule_conditions"`
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	return lenient(data, (*plain)(r))
}

// RuleAction carries the action tag plus the approval settings that apply
// when the action requires approval.
type RuleAction struct {
	Type           Scalar            `json:"type"`
	ApprovalGroups ApprovalGroupList `json:"approval_groups"`
}

func (a *RuleAction) UnmarshalJSON(data []byte) error {
	type plain RuleAction
	return lenient(data, (*plain)(a))
}

// ApprovalGroup is one quorum entry of a require_approval action.
type ApprovalGroup struct {
	Threshold     *Scalar `json:"threshold"`
	UserRefs      RefList `json:"user_refs"`
	UserGroupRefs RefList `json:"user_group_refs"`
}

func (g *ApprovalGroup) UnmarshalJSON(data []byte) error {
	type plain ApprovalGroup
	return lenient(data, (*plain)(g))
}

// RuleConditions groups the per-category constraints of a rule. A nil or
// zero group places no constraint and contributes no output columns.
type RuleConditions struct {
	TransactionTypes  ScalarList     `json:"transaction_types"`
	Initiators        *Initiators    `json:"transaction_initiators"`
	Origins           *Origins       `json:"origins"`
	Recipients        *Recipients    `json:"recipients"`
	ABIMethods        ScalarList     `json:"abi_methods"`
	TransactionAssets AssetList      `json:"transaction_assets"`
	AmountLimit       *AmountLimit   `json:"amount_limit"`
	EIP712            *EIP712Message `json:"eip712_message"`
}

func (c *RuleConditions) UnmarshalJSON(data []byte) error {
	type plain RuleConditions
	return lenient(data, (*plain)(c))
}

// Initiators is the transaction_initiators condition group. Member lists can
// appear flat at the top level, nested under a condition block, or both; the
// contributions merge.
type Initiators struct {
	Users         RefList `json:"users"`
	UserRefs      RefList `json:"user_refs"`
	UserGroups    RefList `json:"user_groups"`
	UserGroupRefs RefList `json:"user_group_refs"`

	UsersConditions      *ConditionBlock `json:"users_conditions"`
	InitiatorsConditions *ConditionBlock `json:"initiators_conditions"`
}

func (i *Initiators) UnmarshalJSON(data []byte) error {
	type plain Initiators
	return lenient(data, (*plain)(i))
}

// Origins is the origins condition group, constraining source vaults.
type Origins struct {
	Vaults         RefList `json:"vaults"`
	VaultRefs      RefList `json:"vault_refs"`
	VaultGroups    RefList `json:"vault_groups"`
	VaultGroupRefs RefList `json:"vault_group_refs"`

	VaultsConditions *ConditionBlock `json:"vaults_conditions"`
}

func (o *Origins) UnmarshalJSON(data []byte) error {
	type plain Origins
	return lenient(data, (*plain)(o))
}

// Recipients is the recipients condition group. Dapps and addresses can be
// flat or conditional; contacts and recipient vaults only ever arrive inside
// condition blocks.
type Recipients struct {
	Dapps     DappList    `json:"dapps"`
	Addresses AddressList `json:"addresses"`

	DappsConditions     *ConditionBlock `json:"dapps_conditions"`
	AddressesConditions *ConditionBlock `json:"addresses_conditions"`
	ContactsConditions  *ConditionBlock `json:"addressbook_contacts_conditions"`
	VaultsConditions    *ConditionBlock `json:"vaults_conditions"`
}

func (r *Recipients) UnmarshalJSON(data []byte) error {
	type plain Recipients
	return lenient(data, (*plain)(r))
}

// ConditionBlock wraps the nested condition object the API uses for the
// "<field>_conditions" encodings.
type ConditionBlock struct {
	Condition *Condition `json:"condition"`
}

func (b *ConditionBlock) UnmarshalJSON(data []byte) error {
	type plain ConditionBlock
	return lenient(data, (*plain)(b))
}

// condition is nil-safe so callers can chain through absent blocks.
func (b *ConditionBlock) condition() *Condition {
	if b == nil {
		return nil
	}
	return b.Condition
}

// Condition is the conditional member encoding shared by every group. Type
// "any" or "all" matches an implicit set; any other value enumerates members
// through the explicit lists.
type Condition struct {
	Type Scalar `json:"type"`

	Users         RefList `json:"users"`
	UserRefs      RefList `json:"user_refs"`
	UserGroups    RefList `json:"user_groups"`
	UserGroupRefs RefList `json:"user_group_refs"`

	Vaults         RefList `json:"vaults"`
	VaultRefs      RefList `json:"vault_refs"`
	VaultGroups    RefList `json:"vault_groups"`
	VaultGroupRefs RefList `json:"vault_group_refs"`

	Dapps         DappList    `json:"dapps"`
	Addresses     AddressList `json:"addresses"`
	AddressGroups RefList     `json:"address_groups"`

	AddressBookContacts ContactList `json:"address_book_contacts"`
	AddressBookGroups   RefList     `json:"address_book_groups"`
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	return lenient(data, (*plain)(c))
}

// Dapp is a decentralized application reference. Pointer fields keep the
// distinction between a missing key and an empty value, which the rendered
// cell reflects.
type Dapp struct {
	Name  *Scalar    `json:"name"`
	ID    *Scalar    `json:"id"`
	Chain *DappChain `json:"chain"`
}

func (d *Dapp) UnmarshalJSON(data []byte) error {
	type plain Dapp
	return lenient(data, (*plain)(d))
}

// DappChain is the chain descriptor nested in a dapp reference.
type DappChain struct {
	Name *Scalar `json:"name"`
}

func (c *DappChain) UnmarshalJSON(data []byte) error {
	type plain DappChain
	return lenient(data, (*plain)(c))
}

// Contact is an address book entry.
type Contact struct {
	Name Scalar `json:"name"`
	ID   Scalar `json:"id"`

	AddressRef *AddressRef `json:"address_ref"`
}

func (c *Contact) UnmarshalJSON(data []byte) error {
	type plain Contact
	return lenient(data, (*plain)(c))
}

// AddressRef is the chain-scoped address carried by a contact.
type AddressRef struct {
	Address   Scalar    `json:"address"`
	ChainType Scalar    `json:"chain_type"`
	Chains    ChainList `json:"chains"`
}

func (r *AddressRef) UnmarshalJSON(data []byte) error {
	type plain AddressRef
	return lenient(data, (*plain)(r))
}

// ChainInfo describes one chain a contact address lives on. Bare tokens
// decode too and label as their literal text.
type ChainInfo struct {
	Name      Scalar `json:"name"`
	UniqueID  Scalar `json:"unique_id"`
	ChainType Scalar `json:"chain_type"`

	text   string
	object bool
}

func (c *ChainInfo) UnmarshalJSON(data []byte) error {
	type plain ChainInfo
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*c = ChainInfo(p)
		c.object = true
		return nil
	}
	var s Scalar
	_ = s.UnmarshalJSON(data)
	*c = ChainInfo{text: s.String()}
	return nil
}

// Asset is one transaction_assets entry. Newer payloads nest the identifying
// fields under asset_info; older ones carry them at the top level. The
// decoder resolves whichever carrier is present.
type Asset struct {
	Info AssetInfo
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var probe struct {
		AssetInfo       *AssetInfo      `json:"asset_info"`
		AssetIdentifier json.RawMessage `json:"asset_identifier"`
		Name            json.RawMessage `json:"name"`
		Symbol          json.RawMessage `json:"symbol"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		*a = Asset{}
		return nil
	}
	if probe.AssetInfo != nil && *probe.AssetInfo != (AssetInfo{}) {
		a.Info = *probe.AssetInfo
		return nil
	}
	if probe.AssetIdentifier != nil || probe.Name != nil || probe.Symbol != nil {
		var top AssetInfo
		_ = lenient(data, &top)
		a.Info = top
		return nil
	}
	*a = Asset{}
	return nil
}

// AssetInfo identifies an asset and the chain it lives on.
type AssetInfo struct {
	Name            Scalar           `json:"name"`
	Symbol          Scalar           `json:"symbol"`
	AssetIdentifier *AssetIdentifier `json:"asset_identifier"`
	Chain           *ChainName       `json:"chain"`
}

func (i *AssetInfo) UnmarshalJSON(data []byte) error {
	type plain AssetInfo
	return lenient(data, (*plain)(i))
}

// AssetIdentifier is the structured asset identity.
type AssetIdentifier struct {
	Chain   *ChainName    `json:"chain"`
	Details *AssetDetails `json:"details"`
}

func (a *AssetIdentifier) UnmarshalJSON(data []byte) error {
	type plain AssetIdentifier
	return lenient(data, (*plain)(a))
}

// ChainName is a chain object reduced to its display name.
type ChainName struct {
	Name Scalar `json:"name"`
}

func (c *ChainName) UnmarshalJSON(data []byte) error {
	type plain ChainName
	return lenient(data, (*plain)(c))
}

// AssetDetails is the legacy details blob that sometimes names the chain.
type AssetDetails struct {
	Chain Scalar `json:"chain"`
}

func (d *AssetDetails) UnmarshalJSON(data []byte) error {
	type plain AssetDetails
	return lenient(data, (*plain)(d))
}

// AmountLimit caps the value of matched transactions. The empty object the
// API occasionally sends counts as absent and produces no column.
type AmountLimit struct {
	Amount   *Amount `json:"amount"`
	Currency Scalar  `json:"currency"`
	IsNet    NetFlag `json:"is_net_amount"`

	present bool
}

func (l *AmountLimit) UnmarshalJSON(data []byte) error {
	type plain AmountLimit
	if err := lenient(data, (*plain)(l)); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err == nil && len(keys) > 0 {
		l.present = true
	}
	return nil
}

// EIP712Message constrains typed-data signing requests.
type EIP712Message struct {
	Domains      ScalarList `json:"domains"`
	PrimaryTypes ScalarList `json:"primary_types"`
}

func (m *EIP712Message) UnmarshalJSON(data []byte) error {
	type plain EIP712Message
	return lenient(data, (*plain)(m))
}
