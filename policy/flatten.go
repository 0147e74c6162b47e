package policy

import (
	"sort"
	"strings"
)

// Row is one flattened rule keyed by output column. Columns for absent
// condition groups are simply missing; the CSV layer unions columns across
// rows and leaves blanks.
type Row map[string]string

// FlattenRule converts a policy rule into its flat display row. The function
// is pure: the same rule always yields the same row and nothing is shared
// between calls.
func FlattenRule(r Rule) Row {
	row := Row{
		"rule_id":     r.ID.String(),
		"rule_name":   r.Name.String(),
		"rule_action": actionType(r.Action),
		"created_at":  r.CreatedAt.String(),
		"modified_at": r.ModifiedAt.String(),
		"modified_by": modifierName(r.ModifiedBy),
	}

	cond := r.Conditions
	if cond == nil {
		cond = &RuleConditions{}
	}

	if len(cond.TransactionTypes) > 0 {
		row["transaction_types"] = joinScalars(cond.TransactionTypes, ", ")
	}

	merge(row, initiatorColumns(cond.Initiators))
	merge(row, originColumns(cond.Origins))
	merge(row, recipientColumns(cond.Recipients))

	if len(cond.ABIMethods) > 0 {
		row["abi_methods"] = joinScalars(cond.ABIMethods, ", ")
	}
	if s := formatAssets(cond.TransactionAssets); s != "" {
		row["transaction_assets"] = s
	}
	if l := cond.AmountLimit; l != nil && l.present {
		row["amount_limit"] = l.format()
	}
	if e := cond.EIP712; e != nil {
		if len(e.Domains) > 0 {
			row["eip712_domains"] = joinScalars(e.Domains, ", ")
		}
		if len(e.PrimaryTypes) > 0 {
			row["eip712_primary_types"] = joinScalars(e.PrimaryTypes, ", ")
		}
	}

	if row["rule_action"] == "require_approval" && r.Action != nil {
		if s := approvalColumn(r.Action.ApprovalGroups); s != "" {
			row["approval_groups"] = s
		}
	}

	return row
}

// FlattenRules flattens a batch of rules in order.
func FlattenRules(rules []Rule) []Row {
	rows := make([]Row, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, FlattenRule(r))
	}
	return rows
}

func actionType(a *RuleAction) string {
	if a == nil {
		return ""
	}
	return a.Type.String()
}

// modifierName reads only the name field; modified_by never falls back to
// email or id.
func modifierName(e *EntityRef) string {
	if e == nil {
		return ""
	}
	return e.Name.String()
}

// initiatorColumns merges the flat user lists with the conditional block.
// Any/all conditions label into the users set instead of enumerating.
func initiatorColumns(in *Initiators) Row {
	if in == nil {
		return nil
	}

	users := stringSet{}
	groups := stringSet{}

	addRefs(users, in.Users)
	addRefs(users, in.UserRefs)
	addRefs(groups, in.UserGroups, "name", "id")
	addRefs(groups, in.UserGroupRefs, "name", "id")

	cond := in.UsersConditions.condition()
	if cond == nil {
		cond = in.InitiatorsConditions.condition()
	}
	if cond != nil {
		if label := LabelAnyAll(cond.Type.String(), "users"); label != "" {
			users.add(label)
		} else {
			addRefs(users, cond.Users)
			addRefs(users, cond.UserRefs)
			addRefs(groups, cond.UserGroups, "name", "id")
			addRefs(groups, cond.UserGroupRefs, "name", "id")
		}
	}

	row := Row{}
	if len(users) > 0 {
		row["initiator_users"] = users.sortedJoin(", ")
	}
	if len(groups) > 0 {
		row["initiator_user_groups"] = groups.sortedJoin(", ")
	}
	return row
}

// originColumns mirrors initiatorColumns for source vaults.
func originColumns(o *Origins) Row {
	if o == nil {
		return nil
	}

	vaults := stringSet{}
	groups := stringSet{}

	addRefs(vaults, o.Vaults, "name", "id")
	addRefs(vaults, o.VaultRefs, "name", "id")
	addRefs(groups, o.VaultGroups, "name", "id")
	addRefs(groups, o.VaultGroupRefs, "name", "id")

	if cond := o.VaultsConditions.condition(); cond != nil {
		if label := LabelAnyAll(cond.Type.String(), "vaults"); label != "" {
			vaults.add(label)
		} else {
			addRefs(vaults, cond.Vaults, "name", "id")
			addRefs(vaults, cond.VaultRefs, "name", "id")
			addRefs(groups, cond.VaultGroups, "name", "id")
			addRefs(groups, cond.VaultGroupRefs, "name", "id")
		}
	}

	row := Row{}
	if len(vaults) > 0 {
		row["origin_vaults"] = vaults.sortedJoin(", ")
	}
	if len(groups) > 0 {
		row["origin_vault_groups"] = groups.sortedJoin(", ")
	}
	return row
}

// recipientColumns handles the recipients group: dapps, raw addresses,
// address book contacts and recipient vaults, each with its own encoding
// quirks. Dapps keep their arrival order and may repeat; the other
// categories dedupe through sorted sets.
func recipientColumns(rc *Recipients) Row {
	row := Row{}
	if rc == nil {
		return row
	}

	var dappParts []string
	if len(rc.Dapps) > 0 {
		dappParts = append(dappParts, joinDapps(rc.Dapps))
	}
	if cond := rc.DappsConditions.condition(); cond != nil {
		if label := LabelAnyAll(cond.Type.String(), "dapps"); label != "" {
			dappParts = append(dappParts, label)
		} else if len(cond.Dapps) > 0 {
			dappParts = append(dappParts, joinDapps(cond.Dapps))
		}
	}
	if len(dappParts) > 0 {
		row["recipient_dapps"] = strings.Join(dappParts, " | ")
	}

	addrs := stringSet{}
	for _, a := range rc.Addresses {
		addrs.add(a.Format())
	}
	if cond := rc.AddressesConditions.condition(); cond != nil {
		if label := LabelAnyAll(cond.Type.String(), "addresses"); label != "" {
			addrs.add(label)
		} else {
			for _, a := range cond.Addresses {
				addrs.add(a.Format())
			}
			if len(cond.AddressGroups) > 0 {
				groups := stringSet{}
				addRefs(groups, cond.AddressGroups, "name", "id")
				row["recipient_address_groups"] = groups.sortedJoin(", ")
			}
		}
	}
	if len(addrs) > 0 {
		row["recipient_addresses"] = addrs.sortedJoin(" | ")
	}

	contacts := stringSet{}
	if cond := rc.ContactsConditions.condition(); cond != nil {
		if label := LabelAnyAll(cond.Type.String(), "contacts"); label != "" {
			contacts.add(label)
		} else {
			for _, c := range cond.AddressBookContacts {
				contacts.add(c.Format())
			}
			if len(cond.AddressBookGroups) > 0 {
				groups := stringSet{}
				addRefs(groups, cond.AddressBookGroups)
				row["recipient_contact_groups"] = groups.sortedJoin(", ")
			}
		}
	}
	if len(contacts) > 0 {
		row["recipient_contacts"] = contacts.sortedJoin(" | ")
	}

	vaults := stringSet{}
	vaultGroups := stringSet{}
	if cond := rc.VaultsConditions.condition(); cond != nil {
		if label := LabelAnyAll(cond.Type.String(), "vaults"); label != "" {
			vaults.add(label)
		} else {
			addRefs(vaults, cond.Vaults, "name", "id")
			addRefs(vaultGroups, cond.VaultGroups, "name", "id")
		}
	}
	if len(vaults) > 0 {
		row["recipient_vaults"] = vaults.sortedJoin(", ")
	}
	if len(vaultGroups) > 0 {
		row["recipient_vault_groups"] = vaultGroups.sortedJoin(", ")
	}

	return row
}

// approvalColumn renders the quorum settings of a require_approval action.
func approvalColumn(groups ApprovalGroupList) string {
	var parts []string
	for _, g := range groups {
		threshold := "N/A"
		if g.Threshold != nil {
			threshold = g.Threshold.String()
		}
		segment := []string{"Threshold: " + threshold}
		if names := joinRefs(g.UserGroupRefs, ", "); names != "" {
			segment = append(segment, "Groups: "+names)
		}
		if names := joinRefs(g.UserRefs, ", "); names != "" {
			segment = append(segment, "Users: "+names)
		}
		parts = append(parts, strings.Join(segment, ", "))
	}
	return strings.Join(parts, " | ")
}

func formatAssets(assets AssetList) string {
	if len(assets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(assets))
	for _, a := range assets {
		parts = append(parts, a.Format())
	}
	return strings.Join(parts, " | ")
}

func joinDapps(dapps DappList) string {
	parts := make([]string, 0, len(dapps))
	for _, d := range dapps {
		parts = append(parts, d.Format())
	}
	return strings.Join(parts, " | ")
}

func joinScalars(values ScalarList, sep string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, sep)
}

func joinRefs(refs RefList, sep string) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.DisplayName())
	}
	return strings.Join(parts, sep)
}

func addRefs(set stringSet, refs RefList, fields ...string) {
	for _, r := range refs {
		set.add(r.DisplayName(fields...))
	}
}

func merge(dst, src Row) {
	for k, v := range src {
		dst[k] = v
	}
}

type stringSet map[string]struct{}

func (s stringSet) add(v string) {
	s[v] = struct{}{}
}

func (s stringSet) sortedJoin(sep string) string {
	values := make([]string, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	sort.Strings(values)
	return strings.Join(values, sep)
}
