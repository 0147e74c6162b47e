package policy_test

import (
	"reflect"
	"testing"

	"github.com/fystack/custody-export/policy"
)

func TestFlattenRuleFull(t *testing.T) {
	rule := decode[policy.Rule](t, `{
		"id": "r-100",
		"name": "Treasury guard",
		"rule_action": {
			"type": "require_approval",
			"approval_groups": [
				{"threshold": 2, "user_refs": [{"name": "Alice"}, {"name": "Bob"}], "user_group_refs": [{"name": "Ops"}]},
				{"user_refs": [{"email": "cfo@x.io"}]}
			]
		},
		"created_at": "2025-01-02T03:04:05Z",
		"modified_at": "2025-02-03T04:05:06Z",
		"modified_by": {"name": "Carol", "email": "carol@x.io"},
		"rule_conditions": {
			"transaction_types": ["evm_transaction", "evm_message"],
			"transaction_initiators": {
				"users": ["Alice"],
				"user_groups": [{"name": "Admins"}],
				"users_conditions": {"condition": {"type": "all"}}
			},
			"origins": {
				"vault_refs": [{"name": "Hot"}],
				"vaults_conditions": {"condition": {"type": "custom", "vaults": [{"name": "Treasury"}], "vault_groups": [{"id": "vg-1"}]}}
			},
			"recipients": {
				"dapps": [{"name": "Uniswap", "id": "uni", "chain": {"name": "Ethereum"}}],
				"dapps_conditions": {"condition": {"type": "any"}},
				"addresses": ["0xB", "0xA"],
				"addresses_conditions": {"condition": {"type": "custom", "addresses": [{"hex_repr": "0xC"}], "address_groups": [{"name": "Contractors"}]}},
				"addressbook_contacts_conditions": {"condition": {"type": "custom", "address_book_contacts": [{"name": "Bob", "address_ref": {"address": "0x1", "chain_type": "ETH"}}], "address_book_groups": [{"name": "Vendors"}]}},
				"vaults_conditions": {"condition": {"type": "custom", "vaults": [{"name": "Cold"}], "vault_groups": [{"name": "Custody"}]}}
			},
			"abi_methods": ["transfer", "approve"],
			"transaction_assets": [{"asset_info": {"symbol": "USDC", "asset_identifier": {"chain": {"name": "Ethereum"}}}}],
			"amount_limit": {"amount": 100, "currency": "usd", "is_net_amount": true},
			"eip712_message": {"domains": ["uniswap.org"], "primary_types": ["Permit"]}
		}
	}`)

	expected := policy.Row{
		"rule_id":                  "r-100",
		"rule_name":                "Treasury guard",
		"rule_action":              "require_approval",
		"created_at":               "2025-01-02T03:04:05Z",
		"modified_at":              "2025-02-03T04:05:06Z",
		"modified_by":              "Carol",
		"transaction_types":        "evm_transaction, evm_message",
		"initiator_users":          "Alice, All users",
		"initiator_user_groups":    "Admins",
		"origin_vaults":            "Hot, Treasury",
		"origin_vault_groups":      "vg-1",
		"recipient_dapps":          "Uniswap (ID: uni, Chain: Ethereum) | Any dapps",
		"recipient_addresses":      "0xA | 0xB | 0xC",
		"recipient_address_groups": "Contractors",
		"recipient_contacts":       "Bob <0x1> (ETH)",
		"recipient_contact_groups": "Vendors",
		"recipient_vaults":         "Cold",
		"recipient_vault_groups":   "Custody",
		"abi_methods":              "transfer, approve",
		"transaction_assets":       "USDC (Ethereum)",
		"amount_limit":             "100 USD (Net: True)",
		"eip712_domains":           "uniswap.org",
		"eip712_primary_types":     "Permit",
		"approval_groups":          "Threshold: 2, Groups: Ops, Users: Alice, Bob | Threshold: N/A, Users: cfo@x.io",
	}

	got := policy.FlattenRule(rule)
	if !reflect.DeepEqual(got, expected) {
		for k, v := range expected {
			if got[k] != v {
				t.Errorf("column %s: expected %q, got %q", k, v, got[k])
			}
		}
		for k := range got {
			if _, ok := expected[k]; !ok {
				t.Errorf("unexpected column %s = %q", k, got[k])
			}
		}
	}
}

func TestFlattenRuleMergesFlatAndConditional(t *testing.T) {
	rule := decode[policy.Rule](t, `{
		"rule_conditions": {
			"transaction_initiators": {
				"users": ["Alice"],
				"users_conditions": {"condition": {"type": "all"}}
			}
		}
	}`)

	row := policy.FlattenRule(rule)
	if row["initiator_users"] != "Alice, All users" {
		t.Fatalf("expected merged sorted users, got %q", row["initiator_users"])
	}
}

func TestFlattenRuleInitiatorsConditionsFallback(t *testing.T) {
	rule := decode[policy.Rule](t, `{
		"rule_conditions": {
			"transaction_initiators": {
				"initiators_conditions": {"condition": {"type": "custom", "user_refs": [{"name": "Zed"}], "user_groups": [{"name": "Night"}]}}
			}
		}
	}`)

	row := policy.FlattenRule(rule)
	if row["initiator_users"] != "Zed" {
		t.Errorf("expected Zed, got %q", row["initiator_users"])
	}
	if row["initiator_user_groups"] != "Night" {
		t.Errorf("expected Night, got %q", row["initiator_user_groups"])
	}
}

func TestFlattenRuleAmountLimits(t *testing.T) {
	testCases := []struct {
		limit       string
		expected    string
		present     bool
		description string
	}{
		{`{"amount": 100, "currency": "usd", "is_net_amount": true}`, "100 USD (Net: True)", true, "numeric amount"},
		{`{"amount": "250.00", "currency": "usd"}`, "250.00 USD (Net: False)", true, "string amount keeps its form"},
		{`{"amount": 12345678901234567890, "currency": "usd"}`, "12345678901234567890 USD (Net: False)", true, "huge amount keeps its digits"},
		{`{"amount": 0, "currency": "usd"}`, "0 USD (Net: False)", true, "zero amount still renders"},
		{`{"amount": null, "currency": "usd"}`, "(No numeric amount) USD (Net: False)", true, "null amount"},
		{`{"currency": "eur"}`, "(No numeric amount) EUR (Net: False)", true, "missing amount"},
		{`{"amount": 5, "currency": ""}`, "5 N/A (Net: False)", true, "empty currency falls back"},
		{`{"amount": 1, "currency": "usd", "is_net_amount": "maybe"}`, "1 USD (Net: maybe)", true, "odd net flag keeps its text"},
		{`{}`, "", false, "empty object produces no column"},
		{`null`, "", false, "null produces no column"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			rule := decode[policy.Rule](t, `{"rule_conditions":{"amount_limit":`+tc.limit+`}}`)
			row := policy.FlattenRule(rule)
			got, ok := row["amount_limit"]
			if ok != tc.present {
				t.Fatalf("column present=%v, expected %v", ok, tc.present)
			}
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestFlattenRuleApprovalGating(t *testing.T) {
	blocked := decode[policy.Rule](t, `{
		"rule_action": {
			"type": "block",
			"approval_groups": [{"threshold": 1, "user_refs": [{"name": "Alice"}]}]
		}
	}`)
	if _, ok := policy.FlattenRule(blocked)["approval_groups"]; ok {
		t.Fatalf("approval groups should only render for require_approval actions")
	}

	empty := decode[policy.Rule](t, `{"rule_action": {"type": "require_approval", "approval_groups": []}}`)
	if _, ok := policy.FlattenRule(empty)["approval_groups"]; ok {
		t.Fatalf("empty approval groups should not produce a column")
	}

	bare := decode[policy.Rule](t, `{"rule_action": {"type": "require_approval", "approval_groups": [{}]}}`)
	if got := policy.FlattenRule(bare)["approval_groups"]; got != "Threshold: N/A" {
		t.Fatalf("expected bare threshold segment, got %q", got)
	}
}

func TestFlattenRuleDapps(t *testing.T) {
	rule := decode[policy.Rule](t, `{
		"rule_conditions": {
			"recipients": {
				"dapps": [{"name": "App", "id": "1"}, {"name": "App", "id": "1"}],
				"dapps_conditions": {"condition": {"type": "custom", "dapps": [{"name": "App", "id": "1"}]}}
			}
		}
	}`)

	// Dapps concatenate in arrival order and are not deduplicated.
	expected := "App (ID: 1, Chain: N/A) | App (ID: 1, Chain: N/A) | App (ID: 1, Chain: N/A)"
	if got := policy.FlattenRule(rule)["recipient_dapps"]; got != expected {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}

func TestFlattenRuleAddressesDeduplicate(t *testing.T) {
	rule := decode[policy.Rule](t, `{
		"rule_conditions": {
			"recipients": {
				"addresses": ["0x1", "0x1"],
				"addresses_conditions": {"condition": {"type": "custom", "addresses": [{"address": "0x1"}]}}
			}
		}
	}`)

	if got := policy.FlattenRule(rule)["recipient_addresses"]; got != "0x1" {
		t.Fatalf("expected deduplicated addresses, got %q", got)
	}
}

func TestFlattenRuleMalformed(t *testing.T) {
	baseColumns := []string{"rule_id", "rule_name", "rule_action", "created_at", "modified_at", "modified_by"}

	garbage := decode[policy.Rule](t, `"not a rule"`)
	row := policy.FlattenRule(garbage)
	if len(row) != len(baseColumns) {
		t.Fatalf("expected only the base columns, got %v", row)
	}
	for _, col := range baseColumns {
		if v, ok := row[col]; !ok || v != "" {
			t.Errorf("column %s: expected empty, got %q (present=%v)", col, v, ok)
		}
	}

	mixed := decode[policy.Rule](t, `{
		"id": "r-2",
		"rule_conditions": {
			"transaction_types": "evm",
			"transaction_initiators": [1, 2],
			"amount_limit": "x",
			"recipients": {"dapps": {}},
			"abi_methods": {"a": 1},
			"transaction_assets": "zzz"
		}
	}`)
	row = policy.FlattenRule(mixed)
	if len(row) != len(baseColumns) {
		t.Fatalf("malformed condition groups should degrade to no columns, got %v", row)
	}
	if row["rule_id"] != "r-2" {
		t.Errorf("expected rule_id r-2, got %q", row["rule_id"])
	}
}

func TestFlattenRuleOmitsAbsentColumns(t *testing.T) {
	typed := decode[policy.Rule](t, `{"rule_conditions": {"transaction_types": ["evm_transaction"]}}`)
	bare := decode[policy.Rule](t, `{"rule_conditions": {}}`)

	if _, ok := policy.FlattenRule(typed)["transaction_types"]; !ok {
		t.Fatalf("expected transaction_types column")
	}
	if _, ok := policy.FlattenRule(bare)["transaction_types"]; ok {
		t.Fatalf("expected no transaction_types column on a rule without them")
	}
}

func TestFlattenRulesDeterministic(t *testing.T) {
	page := decode[policy.RulesPage](t, `{
		"rules": [
			{"id": "a", "rule_conditions": {"transaction_initiators": {"users": [{"name": "Zoe"}, {"name": "Amy"}]}}},
			{"id": "b"}
		],
		"total": 2
	}`)

	first := policy.FlattenRules(page.Rules)
	second := policy.FlattenRules(page.Rules)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("flattening is not deterministic:\n%v\n%v", first, second)
	}
	if len(first) != 2 || first[0]["rule_id"] != "a" || first[1]["rule_id"] != "b" {
		t.Fatalf("rows should keep rule order, got %v", first)
	}
	if first[0]["initiator_users"] != "Amy, Zoe" {
		t.Fatalf("expected sorted users, got %q", first[0]["initiator_users"])
	}
}
