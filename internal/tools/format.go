package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"WaxAgentKit/internal/web3"
)

// FormatContractAction renders an ABI action with its ricardian parameters.
func FormatContractAction(action web3.ABIAction) string {
	params, _ := json.Marshal(ExtractParams(action.Ricardian))
	return fmt.Sprintf("-----ActionName: %s-----\nType: %s\nParams: %s", action.Name, action.Type, params)
}

// FormatAccountInfo renders get_account output as a readable report.
func FormatAccountInfo(acct *web3.Account) string {
	var b strings.Builder

	b.WriteString("Account Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", acct.Name)
	fmt.Fprintf(&b, "- Created On: %s\n", formatTime(acct.Created))
	fmt.Fprintf(&b, "- Last Code Update: %s\n", formatTime(acct.LastCodeUpdate))
	fmt.Fprintf(&b, "- Privileged: %s\n", yesNo(acct.Privileged))

	b.WriteString("\nResource Usage & Limits:\n")
	fmt.Fprintf(&b, "- CPU: %d used / %d max\n", acct.CPU.Used, acct.CPU.Max)
	fmt.Fprintf(&b, "- Network: %d used / %d max\n", acct.Net.Used, acct.Net.Max)
	fmt.Fprintf(&b, "- RAM: %d bytes used / %d bytes quota\n", acct.RAMUsage, acct.RAMQuota)

	balance := acct.CoreLiquidBalance
	if balance == "" {
		balance = "N/A"
	}
	fmt.Fprintf(&b, "\nCore Liquid Balance: %s\n", balance)

	b.WriteString("\nPermissions:\n")
	for i, perm := range acct.Permissions {
		fmt.Fprintf(&b, "Permission %d:\n", i+1)
		fmt.Fprintf(&b, "  - Name: %s\n", perm.Name)
		parent := perm.Parent
		if parent == "" {
			parent = "None"
		}
		fmt.Fprintf(&b, "  - Parent: %s\n", parent)
		keys := "None"
		if len(perm.Keys) > 0 {
			keys = strings.Join(perm.Keys, ", ")
		}
		fmt.Fprintf(&b, "  - Required Authentication Keys: %s\n", keys)
		if len(perm.LinkedActions) > 0 {
			fmt.Fprintf(&b, "  - Linked Actions: %s\n", strings.Join(perm.LinkedActions, ", "))
		}
	}

	if acct.Totals != nil {
		b.WriteString("\nResource Totals:\n")
		fmt.Fprintf(&b, "- Net Weight: %s\n", acct.Totals.NetWeight)
		fmt.Fprintf(&b, "- CPU Weight: %s\n", acct.Totals.CPUWeight)
		fmt.Fprintf(&b, "- RAM Bytes: %d\n", acct.Totals.RAMBytes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
