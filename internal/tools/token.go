package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"WaxAgentKit/internal/web3"
)

var (
	symbolPattern = regexp.MustCompile(`^[A-Z]{1,7}$`)
	supplyPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

func newDeployTokenTool(kit *Kit) Tool {
	return &toolDef{
		kit:      kit,
		name:     "wax_deploy_token",
		mutating: true,
		description: `Create a token on a standard token contract and issue its full supply to your account.

Input: {"symbol": "TEST", "supply": "1000000.0000", "contract": "mytoken.wam"}
"supply" sets both the maximum supply and the token precision.
"contract" defaults to eosio.token and must be a token contract you control.`,
		params: schema([]string{"symbol", "supply"}, map[string]any{
			"symbol":   prop("string", "Token symbol, 1 to 7 upper case letters."),
			"supply":   prop("string", `Maximum supply with precision, e.g. "1000000.0000".`),
			"contract": prop("string", "Token contract account, defaults to eosio.token."),
		}),
		run: runDeployToken,
	}
}

func runDeployToken(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.OptionalString("symbol")))
	if !symbolPattern.MatchString(symbol) {
		return nil, invalid("symbol must be 1 to 7 upper case letters")
	}
	supply := strings.TrimSpace(in.OptionalString("supply"))
	if supply == "" {
		if n, ok := in["supply"]; ok && n != nil {
			supply = fmt.Sprint(n)
		}
	}
	if !supplyPattern.MatchString(supply) {
		return nil, invalid(`supply must be a decimal amount such as "1000000.0000"`)
	}
	contract := in.OptionalString("contract")
	if contract == "" {
		contract = systemToken
	}

	maximum := supply + " " + symbol
	tx, err := kit.push(ctx,
		web3.Action{
			Account: contract,
			Name:    "create",
			Data:    map[string]any{"issuer": kit.Account, "maximum_supply": maximum},
		},
		web3.Action{
			Account: contract,
			Name:    "issue",
			Data:    map[string]any{"to": kit.Account, "quantity": maximum, "memo": "Initial supply"},
		},
	)
	if err != nil {
		return nil, wrapf(err, "Token deployment failed")
	}
	return kit.txResponse(fmt.Sprintf("Successfully deployed token %s on %s", maximum, contract), tx).
		With("token", symbol+"@"+contract), nil
}
