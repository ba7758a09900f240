package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"WaxAgentKit/internal/web3"
)

const defaultTokenPrecision = 8

func newTransferTool(kit *Kit) Tool {
	return &toolDef{
		kit:      kit,
		name:     "wax_transfer",
		mutating: true,
		description: `Handles token transfers between WAX accounts.
Expects a JSON input with "token_quantity" (amount to transfer), "token_symbol" (e.g. WAX), and "to" (recipient account name).
Optional: "token_contract" (default eosio.token), "token_precision" (default 8) and "memo".
Example: {"token_quantity": 10, "token_symbol": "WAX", "to": "recipient.wam"}`,
		params: schema([]string{"token_quantity", "token_symbol", "to"}, map[string]any{
			"token_quantity":  prop("number", "Amount of tokens to transfer."),
			"token_symbol":    prop("string", `Token symbol, e.g. "WAX".`),
			"to":              prop("string", "Recipient account name."),
			"token_contract":  prop("string", `Token contract, defaults to "eosio.token".`),
			"token_precision": prop("integer", "Decimal places of the token, defaults to 8."),
			"memo":            prop("string", "Transfer memo."),
		}),
		run: runTransfer,
	}
}

func runTransfer(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	quantity, ok := in.Number("token_quantity")
	if !ok || quantity == 0 {
		return nil, invalid(`"token_quantity" parameter is missing or invalid. Please provide the quantity of tokens you wanna transfer.`)
	}
	symbol, ok := in.String("token_symbol")
	symbol = strings.ToUpper(symbol)
	if !ok || symbol == "" {
		return nil, invalid(`"token_symbol" parameter is missing or invalid. Please provide the symbol of the token you wanna transfer.`)
	}
	to, ok := in.String("to")
	if !ok || to == "" {
		return nil, invalid(`"to" parameter is missing or invalid. Please provide the account name of the recipient.`)
	}
	if quantity <= 0 {
		return nil, invalid("Invalid token quantity. Must be a positive number.")
	}

	contract := in.OptionalString("token_contract")
	if contract == "" {
		contract = systemToken
	}
	precision := defaultTokenPrecision
	if p, ok := in.Integer("token_precision"); ok && p >= 0 && p <= 18 {
		precision = int(p)
	}

	amount := strconv.FormatFloat(quantity, 'f', precision, 64)
	asset := amount + " " + symbol
	memo := in.OptionalString("memo")
	if memo == "" {
		memo = fmt.Sprintf("Transfering %s %s to %s", amount, symbol, to)
	}

	tx, err := kit.push(ctx, web3.Action{
		Account: contract,
		Name:    "transfer",
		Data: map[string]any{
			"from":     kit.Account,
			"to":       to,
			"quantity": asset,
			"memo":     memo,
		},
	})
	if err != nil {
		return nil, wrapf(err, "Failed to transfer")
	}

	display := strconv.FormatFloat(quantity, 'f', -1, 64)
	return kit.txResponse(fmt.Sprintf("Successfully transferred %s %s to %s", display, symbol, to), tx), nil
}
