package tools

import (
	"context"
	"fmt"

	"WaxAgentKit/pkg/logger"
)

const (
	systemToken = "eosio.token"
	coreSymbol  = "WAX"
)

func newBalanceTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "wax_balance",
		description: `Get the balance of your WAX account or token.

If you want the balance of your own wallet in WAX, provide no fields.

Inputs (input is a JSON string):
tokenContract: string, eg "eosio.token" (optional)
tokenSymbol: string, eg "TOKEN" (optional)`,
		params: schema(nil, map[string]any{
			"tokenContract": prop("string", `Token contract account, e.g. "eosio.token".`),
			"tokenSymbol":   prop("string", `Token symbol, e.g. "TOKEN".`),
		}),
		run: runBalance,
	}
}

func runBalance(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	contract, symbol := in.OptionalString("tokenContract"), in.OptionalString("tokenSymbol")

	code, sym, token, fallback := systemToken, coreSymbol, coreSymbol, "0.00000000 WAX"
	if contract != "" && symbol != "" {
		code, sym = contract, symbol
		token = symbol + "@" + contract
		fallback = "0.0000 " + symbol
	}

	balance, err := firstBalance(ctx, kit, code, kit.Account, sym)
	switch {
	case err != nil:
		logger.Named("tools").Warn("balance lookup failed", "account", kit.Account, "token", token, "error", err)
		balance = "0.0000"
	case balance == "":
		balance = fallback
	}

	return Success(fmt.Sprintf("Balance of %s retrieved", kit.Account)).
		With("balance", balance).
		With("token", token), nil
}

func newBalanceOtherTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "wax_balance_other",
		description: `Handles balance checks for any WAX account.
Expects a JSON input with "accountName" (optional), "tokenContract" (optional), and "tokenSymbol" (optional).
Example: {} for WAX balance of my account
Example: {"tokenContract": "custom.token", "tokenSymbol": "TOKEN"} for token balance of my account
Example: {"accountName": "sentnltestin"} for WAX balance of sentnltestin account
Example: {"accountName": "sentnltestin", "tokenContract": "eosio.token", "tokenSymbol": "TOKEN"} for token balance of sentnltestin account`,
		params: schema(nil, map[string]any{
			"accountName":   prop("string", "Account to check; defaults to your own account."),
			"tokenContract": prop("string", `Token contract account, e.g. "eosio.token".`),
			"tokenSymbol":   prop("string", `Token symbol, e.g. "TOKEN".`),
		}),
		run: runBalanceOther,
	}
}

func runBalanceOther(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	account := in.OptionalString("accountName")
	if account == "" {
		account = kit.Account
	}
	contract, symbol := in.OptionalString("tokenContract"), in.OptionalString("tokenSymbol")

	code, sym, token := systemToken, coreSymbol, coreSymbol
	if contract != "" && symbol != "" {
		code, sym = contract, symbol
		token = symbol + "@" + contract
	}

	balance, err := firstBalance(ctx, kit, code, account, sym)
	if err != nil {
		// 只要给了合约就带上 token，即使 symbol 为空而查询回退到了 WAX。
		if contract != "" {
			return nil, wrapf(err, "Error fetching on-chain balance for %s and token %s@%s", account, symbol, contract)
		}
		return nil, wrapf(err, "Error fetching on-chain balance for %s", account)
	}
	if balance == "" {
		balance = "0.0000"
	}

	return Success(fmt.Sprintf("Balance of %s retrieved", account)).
		With("balance", balance).
		With("account", account).
		With("token", token), nil
}

func firstBalance(ctx context.Context, kit *Kit, code, account, symbol string) (string, error) {
	client, err := kit.open(ctx)
	if err != nil {
		return "", err
	}
	balances, err := client.GetCurrencyBalance(ctx, code, account, symbol)
	if err != nil {
		return "", err
	}
	if len(balances) == 0 {
		return "", nil
	}
	return balances[0], nil
}

// TokenRef names a token by contract and symbol.
type TokenRef struct {
	Contract string `json:"contract"`
	Symbol   string `json:"symbol"`
}

// DefaultTokens are checked by wax_get_token_balances when the caller
// does not list tokens.
var DefaultTokens = []TokenRef{
	{Contract: "alien.worlds", Symbol: "TLM"},
	{Contract: "token.nefty", Symbol: "NEFTY"},
	{Contract: "wuffi", Symbol: "WUF"},
}

type tokenBalance struct {
	Contract string `json:"contract"`
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
}

func newTokenBalancesTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "wax_get_token_balances",
		description: `Get the WAX balance and a list of token balances for an account.
Input: {"account_name": "account.wam", "tokens": [{"contract": "alien.worlds", "symbol": "TLM"}]}
Both fields are optional; without tokens a default list of popular tokens is checked.`,
		params: schema(nil, map[string]any{
			"account_name": prop("string", "Account to check; defaults to your own account."),
			"tokens": map[string]any{
				"type":        "array",
				"description": "Tokens to check.",
				"items": schema([]string{"contract", "symbol"}, map[string]any{
					"contract": prop("string", "Token contract account."),
					"symbol":   prop("string", "Token symbol."),
				}),
			},
		}),
		run: runTokenBalances,
	}
}

func runTokenBalances(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	account := in.OptionalString("account_name")
	if account == "" {
		account = kit.Account
	}
	lookups, err := tokenLookups(in)
	if err != nil {
		return nil, err
	}

	client, err := kit.open(ctx)
	if err != nil {
		return nil, wrapf(err, "Failed to get token balances")
	}

	wax := "0.0000 WAX"
	if balances, err := client.GetCurrencyBalance(ctx, systemToken, account, coreSymbol); err != nil {
		return nil, wrapf(err, "Failed to get token balances")
	} else if len(balances) > 0 {
		wax = balances[0]
	}

	tokens := make([]tokenBalance, 0, len(lookups))
	for _, lookup := range lookups {
		balances, err := client.GetCurrencyBalance(ctx, lookup.Contract, account, lookup.Symbol)
		if err != nil {
			logger.Named("tools").Debug("token lookup failed", "contract", lookup.Contract, "symbol", lookup.Symbol, "error", err)
			continue
		}
		if len(balances) == 0 {
			continue
		}
		tokens = append(tokens, tokenBalance{Contract: lookup.Contract, Symbol: lookup.Symbol, Balance: balances[0]})
	}

	return Success(fmt.Sprintf("Retrieved %d token balances for %s", len(tokens), account)).
		With("account", account).
		With("wax", wax).
		With("tokens", tokens), nil
}

func tokenLookups(in Input) ([]TokenRef, error) {
	raw, ok := in["tokens"]
	if !ok || raw == nil {
		return DefaultTokens, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, invalid("tokens must be an array of {contract, symbol} objects")
	}
	out := make([]TokenRef, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, invalid("tokens must be an array of {contract, symbol} objects")
		}
		ref := Input(obj)
		contract, symbol := ref.OptionalString("contract"), ref.OptionalString("symbol")
		if contract == "" || symbol == "" {
			return nil, invalid("each token needs a contract and a symbol")
		}
		out = append(out, TokenRef{Contract: contract, Symbol: symbol})
	}
	return out, nil
}
