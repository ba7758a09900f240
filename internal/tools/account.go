package tools

import (
	"context"
	"fmt"
)

func newAccountInfoTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "wax_get_account_info",
		description: `Retrieve account information from the WAX blockchain.

This tool should be used when you want to get information about any WAX account.
For questions like "What's my account info?" or "I need to check another account's details".

- For your own account: {}
- For another account: {"account_name":"account.wam"}`,
		params: schema(nil, map[string]any{
			"account_name": prop("string", "Account to look up; defaults to your own account."),
		}),
		run: runAccountInfo,
	}
}

func runAccountInfo(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	name := in.OptionalString("account_name")
	if name == "" {
		name = kit.Account
	}

	client, err := kit.open(ctx)
	if err != nil {
		return nil, wrapf(err, "Failed to get account information")
	}
	acct, err := client.GetAccount(ctx, name)
	if err != nil {
		return nil, wrapf(err, "Failed to get account information")
	}

	return Success(fmt.Sprintf("Successfully retrieved information for account %s", name)).
		With("account", FormatAccountInfo(acct)), nil
}
