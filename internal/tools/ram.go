package tools

import (
	"context"
	"fmt"

	"WaxAgentKit/internal/web3"
)

const systemContract = "eosio"

func newBuyRAMTool(kit *Kit) Tool {
	return &toolDef{
		kit:      kit,
		name:     "wax_buy_ram",
		mutating: true,
		description: `Buy RAM for your WAX account.

This tool should be used when you want to purchase RAM for your WAX account.
For questions like "How do I buy RAM?" or "I need more RAM for my account".

You can buy RAM in two ways:
1. Using WAX tokens: {"buy_ram_amount":"1.00000000 WAX"}
2. Using specific bytes: {"buy_ram_bytes":8192}`,
		params: schema(nil, map[string]any{
			"buy_ram_amount": prop("string", `Amount of WAX to spend, e.g. "1.00000000 WAX".`),
			"buy_ram_bytes":  prop("integer", "Number of bytes of RAM to buy."),
		}),
		run: runBuyRAM,
	}
}

func runBuyRAM(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	switch {
	case in.Present("buy_ram_amount"):
		amount, ok := in.String("buy_ram_amount")
		if !ok {
			return nil, invalid(`buy_ram_amount must be an asset string such as "1.00000000 WAX"`)
		}
		tx, err := kit.push(ctx, web3.Action{
			Account: systemContract,
			Name:    "buyram",
			Data:    map[string]any{"payer": kit.Account, "receiver": kit.Account, "quant": amount},
		})
		if err != nil {
			return nil, wrapf(err, "Failed to buy RAM")
		}
		return kit.txResponse(fmt.Sprintf("Successfully bought RAM with %s", amount), tx), nil

	case in.Present("buy_ram_bytes"):
		bytes, ok := in.Integer("buy_ram_bytes")
		if !ok || bytes <= 0 {
			return nil, invalid("Invalid bytes value. Must be a positive number.")
		}
		tx, err := kit.push(ctx, web3.Action{
			Account: systemContract,
			Name:    "buyrambytes",
			Data:    map[string]any{"payer": kit.Account, "receiver": kit.Account, "bytes": bytes},
		})
		if err != nil {
			return nil, wrapf(err, "Failed to buy RAM bytes")
		}
		return kit.txResponse(fmt.Sprintf("Successfully bought %d bytes of RAM", bytes), tx), nil
	}
	return nil, invalid("Invalid input. Must provide either 'buy_ram_amount' or 'buy_ram_bytes' parameter.")
}

func newSellRAMTool(kit *Kit) Tool {
	return &toolDef{
		kit:      kit,
		name:     "wax_sell_ram",
		mutating: true,
		description: `Sell RAM from your WAX account.

This tool should be used when you want to sell RAM from your WAX account to get WAX tokens back.
For questions like "How do I sell RAM?" or "I want to get WAX back from my RAM".

Input for selling RAM: {"sell_ram_bytes":8192}`,
		params: schema([]string{"sell_ram_bytes"}, map[string]any{
			"sell_ram_bytes": prop("integer", "Number of bytes of RAM to sell."),
		}),
		run: runSellRAM,
	}
}

func runSellRAM(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	if !in.Present("sell_ram_bytes") {
		return nil, invalid("Invalid input. Must provide 'bytes' parameter.")
	}
	bytes, ok := in.Integer("sell_ram_bytes")
	if !ok || bytes <= 0 {
		return nil, invalid("Invalid bytes value. Must be a positive number.")
	}
	tx, err := kit.push(ctx, web3.Action{
		Account: systemContract,
		Name:    "sellram",
		Data:    map[string]any{"account": kit.Account, "bytes": bytes},
	})
	if err != nil {
		return nil, wrapf(err, "Failed to sell RAM")
	}
	return kit.txResponse(fmt.Sprintf("Successfully sold %d bytes of RAM", bytes), tx), nil
}
