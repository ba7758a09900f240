package tools

import (
	"context"
	"encoding/json"
	"fmt"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/web3"
)

// AlcorSwapContract hosts the Alcor AMM pools.
const AlcorSwapContract = "swap.alcor"

func newAlcorSwapTool(kit *Kit) Tool {
	return &toolDef{
		kit:        kit,
		name:       "alcor_swap_action",
		mutating:   true,
		errCode:    xerrors.CodeSwapFailure,
		errMessage: "Swap failed",
		description: `Execute a token swap using Alcor's smart contract on the WAX blockchain.

Input format:
{"contract_name": "swap.alcor", "action_name": "swap", "params": {"owner": "user1.wam", "amount_in": "1.00000000 WAX", "min_amount_out": "...", "path": ["token1", "token2"]}}`,
		params: schema([]string{"contract_name", "action_name", "params"}, map[string]any{
			"contract_name": prop("string", "Alcor swap contract."),
			"action_name":   prop("string", `Usually "swap".`),
			"params":        prop("object", "Swap action data."),
		}),
		run: runAlcorSwap,
	}
}

func runAlcorSwap(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	req, err := parseSwapRequest(in)
	if err != nil {
		return nil, err
	}
	tx, err := executeAction(ctx, kit, req)
	if err != nil {
		return nil, err
	}
	return kit.txResponse(fmt.Sprintf("Swap executed: %s on %s", req.action, req.contract), tx), nil
}

// parseSwapRequest requires all three fields; empty strings count as missing.
func parseSwapRequest(in Input) (actionRequest, error) {
	contract, ok := in.String("contract_name")
	if !ok || contract == "" {
		return actionRequest{}, invalid("Missing or invalid 'contract_name'")
	}
	action, ok := in.String("action_name")
	if !ok || action == "" {
		return actionRequest{}, invalid("Missing or invalid 'action_name'")
	}
	params, ok := in.Object("params")
	if !ok {
		return actionRequest{}, invalid("Missing or invalid 'params'")
	}
	return actionRequest{contract: contract, action: action, data: Plain(params).(map[string]any)}, nil
}

func newAlcorPoolTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "alcor_get_pool",
		description: `Read an Alcor swap pool by id.
Input: {"pool_id": 1}`,
		params: schema([]string{"pool_id"}, map[string]any{
			"pool_id": prop("integer", "Pool id on swap.alcor."),
		}),
		run: runAlcorPool,
	}
}

func runAlcorPool(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	id, ok := in.Integer("pool_id")
	if !ok || id < 0 {
		return nil, invalid("pool_id must be a non-negative integer")
	}
	bound := fmt.Sprint(id)

	client, err := kit.open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := client.GetTableRows(ctx, web3.TableQuery{
		Code:       AlcorSwapContract,
		Scope:      AlcorSwapContract,
		Table:      "pools",
		LowerBound: bound,
		UpperBound: bound,
		Limit:      1,
	})
	if err != nil {
		return nil, wrapf(err, "Failed to fetch pool %d", id)
	}
	if len(rows.Rows) == 0 {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "Pool with ID %d not found", id)
	}

	var pool map[string]any
	if err := json.Unmarshal(rows.Rows[0], &pool); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "decode pool row")
	}
	return Success(fmt.Sprintf("Pool %d retrieved", id)).With("pool", pool), nil
}
