package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/web3"
)

const defaultReadLimit = 1000

// contractName validates the contract_name field shared by the discovery
// tools.
func contractName(in Input) (string, error) {
	if !in.Present("contract_name") {
		return "", invalid("Missing required parameter: contract_name. Please provide the name of the contract to query.")
	}
	name, ok := in.String("contract_name")
	if !ok {
		return "", invalid("Invalid contract_name parameter. Must be a string.")
	}
	return name, nil
}

func loadABI(ctx context.Context, kit *Kit, contract string) (*web3.ABI, error) {
	client, err := kit.open(ctx)
	if err != nil {
		return nil, err
	}
	return client.GetABI(ctx, contract)
}

func newListActionsTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "wax_contract_list_action",
		description: `List all available actions of a smart contract on the WAX blockchain.

Use it to view the actions of a contract, understand what operations it supports,
or find out which parameters an action needs before executing it.

Input: {"contract_name": "eosio.token"}`,
		params: schema([]string{"contract_name"}, map[string]any{
			"contract_name": prop("string", `Contract to query, e.g. "eosio.token".`),
		}),
		run: runListActions,
	}
}

func runListActions(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	contract, err := contractName(in)
	if err != nil {
		return nil, err
	}
	abi, err := loadABI(ctx, kit, contract)
	if err != nil {
		return nil, wrapf(err, "Failed to fetch contract actions for %s", contract)
	}

	actions := make([]string, 0, len(abi.Actions))
	for _, action := range abi.Actions {
		actions = append(actions, FormatContractAction(action))
	}
	if len(actions) == 0 {
		return Success(fmt.Sprintf("No actions found for contract %s", contract)).With("actions", actions), nil
	}
	return Success(fmt.Sprintf("Successfully retrieved %d actions for contract %s", len(actions), contract)).
		With("actions", actions), nil
}

func newListTablesTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "wax_contract_list_tables",
		description: `List all available tables of a smart contract on the WAX blockchain.

Use it to discover which tables a contract stores before reading one.

Input: {"contract_name": "eosio.token"}`,
		params: schema([]string{"contract_name"}, map[string]any{
			"contract_name": prop("string", `Contract to query, e.g. "eosio.token".`),
		}),
		run: runListTables,
	}
}

func runListTables(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	contract, err := contractName(in)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(contract) == "" {
		return nil, invalid("Contract name must be a non-empty string")
	}
	abi, err := loadABI(ctx, kit, contract)
	if err != nil {
		return nil, wrapf(err, "Failed to fetch contract tables for %s", contract)
	}
	if len(abi.Tables) == 0 {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "Failed to fetch contract tables for %s: Contract %s has no tables", contract, contract)
	}

	tables := make([]string, 0, len(abi.Tables))
	for _, table := range abi.Tables {
		tables = append(tables, table.Name)
	}
	return Success(fmt.Sprintf("Successfully retrieved %d tables for contract %s", len(tables), contract)).
		With("tables", tables), nil
}

func newReadTableTool(kit *Kit) Tool {
	return &toolDef{
		kit:  kit,
		name: "wax_contract_read_table",
		description: `Read rows from a table of a smart contract on the WAX blockchain.

Input: {"contract_name": "eosio.token", "table_name": "stat", "scope": "WAX"}
"scope" defaults to the contract name, "limit" defaults to 1000.
"lower_bound" and "upper_bound" restrict the primary key range.`,
		params: schema([]string{"contract_name", "table_name"}, map[string]any{
			"contract_name": prop("string", "Contract that owns the table."),
			"table_name":    prop("string", "Table to read."),
			"scope":         prop("string", "Table scope; defaults to the contract name."),
			"limit":         prop("integer", "Maximum rows to return."),
			"lower_bound":   prop("string", "Lower primary key bound."),
			"upper_bound":   prop("string", "Upper primary key bound."),
		}),
		run: runReadTable,
	}
}

func runReadTable(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	contract, err := contractName(in)
	if err != nil {
		return nil, err
	}
	table := in.OptionalString("table_name")
	if strings.TrimSpace(contract) == "" {
		return nil, invalid("Contract name must be a non-empty string")
	}
	if strings.TrimSpace(table) == "" {
		return nil, invalid("Table name must be a non-empty string")
	}

	failed := func(err error) error {
		return wrapf(err, "Failed to read table %q from contract %q", table, contract)
	}

	client, err := kit.open(ctx)
	if err != nil {
		return nil, failed(err)
	}
	abi, err := client.GetABI(ctx, contract)
	if err != nil {
		return nil, failed(err)
	}
	if _, ok := abi.Table(table); !ok {
		return nil, failed(xerrors.Newf(xerrors.CodeNotFound, "Table %q not found in contract %q", table, contract))
	}

	scope := in.OptionalString("scope")
	if scope == "" {
		scope = contract
	}
	limit := uint32(defaultReadLimit)
	if n, ok := in.Integer("limit"); ok && n > 0 {
		limit = uint32(n)
	}

	rows, err := client.GetTableRows(ctx, web3.TableQuery{
		Code:       contract,
		Scope:      scope,
		Table:      table,
		LowerBound: in.OptionalString("lower_bound"),
		UpperBound: in.OptionalString("upper_bound"),
		Limit:      limit,
	})
	if err != nil {
		return nil, failed(err)
	}

	out := rows.Rows
	if out == nil {
		out = []json.RawMessage{}
	}
	return Success(fmt.Sprintf("Successfully read %d rows from table %s of contract %s", len(out), table, contract)).
		With("rows", out).
		With("more", rows.More), nil
}

func newExecuteActionTool(kit *Kit) Tool {
	return &toolDef{
		kit:      kit,
		name:     "wax_contract_execute_action",
		mutating: true,
		description: `Execute an action on a WAX blockchain smart contract.

Input format:
{"contract_name": "eosio.token", "action_name": "transfer", "params": {"from": "user1.wam", "to": "user2.wam", "quantity": "1.00000000 WAX", "memo": "Test transfer"}}

Use wax_contract_list_action first to learn the parameters an action expects.`,
		params: schema([]string{"contract_name", "action_name"}, map[string]any{
			"contract_name": prop("string", `Contract account, e.g. "eosio.token".`),
			"action_name":   prop("string", `Action to execute, e.g. "transfer".`),
			"params":        prop("object", "Action data as key/value pairs."),
		}),
		run: runExecuteAction,
	}
}

// actionRequest is the validated input of the execute and swap tools.
type actionRequest struct {
	contract string
	action   string
	data     map[string]any
}

func parseActionRequest(in Input) (actionRequest, error) {
	if !in.Present("contract_name") {
		return actionRequest{}, invalid("Missing required parameter: contract_name")
	}
	if !in.Present("action_name") {
		return actionRequest{}, invalid("Missing required parameter: action_name")
	}
	contract, ok := in.String("contract_name")
	if !ok {
		return actionRequest{}, invalid("contract_name must be a string")
	}
	action, ok := in.String("action_name")
	if !ok {
		return actionRequest{}, invalid("action_name must be a string")
	}

	data := map[string]any{}
	if in.Present("params") {
		obj, ok := in.Object("params")
		if !ok {
			return actionRequest{}, invalid("params must be an object if provided")
		}
		data = Plain(obj).(map[string]any)
	}
	return actionRequest{contract: contract, action: action, data: data}, nil
}

// executeAction checks the action exists in the contract ABI and pushes it.
func executeAction(ctx context.Context, kit *Kit, req actionRequest) (*web3.TxResult, error) {
	failed := func(err error) error {
		return wrapf(err, "Failed to execute action %q on contract %q", req.action, req.contract)
	}

	client, err := kit.open(ctx)
	if err != nil {
		return nil, failed(err)
	}
	abi, err := client.GetABI(ctx, req.contract)
	if err != nil {
		return nil, failed(err)
	}
	if _, ok := abi.Action(req.action); !ok {
		return nil, failed(xerrors.Newf(xerrors.CodeNotFound, "Action %q not found in contract %q", req.action, req.contract))
	}
	tx, err := client.PushActions(ctx, web3.Action{Account: req.contract, Name: req.action, Data: req.data})
	if err != nil {
		return nil, failed(err)
	}
	return tx, nil
}

func runExecuteAction(ctx context.Context, kit *Kit, in Input) (*Response, error) {
	req, err := parseActionRequest(in)
	if err != nil {
		return nil, err
	}
	tx, err := executeAction(ctx, kit, req)
	if err != nil {
		return nil, err
	}
	return kit.txResponse(fmt.Sprintf("Successfully executed action %s on contract %s", req.action, req.contract), tx), nil
}
