package tools

import (
	"context"
	"fmt"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/session"
	"WaxAgentKit/internal/web3"
)

// Kit carries what every WAX tool needs: the signing account, the network
// (for explorer links) and a way to open a chain session.
type Kit struct {
	Account  string
	Network  session.Network
	Sessions web3.Opener
}

// NewKit builds a Kit from a connector-like opener.
func NewKit(account string, network session.Network, sessions web3.Opener) *Kit {
	return &Kit{Account: account, Network: network, Sessions: sessions}
}

func (k *Kit) open(ctx context.Context) (web3.Client, error) {
	if k == nil || k.Sessions == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "WAX session is not configured")
	}
	return k.Sessions.Open(ctx)
}

func (k *Kit) push(ctx context.Context, actions ...web3.Action) (*web3.TxResult, error) {
	client, err := k.open(ctx)
	if err != nil {
		return nil, err
	}
	return client.PushActions(ctx, actions...)
}

func (k *Kit) transactionURL(id string) string {
	return session.TransactionURL(k.Network, id)
}

// txResponse is the success envelope of a pushed transaction.
func (k *Kit) txResponse(message string, tx *web3.TxResult) *Response {
	return Success(message).
		With("transaction", k.transactionURL(tx.ID)).
		With("transaction_id", tx.ID)
}

// wrapf prefixes err with a message while keeping its code.
func wrapf(err error, format string, args ...any) error {
	return xerrors.Wrap(xerrors.CodeOf(err), err, fmt.Sprintf(format, args...))
}

// CreateWaxTools returns every WAX and Alcor tool bound to kit.
func CreateWaxTools(kit *Kit) []Tool {
	return []Tool{
		newBalanceTool(kit),
		newBalanceOtherTool(kit),
		newTokenBalancesTool(kit),
		newAccountInfoTool(kit),
		newBuyRAMTool(kit),
		newSellRAMTool(kit),
		newTransferTool(kit),
		newDeployTokenTool(kit),
		newListActionsTool(kit),
		newListTablesTool(kit),
		newReadTableTool(kit),
		newExecuteActionTool(kit),
		newAlcorSwapTool(kit),
		newAlcorPoolTool(kit),
	}
}

// NewWaxRegistry registers CreateWaxTools(kit) in a new Registry.
func NewWaxRegistry(kit *Kit) *Registry {
	return NewRegistry(CreateWaxTools(kit)...)
}

func schema(required []string, props map[string]any) map[string]any {
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
