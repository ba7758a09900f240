package web3

import (
	"context"
	"encoding/json"
	"time"
)

// Account mirrors the fields of get_account that the toolkit reports.
type Account struct {
	Name              string
	Created           time.Time
	LastCodeUpdate    time.Time
	Privileged        bool
	CPU               ResourceLimit
	Net               ResourceLimit
	RAMUsage          int64
	RAMQuota          int64
	CoreLiquidBalance string
	Permissions       []Permission
	Totals            *ResourceTotals
}

// ResourceLimit is a used / available / max triple for CPU or NET.
type ResourceLimit struct {
	Used      int64
	Available int64
	Max       int64
}

// Permission is one entry of the account permission tree.
type Permission struct {
	Name          string
	Parent        string
	Threshold     uint32
	Keys          []string
	LinkedActions []string
}

// ResourceTotals summarises staked resources.
type ResourceTotals struct {
	NetWeight string
	CPUWeight string
	RAMBytes  int64
}

// ABI is the subset of a contract ABI used for discovery and encoding checks.
// Raw keeps the full node definition so cached entries can still encode
// action data.
type ABI struct {
	Account string
	Actions []ABIAction
	Tables  []ABITable
	Structs []ABIStruct
	Raw     json.RawMessage `json:",omitempty"`
}

// ABIAction describes one contract action.
type ABIAction struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Ricardian string `json:"ricardian_contract"`
}

// ABITable describes one contract table.
type ABITable struct {
	Name      string   `json:"name"`
	IndexType string   `json:"index_type"`
	KeyNames  []string `json:"key_names"`
	KeyTypes  []string `json:"key_types"`
	Type      string   `json:"type"`
}

// ABIStruct is a named struct with ordered fields.
type ABIStruct struct {
	Name   string     `json:"name"`
	Base   string     `json:"base"`
	Fields []ABIField `json:"fields"`
}

// ABIField is a struct field.
type ABIField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Action looks up an action by name.
func (a *ABI) Action(name string) (ABIAction, bool) {
	if a == nil {
		return ABIAction{}, false
	}
	for _, action := range a.Actions {
		if action.Name == name {
			return action, true
		}
	}
	return ABIAction{}, false
}

// Table looks up a table by name.
func (a *ABI) Table(name string) (ABITable, bool) {
	if a == nil {
		return ABITable{}, false
	}
	for _, table := range a.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return ABITable{}, false
}

// TableQuery parameterises get_table_rows.
type TableQuery struct {
	Code       string
	Scope      string
	Table      string
	LowerBound string
	UpperBound string
	Limit      uint32
}

// TableRows holds decoded JSON rows.
type TableRows struct {
	Rows []json.RawMessage
	More bool
}

// Action is a contract action to be signed as the session actor. Data is
// encoded against the contract ABI by the client.
type Action struct {
	Account string
	Name    string
	Data    map[string]any
}

// TxResult identifies a pushed transaction.
type TxResult struct {
	ID string
}

// Client is the chain surface the tools depend on. Implementations wrap an
// Antelope RPC library; tests provide stubs.
type Client interface {
	Actor() string
	GetCurrencyBalance(ctx context.Context, code, account, symbol string) ([]string, error)
	GetAccount(ctx context.Context, name string) (*Account, error)
	GetABI(ctx context.Context, contract string) (*ABI, error)
	GetTableRows(ctx context.Context, query TableQuery) (*TableRows, error)
	PushActions(ctx context.Context, actions ...Action) (*TxResult, error)
}

// Opener yields a Client bound to a signing session. Every tool call opens
// its own session so node rotation and key changes apply immediately.
type Opener interface {
	Open(ctx context.Context) (Client, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Client, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context) (Client, error) { return f(ctx) }

// Static returns an Opener that always yields client.
func Static(client Client) Opener {
	return OpenerFunc(func(context.Context) (Client, error) { return client, nil })
}
