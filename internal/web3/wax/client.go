package wax

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eoscanada/eos-go"

	xerrors "WaxAgentKit/internal/errors"
	"WaxAgentKit/internal/observability/metrics"
	"WaxAgentKit/internal/session"
	"WaxAgentKit/internal/web3"
	"WaxAgentKit/pkg/logger"
)

// TransactionExpiration 是推送交易的过期时间。
const TransactionExpiration = 30 * time.Second

// Client implements web3.Client on top of the eos-go RPC API and key bag.
type Client struct {
	api      *eos.API
	session  session.Config
	chainID  eos.Checksum256
	cache    web3.ABICache
	cacheTTL time.Duration
}

var _ web3.Client = (*Client)(nil)

func newClient(api *eos.API, cfg session.Config, cache web3.ABICache, ttl time.Duration) (*Client, error) {
	chainID, err := hex.DecodeString(cfg.ChainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidInput, err, "invalid chain id")
	}
	return &Client{api: api, session: cfg, chainID: eos.Checksum256(chainID), cache: cache, cacheTTL: ttl}, nil
}

// Actor implements web3.Client.
func (c *Client) Actor() string { return c.session.Actor }

// NodeURL returns the RPC endpoint this client talks to.
func (c *Client) NodeURL() string { return c.api.BaseURL }

// GetCurrencyBalance implements web3.Client.
func (c *Client) GetCurrencyBalance(ctx context.Context, code, account, symbol string) ([]string, error) {
	assets, err := c.api.GetCurrencyBalance(ctx, eos.AN(account), symbol, eos.AN(code))
	if err = observe("get_currency_balance", err); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(assets))
	for _, asset := range assets {
		out = append(out, asset.String())
	}
	return out, nil
}

// GetAccount implements web3.Client.
func (c *Client) GetAccount(ctx context.Context, name string) (*web3.Account, error) {
	resp, err := c.api.GetAccount(ctx, eos.AN(name))
	if err = observe("get_account", err); err != nil {
		return nil, err
	}
	return convertAccount(resp), nil
}

// GetABI implements web3.Client.
func (c *Client) GetABI(ctx context.Context, contract string) (*web3.ABI, error) {
	resp, err := c.api.GetABI(ctx, eos.AN(contract))
	if err = observe("get_abi", err); err != nil {
		return nil, err
	}
	return convertABI(contract, &resp.ABI), nil
}

// GetTableRows implements web3.Client.
func (c *Client) GetTableRows(ctx context.Context, query web3.TableQuery) (*web3.TableRows, error) {
	resp, err := c.api.GetTableRows(ctx, eos.GetTableRowsRequest{
		Code:       query.Code,
		Scope:      query.Scope,
		Table:      query.Table,
		LowerBound: query.LowerBound,
		UpperBound: query.UpperBound,
		Limit:      query.Limit,
		JSON:       true,
	})
	if err = observe("get_table_rows", err); err != nil {
		return nil, err
	}

	out := &web3.TableRows{More: resp.More}
	if len(resp.Rows) > 0 {
		if err := json.Unmarshal(resp.Rows, &out.Rows); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "decode table rows")
		}
	}
	return out, nil
}

// PushActions encodes every action against its contract ABI, signs the
// transaction with the session key and pushes it.
func (c *Client) PushActions(ctx context.Context, actions ...web3.Action) (*web3.TxResult, error) {
	if len(actions) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "no actions to push")
	}

	abis := make(map[string]*eos.ABI)
	encoded := make([]*eos.Action, 0, len(actions))
	for _, action := range actions {
		abi, ok := abis[action.Account]
		if !ok {
			var err error
			if abi, err = c.encodingABI(ctx, action.Account); err != nil {
				return nil, err
			}
			abis[action.Account] = abi
		}

		data, err := json.Marshal(action.Data)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidInput, err, "marshal action data")
		}
		bin, err := abi.EncodeAction(eos.ActN(action.Name), data)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidInput, err, fmt.Sprintf("encode %s::%s", action.Account, action.Name))
		}

		encoded = append(encoded, &eos.Action{
			Account: eos.AN(action.Account),
			Name:    eos.ActN(action.Name),
			Authorization: []eos.PermissionLevel{{
				Actor:      eos.AN(c.session.Actor),
				Permission: eos.PN(c.session.Permission),
			}},
			ActionData: eos.NewActionDataFromHexData(bin),
		})
	}

	opts := &eos.TxOptions{ChainID: c.chainID}
	if err := opts.FillFromChain(ctx, c.api); err != nil {
		return nil, observe("get_info", err)
	}
	tx := eos.NewTransaction(encoded, opts)
	tx.SetExpiration(TransactionExpiration)

	resp, err := c.api.SignPushTransaction(ctx, tx, opts.ChainID, opts.Compress)
	if err = observe("push_transaction", err); err != nil {
		return nil, err
	}
	return &web3.TxResult{ID: resp.TransactionID}, nil
}

// encodingABI 优先使用缓存中的完整 ABI，缓存缺失或条目没有原始定义时回源节点并回填。
func (c *Client) encodingABI(ctx context.Context, contract string) (*eos.ABI, error) {
	log := logger.Named("wax")
	if c.cache != nil {
		cached, ok, err := c.cache.GetABI(ctx, contract)
		switch {
		case err != nil:
			log.Warn("abi cache lookup failed", "contract", contract, "error", err)
		case ok && len(cached.Raw) > 0:
			abi, err := eos.NewABI(bytes.NewReader(cached.Raw))
			if err == nil {
				return abi, nil
			}
			log.Warn("cached abi unreadable", "contract", contract, "error", err)
		}
	}

	resp, err := c.api.GetABI(ctx, eos.AN(contract))
	if err = observe("get_abi", err); err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.PutABI(ctx, contract, convertABI(contract, &resp.ABI), c.cacheTTL); err != nil {
			log.Warn("abi cache store failed", "contract", contract, "error", err)
		}
	}
	return &resp.ABI, nil
}

func observe(method string, err error) error {
	metrics.ObserveRPC(method, err)
	if err == nil {
		return nil
	}
	return xerrors.Wrap(xerrors.CodeChainFailure, err, method)
}

func convertAccount(resp *eos.AccountResp) *web3.Account {
	account := &web3.Account{
		Name:              string(resp.AccountName),
		Created:           resp.Created.Time,
		LastCodeUpdate:    resp.LastCodeUpdate.Time,
		Privileged:        resp.Privileged,
		CPU:               convertLimit(resp.CPULimit),
		Net:               convertLimit(resp.NetLimit),
		RAMUsage:          int64(resp.RAMUsage),
		RAMQuota:          int64(resp.RAMQuota),
		CoreLiquidBalance: resp.CoreLiquidBalance.String(),
	}
	for _, perm := range resp.Permissions {
		p := web3.Permission{
			Name:      perm.PermName,
			Parent:    perm.Parent,
			Threshold: perm.RequiredAuth.Threshold,
		}
		for _, key := range perm.RequiredAuth.Keys {
			p.Keys = append(p.Keys, key.PublicKey.String())
		}
		account.Permissions = append(account.Permissions, p)
	}
	if resp.TotalResources.Owner != "" || resp.TotalResources.RAMBytes != 0 {
		account.Totals = &web3.ResourceTotals{
			NetWeight: resp.TotalResources.NetWeight.String(),
			CPUWeight: resp.TotalResources.CPUWeight.String(),
			RAMBytes:  int64(resp.TotalResources.RAMBytes),
		}
	}
	return account
}

func convertLimit(limit eos.AccountResourceLimit) web3.ResourceLimit {
	return web3.ResourceLimit{
		Used:      int64(limit.Used),
		Available: int64(limit.Available),
		Max:       int64(limit.Max),
	}
}

func convertABI(contract string, abi *eos.ABI) *web3.ABI {
	out := &web3.ABI{Account: contract}
	if raw, err := json.Marshal(abi); err == nil {
		out.Raw = raw
	}
	for _, action := range abi.Actions {
		out.Actions = append(out.Actions, web3.ABIAction{
			Name:      string(action.Name),
			Type:      action.Type,
			Ricardian: strings.TrimSpace(action.RicardianContract),
		})
	}
	for _, table := range abi.Tables {
		out.Tables = append(out.Tables, web3.ABITable{
			Name:      string(table.Name),
			IndexType: table.IndexType,
			KeyNames:  table.KeyNames,
			KeyTypes:  table.KeyTypes,
			Type:      table.Type,
		})
	}
	for _, st := range abi.Structs {
		s := web3.ABIStruct{Name: st.Name, Base: st.Base}
		for _, f := range st.Fields {
			s.Fields = append(s.Fields, web3.ABIField{Name: f.Name, Type: f.Type})
		}
		out.Structs = append(out.Structs, s)
	}
	return out
}
