package knowledge

// DefaultSnippets 是 WAX 链上操作的常用背景知识。
func DefaultSnippets() []Snippet {
	return []Snippet{
		{
			Title:    "WAX 账户名",
			Content:  "WAX account names are 1 to 12 characters from a-z, 1-5 and '.', and cannot end with a dot.",
			Keywords: []string{"account", "账户", "name"},
		},
		{
			Title:    "WAX 代币精度",
			Content:  "The native WAX token lives in eosio.token with 8 decimal places, so 1 WAX is written as 1.00000000 WAX.",
			Keywords: []string{"transfer", "balance", "wax", "token"},
		},
		{
			Title:    "RAM 市场",
			Content:  "RAM is bought with eosio::buyram (WAX amount) or eosio::buyrambytes (bytes) and sold with eosio::sellram in bytes.",
			Keywords: []string{"ram", "bytes"},
		},
		{
			Title:    "CPU 与 NET 资源",
			Content:  "Every transaction consumes CPU and NET from the signer. Staked WAX backs these resources; failures mentioning billed CPU mean the account needs more stake.",
			Keywords: []string{"cpu", "net", "stake", "resource"},
		},
		{
			Title:    "Alcor 兑换",
			Content:  "Alcor swaps send the input token to swap.alcor with a memo of the form swapexactin#<pool ids>#<receiver>#<min output>#0.",
			Keywords: []string{"swap", "alcor", "pool", "exchange"},
		},
		{
			Title:    "合约读取",
			Content:  "List a contract's actions and tables before calling them. Table rows are read with get_table_rows using code, scope and table.",
			Keywords: []string{"contract", "table", "action", "abi"},
		},
	}
}
