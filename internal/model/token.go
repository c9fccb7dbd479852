package model

// Token captures ERC20 metadata for a token contract.
type Token struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ExcludedToken marks an address that did not answer metadata calls,
// so the enrichment pass stops querying it.
type ExcludedToken struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}
