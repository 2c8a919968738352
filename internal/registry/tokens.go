package registry

import "strings"

// CollateralSymbol is the token every order is collateralised with.
const CollateralSymbol = "USDC"

type Token struct {
	Name     string
	Symbol   string
	Address  string
	Decimals int
	// Claimable is the decimal amount a single faucet claim requests.
	Claimable string
	// Tradable is the suggested order size shown next to the trade button.
	Tradable string
}

var faucetTokens = []Token{
	{Name: "WSTETH", Symbol: "WSTETH", Address: "0xeAC3d56DCB15a3Bc174aB292B7023e9Fc9F7aDf0", Decimals: 18, Claimable: "0.01"},
	{Name: "USDC Coin", Symbol: "USDC", Address: "0x38604D543659121faa8F68A91A5b633C7BFE9761", Decimals: 6, Claimable: "100"},
	{Name: "Milkway Staked TIA", Symbol: "MILKTIA", Address: "0x2A197C29f3E144387EB5877CFe0e63032FD1a0DA", Decimals: 18, Claimable: "20"},
	{Name: "Staked Move", Symbol: "STMOVE", Address: "0x1AD94D0a799664D459cB467655eC0EA4cc8Ad478", Decimals: 18, Claimable: "10"},
	{Name: "GoGoPool AVAX", Symbol: "GGAVAX", Address: "0xb9aDf17948481eb380D37E9594fD4382372DBcd0", Decimals: 18, Claimable: "10"},
}

var tradeTokens = []Token{
	{Name: "WSTETH", Symbol: "WSTETH", Address: "0xeAC3d56DCB15a3Bc174aB292B7023e9Fc9F7aDf0", Decimals: 18, Claimable: "0.01", Tradable: "0.01"},
	{Name: "Milkway Staked TIA", Symbol: "MILKTIA", Address: "0x2A197C29f3E144387EB5877CFe0e63032FD1a0DA", Decimals: 18, Claimable: "20", Tradable: "1"},
	{Name: "Staked Move", Symbol: "STMOVE", Address: "0x1AD94D0a799664D459cB467655eC0EA4cc8Ad478", Decimals: 18, Claimable: "10", Tradable: "5"},
	{Name: "GoGoPool AVAX", Symbol: "GGAVAX", Address: "0xb9aDf17948481eb380D37E9594fD4382372DBcd0", Decimals: 18, Claimable: "10", Tradable: "2"},
}

// FaucetTokens returns a copy of the tokens the faucet vault hands out.
func FaucetTokens() []Token {
	return append([]Token(nil), faucetTokens...)
}

// TradeTokens returns a copy of the index tokens that have a long market.
func TradeTokens() []Token {
	return append([]Token(nil), tradeTokens...)
}

func FaucetToken(symbol string) (Token, bool) {
	return lookup(faucetTokens, symbol)
}

func TradeToken(symbol string) (Token, bool) {
	return lookup(tradeTokens, symbol)
}

func CollateralToken() Token {
	token, _ := lookup(faucetTokens, CollateralSymbol)
	return token
}

func lookup(tokens []Token, symbol string) (Token, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, token := range tokens {
		if token.Symbol == s {
			return token, true
		}
	}
	return Token{}, false
}
