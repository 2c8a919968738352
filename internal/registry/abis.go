package registry

// ABI fragments for the contracts the bot reads from and writes to.
const (
	ERC20ABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	FaucetVaultABI = `[
		{"name":"MAX_CLAIM_AMOUNT","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"canClaim","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"claimCooldown","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"cooldownEnabled","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
		{"name":"lastClaimTime","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"},{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getContractTokenBalance","type":"function","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"claimEth","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"claimTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
	]`

	ExchangeRouterABI = `[
		{"name":"multicall","type":"function","stateMutability":"payable","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
		{"name":"sendWnt","type":"function","stateMutability":"payable","inputs":[{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"sendTokens","type":"function","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"simulateCreateSingleMarketOrder","type":"function","stateMutability":"payable","inputs":[
			{"name":"params","type":"tuple","components":[
				{"name":"addresses","type":"tuple","components":[{"name":"receiver","type":"address"},{"name":"callbackContract","type":"address"},{"name":"uiFeeReceiver","type":"address"},{"name":"market","type":"address"},{"name":"initialCollateralToken","type":"address"},{"name":"swapPath","type":"address[]"}]},
				{"name":"numbers","type":"tuple","components":[{"name":"sizeDeltaUsd","type":"uint256"},{"name":"initialCollateralDeltaAmount","type":"uint256"},{"name":"triggerPrice","type":"uint256"},{"name":"acceptablePrice","type":"uint256"},{"name":"executionFee","type":"uint256"},{"name":"callbackGasLimit","type":"uint256"},{"name":"minOutputAmount","type":"uint256"}]},
				{"name":"orderType","type":"uint8"},
				{"name":"decreasePositionSwapType","type":"uint8"},
				{"name":"isLong","type":"bool"},
				{"name":"shouldUnwrapNativeToken","type":"bool"},
				{"name":"referralCode","type":"bytes32"}
			]},
			{"name":"simulatedOracleParams","type":"tuple","components":[
				{"name":"primaryTokens","type":"address[]"},
				{"name":"primaryPrices","type":"tuple[]","components":[{"name":"min","type":"uint256"},{"name":"max","type":"uint256"}]}
			]}
		],"outputs":[]}
	]`
)
