package bot

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution"
	"github.com/ggonzalez94/faucetbot/internal/execution/signer"
	"github.com/ggonzalez94/faucetbot/internal/id"
	"github.com/ggonzalez94/faucetbot/internal/pricefeed"
	"github.com/ggonzalez94/faucetbot/internal/registry"
	"github.com/ggonzalez94/faucetbot/internal/session"
	"github.com/ggonzalez94/faucetbot/internal/tracker"
)

const nativeDecimals = 18

func (c *Controller) acceptKey(ctx context.Context, sess *session.Session, u Update) {
	// the key never stays in the chat history, whatever its shape
	c.deleteMessage(ctx, sess.ChatID, u.MessageID)
	raw := strings.TrimSpace(u.Text)
	if !signer.LooksLikePrivateKey(raw) {
		c.reply(ctx, sess.ChatID, keyShapeText)
		return
	}
	s, err := signer.NewLocalSignerFromHex(raw)
	if err != nil {
		c.reply(ctx, sess.ChatID, keyInvalidText)
		return
	}
	c.keys.Put(sess.ChatID, s)
	sess.Address = s.Address().Hex()
	sess.Stage = session.StageReady
	sess.Claimed = false
	sess.Approved = false
	c.log.Info().Int64("chat", sess.ChatID).Str("address", sess.Address).Msg("key accepted")

	tokens := registry.FaucetTokens()
	buttons := make([][]Button, 0, len(tokens))
	for _, token := range tokens {
		buttons = append(buttons, []Button{{Text: token.Symbol, Data: callbackSelectCoin + token.Symbol}})
	}
	c.replyWithButtons(ctx, sess.ChatID, fmt.Sprintf(keyReceivedText, sess.Address), buttons)
}

// signerFor returns the chat's key, or asks for it again when the vault has
// dropped it.
func (c *Controller) signerFor(ctx context.Context, sess *session.Session) (signer.Signer, bool) {
	s, ok := c.keys.Get(sess.ChatID)
	if !ok {
		sess.Stage = session.StageAwaitingKey
		c.reply(ctx, sess.ChatID, noKeyText)
		return nil, false
	}
	return s, true
}

func (c *Controller) claim(ctx context.Context, sess *session.Session, symbol string) {
	token, ok := registry.FaucetToken(symbol)
	if !ok {
		c.reply(ctx, sess.ChatID, fmt.Sprintf(claimTokenMissingText, symbol))
		return
	}
	s, ok := c.signerFor(ctx, sess)
	if !ok {
		return
	}
	log := c.log.With().Int64("chat", sess.ChatID).Str("token", token.Symbol).Logger()
	sess.ClaimSymbol = token.Symbol
	account := s.Address()
	tokenAddr := common.HexToAddress(token.Address)

	gas, err := c.chain.NativeBalance(ctx, account)
	if err != nil {
		log.Error().Err(err).Msg("read gas balance")
		c.reply(ctx, sess.ChatID, claimErrorText)
		return
	}
	c.reply(ctx, sess.ChatID, fmt.Sprintf(claimGasText, id.FormatUnits(gas, nativeDecimals)))
	if !isPositive(gas) {
		c.reply(ctx, sess.ChatID, noGasText)
		return
	}

	balance, err := c.chain.TokenBalance(ctx, tokenAddr, account)
	if err != nil {
		log.Error().Err(err).Msg("read token balance")
		c.reply(ctx, sess.ChatID, claimErrorText)
		return
	}
	if isPositive(balance) {
		c.reply(ctx, sess.ChatID, fmt.Sprintf(alreadyHeldText, id.FormatUnits(balance, token.Decimals), token.Symbol))
		sess.Claimed = true
		c.approve(ctx, sess, s, token)
		return
	}

	amount := id.MustParseDecimal(token.Claimable, token.Decimals)
	handle, err := c.chain.Claim(ctx, s, tokenAddr, amount)
	if err != nil {
		log.Warn().Err(err).Msg("submit claim")
		c.replyClaimFailure(ctx, sess, token, failureReason(err))
		return
	}
	label := fmt.Sprintf("Claiming collateral token (%s) to trade with", token.Symbol)
	outcome := c.track(ctx, sess, execution.OperationKindClaim, label, token.Address, handle)
	switch outcome.Kind {
	case tracker.KindConfirmed:
	case tracker.KindFailed:
		c.replyClaimFailure(ctx, sess, token, outcome.Reason)
		return
	default:
		return
	}

	balance, err = c.chain.TokenBalance(ctx, tokenAddr, account)
	if err != nil {
		log.Error().Err(err).Msg("read claimed balance")
		c.reply(ctx, sess.ChatID, claimErrorText)
		return
	}
	sess.Claimed = true
	c.reply(ctx, sess.ChatID, fmt.Sprintf(claimSuccessText, token.Symbol, id.FormatUnits(balance, token.Decimals), token.Symbol))
	c.approve(ctx, sess, s, token)
}

func (c *Controller) replyClaimFailure(ctx context.Context, sess *session.Session, token registry.Token, reason string) {
	if strings.Contains(reason, cooldownReason) {
		c.reply(ctx, sess.ChatID, fmt.Sprintf(cooldownText, token.Symbol))
		return
	}
	c.reply(ctx, sess.ChatID, claimErrorText)
}

// approve grants the synthetics router an unlimited allowance unless a
// sufficient one is already in place, then offers the trade options.
func (c *Controller) approve(ctx context.Context, sess *session.Session, s signer.Signer, token registry.Token) {
	log := c.log.With().Int64("chat", sess.ChatID).Str("token", token.Symbol).Logger()
	tokenAddr := common.HexToAddress(token.Address)
	spender := c.cfg.SyntheticsRouter

	allowance, err := c.chain.Allowance(ctx, tokenAddr, s.Address(), spender)
	if err != nil {
		log.Error().Err(err).Msg("read allowance")
		c.reply(ctx, sess.ChatID, approvalErrorText)
		return
	}
	if allowance != nil && allowance.Cmp(big.NewInt(registry.MinApprovedAllowance)) >= 0 {
		sess.Approved = true
		c.reply(ctx, sess.ChatID, allowanceGrantedText)
		c.showTradeOptions(ctx, sess.ChatID)
		return
	}

	handle, err := c.chain.Approve(ctx, s, tokenAddr, spender, new(big.Int).Set(math.MaxBig256))
	if err != nil {
		log.Warn().Err(err).Msg("submit approval")
		c.reply(ctx, sess.ChatID, approvalErrorText)
		return
	}
	label := fmt.Sprintf("Approving %s allowance", token.Symbol)
	outcome := c.track(ctx, sess, execution.OperationKindApprove, label, token.Address, handle)
	if !outcome.Confirmed() {
		if outcome.Kind == tracker.KindFailed {
			c.reply(ctx, sess.ChatID, approvalErrorText)
		}
		return
	}

	allowance, err = c.chain.Allowance(ctx, tokenAddr, s.Address(), spender)
	if err != nil {
		log.Error().Err(err).Msg("read new allowance")
		c.reply(ctx, sess.ChatID, approvalErrorText)
		return
	}
	sess.Approved = true
	c.reply(ctx, sess.ChatID, fmt.Sprintf(allowanceUpdatedText, token.Symbol, id.FormatUnits(allowance, token.Decimals), token.Symbol))
	c.showTradeOptions(ctx, sess.ChatID)
}

func (c *Controller) showTradeOptions(ctx context.Context, chatID int64) {
	tokens := registry.TradeTokens()
	buttons := make([][]Button, 0, len(tokens))
	for _, token := range tokens {
		buttons = append(buttons, []Button{{
			Text: fmt.Sprintf("Trade %s (%s)", token.Symbol, token.Tradable),
			Data: callbackTrade + token.Symbol,
		}})
	}
	c.replyWithButtons(ctx, chatID, tradeOptionsText, buttons)
}

func (c *Controller) promptAmount(ctx context.Context, sess *session.Session, symbol string) {
	if !sess.CanTrade() {
		c.reply(ctx, sess.ChatID, tradeLockedText)
		return
	}
	token, ok := registry.TradeToken(symbol)
	if !ok {
		c.reply(ctx, sess.ChatID, fmt.Sprintf(marketMissingText, symbol))
		return
	}
	s, ok := c.signerFor(ctx, sess)
	if !ok {
		return
	}
	collateral := registry.CollateralToken()
	balance, err := c.chain.TokenBalance(ctx, common.HexToAddress(collateral.Address), s.Address())
	if err != nil {
		c.log.Error().Err(err).Int64("chat", sess.ChatID).Msg("read collateral balance")
		c.reply(ctx, sess.ChatID, unexpectedErrorText)
		return
	}
	limit := id.FormatUnits(balance, collateral.Decimals)
	sess.TradeSymbol = token.Symbol
	sess.Stage = session.StageAwaitingAmount
	c.reply(ctx, sess.ChatID, fmt.Sprintf(tradePromptText, collateral.Symbol, limit, collateral.Symbol, collateral.Symbol, limit))
}

func (c *Controller) placeOrder(ctx context.Context, sess *session.Session, text string) {
	token, ok := registry.TradeToken(sess.TradeSymbol)
	if !ok || !sess.CanTrade() {
		sess.Stage = session.StageReady
		c.reply(ctx, sess.ChatID, tradeLockedText)
		return
	}
	s, ok := c.signerFor(ctx, sess)
	if !ok {
		return
	}
	log := c.log.With().Int64("chat", sess.ChatID).Str("token", token.Symbol).Logger()
	collateral := registry.CollateralToken()
	collateralAddr := common.HexToAddress(collateral.Address)

	balance, err := c.chain.TokenBalance(ctx, collateralAddr, s.Address())
	if err != nil {
		log.Error().Err(err).Msg("read collateral balance")
		c.reply(ctx, sess.ChatID, unexpectedErrorText)
		return
	}
	amount, err := id.ParseDecimal(text, collateral.Decimals)
	if err != nil || amount.Sign() <= 0 || amount.Cmp(balance) > 0 {
		// stay in awaiting_amount so the next message is another attempt
		c.reply(ctx, sess.ChatID, fmt.Sprintf(invalidAmountText, id.FormatUnits(balance, collateral.Decimals)))
		return
	}
	sess.Stage = session.StageReady

	tickers, err := c.prices.Tickers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetch tickers")
		c.reply(ctx, sess.ChatID, fmt.Sprintf(tradeErrorText, "price data is unavailable"))
		return
	}
	ticker, ok := pricefeed.FindTicker(tickers, token.Address)
	if !ok || ticker.MinPrice == nil {
		c.reply(ctx, sess.ChatID, fmt.Sprintf(tradeErrorText, "Price data not found for the selected token."))
		return
	}
	market, err := c.prices.MarketTokenFor(ctx, token.Address)
	if err != nil {
		log.Warn().Err(err).Msg("resolve market")
		if clierr.HasCode(err, clierr.CodeNotFound) {
			c.reply(ctx, sess.ChatID, fmt.Sprintf(marketMissingText, token.Symbol))
		} else {
			c.reply(ctx, sess.ChatID, fmt.Sprintf(tradeErrorText, "market data is unavailable"))
		}
		return
	}

	sizeDelta := execution.SizeDeltaUSD(amount, ticker.MinPrice, collateral.Decimals)
	calls := execution.LongMarketOrderCalls(execution.LongOrder{
		Receiver:         s.Address(),
		Market:           common.HexToAddress(market),
		Collateral:       collateralAddr,
		OrderVault:       c.cfg.OrderVault,
		UIFeeReceiver:    c.cfg.UIFeeReceiver,
		CollateralAmount: amount,
		SizeDeltaUSD:     sizeDelta,
		AcceptablePrice:  ticker.MinPrice,
		ReferralCode:     c.cfg.ReferralCode,
		Oracle:           pricefeed.OraclePrices(tickers),
	})
	c.reply(ctx, sess.ChatID, fmt.Sprintf(tradeDetailsText,
		token.Symbol,
		id.FormatUnits(amount, collateral.Decimals), collateral.Symbol,
		pricefeed.USDValue(ticker.MinPrice, token.Decimals),
		id.FormatUnits(sizeDelta, collateral.Decimals),
	))

	handle, err := c.chain.PlaceOrder(ctx, s, calls)
	if err != nil {
		log.Warn().Err(err).Msg("submit order")
		c.reply(ctx, sess.ChatID, fmt.Sprintf(tradeErrorText, failureReason(err)))
		c.showNextActions(ctx, sess.ChatID)
		return
	}
	label := fmt.Sprintf("Executing %s trade", token.Symbol)
	outcome := c.track(ctx, sess, execution.OperationKindTrade, label, market, handle)
	switch outcome.Kind {
	case tracker.KindConfirmed:
		c.reply(ctx, sess.ChatID, tradeSuccessText)
	case tracker.KindFailed:
		c.reply(ctx, sess.ChatID, fmt.Sprintf(tradeErrorText, outcome.Reason))
	}
	c.showNextActions(ctx, sess.ChatID)
}

func (c *Controller) showNextActions(ctx context.Context, chatID int64) {
	c.replyWithButtons(ctx, chatID, nextActionsText, [][]Button{
		{{Text: "📊 View Portfolio", Data: callbackViewPortfolio}},
		{{Text: "🔄 Trade Again", Data: callbackTradeAgain}},
		{{Text: "❓ Get Help", Data: callbackGetHelp}},
	})
}

func (c *Controller) portfolio(ctx context.Context, sess *session.Session) {
	if !common.IsHexAddress(sess.Address) {
		c.reply(ctx, sess.ChatID, noKeyText)
		return
	}
	account := common.HexToAddress(sess.Address)
	gas, err := c.chain.NativeBalance(ctx, account)
	if err != nil {
		c.log.Error().Err(err).Int64("chat", sess.ChatID).Msg("read gas balance")
		c.reply(ctx, sess.ChatID, unexpectedErrorText)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, portfolioHeaderText, sess.Address, id.FormatUnits(gas, nativeDecimals))
	for _, token := range registry.FaucetTokens() {
		balance, err := c.chain.TokenBalance(ctx, common.HexToAddress(token.Address), account)
		if err != nil {
			c.log.Warn().Err(err).Str("token", token.Symbol).Msg("read portfolio balance")
			fmt.Fprintf(&b, "\n%s: unavailable", token.Symbol)
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", token.Symbol, id.FormatUnits(balance, token.Decimals))
	}
	c.replyWithButtons(ctx, sess.ChatID, b.String(), [][]Button{
		{{Text: "🔄 Trade Again", Data: callbackTradeAgain}},
	})
}

// failureReason picks the most useful short text out of a submit error.
func failureReason(err error) string {
	if reason := execution.RevertReason(err); reason != "" {
		return reason
	}
	if typed, ok := clierr.As(err); ok {
		return typed.Message
	}
	return err.Error()
}
