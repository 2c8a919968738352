// Package bot runs the Telegram conversation: key entry, faucet claim,
// allowance approval and a leveraged long order, each write narrated by the
// confirmation tracker.
package bot

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/faucetbot/internal/execution"
	"github.com/ggonzalez94/faucetbot/internal/execution/signer"
	"github.com/ggonzalez94/faucetbot/internal/id"
	"github.com/ggonzalez94/faucetbot/internal/pricefeed"
	"github.com/ggonzalez94/faucetbot/internal/session"
	"github.com/ggonzalez94/faucetbot/internal/tracker"
)

type Button struct {
	Text string
	Data string
}

// Messenger is the chat transport. Send returns the id of the new message.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, buttons [][]Button) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type PriceFeed interface {
	Tickers(ctx context.Context) ([]pricefeed.Ticker, error)
	MarketTokenFor(ctx context.Context, indexToken string) (string, error)
}

type SessionStore interface {
	Load(chatID int64) (session.Session, error)
	Save(sess *session.Session) error
	Delete(chatID int64) error
}

type OperationLog interface {
	Save(record execution.OperationRecord) error
}

// Update is one inbound event, either a text message or a button press.
type Update struct {
	ChatID       int64
	MessageID    int
	Text         string
	CallbackID   string
	CallbackData string
}

func (u Update) IsCallback() bool { return u.CallbackID != "" }

type Settings struct {
	ChainID          int64
	SyntheticsRouter common.Address
	OrderVault       common.Address
	UIFeeReceiver    common.Address
	ReferralCode     [32]byte
	// CallTimeout bounds each chain or price feed call. Zero means
	// defaultCallTimeout.
	CallTimeout time.Duration
}

const defaultCallTimeout = 30 * time.Second

type Deps struct {
	Messenger  Messenger
	Chain      Chain
	Prices     PriceFeed
	Tracker    *tracker.Tracker
	Sessions   SessionStore
	Keys       *session.KeyVault
	Operations OperationLog
	Settings   Settings
	Logger     zerolog.Logger
}

type Controller struct {
	msg      Messenger
	chain    Chain
	prices   PriceFeed
	tracker  *tracker.Tracker
	sessions SessionStore
	keys     *session.KeyVault
	ops      OperationLog
	locks    *session.Locks
	cfg      Settings
	log      zerolog.Logger
}

func New(deps Deps) *Controller {
	tr := deps.Tracker
	if tr == nil {
		tr = tracker.New(tracker.DefaultOptions())
	}
	keys := deps.Keys
	if keys == nil {
		keys = session.NewKeyVault(1024, 30*time.Minute)
	}
	timeout := deps.Settings.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	var chain Chain
	if deps.Chain != nil {
		chain = boundedChain{next: deps.Chain, timeout: timeout}
	}
	var prices PriceFeed
	if deps.Prices != nil {
		prices = boundedPrices{next: deps.Prices, timeout: timeout}
	}
	return &Controller{
		msg:      deps.Messenger,
		chain:    chain,
		prices:   prices,
		tracker:  tr,
		sessions: deps.Sessions,
		keys:     keys,
		ops:      deps.Operations,
		locks:    session.NewLocks(),
		cfg:      deps.Settings,
		log:      deps.Logger,
	}
}

// Handle processes one update. Updates for the same chat are serialized;
// different chats run concurrently.
func (c *Controller) Handle(ctx context.Context, u Update) {
	unlock := c.locks.Lock(u.ChatID)
	defer unlock()

	log := c.log.With().Int64("chat", u.ChatID).Logger()
	sess, err := c.sessions.Load(u.ChatID)
	if err != nil {
		log.Error().Err(err).Msg("load session")
		c.reply(ctx, u.ChatID, unexpectedErrorText)
		return
	}

	if u.IsCallback() {
		c.handleCallback(ctx, &sess, u)
	} else {
		c.handleText(ctx, &sess, u)
	}

	if sess.Stage == "" {
		// logout removed the row; nothing to write back
		return
	}
	if err := c.sessions.Save(&sess); err != nil {
		log.Error().Err(err).Msg("save session")
	}
}

// SweepKeys drops idle keys from the vault every interval until ctx ends.
func (c *Controller) SweepKeys(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.keys.Sweep(); n > 0 {
				c.log.Info().Int("expired", n).Msg("expired idle keys")
			}
		}
	}
}

func (c *Controller) handleText(ctx context.Context, sess *session.Session, u Update) {
	text := strings.TrimSpace(u.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		c.keys.Forget(sess.ChatID)
		sess.Reset()
		sess.Stage = session.StageAwaitingKey
		c.reply(ctx, sess.ChatID, welcomeText)
	case strings.HasPrefix(text, "/logout"):
		c.keys.Forget(sess.ChatID)
		if err := c.sessions.Delete(sess.ChatID); err != nil {
			c.log.Error().Err(err).Int64("chat", sess.ChatID).Msg("delete session")
		}
		*sess = session.Session{}
		c.reply(ctx, u.ChatID, logoutText)
	case strings.HasPrefix(text, "/help"):
		c.reply(ctx, sess.ChatID, helpText)
	case sess.Stage != session.StageAwaitingKey && signer.LooksLikePrivateKey(text):
		// a key pasted at the wrong moment still leaves the chat history
		c.deleteMessage(ctx, sess.ChatID, u.MessageID)
		c.reply(ctx, sess.ChatID, strayKeyText)
	case sess.Stage == session.StageAwaitingKey:
		c.acceptKey(ctx, sess, u)
	case sess.Stage == session.StageAwaitingAmount:
		c.placeOrder(ctx, sess, text)
	default:
		c.log.Debug().Int64("chat", sess.ChatID).Str("stage", string(sess.Stage)).Msg("ignoring text")
	}
}

func (c *Controller) handleCallback(ctx context.Context, sess *session.Session, u Update) {
	data := u.CallbackData
	answer := ""
	switch {
	case strings.HasPrefix(data, callbackSelectCoin):
		answer = fmt.Sprintf("You selected %s", strings.TrimPrefix(data, callbackSelectCoin))
	case data != callbackTradeAgain && strings.HasPrefix(data, callbackTrade):
		answer = fmt.Sprintf("You selected to trade %s", strings.TrimPrefix(data, callbackTrade))
	}
	if err := c.msg.AnswerCallback(ctx, u.CallbackID, answer); err != nil {
		c.log.Debug().Err(err).Msg("answer callback")
	}

	switch {
	case strings.HasPrefix(data, callbackSelectCoin):
		c.claim(ctx, sess, strings.TrimPrefix(data, callbackSelectCoin))
	case data == callbackTradeAgain:
		c.showTradeOptions(ctx, sess.ChatID)
	case data == callbackViewPortfolio:
		c.portfolio(ctx, sess)
	case data == callbackGetHelp:
		c.reply(ctx, sess.ChatID, helpText)
	case strings.HasPrefix(data, callbackTrade):
		c.promptAmount(ctx, sess, strings.TrimPrefix(data, callbackTrade))
	default:
		c.log.Debug().Str("data", data).Msg("unknown callback")
	}
}

// track narrates a submitted write in the chat and records it in the
// operation log before and after.
func (c *Controller) track(ctx context.Context, sess *session.Session, kind execution.OperationKind, label, target string, handle tracker.Handle) tracker.Outcome {
	record := execution.NewOperationRecord(execution.NewOperationID(), kind, label, id.ChainByID(c.cfg.ChainID).CAIP2)
	record.SessionID = sess.ID
	record.From = sess.Address
	record.Target = target
	record.TxHash = handle.Hash().Hex()
	c.saveOperation(record)

	narrator := tracker.NewNarrator(chatChannel{msg: c.msg, chatID: sess.ChatID}, c.log)
	outcome := c.tracker.Track(ctx, tracker.Operation{ID: record.OperationID, Label: label, Handle: handle}, narrator)

	record.Apply(outcome)
	c.saveOperation(record)
	return outcome
}

func (c *Controller) saveOperation(record execution.OperationRecord) {
	if c.ops == nil {
		return
	}
	if err := c.ops.Save(record); err != nil {
		c.log.Warn().Err(err).Str("operation", record.OperationID).Msg("save operation")
	}
}

func (c *Controller) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := c.msg.Delete(ctx, chatID, messageID); err != nil {
		c.log.Debug().Err(err).Int64("chat", chatID).Int("message", messageID).Msg("delete message")
	}
}

func (c *Controller) reply(ctx context.Context, chatID int64, text string) {
	c.replyWithButtons(ctx, chatID, text, nil)
}

func (c *Controller) replyWithButtons(ctx context.Context, chatID int64, text string, buttons [][]Button) {
	if _, err := c.msg.Send(ctx, chatID, text, buttons); err != nil {
		c.log.Error().Err(err).Int64("chat", chatID).Msg("send message")
	}
}

// chatChannel points the narrator at one chat.
type chatChannel struct {
	msg    Messenger
	chatID int64
}

func (ch chatChannel) Send(ctx context.Context, text string) (int, error) {
	return ch.msg.Send(ctx, ch.chatID, text, nil)
}

func (ch chatChannel) Edit(ctx context.Context, messageID int, text string) error {
	return ch.msg.Edit(ctx, ch.chatID, messageID, text)
}

func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
