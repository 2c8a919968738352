package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Channel is the chat surface a Narrator writes to. Send returns an id that
// Edit can later target.
type Channel interface {
	Send(ctx context.Context, text string) (int, error)
	Edit(ctx context.Context, messageID int, text string) error
}

const WarningText = "⚠️ This is taking longer than usual. The RPC or blockchain might be experiencing delays."

// Narrator renders tracker events as one status message that is edited in
// place, plus separate warning messages.
type Narrator struct {
	ch        Channel
	log       zerolog.Logger
	label     string
	messageID int
	finished  bool
}

func NewNarrator(ch Channel, log zerolog.Logger) *Narrator {
	return &Narrator{ch: ch, log: log}
}

func (n *Narrator) Started(ctx context.Context, op Operation) {
	n.label = op.Label
	id, err := n.ch.Send(ctx, fmt.Sprintf("🕒 %s in progress. Please wait...", op.Label))
	if err != nil {
		n.log.Warn().Err(err).Str("op", op.Label).Msg("send status message")
		return
	}
	n.messageID = id
}

func (n *Narrator) Progress(ctx context.Context, u Update) {
	if n.finished || n.messageID == 0 {
		return
	}
	text := fmt.Sprintf("🕒 %s in progress%s\n⏱️ Time elapsed: %ds\n(The blockchain might be slow, please be patient)",
		u.Label, u.Indicator, int(u.Elapsed/time.Second))
	if err := n.ch.Edit(ctx, n.messageID, text); err != nil {
		n.log.Debug().Err(err).Str("op", u.Label).Msg("edit status message")
	}
}

func (n *Narrator) Warning(ctx context.Context, u Update) {
	if n.finished {
		return
	}
	if _, err := n.ch.Send(ctx, WarningText); err != nil {
		n.log.Debug().Err(err).Str("op", u.Label).Msg("send slow warning")
	}
}

// Finished writes the terminal status exactly once. It survives cancellation
// of ctx so the user always sees how tracking ended.
func (n *Narrator) Finished(ctx context.Context, o Outcome) {
	if n.finished {
		return
	}
	n.finished = true
	ctx = context.WithoutCancel(ctx)
	text := OutcomeText(n.label, o)
	if n.messageID != 0 {
		err := n.ch.Edit(ctx, n.messageID, text)
		if err == nil {
			return
		}
		n.log.Warn().Err(err).Str("op", n.label).Msg("edit final status")
	}
	if _, err := n.ch.Send(ctx, text); err != nil {
		n.log.Error().Err(err).Str("op", n.label).Msg("send final status")
	}
}

// OutcomeText is the final status line for an operation.
func OutcomeText(label string, o Outcome) string {
	switch o.Kind {
	case KindConfirmed:
		return fmt.Sprintf("✅ %s completed successfully!", label)
	case KindTimedOut:
		return fmt.Sprintf("⌛ %s is still unconfirmed after %ds. It may still go through, so check your balance before retrying.\nTx: %s",
			label, int(o.Elapsed/time.Second), o.Hash.Hex())
	case KindCancelled:
		return fmt.Sprintf("⏹️ Stopped tracking %s. The transaction itself was not cancelled.\nTx: %s", label, o.Hash.Hex())
	default:
		return fmt.Sprintf("❌ %s encountered an issue:\n%s\n\nPlease try again later.", label, o.Reason)
	}
}

// LogObserver narrates to a zerolog logger, for terminal use.
type LogObserver struct {
	Log zerolog.Logger
}

func (l LogObserver) Started(_ context.Context, op Operation) {
	l.Log.Info().Str("op", op.Label).Str("tx", op.Handle.Hash().Hex()).Msg("tracking transaction")
}

func (l LogObserver) Progress(_ context.Context, u Update) {
	l.Log.Info().Str("op", u.Label).Dur("elapsed", u.Elapsed).Int("attempt", u.Attempt).Msg("waiting for confirmation")
}

func (l LogObserver) Warning(_ context.Context, u Update) {
	l.Log.Warn().Str("op", u.Label).Dur("elapsed", u.Elapsed).Msg("confirmation is taking longer than usual")
}

func (l LogObserver) Finished(_ context.Context, o Outcome) {
	l.Log.Info().Str("outcome", string(o.Kind)).Str("reason", o.Reason).Dur("elapsed", o.Elapsed).Msg("tracking finished")
}
