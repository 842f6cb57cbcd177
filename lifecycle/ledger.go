package lifecycle

import "log/slog"

// UnmeteredLedger approves every spend. It stands in until the wallet
// service is wired in; spends are logged so the costs stay visible.
type UnmeteredLedger struct {
	Log *slog.Logger
}

func (l UnmeteredLedger) Spend(userID string, amount int) error {
	l.Log.Info("Point spend approved",
		slog.String("user", userID),
		slog.Int("amount", amount))
	return nil
}
