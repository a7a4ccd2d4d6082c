package channelauth

// TelegramAuth always returns NotApplicable: Telegram is long-polled, so
// there is no inbound webhook signature to verify. User-level filtering
// happens in the Telegram channel adapter itself.
type TelegramAuth struct{}

// NewTelegramAuth constructs the (stateless) Telegram verifier.
func NewTelegramAuth() *TelegramAuth { return &TelegramAuth{} }

func (a *TelegramAuth) ChannelName() string    { return "telegram" }
func (a *TelegramAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *TelegramAuth) VerifyRequest(_ map[string]string, _ []byte, _ int64) AuthOutcome {
	return notApplicable()
}
