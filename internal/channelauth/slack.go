package channelauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// SlackAuth verifies Slack's `v0=` HMAC-SHA256 webhook signature.
type SlackAuth struct {
	signingSecret string
}

// NewSlackAuth constructs a verifier bound to a workspace's signing secret.
func NewSlackAuth(signingSecret string) *SlackAuth {
	return &SlackAuth{signingSecret: signingSecret}
}

func (a *SlackAuth) ChannelName() string    { return "slack" }
func (a *SlackAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *SlackAuth) VerifyRequest(headers map[string]string, body []byte, timestampNow int64) AuthOutcome {
	timestamp, ok := header(headers, "x-slack-request-timestamp")
	if !ok {
		return rejected("missing x-slack-request-timestamp")
	}
	signature, ok := header(headers, "x-slack-signature")
	if !ok {
		return rejected("missing x-slack-signature")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return rejected("invalid timestamp format")
	}
	if abs(timestampNow-ts) > a.MaxTimestampAge() {
		return rejected("request timestamp too old")
	}

	baseString := fmt.Sprintf("v0:%s:%s", timestamp, body)
	mac := hmac.New(sha256.New, []byte(a.signingSecret))
	mac.Write([]byte(baseString))
	computed := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return rejected("invalid signature")
	}
	return authenticated("slack")
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
