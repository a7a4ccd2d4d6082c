package channelauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
)

// DingTalkAuth verifies DingTalk's HMAC-SHA256 webhook signature.
type DingTalkAuth struct {
	secret string
}

// NewDingTalkAuth constructs a verifier bound to a robot's secret.
func NewDingTalkAuth(secret string) *DingTalkAuth {
	return &DingTalkAuth{secret: secret}
}

func (a *DingTalkAuth) ChannelName() string    { return "dingtalk" }
func (a *DingTalkAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *DingTalkAuth) VerifyRequest(headers map[string]string, _ []byte, timestampNow int64) AuthOutcome {
	timestamp, ok := header(headers, "timestamp")
	if !ok {
		return rejected("missing timestamp header")
	}
	signature, ok := header(headers, "sign")
	if !ok {
		return rejected("missing sign header")
	}

	tsMillis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return rejected("invalid timestamp format")
	}
	ts := tsMillis / 1000 // DingTalk uses milliseconds
	if abs(timestampNow-ts) > a.MaxTimestampAge() {
		return rejected("request timestamp too old")
	}

	stringToSign := fmt.Sprintf("%s\n%s", timestamp, a.secret)
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(stringToSign))
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return rejected("invalid signature")
	}
	return authenticated("dingtalk")
}
