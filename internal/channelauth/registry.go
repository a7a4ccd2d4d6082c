package channelauth

import (
	"fmt"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
)

// Registry dispatches VerifyRequest to the registered ChannelAuth for a
// named channel.
type Registry struct {
	authenticators map[string]ChannelAuth
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{authenticators: map[string]ChannelAuth{}}
}

// Register adds (or replaces) a channel's authenticator.
func (r *Registry) Register(auth ChannelAuth) {
	r.authenticators[auth.ChannelName()] = auth
}

// HasChannel reports whether a channel has a registered authenticator.
func (r *Registry) HasChannel(channel string) bool {
	_, ok := r.authenticators[channel]
	return ok
}

// Verify dispatches to the named channel's authenticator.
func (r *Registry) Verify(channel string, headers map[string]string, body []byte, timestampNow int64) (AuthOutcome, error) {
	auth, ok := r.authenticators[channel]
	if !ok {
		return AuthOutcome{}, scerr.Channel(fmt.Sprintf("no authenticator registered for channel: %s", channel))
	}
	return auth.VerifyRequest(headers, body, timestampNow), nil
}
