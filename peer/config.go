package peer

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// DefaultGatherTimeout bounds ICE candidate gathering in CreateOffer and
// CreateAnswer when Config.GatherTimeout is zero.
const DefaultGatherTimeout = 15 * time.Second

// Config configures a Connection.
type Config struct {
	// ICEServers lists STUN/TURN URLs, e.g. "stun:stun.l.google.com:19302".
	ICEServers []string
	// Username and Credential apply to every TURN server in ICEServers.
	Username   string
	Credential string

	// IncludeLoopback gathers loopback candidates, needed when peers run
	// on the same host without another usable interface.
	IncludeLoopback bool

	// GatherTimeout bounds vanilla ICE gathering.
	GatherTimeout time.Duration
}

func (c Config) gatherTimeout() time.Duration {
	if c.GatherTimeout <= 0 {
		return DefaultGatherTimeout
	}
	return c.GatherTimeout
}

func (c Config) configuration() webrtc.Configuration {
	if len(c.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs:       c.ICEServers,
				Username:   c.Username,
				Credential: c.Credential,
			},
		},
	}
}

func (c Config) api() *webrtc.API {
	settingEngine := webrtc.SettingEngine{}
	if c.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
}

// ChannelOptions configures a data channel. The zero value is an ordered,
// reliable channel.
type ChannelOptions struct {
	Unordered bool
	// MaxRetransmits makes the channel partially reliable when set.
	MaxRetransmits *uint16
	Protocol       string
}

func (o *ChannelOptions) init() *webrtc.DataChannelInit {
	if o == nil {
		return nil
	}
	ordered := !o.Unordered
	init := &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: o.MaxRetransmits,
	}
	if o.Protocol != "" {
		protocol := o.Protocol
		init.Protocol = &protocol
	}
	return init
}
