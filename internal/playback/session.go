// Package playback drives voice-channel audio: one Session per guild moving through
// Idle, Downloading and Playing. All methods run on the control loop.
package playback

import (
	"github.com/edgard/lunabot/internal/platform"
	"github.com/edgard/lunabot/internal/tempfile"
)

// State is a session's position in the playback lifecycle.
type State int

const (
	Idle State = iota
	Downloading
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Session is the playback state of one guild's voice connection.
type Session struct {
	guildID string
	state   State
	conn    platform.VoiceConn
	current *track
}

// track is a started stream together with the file it owns.
type track struct {
	title     string
	channelID string // text channel that asked for it
	file      *tempfile.Resource
	stream    platform.Stream
}

// Info is a read-only view of a Session.
type Info struct {
	GuildID      string
	State        State
	Title        string
	FilePath     string
	VoiceChannel string
}

func (s *Session) info() Info {
	in := Info{GuildID: s.guildID, State: s.state}
	if s.conn != nil {
		in.VoiceChannel = s.conn.ChannelID()
	}
	if s.current != nil {
		in.Title = s.current.title
		in.FilePath = s.current.file.Path()
	}
	return in
}
