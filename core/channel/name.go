package channel

import (
	"strings"

	"github.com/google/uuid"
	"github.com/grafana/regexp"
)

// MaxNameLength bounds channel and group names. Network-backed layers embed
// names in storage keys, so the bound keeps composed keys well under common
// backend limits.
const MaxNameLength = 199

var (
	channelNameRe = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+((!|\?)[a-zA-Z0-9\-_.]*)?$`)
	groupNameRe   = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)
)

// ValidChannelName reports whether name is a well-formed channel name:
// letters, digits, hyphens, underscores, and periods, with at most one "!"
// or "?" separator.
func ValidChannelName(name string) bool {
	return len(name) > 0 && len(name) <= MaxNameLength && channelNameRe.MatchString(name)
}

// ValidGroupName reports whether name is a well-formed group name. Groups do
// not allow the "!" and "?" separators.
func ValidGroupName(name string) bool {
	return len(name) > 0 && len(name) <= MaxNameLength && groupNameRe.MatchString(name)
}

// SingleReader reports whether the channel name designates a single-reader
// channel ("name!suffix"). Only the process that minted such a name should
// receive from it.
func SingleReader(name string) bool {
	return strings.Contains(name, "!")
}

// Local reports whether the channel name designates a process-local channel
// ("name?suffix").
func Local(name string) bool {
	return strings.Contains(name, "?")
}

// BaseName strips the "!" or "?" suffix from a channel name, leaving the
// routable base: BaseName("chat.send!f3a9") == "chat.send!".
//
// Routes are registered against the base form so one route covers every
// minted instance of a reply channel.
func BaseName(name string) string {
	if i := strings.IndexAny(name, "!?"); i >= 0 {
		return name[:i+1]
	}
	return name
}

// MintChannelName appends a random suffix to a "!"- or "?"-terminated
// prefix. Layer implementations verify prefix shape with
// ValidNewChannelPrefix and collision-check against live channels.
func MintChannelName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + suffix
}

// ValidNewChannelPrefix reports whether prefix is acceptable for NewChannel:
// a valid channel name ending in "!" or "?".
func ValidNewChannelPrefix(prefix string) bool {
	if !strings.HasSuffix(prefix, "!") && !strings.HasSuffix(prefix, "?") {
		return false
	}
	return ValidChannelName(prefix[:len(prefix)-1])
}
