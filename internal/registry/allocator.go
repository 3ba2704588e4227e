package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// Stream identifiers follow the media server's path convention. Every group
// publishes a full-frame stream at live/{group}/test; when enough clients
// are alive the splitter also publishes one cropped stream per screen at
// live/{group}/test0, test1, and so on.

// FullStreamID returns the group's always-available full-frame stream.
func FullStreamID(groupID string) string {
	return fmt.Sprintf("live/%s/test", groupID)
}

// SlotStreamID returns the cropped stream for screen slot i.
func SlotStreamID(groupID string, i int) string {
	return fmt.Sprintf("live/%s/test%d", groupID, i)
}

// SlotIndex parses a stream ID belonging to groupID. It returns (-1, true)
// for the full-frame stream, (i, true) for slot i, and (0, false) for
// anything else.
func SlotIndex(groupID, streamID string) (int, bool) {
	prefix := fmt.Sprintf("live/%s/test", groupID)
	rest, ok := strings.CutPrefix(streamID, prefix)
	if !ok {
		return 0, false
	}
	if rest == "" {
		return -1, true
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// IsSlotStream reports whether streamID is a per-screen cropped stream of
// groupID. The full-frame stream is shareable; slot streams are exclusive
// to one member.
func IsSlotStream(groupID, streamID string) bool {
	i, ok := SlotIndex(groupID, streamID)
	return ok && i >= 0
}

// AvailableStreams lists the stream IDs a group currently offers. The full
// frame is always present. Cropped slots appear only once at least two
// clients are alive, because a single viewer just plays the full frame and
// the splitter pipeline isn't worth spinning up. The slot count never
// exceeds the group's screen count.
func AvailableStreams(groupID string, screenCount, activeClients int) []string {
	streams := []string{FullStreamID(groupID)}
	if activeClients < 2 {
		return streams
	}
	slots := activeClients
	if slots > screenCount {
		slots = screenCount
	}
	for i := 0; i < slots; i++ {
		streams = append(streams, SlotStreamID(groupID, i))
	}
	return streams
}
