package trove

import "strings"

const userChannelPrefix = "user:"

// UserChannel composes the pub/sub channel name scoped to a single user.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// ParseUserChannel extracts the user id from a channel name. The second
// return is false when the channel is not a user channel.
func ParseUserChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, userChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, userChannelPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
