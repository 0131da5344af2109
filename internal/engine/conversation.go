package engine

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultConversationID is used when the location has no /c/<id> segment.
const DefaultConversationID = "default"

var conversationPath = regexp.MustCompile(`/c/([^/]+)`)

// ConversationID extracts the conversation id from a page location.
func ConversationID(location string) string {
	path := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		path = u.Path
	}
	if m := conversationPath.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return DefaultConversationID
}

var chatHosts = []string{"chatgpt.com", "chat.openai.com"}

// IsChatHost reports whether location is on a known chat host.
func IsChatHost(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range chatHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
