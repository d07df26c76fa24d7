package events

import "fmt"

const (
	// TopicBackground carries content → background requests.
	TopicBackground = "relay.background"
)

// TabTopic is the inbox of one tab's content context.
func TabTopic(tabID string) string {
	return fmt.Sprintf("relay.tab.%s", tabID)
}
