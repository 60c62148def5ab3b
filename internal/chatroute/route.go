// Package chatroute defines a thin, chat-platform-agnostic adapter for the
// handful of operations a job's chat binding needs: post a message, edit it
// in place as a run progresses, show a typing indicator, and delete it.
// Concrete adapters live alongside; wiring a new chat platform in means
// implementing ChatRoute, nothing more.
package chatroute

// ChatRoute is the dialect every chat-platform adapter implements.
type ChatRoute interface {
	// SendMessage posts text to routeID and returns a platform message id
	// that later EditMessage/DeleteMessage calls use to address it.
	SendMessage(routeID, text string) (msgID string, err error)
	// EditMessage replaces the text of a previously sent message in place.
	EditMessage(routeID, msgID, text string) error
	// SendTyping signals that a response is being composed. Platforms that
	// don't expose this concept treat it as a no-op.
	SendTyping(routeID string) error
	// DeleteMessage removes a previously sent message.
	DeleteMessage(routeID, msgID string) error
}
