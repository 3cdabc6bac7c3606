package core

import "time"

// EventKind tags outbound events on the duplex channel.
type EventKind string

const (
	EventLog       EventKind = "log"
	EventChat      EventKind = "chat"
	EventLayer     EventKind = "layer"
	EventResources EventKind = "resources"
	EventOpenURL   EventKind = "open_url"
	EventTools     EventKind = "tools"
)

// LayerStatus is the state of a processing layer in a layer event.
type LayerStatus string

const (
	LayerActive LayerStatus = "active"
	LayerIdle   LayerStatus = "idle"
)

// Event is the wire envelope for every server-to-client message.
type Event struct {
	Type EventKind   `json:"type"`
	Data interface{} `json:"data"`
}

// LogPayload reports an internal stage transition or failure.
type LogPayload struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ChatPayload is a user-visible message.
type ChatPayload struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LayerPayload announces a loop stage going active or idle.
type LayerPayload struct {
	Name   string      `json:"name"`
	Status LayerStatus `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// ResourcesPayload carries raw material gathered by search tools.
type ResourcesPayload struct {
	Kind string `json:"type"`
	Data string `json:"data"`
}

// OpenURLPayload asks the client to open a URL.
type OpenURLPayload struct {
	URL string `json:"url"`
}

// Emitter delivers events to the connected client. Implementations
// must be safe for use from a single session loop; they are never
// called concurrently for the same session.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// NopEmitter discards all events.
var NopEmitter Emitter = EmitterFunc(func(Event) {})

// NewLogEvent builds a log event stamped with the current time.
func NewLogEvent(stage, message string) Event {
	return Event{Type: EventLog, Data: LogPayload{
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now().Format("15:04:05"),
	}}
}

// NewChatEvent builds a chat event.
func NewChatEvent(role Role, content string) Event {
	return Event{Type: EventChat, Data: ChatPayload{Role: role, Content: content}}
}

// NewLayerEvent builds a layer transition event.
func NewLayerEvent(name string, status LayerStatus, data interface{}) Event {
	return Event{Type: EventLayer, Data: LayerPayload{Name: name, Status: status, Data: data}}
}

// NewResourcesEvent builds a resources event.
func NewResourcesEvent(kind, data string) Event {
	return Event{Type: EventResources, Data: ResourcesPayload{Kind: kind, Data: data}}
}

// NewOpenURLEvent builds an open_url event.
func NewOpenURLEvent(url string) Event {
	return Event{Type: EventOpenURL, Data: OpenURLPayload{URL: url}}
}

// NewToolsEvent announces the registered tool names.
func NewToolsEvent(names []string) Event {
	return Event{Type: EventTools, Data: names}
}
