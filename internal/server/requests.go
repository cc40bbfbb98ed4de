package server

// Request types for WebSocket commands with validation tags.

// ConnectRequest is the request body for session/connect. An empty mode
// selects the configured default mode.
type ConnectRequest struct {
	Mode      string `json:"mode" validate:"omitempty,max=32"`
	Language  string `json:"language" validate:"omitempty,bcp47_language_tag"`
	ServerURL string `json:"server_url" validate:"omitempty,url,max=2048"`
}

// EventsRequest is the request body for session/events.
type EventsRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"omitempty,gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=session agent state"`
}
