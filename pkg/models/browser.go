package models

// BrowserRequest is a JSON frame sent from a browser to the gateway.
type BrowserRequest struct {
	MsgType string `json:"msg_type"`
	IP      string `json:"ip,omitempty"`
	Msg     string `json:"msg,omitempty"`
}

// BrowserFrame is a JSON frame sent from the gateway to a browser. Data,
// Result, Error, and Message are mutually exclusive depending on Type.
type BrowserFrame struct {
	Type    string      `json:"type"`
	Kind    string      `json:"kind,omitempty"`
	IP      string      `json:"ip,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}
