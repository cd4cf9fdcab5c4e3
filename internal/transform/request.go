// Package transform renders stored templates and WebEngage send requests
// into the outbound API payload and the chat record kept in the live chat log.
package transform

// Request is the WebEngage send request carried in a queue item's data.
type Request struct {
	Version      string       `json:"version"`
	Metadata     Metadata     `json:"metadata"`
	WhatsAppData WhatsAppData `json:"whatsAppData"`
}

// Metadata identifies the request on the submitter's side.
type Metadata struct {
	Timestamp string `json:"timestamp"`
	MessageID string `json:"messageId"`
}

type WhatsAppData struct {
	ToNumber     string       `json:"toNumber"`
	FromNumber   string       `json:"fromNumber"`
	TemplateData TemplateData `json:"templateData"`
}

// TemplateData selects a template and supplies its parameters.
type TemplateData struct {
	TemplateName      string   `json:"templateName"`
	TemplateVariables []string `json:"templateVariables"`
	// Type is the header kind: TEXT, IMAGE, VIDEO, DOCUMENT or AUTHENTICATION.
	Type           string `json:"type"`
	MediaURL       string `json:"mediaUrl"`
	FileName       string `json:"fileName"`
	ButtonURLParam string `json:"buttonUrlParam"`
}
