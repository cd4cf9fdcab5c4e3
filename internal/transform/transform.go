package transform

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/sungwon/wa-dispatch/internal/provider"
	"github.com/sungwon/wa-dispatch/internal/storage"
)

// Rendering errors. Their text is reported back to the submitter.
var (
	ErrImageLinkMissing    = errors.New("Link to the image file is absent. Please attach a link to the image file.")
	ErrVideoLinkMissing    = errors.New("Link to the video file is absent. Please attach a link to the video file.")
	ErrDocumentLinkMissing = errors.New("Link to the document file is absent. Please attach a link to the document file.")
	ErrInvalidHeaderType   = errors.New("Invalid header type. Header types must be one of 'text', 'image', 'video', or 'document'.")
	ErrCarouselCardsAbsent = errors.New("Carousel cards are absent. Please add carousel cards.")
)

// Build renders the API payload and the chat record for one request.
func Build(tpl *storage.Template, req *Request, user *storage.User) (*provider.Payload, *storage.ChatRecord, error) {
	chat, err := ChatMessage(tpl, req)
	if err != nil {
		return nil, nil, err
	}
	return APIMessage(tpl.TemplateID, req, user), chat, nil
}

// APIMessage builds the send payload. Every message list is present even
// when empty.
func APIMessage(templateID string, req *Request, user *storage.User) *provider.Payload {
	wd := req.WhatsAppData
	td := wd.TemplateData

	from := wd.FromNumber
	if user != nil && user.BusinessWhatsappNumber != "" {
		from = user.BusinessWhatsappNumber
	}

	p := &provider.Payload{
		TemplateID: templateID,
		To:         wd.ToNumber,
		From:       from,
		Message: provider.PayloadMessage{
			HeaderVars:   []string{},
			Variables:    []string{},
			Payload:      []string{},
			CarouselCard: []json.RawMessage{},
			Suffix:       []string{},
		},
	}

	if len(td.TemplateVariables) > 0 {
		p.Message.Variables = append(p.Message.Variables, td.TemplateVariables...)
	}

	if td.MediaURL != "" {
		switch td.Type {
		case "IMAGE", "VIDEO":
			p.MediaAttachment = &provider.MediaAttachment{Type: td.Type, URL: td.MediaURL}
		case "DOCUMENT":
			p.MediaAttachment = &provider.MediaAttachment{
				Type:     "DOCUMENT",
				URL:      td.MediaURL,
				Filename: firstNonEmpty(td.FileName, td.ButtonURLParam, "Document"),
			}
		}
	}

	// A document without a file name already uses the button parameter as its name.
	if td.ButtonURLParam != "" && !(td.Type == "DOCUMENT" && td.FileName == "") {
		p.Message.Suffix = append(p.Message.Suffix, td.ButtonURLParam)
	}

	if td.Type == "AUTHENTICATION" && len(td.TemplateVariables) > 0 {
		p.Message.Suffix = []string{td.TemplateVariables[0]}
	}

	return p
}

var placeholder = regexp.MustCompile(`{{(.*?)}}`)

// ChatMessage renders the human-readable record of the message.
func ChatMessage(tpl *storage.Template, req *Request) (*storage.ChatRecord, error) {
	td := req.WhatsAppData.TemplateData

	ct := storage.ChatTemplate{
		Name:     tpl.Name,
		Category: tpl.Category,
		Message:  fillPlaceholders(tpl.Message, td.TemplateVariables),
	}

	switch strings.ToLower(td.Type) {
	case "text":
		ct.Header = tpl.Header
		ct.HeaderType = "text"
	case "image":
		if td.MediaURL == "" {
			return nil, ErrImageLinkMissing
		}
		ct.Header, ct.HeaderType = td.MediaURL, "image"
	case "video":
		if td.MediaURL == "" {
			return nil, ErrVideoLinkMissing
		}
		ct.Header, ct.HeaderType = td.MediaURL, "video"
	case "document":
		if td.MediaURL == "" {
			return nil, ErrDocumentLinkMissing
		}
		ct.Header, ct.HeaderType = td.MediaURL, "file"
	default:
		if tpl.HeaderType != "" && tpl.HeaderType != "none" {
			return nil, ErrInvalidHeaderType
		}
	}

	if tpl.Footer != "" {
		ct.Footer = tpl.Footer
	}
	if len(tpl.Actions) > 0 && string(tpl.Actions) != "null" {
		ct.Actions = tpl.Actions
	}
	if tpl.Type != "" {
		ct.Category = tpl.Type
	}

	if tpl.SubType == "carousel" {
		ct.SubType = tpl.SubType
		if !hasCards(tpl.Cards) {
			return nil, ErrCarouselCardsAbsent
		}
		ct.Cards = tpl.Cards
	}

	return &storage.ChatRecord{
		To:       req.WhatsAppData.ToNumber,
		Type:     "marketing",
		Template: ct,
	}, nil
}

// PlainChatMessage is the record of a message whose header or media could
// not be rendered. It keeps the template text, with variables filled in.
func PlainChatMessage(tpl *storage.Template, req *Request) *storage.ChatRecord {
	category := tpl.Category
	if tpl.Type != "" {
		category = tpl.Type
	}
	return &storage.ChatRecord{
		To:   req.WhatsAppData.ToNumber,
		Type: "marketing",
		Template: storage.ChatTemplate{
			Name:       tpl.Name,
			Category:   category,
			Message:    fillPlaceholders(tpl.Message, req.WhatsAppData.TemplateData.TemplateVariables),
			HeaderType: tpl.HeaderType,
			Footer:     tpl.Footer,
		},
	}
}

// fillPlaceholders replaces the leftmost {{...}} with each variable in turn.
func fillPlaceholders(msg string, vars []string) string {
	for _, v := range vars {
		loc := placeholder.FindStringIndex(msg)
		if loc == nil {
			break
		}
		msg = msg[:loc[0]] + v + msg[loc[1]:]
	}
	return msg
}

func hasCards(raw json.RawMessage) bool {
	var cards []json.RawMessage
	if err := json.Unmarshal(raw, &cards); err != nil {
		return false
	}
	return len(cards) > 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
