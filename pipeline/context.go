package pipeline

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/notifico/dispatcher/recipient"
)

// Message is a single rendered template instance produced by a templating
// step and consumed by a transport step. Content holds one string per
// template part ("subject", "body", "markup"...); a channel reads whichever
// parts it understands (SMTP reads "subject" and "body", Telegram/SMPP/
// WhatsApp read "body" alone).
type Message struct {
	ID      uuid.UUID        `json:"id"`
	Content RenderedTemplate `json:"content"`
}

// RenderedTemplate is the output of a template render, keyed by the template
// part name ("subject", "body", "markup"...).
type RenderedTemplate map[string]string

// Context is the mutable, per-pipeline state threaded through every step of
// a single pipeline run. Steps read from and write to it in place; nothing
// about its shape is visible outside the engine and plugins that close over
// it.
type Context struct {
	EventID        uuid.UUID
	NotificationID uuid.UUID
	ProjectID      string
	EventName      string
	EventContext   json.RawMessage
	Recipient      recipient.Recipient
	Channel        string
	Contact        recipient.Contact
	StepNumber     int

	// PluginContexts is an opaque per-plugin scratchpad. Each plugin owns
	// exactly one key, named after its own namespace, and is free to store
	// whatever JSON value it needs between steps within the same pipeline
	// run (a loaded template, an accumulated attachment list...).
	PluginContexts map[string]json.RawMessage

	Messages []Message
}

// New builds a fresh Context for one pipeline run against one recipient
// contact. The notification ID is minted here, once per pipeline, and is
// stable across every step of that pipeline's run.
func New(eventID uuid.UUID, projectID, eventName string, eventContext json.RawMessage, rec recipient.Recipient, channel string, contact recipient.Contact) *Context {
	return &Context{
		EventID:        eventID,
		NotificationID: uuid.Must(uuid.NewV7()),
		ProjectID:      projectID,
		EventName:      eventName,
		EventContext:   eventContext,
		Recipient:      rec,
		Channel:        channel,
		Contact:        contact,
		PluginContexts: make(map[string]json.RawMessage),
	}
}

// PluginContext fetches and decodes the scratchpad value a plugin previously
// stored under namespace, if any.
func (c *Context) PluginContext(namespace string, dst any) (bool, error) {
	raw, ok := c.PluginContexts[namespace]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetPluginContext stores a plugin's scratchpad value under its namespace,
// replacing whatever was there before.
func (c *Context) SetPluginContext(namespace string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.PluginContexts[namespace] = raw
	return nil
}

// NewMessageID mints a fresh time-ordered message ID. Callers that need the
// ID before the message content exists (the templater includes it in the
// render context) call this first and pass the result to AppendMessage.
func NewMessageID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// AppendMessage appends a message with a caller-chosen ID, e.g. one minted
// via NewMessageID ahead of a render that references it.
func (c *Context) AppendMessage(id uuid.UUID, content RenderedTemplate) Message {
	msg := Message{ID: id, Content: content}
	c.Messages = append(c.Messages, msg)
	return msg
}

// AddMessage appends a newly composed message, minting its ID.
func (c *Context) AddMessage(content RenderedTemplate) Message {
	return c.AppendMessage(NewMessageID(), content)
}
