// Package whatsapp implements the whatsapp.send step against the WhatsApp
// Cloud API. The API has no official Go SDK in wide use, so this plugin
// talks to it directly over net/http, mirroring the request body the Cloud
// API's /messages endpoint expects.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/pipeline"
)

const (
	stepSend     = "whatsapp.send"
	cloudAPIBase = "https://graph.facebook.com/v19.0"

	// CredentialType is the CREDENTIAL_TYPE this plugin expects from the
	// credential store.
	CredentialType = "whatsapp_cloud"
)

// defaultLanguageCode is used when a credential doesn't declare one. The
// Cloud API requires some language code on every send even for plain text
// messages, so a project that never sets DefaultLanguageCode still gets a
// workable default rather than an empty field.
const defaultLanguageCode = "en_US"

// Credential is the shape a "whatsapp_cloud" credential decodes into.
type Credential struct {
	PhoneNumberID       string `json:"phone_number_id"`
	AccessToken         string `json:"access_token"`
	DefaultLanguageCode string `json:"default_language_code"`
}

type sendParams struct {
	CredentialID string `json:"credential"`
	// PreviewURL asks the Cloud API to unfurl any link in the message body
	// into a preview card. Defaults to false, matching the API's own
	// default when the field is omitted.
	PreviewURL bool `json:"preview_url"`
}

// textMessage mirrors the Cloud API's text message payload:
// messaging_product/to/language.code/text.{preview_url,body}.
type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Language         struct {
		Code string `json:"code"`
	} `json:"language"`
	Text struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

// Plugin sends rendered messages over the WhatsApp Cloud API.
type Plugin struct {
	credentials interfaces.CredentialStorage
	recorder    interfaces.Recorder
	httpClient  *http.Client
	baseURL     string
}

// New builds a whatsapp Plugin.
func New(credentials interfaces.CredentialStorage, recorder interfaces.Recorder) *Plugin {
	return &Plugin{
		credentials: credentials,
		recorder:    recorder,
		httpClient:  http.DefaultClient,
		baseURL:     cloudAPIBase,
	}
}

// Steps implements engine.Plugin.
func (p *Plugin) Steps() []string { return []string{stepSend} }

// ExecuteStep implements engine.Plugin.
func (p *Plugin) ExecuteStep(ctx context.Context, pctx *pipeline.Context, step pipeline.SerializedStep) (engine.StepOutput, error) {
	var params sendParams
	if len(step.Params) > 0 {
		if err := json.Unmarshal(step.Params, &params); err != nil {
			return engine.StepContinue, engine.NewError(engine.ErrInvalidStep, step.FullyQualifiedStepType, err)
		}
	}
	if err := engine.RequireContact(pctx, step.FullyQualifiedStepType); err != nil {
		return engine.StepContinue, err
	}

	cred, err := p.credentials.Credential(ctx, pctx.ProjectID, params.CredentialID)
	if err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrCredentialNotFound, step.FullyQualifiedStepType, err)
	}
	var waCred Credential
	if err := cred.DecodeAs(CredentialType, &waCred); err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidCredentialFormat, step.FullyQualifiedStepType, err)
	}

	url := fmt.Sprintf("%s/%s/messages", p.baseURL, waCred.PhoneNumberID)

	languageCode := waCred.DefaultLanguageCode
	if languageCode == "" {
		languageCode = defaultLanguageCode
	}

	for _, msg := range pctx.Messages {
		body := textMessage{MessagingProduct: "whatsapp", To: pctx.Contact.Address, Type: "text"}
		body.Language.Code = languageCode
		body.Text.PreviewURL = params.PreviewURL
		body.Text.Body = msg.Content["body"]

		sendErr := p.send(ctx, url, waCred.AccessToken, body)
		if p.recorder != nil {
			p.recorder.RecordMessageResult(ctx, pctx.EventID.String(), pctx.NotificationID.String(), msg.ID.String(), "whatsapp", sendErr)
		}
	}

	return engine.StepContinue, nil
}

func (p *Plugin) send(ctx context.Context, url, token string, body textMessage) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp cloud api: unexpected status %d", resp.StatusCode)
	}
	return nil
}
