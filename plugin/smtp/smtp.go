// Package smtp implements the smtp.send step: it delivers every message
// currently on the pipeline context as an email to the recipient's address,
// using the project's registered SMTP credential.
package smtp

import (
	"context"
	"encoding/json"

	gomail "github.com/wneessen/go-mail"

	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/pipeline"
)

const (
	stepSend = "smtp.send"

	// CredentialType is the CREDENTIAL_TYPE this plugin expects from the
	// credential store.
	CredentialType = "smtp"
)

// Credential is the shape an "smtp" credential decodes into.
type Credential struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type sendParams struct {
	CredentialID string `json:"credential"`
}

// Plugin sends rendered messages over SMTP.
type Plugin struct {
	credentials interfaces.CredentialStorage
	recorder    interfaces.Recorder
}

// New builds an smtp Plugin.
func New(credentials interfaces.CredentialStorage, recorder interfaces.Recorder) *Plugin {
	return &Plugin{credentials: credentials, recorder: recorder}
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
	var smtpCred Credential
	if err := cred.DecodeAs(CredentialType, &smtpCred); err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidCredentialFormat, step.FullyQualifiedStepType, err)
	}

	client, err := gomail.NewClient(smtpCred.Host,
		gomail.WithPort(smtpCred.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(smtpCred.Username),
		gomail.WithPassword(smtpCred.Password),
	)
	if err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidCredentialFormat, step.FullyQualifiedStepType, err)
	}

	for _, msg := range pctx.Messages {
		email := gomail.NewMsg()
		sendErr := email.From(smtpCred.From)
		if sendErr == nil {
			sendErr = email.To(pctx.Contact.Address)
		}
		if sendErr == nil {
			email.Subject(msg.Content["subject"])
			email.SetBodyString(gomail.TypeTextHTML, msg.Content["body"])
			sendErr = client.DialAndSendWithContext(ctx, email)
		}
		if p.recorder != nil {
			p.recorder.RecordMessageResult(ctx, pctx.EventID.String(), pctx.NotificationID.String(), msg.ID.String(), "smtp", sendErr)
		}
	}

	return engine.StepContinue, nil
}
