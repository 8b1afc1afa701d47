// Package telegram implements the telegram.send step: it delivers every
// message currently on the pipeline context to the recipient's Telegram
// chat ID or public @username, using the project's registered bot
// credential.
package telegram

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/pipeline"
)

const (
	stepSend = "telegram.send"

	// CredentialType is the CREDENTIAL_TYPE this plugin expects from the
	// credential store.
	CredentialType = "telegram_bot"
)

// Credential is the shape a "telegram_bot" credential decodes into.
type Credential struct {
	BotToken string `json:"bot_token"`
}

type botFactory func(token string) (sender, error)

// sender is the subset of *tgbotapi.BotAPI this plugin needs, narrowed so
// tests can substitute a fake without standing up a real bot.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Plugin sends rendered messages over Telegram.
type Plugin struct {
	credentials interfaces.CredentialStorage
	recorder    interfaces.Recorder
	newBot      botFactory
}

// New builds a telegram Plugin. The bot credential to use is named per step
// by the step's "credential" field.
func New(credentials interfaces.CredentialStorage, recorder interfaces.Recorder) *Plugin {
	return &Plugin{
		credentials: credentials,
		recorder:    recorder,
		newBot: func(token string) (sender, error) {
			return tgbotapi.NewBotAPI(token)
		},
	}
}

// Steps implements engine.Plugin.
func (p *Plugin) Steps() []string { return []string{stepSend} }

type sendParams struct {
	CredentialID string `json:"credential"`
}

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
	var tgCred Credential
	if err := cred.DecodeAs(CredentialType, &tgCred); err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidCredentialFormat, step.FullyQualifiedStepType, err)
	}

	bot, err := p.newBot(tgCred.BotToken)
	if err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidCredentialFormat, step.FullyQualifiedStepType, err)
	}

	// A telegram contact is either a numeric chat ID or a public @username.
	var toChat func(body string) tgbotapi.MessageConfig
	if strings.HasPrefix(pctx.Contact.Address, "@") {
		username := pctx.Contact.Address
		toChat = func(body string) tgbotapi.MessageConfig {
			return tgbotapi.NewMessageToChannel(username, body)
		}
	} else {
		chatID, err := strconv.ParseInt(pctx.Contact.Address, 10, 64)
		if err != nil {
			return engine.StepContinue, engine.NewError(engine.ErrContactNotSet, step.FullyQualifiedStepType, err)
		}
		toChat = func(body string) tgbotapi.MessageConfig {
			return tgbotapi.NewMessage(chatID, body)
		}
	}

	for _, msg := range pctx.Messages {
		_, sendErr := bot.Send(toChat(msg.Content["body"]))
		if p.recorder != nil {
			p.recorder.RecordMessageResult(ctx, pctx.EventID.String(), pctx.NotificationID.String(), msg.ID.String(), "telegram", sendErr)
		}
		// A failed send for one message never stops the rest of the batch
		// from going out.
	}

	return engine.StepContinue, nil
}
