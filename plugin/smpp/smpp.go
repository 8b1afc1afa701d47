// Package smpp implements the smpp.send step: it opens a short-lived
// transmitter bind to an SMSC and submits every message on the pipeline
// context as a short message to the recipient's address.
package smpp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/pipeline"
)

const (
	stepSend = "smpp.send"

	// CredentialType is the CREDENTIAL_TYPE this plugin expects from the
	// credential store.
	CredentialType = "smpp"
)

// Credential is the shape an "smpp" credential decodes into.
type Credential struct {
	Host       string `json:"host"`
	SystemID   string `json:"system_id"`
	Password   string `json:"password"`
	SystemType string `json:"system_type"`
	SourceAddr string `json:"source_addr"`
}

type sendParams struct {
	CredentialID string `json:"credential"`
}

// dialer abstracts net.Dial so tests can substitute an in-memory pipe.
type dialer func(network, address string) (net.Conn, error)

// Plugin sends rendered messages over SMPP.
type Plugin struct {
	credentials interfaces.CredentialStorage
	recorder    interfaces.Recorder
	dial        dialer
	timeout     time.Duration
}

// New builds an smpp Plugin.
func New(credentials interfaces.CredentialStorage, recorder interfaces.Recorder) *Plugin {
	return &Plugin{credentials: credentials, recorder: recorder, dial: net.Dial, timeout: 10 * time.Second}
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
	var smppCred Credential
	if err := cred.DecodeAs(CredentialType, &smppCred); err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidCredentialFormat, step.FullyQualifiedStepType, err)
	}

	conn, err := p.dial("tcp", smppCred.Host)
	if err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrStorage, step.FullyQualifiedStepType, fmt.Errorf("dialing smsc: %w", err))
	}
	defer conn.Close()

	_ = conn.SetDeadline(deadline(p.timeout))
	if err := bind(conn, smppCred); err != nil {
		return engine.StepContinue, engine.NewError(engine.ErrInvalidCredentialFormat, step.FullyQualifiedStepType, err)
	}
	defer conn.Write(encodeUnbind(2))

	var seq uint32 = 2
	for _, msg := range pctx.Messages {
		seq++
		sendErr := submit(conn, seq, smppCred.SourceAddr, pctx.Contact.Address, msg.Content["body"])
		if p.recorder != nil {
			p.recorder.RecordMessageResult(ctx, pctx.EventID.String(), pctx.NotificationID.String(), msg.ID.String(), "smpp", sendErr)
		}
	}

	return engine.StepContinue, nil
}

func deadline(d time.Duration) time.Time {
	return timeNow().Add(d)
}

// timeNow is a seam so tests could fake the clock; production always uses
// the real time.
var timeNow = time.Now

func bind(conn net.Conn, cred Credential) error {
	if _, err := conn.Write(encodeBindTransmitter(1, cred.SystemID, cred.Password, cred.SystemType)); err != nil {
		return err
	}
	resp := make([]byte, 272)
	n, err := conn.Read(resp)
	if err != nil {
		return err
	}
	h, err := decodeHeader(resp[:n])
	if err != nil {
		return err
	}
	if h.CommandID != cmdBindTransmitterResp || h.CommandStatus != statusOK {
		return fmt.Errorf("smpp: bind rejected, status=0x%08x", h.CommandStatus)
	}
	return nil
}

func submit(conn net.Conn, seq uint32, source, dest, message string) error {
	if _, err := conn.Write(encodeSubmitSM(seq, source, dest, message)); err != nil {
		return err
	}
	resp := make([]byte, 272)
	n, err := conn.Read(resp)
	if err != nil {
		return err
	}
	h, err := decodeHeader(resp[:n])
	if err != nil {
		return err
	}
	if h.CommandID != cmdSubmitSMResp || h.CommandStatus != statusOK {
		return fmt.Errorf("smpp: submit_sm rejected, status=0x%08x", h.CommandStatus)
	}
	return nil
}
