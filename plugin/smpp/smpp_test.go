package smpp

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/google/uuid"

	"github.com/notifico/dispatcher/credential"
	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

type fakeCredentials struct {
	cred credential.Credential
	err  error
}

func (f *fakeCredentials) Credential(ctx context.Context, projectID, credentialID string) (credential.Credential, error) {
	return f.cred, f.err
}

type fakeRecorder struct {
	results []error
}

func (f *fakeRecorder) RecordPipelineResult(ctx context.Context, eventID, notificationID, pipelineID string, err error) {
}
func (f *fakeRecorder) RecordMessageResult(ctx context.Context, eventID, notificationID, messageID, channel string, err error) {
	f.results = append(f.results, err)
}

func newContext() *pipeline.Context {
	pctx := pipeline.New(uuid.Must(uuid.NewV7()), "proj-1", "order.shipped", nil,
		recipient.Recipient{ID: "rec-1"}, "sms", recipient.Contact{Channel: "sms", Address: "15550001111"})
	pctx.AddMessage(pipeline.RenderedTemplate{"body": "your order shipped"})
	pctx.AddMessage(pipeline.RenderedTemplate{"body": "reply STOP to opt out"})
	return pctx
}

// fakeSMSC accepts a bind_transmitter and responds OK to it and to every
// submit_sm it receives.
func fakeSMSC(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		h, err := decodeHeader(buf[:n])
		if err != nil {
			return
		}
		var respID uint32
		switch h.CommandID {
		case cmdBindTransmitter:
			respID = cmdBindTransmitterResp
		case cmdSubmitSM:
			respID = cmdSubmitSMResp
		case cmdUnbind:
			return
		default:
			return
		}
		resp := make([]byte, 16)
		writeHeader(resp, respID, statusOK, h.SequenceNumber)
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func writeHeader(buf []byte, commandID, status, seq uint32) {
	put32(buf[0:4], uint32(len(buf)))
	put32(buf[4:8], commandID)
	put32(buf[8:12], status)
	put32(buf[12:16], seq)
}

func put32(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}

func TestPlugin_ExecuteStep_SubmitsEveryMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go fakeSMSC(t, server)

	creds := &fakeCredentials{cred: credential.Credential{Type: "smpp", Data: json.RawMessage(`{"host":"ignored","system_id":"sys","password":"pw","source_addr":"1000"}`)}}
	recorder := &fakeRecorder{}

	p := New(creds, recorder)
	p.dial = func(network, address string) (net.Conn, error) { return client, nil }

	step := pipeline.SerializedStep{FullyQualifiedStepType: "smpp.send", Params: json.RawMessage(`{"credential":"main"}`)}
	out, err := p.ExecuteStep(context.Background(), newContext(), step)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != engine.StepContinue {
		t.Errorf("expected StepContinue, got %v", out)
	}
	if len(recorder.results) != 2 {
		t.Fatalf("expected 2 recorded results, got %d", len(recorder.results))
	}
	for _, r := range recorder.results {
		if r != nil {
			t.Errorf("expected successful submit, got %v", r)
		}
	}
}

func TestPlugin_ExecuteStep_NoContactFails(t *testing.T) {
	p := New(&fakeCredentials{}, &fakeRecorder{})
	pctx := pipeline.New(uuid.Must(uuid.NewV7()), "proj-1", "e", nil, recipient.Recipient{ID: "rec-1"}, "sms", recipient.Contact{})

	_, err := p.ExecuteStep(context.Background(), pctx, pipeline.SerializedStep{FullyQualifiedStepType: "smpp.send", Params: json.RawMessage(`{}`)})
	if err == nil {
		t.Fatal("expected error for missing contact address")
	}
}
