package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/vault"
)

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	msgs []published
	fail map[string]error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if err := f.fail[subject]; err != nil {
		return nil, err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return &jetstream.PubAck{Stream: StreamName, Sequence: uint64(len(f.msgs))}, nil
}

type fakeRecorder map[string][]error

func (r fakeRecorder) RecordPublish(eventType string, err error) {
	r[eventType] = append(r[eventType], err)
}

func TestSubject(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{"clvault_deposit_for_mint", "clvault.events.deposit_for_mint"},
		{"clvault_process_burns", "clvault.events.process_burns"},
		{"transfer", "clvault.events.transfer"},
		{"clvault_a.b c>*", "clvault.events.a_b_c__"},
		{"clvault_", "clvault.events.unknown"},
		{vault.EventTypePrefix + "swap", "clvault.events.swap"},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(tt.eventType))
		})
	}
}

func TestPublishForwardsEventsInOrder(t *testing.T) {
	js := &fakeJetStream{}
	rec := fakeRecorder{}
	p := NewPublisher(js, "osmo1vault", rec)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.Publish(context.Background(), []sdk.Event{
		sdk.NewEvent("clvault_deposit_for_mint", sdk.NewAttribute("sender", "alice"), sdk.NewAttribute("amount0", "100")),
		sdk.NewEvent("clvault_process_mints", sdk.NewAttribute("minted", "100")),
	})

	require.Len(t, js.msgs, 2)
	assert.Equal(t, "clvault.events.deposit_for_mint", js.msgs[0].subject)
	assert.Equal(t, "clvault.events.process_mints", js.msgs[1].subject)

	var msg Message
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &msg))
	assert.Equal(t, uint64(1), msg.Sequence)
	assert.Equal(t, "osmo1vault", msg.Vault)
	assert.Equal(t, "clvault_deposit_for_mint", msg.EventType)
	assert.Equal(t, map[string]string{"sender": "alice", "amount0": "100"}, msg.Attributes)
	assert.True(t, now.Equal(msg.Timestamp))

	require.NoError(t, json.Unmarshal(js.msgs[1].data, &msg))
	assert.Equal(t, uint64(2), msg.Sequence)

	assert.Equal(t, []error{nil}, rec["clvault_deposit_for_mint"])
	assert.Equal(t, []error{nil}, rec["clvault_process_mints"])
}

func TestPublishFailureDoesNotStopBatch(t *testing.T) {
	boom := errors.New("no responders")
	js := &fakeJetStream{fail: map[string]error{"clvault.events.halt": boom}}
	rec := fakeRecorder{}
	p := NewPublisher(js, "osmo1vault", rec)

	p.Publish(context.Background(), []sdk.Event{
		sdk.NewEvent("clvault_halt"),
		sdk.NewEvent("clvault_resume"),
	})

	require.Len(t, js.msgs, 1)
	assert.Equal(t, "clvault.events.resume", js.msgs[0].subject)
	require.Len(t, rec["clvault_halt"], 1)
	assert.ErrorIs(t, rec["clvault_halt"][0], boom)
	assert.Equal(t, []error{nil}, rec["clvault_resume"])
}

func TestPublishWithoutRecorder(t *testing.T) {
	js := &fakeJetStream{}
	p := NewPublisher(js, "osmo1vault", nil)
	p.Publish(context.Background(), nil)
	p.Publish(context.Background(), []sdk.Event{sdk.NewEvent("clvault_unlock")})
	require.Len(t, js.msgs, 1)
}

type fakeStreamManager struct {
	jetstream.JetStream
	got jetstream.StreamConfig
	err error
}

func (f *fakeStreamManager) CreateOrUpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.got = cfg
	return nil, f.err
}

func TestEnsureStream(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithOptions(logger.Options{Level: "info", JSON: true, Out: &buf})
	t.Cleanup(func() { logger.Initialize("info") })

	js := &fakeStreamManager{}
	require.NoError(t, EnsureStream(context.Background(), js))
	assert.Equal(t, StreamName, js.got.Name)
	assert.Equal(t, []string{"clvault.events.>"}, js.got.Subjects)
	assert.Equal(t, jetstream.FileStorage, js.got.Storage)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "events", line["component"])
	assert.Equal(t, StreamName, line["stream"])

	js.err = errors.New("stream name already in use")
	err := EnsureStream(context.Background(), js)
	require.Error(t, err)
	assert.ErrorIs(t, err, js.err)
}
