package host

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pierrec/lz4/v4"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
)

const (
	metaKind = "kind"
	metaFrom = "from"
	metaSeq  = "seq"
)

// Bus carries cross-chain messages. Each chain subscribes to the topic named
// by its hex id. Publish blocks until every subscriber acked, so messages from
// one sender reach a recipient in send order.
type Bus struct {
	ch  *gochannel.GoChannel
	log zerolog.Logger
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		ch: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, watermillLogger{l: log}),
		log: log,
	}
}

func (b *Bus) Publish(dest addressing.ChainID, m protocol.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return eris.Wrapf(err, "encode %s", m.Kind)
	}
	payload, err := compress(raw)
	if err != nil {
		return err
	}
	wm := message.NewMessage(watermill.NewUUID(), payload)
	wm.Metadata.Set(metaKind, m.Kind)
	wm.Metadata.Set(metaFrom, m.From.String())
	wm.Metadata.Set(metaSeq, strconv.FormatUint(m.Seq, 10))
	return b.ch.Publish(dest.String(), wm)
}

// Subscribe feeds messages for dest to fn until ctx ends. fn must not block.
func (b *Bus) Subscribe(ctx context.Context, dest addressing.ChainID, fn func(protocol.Message)) error {
	msgs, err := b.ch.Subscribe(ctx, dest.String())
	if err != nil {
		return eris.Wrapf(err, "subscribe %s", dest.Short())
	}
	go func() {
		for wm := range msgs {
			m, err := decodeMessage(wm.Payload)
			if err != nil {
				b.log.Error().Err(err).Str("topic", dest.Short()).Str("kind", wm.Metadata.Get(metaKind)).Msg("drop undecodable message")
				wm.Ack()
				continue
			}
			fn(m)
			wm.Ack()
		}
	}()
	return nil
}

func (b *Bus) Close() error { return b.ch.Close() }

func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, eris.Wrap(err, "lz4")
	}
	if err := zw.Close(); err != nil {
		return nil, eris.Wrap(err, "lz4")
	}
	return buf.Bytes(), nil
}

func decodeMessage(payload []byte) (protocol.Message, error) {
	var m protocol.Message
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return m, eris.Wrap(err, "lz4")
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, eris.Wrap(err, "decode message")
	}
	return m, nil
}

// watermillLogger routes watermill's internal logs through zerolog.
type watermillLogger struct {
	l zerolog.Logger
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.l.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.l.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.l.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{l: w.l.With().Fields(map[string]any(fields)).Logger()}
}
