package kpi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

// MessageType tags envelopes crossing the worker boundary.
type MessageType string

const (
	MessageCompute MessageType = "compute"
	MessageMetrics MessageType = "metrics"
	MessageError   MessageType = "error"
)

// ErrWorkerClosed is returned by Submit after Close.
var ErrWorkerClosed = errors.New("kpi worker closed")

// Envelope is the only thing exchanged with the worker goroutine. Payloads
// are encoded snapshots, so no memory is shared across the boundary.
type Envelope struct {
	Type    MessageType        `json:"type"`
	ID      string             `json:"id"`
	Payload msgpack.RawMessage `json:"payload,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type job struct {
	msg   []byte
	reply chan []byte
}

// Worker runs Compute on its own goroutine, reachable only through Submit.
type Worker struct {
	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       zerolog.Logger
}

// NewWorker starts a worker. Call Close to stop it.
func NewWorker(log zerolog.Logger) *Worker {
	w := &Worker{
		jobs: make(chan job),
		done: make(chan struct{}),
		log:  log.With().Str("component", "kpi-worker").Logger(),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit sends a compute request carrying the full input snapshot and waits
// for the metrics or an error.
func (w *Worker) Submit(ctx context.Context, in domain.KpiInput) (domain.KpiMetrics, error) {
	if err := ctx.Err(); err != nil {
		return domain.KpiMetrics{}, err
	}
	payload, err := marshal(in)
	if err != nil {
		return domain.KpiMetrics{}, fmt.Errorf("encode kpi input: %w", err)
	}
	id := uuid.NewString()
	msg, err := marshal(Envelope{Type: MessageCompute, ID: id, Payload: payload})
	if err != nil {
		return domain.KpiMetrics{}, fmt.Errorf("encode kpi request: %w", err)
	}

	j := job{msg: msg, reply: make(chan []byte, 1)}
	select {
	case <-ctx.Done():
		return domain.KpiMetrics{}, ctx.Err()
	case <-w.done:
		return domain.KpiMetrics{}, ErrWorkerClosed
	case w.jobs <- j:
	}

	var raw []byte
	select {
	case <-ctx.Done():
		return domain.KpiMetrics{}, ctx.Err()
	case raw = <-j.reply:
	}

	var resp Envelope
	if err := unmarshal(raw, &resp); err != nil {
		return domain.KpiMetrics{}, fmt.Errorf("decode kpi response: %w", err)
	}
	if resp.ID != id {
		return domain.KpiMetrics{}, fmt.Errorf("kpi response id %s does not match request %s", resp.ID, id)
	}
	switch resp.Type {
	case MessageError:
		return domain.KpiMetrics{}, errors.New(resp.Error)
	case MessageMetrics:
		var m domain.KpiMetrics
		if err := unmarshal(resp.Payload, &m); err != nil {
			return domain.KpiMetrics{}, fmt.Errorf("decode kpi metrics: %w", err)
		}
		return m, nil
	default:
		return domain.KpiMetrics{}, fmt.Errorf("unexpected kpi message type %q", resp.Type)
	}
}

// Close stops the worker and waits for it to exit.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case j := <-w.jobs:
			j.reply <- w.handle(j.msg)
		}
	}
}

// handle decodes one request and always produces a reply envelope.
func (w *Worker) handle(msg []byte) []byte {
	var req Envelope
	if err := unmarshal(msg, &req); err != nil {
		return w.reply(Envelope{Type: MessageError, Error: fmt.Sprintf("decode request: %v", err)})
	}
	if req.Type != MessageCompute {
		return w.reply(Envelope{Type: MessageError, ID: req.ID, Error: fmt.Sprintf("unsupported message type %q", req.Type)})
	}

	var in domain.KpiInput
	if err := unmarshal(req.Payload, &in); err != nil {
		return w.reply(Envelope{Type: MessageError, ID: req.ID, Error: fmt.Sprintf("decode input: %v", err)})
	}

	m, err := Compute(in)
	if err != nil {
		w.log.Debug().Err(err).Str("id", req.ID).Msg("kpi compute failed")
		return w.reply(Envelope{Type: MessageError, ID: req.ID, Error: err.Error()})
	}
	payload, err := marshal(m)
	if err != nil {
		return w.reply(Envelope{Type: MessageError, ID: req.ID, Error: fmt.Sprintf("encode metrics: %v", err)})
	}
	return w.reply(Envelope{Type: MessageMetrics, ID: req.ID, Payload: payload})
}

func (w *Worker) reply(e Envelope) []byte {
	b, err := marshal(e)
	if err != nil {
		w.log.Error().Err(err).Str("id", e.ID).Msg("encode kpi reply")
		b, _ = marshal(Envelope{Type: MessageError, ID: e.ID, Error: err.Error()})
	}
	return b
}

// The wire format reuses the json field names.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
