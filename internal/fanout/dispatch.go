package fanout

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Transport posts one batch of messages upstream. A response with any
// status is returned without error; err is reserved for requests that never
// got a response.
type Transport interface {
	Send(ctx context.Context, messages []Message) (status int, body []byte, err error)
}

// dispatcher sends batches once each. There is no retry.
type dispatcher struct {
	transport   Transport
	concurrency int
	logger      *slog.Logger
}

// content is the shared part of every message in an invocation.
type content struct {
	title string
	body  string
	data  map[string]any
}

// run dispatches batches and returns the outcomes in batch order. Once ctx
// is done no new batch is started; outcomes then cover only the batches that
// were attempted. A batch already in flight runs to completion under the
// transport's own request timeout.
func (d *dispatcher) run(ctx context.Context, batches [][]string, c content) []Outcome {
	if d.concurrency <= 1 || len(batches) <= 1 {
		return d.runSequential(ctx, batches, c)
	}
	return d.runParallel(ctx, batches, c)
}

func (d *dispatcher) runSequential(ctx context.Context, batches [][]string, c content) []Outcome {
	outcomes := make([]Outcome, 0, len(batches))
	for i, batch := range batches {
		if ctx.Err() != nil {
			d.logger.Warn("dispatch stopped", "sent_batches", i, "planned", len(batches), "error", ctx.Err())
			break
		}
		outcomes = append(outcomes, d.send(ctx, i, batch, c))
	}
	return outcomes
}

func (d *dispatcher) runParallel(ctx context.Context, batches [][]string, c content) []Outcome {
	slots := make([]*Outcome, len(batches))

	var g errgroup.Group
	g.SetLimit(min(d.concurrency, len(batches)))
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o := d.send(ctx, i, batch, c)
			slots[i] = &o
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]Outcome, 0, len(batches))
	for _, o := range slots {
		if o != nil {
			outcomes = append(outcomes, *o)
		}
	}
	if len(outcomes) < len(batches) {
		d.logger.Warn("dispatch stopped", "sent_batches", len(outcomes), "planned", len(batches), "error", ctx.Err())
	}
	return outcomes
}

func (d *dispatcher) send(ctx context.Context, index int, tokens []string, c content) Outcome {
	messages := make([]Message, len(tokens))
	for i, to := range tokens {
		messages[i] = Message{
			To:    to,
			Sound: defaultSound,
			Title: c.title,
			Body:  c.body,
			Data:  c.data,
		}
	}

	status, body, err := d.transport.Send(context.WithoutCancel(ctx), messages)
	o := Outcome{
		BatchIndex: index,
		Recipients: len(tokens),
		HTTPStatus: status,
		Body:       string(body),
	}
	if err != nil {
		o.Error = err.Error()
	}
	if !o.Succeeded() {
		d.logger.Warn("batch failed", "batch", index, "recipients", len(tokens), "status", status, "error", err)
	}
	return o
}
