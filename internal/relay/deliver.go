package relay

import (
	"context"
	"time"

	"shotrelay/internal/directory"
	"shotrelay/internal/eventbus"
	logx "shotrelay/pkg/logx"
)

// Report aggregates one fan-out. Per-recipient failures are recorded and
// skipped; they never abort sibling sends and never change the request's
// outcome.
type Report struct {
	Sent        int
	Skipped     int // directory miss: no chat identity for the email
	RateLimited int // denied by the admission gate
	Failed      int // send attempted and rejected

	// Failures lists the emails whose send failed (bounded).
	Failures []string
}

func (r *Report) merge(o Report) {
	r.Sent += o.Sent
	r.Skipped += o.Skipped
	r.RateLimited += o.RateLimited
	r.Failed += o.Failed
	r.Failures = append(r.Failures, o.Failures...)
	if len(r.Failures) > maxRecordedFailures {
		r.Failures = r.Failures[:maxRecordedFailures]
	}
}

const maxRecordedFailures = 100

// Coordinator fans composed bodies out to resolved recipients through the
// chat directory, gated by the shared Throttle.
type Coordinator struct {
	dir      directory.Directory
	throttle *Throttle
	log      logx.Logger
	bus      eventbus.Bus

	// sendTimeout bounds one directory call so a hung backend can't wedge a
	// worker.
	sendTimeout time.Duration
}

func NewCoordinator(dir directory.Directory, throttle *Throttle, log logx.Logger, bus eventbus.Bus) *Coordinator {
	return &Coordinator{dir: dir, throttle: throttle, log: log, bus: bus, sendTimeout: 10 * time.Second}
}

// SetSendTimeout overrides the per-send timeout. Zero keeps the default.
func (c *Coordinator) SetSendTimeout(d time.Duration) {
	if d > 0 {
		c.sendTimeout = d
	}
}

// Deliver sends body to every recipient in rs, prefixed with the step's
// Context header. One composed body is shared per step group.
func (c *Coordinator) Deliver(ctx context.Context, rs RecipientSet, dctx Context, body string) Report {
	var rep Report
	for step, emails := range rs {
		text := dctx.Prefix(step) + body
		for _, email := range emails {
			rep.merge(c.sendOne(ctx, step, email, text))
		}
	}
	return rep
}

// DeliverTo sends one already-personalized text to a single email
// (task-assignment and self-addressed reply paths).
func (c *Coordinator) DeliverTo(ctx context.Context, email, text string) Report {
	return c.sendOne(ctx, "", email, text)
}

func (c *Coordinator) sendOne(ctx context.Context, step, email, text string) Report {
	chatID, err := c.dir.LookupByEmail(ctx, email)
	if err != nil {
		if directory.IsNotFound(err) {
			c.log.Warn("no chat identity for recipient; skipping",
				logx.String("email", email), logx.String("step", step))
		} else {
			c.log.Error("directory lookup failed; skipping recipient",
				logx.String("email", email), logx.Err(err))
		}
		c.publish(eventbus.TypeDeliverySkipped, email, err)
		return Report{Skipped: 1}
	}

	if !c.throttle.Allow() {
		c.log.Warn("send denied by rate limiter; skipping recipient",
			logx.String("email", email), logx.String("step", step))
		c.publish(eventbus.TypeDeliverySkipped, email, nil)
		return Report{RateLimited: 1}
	}

	sctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	err = c.dir.Send(sctx, chatID, text)
	cancel()
	if err != nil {
		// Fire-once-per-recipient: failed sends are recorded, never retried
		// synchronously.
		c.log.Error("send failed", logx.String("email", email), logx.Err(err))
		c.publish(eventbus.TypeDeliveryFailed, email, err)
		rep := Report{Failed: 1}
		rep.Failures = append(rep.Failures, email)
		return rep
	}

	c.log.Info("message sent", logx.String("email", email), logx.String("step", step))
	c.publish(eventbus.TypeDeliverySent, email, nil)
	return Report{Sent: 1}
}

func (c *Coordinator) publish(typ, email string, err error) {
	if c.bus == nil {
		return
	}
	ev := DeliveryEvent{Email: email}
	if err != nil {
		ev.Error = err.Error()
	}
	c.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// DeliveryEvent is the bus payload for per-recipient delivery telemetry.
type DeliveryEvent struct {
	Email string
	Error string
}
