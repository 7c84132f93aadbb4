// Package notify delivers operator alerts to chat channels. Alerts are
// filtered by event type so operators receive only what they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/optimizer"
)

// Event types.
const (
	EventPlanBuilt = "plan_built"
	EventStartup   = "startup"
)

// Message is one alert. Fields render as "name: value" lines after Body.
type Message struct {
	Title  string
	Body   string
	Fields []Field
}

// Field is a labelled value.
type Field struct {
	Name  string
	Value string
}

// Sender delivers a Message to one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans alerts out to every Sender. Events outside the allowed set are
// dropped; an empty set allows everything.
type Notifier struct {
	senders       []Sender
	events        map[string]bool
	quoteDecimals int
	quoteSymbol   string
	logger        *slog.Logger
}

// NewNotifier creates a Notifier. quoteDecimals and quoteSymbol describe the
// token plans are denominated in.
func NewNotifier(senders []Sender, events []string, quoteDecimals int, quoteSymbol string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:       senders,
		events:        allowed,
		quoteDecimals: quoteDecimals,
		quoteSymbol:   quoteSymbol,
		logger:        logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be delivered.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify sends msg when event is allowed.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// PlanBuilt announces a sized plan.
func (n *Notifier) PlanBuilt(ctx context.Context, c domain.Candidate, p domain.Plan) error {
	if !n.Enabled(EventPlanBuilt) {
		return nil
	}
	return n.dispatch(ctx, n.planMessage(c, p))
}

func (n *Notifier) planMessage(c domain.Candidate, p domain.Plan) Message {
	in := optimizer.ToDisplay(p.AmountIn, n.quoteDecimals)
	out := optimizer.ToDisplay(p.ExpectedAmountOut, n.quoteDecimals)
	minOut := optimizer.ToDisplay(p.Constraints.MinAmountOut, n.quoteDecimals)

	return Message{
		Title: fmt.Sprintf("Plan %s", c.Direction),
		Body:  fmt.Sprintf("Expected profit %.6f %s at block %d", p.ExpectedNetProfitUSD, n.quoteSymbol, p.SnapshotBlock),
		Fields: []Field{
			{Name: "trace", Value: p.ID},
			{Name: "edge", Value: fmt.Sprintf("%d bps", c.RoughEdgeBps)},
			{Name: "amount in", Value: fmt.Sprintf("%.6f %s", in, n.quoteSymbol)},
			{Name: "expected out", Value: fmt.Sprintf("%.6f %s", out, n.quoteSymbol)},
			{Name: "min out", Value: fmt.Sprintf("%.6f %s", minOut, n.quoteSymbol)},
			{Name: "ttl", Value: fmt.Sprintf("%d blocks", p.Constraints.TTLBlocks)},
		},
	}
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// plainText renders msg for channels without rich formatting.
func plainText(msg Message) string {
	var b strings.Builder
	b.WriteString(msg.Body)
	for _, f := range msg.Fields {
		b.WriteString("\n")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}
