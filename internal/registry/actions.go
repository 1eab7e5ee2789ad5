package registry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/document"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
)

// Publisher pushes change notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the payload sent by the publish action.
type Notification struct {
	RunID      string            `json:"run_id"`
	URL        string            `json:"url"`
	Fragment   string            `json:"fragment"`
	Digest     string            `json:"digest"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
}

type urlKey struct{}

// WithURL records the URL whose fragment changed for the actions it triggers.
func WithURL(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, urlKey{}, url)
}

// URLFrom returns the URL stored by WithURL.
func URLFrom(ctx context.Context) string {
	url, _ := ctx.Value(urlKey{}).(string)
	return url
}

func registerActions(r *Registry, deps Deps) {
	r.RegisterAction("print_tag", ActionOp{Run: printer(deps.Out, true)})
	r.RegisterAction("print_no_tag", ActionOp{Run: printer(deps.Out, false)})
	r.RegisterAction("log", ActionOp{Run: logAction(deps.Logger)})
	if deps.Publisher != nil {
		r.RegisterAction("publish", ActionOp{Run: publishAction(deps), Check: checkTopic(deps.Topic)})
	}
}

// printer writes the positional arguments separated by the "sep" keyword and
// terminated by "end", optionally preceded by the fragment markup.
func printer(out io.Writer, withSubject bool) ActionFunc {
	return func(_ context.Context, subject document.Fragment, args Args) error {
		sep, err := args.NamedString("sep", " ")
		if err != nil {
			return err
		}
		end, err := args.NamedString("end", "\n")
		if err != nil {
			return err
		}
		parts := make([]string, 0, len(args.Positional)+1)
		if withSubject {
			parts = append(parts, subject.Markup())
		}
		for _, a := range args.Positional {
			parts = append(parts, fmt.Sprint(a))
		}
		if _, err := io.WriteString(out, strings.Join(parts, sep)+end); err != nil {
			return fmt.Errorf("print: %w", err)
		}
		return nil
	}
}

func logAction(logger *zap.Logger) ActionFunc {
	return func(ctx context.Context, subject document.Fragment, args Args) error {
		msg, err := args.StringOr(0, "watched fragment changed")
		if err != nil {
			return err
		}
		logger.Info(msg,
			zap.String("url", URLFrom(ctx)),
			zap.String("fragment", subject.Markup()),
		)
		return nil
	}
}

func checkTopic(def string) CheckFunc {
	return func(args Args) error {
		topic, err := args.NamedString("topic", def)
		if err != nil {
			return err
		}
		if topic == "" {
			return fmt.Errorf("no topic configured")
		}
		_, err = args.NamedStringMap("attributes")
		return err
	}
}

// publishAction sends a Notification to the "topic" keyword, falling back to
// the configured default topic.
func publishAction(deps Deps) ActionFunc {
	return func(ctx context.Context, subject document.Fragment, args Args) error {
		topic, err := args.NamedString("topic", deps.Topic)
		if err != nil {
			return err
		}
		attrs, err := args.NamedStringMap("attributes")
		if err != nil {
			return err
		}
		payload := Notification{
			RunID:      deps.RunID,
			URL:        URLFrom(ctx),
			Fragment:   subject.Markup(),
			Digest:     sha256.Fingerprint(subject),
			Text:       subject.TextValue(),
			Attributes: attrs,
			DetectedAt: deps.now().UTC(),
		}
		id, err := deps.Publisher.Publish(ctx, topic, payload)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		deps.Logger.Debug("change notification published",
			zap.String("topic", topic),
			zap.String("message_id", id),
			zap.String("url", payload.URL),
		)
		return nil
	}
}
