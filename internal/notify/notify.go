package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"campaign-console/internal/auth"
	"campaign-console/internal/cache"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/gateway"
	"campaign-console/internal/playback"
)

// Kind is the error taxonomy the console reacts to.
type Kind int

const (
	KindNone Kind = iota
	KindSession
	KindValidation
	KindRemote
	KindNotReady
	KindNetwork
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	case KindNotReady:
		return "not_ready"
	case KindNetwork:
		return "network"
	case KindInternal:
		return "internal"
	default:
		return "none"
	}
}

const (
	networkMessage     = "Cannot reach the server. Check your connection and try again."
	notEditableMessage = "This campaign can no longer be edited."
	noSelectionMessage = "Open a campaign first."
	internalMessage    = "Something went wrong. Restart the console and try again."
)

// Classify maps an operation error to its Kind. Superseded and cancelled work is KindNone.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		apiErr *gateway.APIError
		valErr *gateway.ValidationError
		netErr net.Error
	)
	switch {
	case errors.Is(err, gateway.ErrSessionExpired):
		return KindSession
	case errors.Is(err, gateway.ErrAudioNotReady):
		return KindNotReady
	case errors.Is(err, context.Canceled),
		errors.Is(err, campaigns.ErrSuperseded),
		errors.Is(err, playback.ErrSuperseded):
		return KindNone
	case errors.As(err, &valErr),
		errors.Is(err, campaigns.ErrNotEditable),
		errors.Is(err, campaigns.ErrNoSelection),
		errors.Is(err, campaigns.ErrInvalidID),
		errors.Is(err, campaigns.ErrInvalidFile),
		errors.Is(err, playback.ErrNoConversation):
		return KindValidation
	case errors.Is(err, cache.ErrClosed), errors.Is(err, cache.ErrNoFetcher):
		return KindInternal
	case errors.As(err, &apiErr):
		return KindRemote
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindNetwork
	}
}

// Notification is the user-facing result of a failed operation.
type Notification struct {
	Kind    Kind
	Op      string
	Message string
	Fields  map[string]string
}

// Message renders the text shown to operators for err.
func Message(err error) string {
	var (
		apiErr *gateway.APIError
		valErr *gateway.ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		keys := make([]string, 0, len(valErr.Fields))
		for k := range valErr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+" "+valErr.Fields[k])
		}
		return "Please check the form: " + strings.Join(parts, "; ") + "."
	case errors.Is(err, campaigns.ErrNotEditable):
		return notEditableMessage
	case errors.Is(err, campaigns.ErrNoSelection):
		return noSelectionMessage
	case errors.As(err, &apiErr):
		return apiErr.UserMessage()
	case errors.Is(err, campaigns.ErrInvalidFile):
		return "Choose a file to attach."
	case Classify(err) == KindValidation:
		return "Please check the form and try again."
	case Classify(err) == KindInternal:
		return internalMessage
	default:
		return networkMessage
	}
}

type Options struct {
	// Sink receives every notification meant for the operator.
	Sink   func(Notification)
	Logger *slog.Logger
	// Hub forwards remote and network failures to Sentry. Nil disables reporting.
	Hub *sentry.Hub
}

// Notifier converts failures at operation boundaries into notifications.
type Notifier struct {
	sink func(Notification)
	log  *slog.Logger
	hub  *sentry.Hub
}

func New(opts Options) *Notifier {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{sink: opts.Sink, log: log.With("component", "notify"), hub: opts.Hub}
}

// Report handles err from operation op. It returns the notification and whether one
// was emitted. Session expiries, not-ready resources and superseded work emit nothing.
func (n *Notifier) Report(ctx context.Context, op string, err error) (Notification, bool) {
	kind := Classify(err)
	switch kind {
	case KindNone, KindNotReady:
		return Notification{}, false
	case KindSession:
		n.log.Info("session expired", "op", op)
		return Notification{}, false
	}

	note := Notification{Kind: kind, Op: op, Message: Message(err)}
	var valErr *gateway.ValidationError
	if errors.As(err, &valErr) {
		note.Fields = valErr.Fields
	}

	level := slog.LevelWarn
	switch kind {
	case KindValidation:
		level = slog.LevelDebug
	case KindInternal:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, "operation failed", "op", op, "kind", kind.String(), "err", err)

	if kind == KindRemote || kind == KindNetwork || kind == KindInternal {
		n.capture(ctx, op, kind, err)
	}
	if n.sink != nil {
		n.sink(note)
	}
	return note, true
}

func (n *Notifier) capture(ctx context.Context, op string, kind Kind, err error) {
	hub := n.hub
	if h := sentry.GetHubFromContext(ctx); h != nil {
		hub = h
	}
	if hub == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("op", op)
		scope.SetTag("kind", kind.String())
		if sess, ok := auth.FromContext(ctx); ok && sess.Authenticated {
			scope.SetUser(sentry.User{ID: sess.UserID, Email: sess.Email})
			scope.SetTag("auth.mode", string(sess.Mode))
		}
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			scope.SetTag("http.status", fmt.Sprint(apiErr.Status))
			scope.SetTag("http.path", apiErr.Path)
		}
		hub.CaptureException(err)
	})
}

// InitSentry configures the global Sentry client. With an empty DSN it is a no-op and
// returns a nil hub. The returned flush func should run before exit.
func InitSentry(dsn, env, release string) (*sentry.Hub, func(), error) {
	if dsn == "" {
		return nil, func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, func() {}, fmt.Errorf("sentry.Init: %w", err)
	}
	return sentry.CurrentHub(), func() { sentry.Flush(2 * time.Second) }, nil
}
