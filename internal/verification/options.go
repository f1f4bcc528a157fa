package verification

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
)

// ResolvePolicy decides when the caller is told the verification is done.
type ResolvePolicy string

const (
	// ResolveOnResult waits for the SDK's terminal result callback.
	ResolveOnResult ResolvePolicy = "result"
	// ResolveOnLaunch resolves with an empty success as soon as the
	// verification UI has been launched.
	ResolveOnLaunch ResolvePolicy = "launch"
)

// LaunchMode decides who presents the verification UI.
type LaunchMode string

const (
	// LaunchByBridge gates the UI on the signal reaching Ready and calls
	// LaunchVerificationUI from the bridge.
	LaunchByBridge LaunchMode = "bridge"
	// LaunchBySDK leaves presentation to the SDK; the bridge goes straight
	// to awaiting the result callback.
	LaunchBySDK LaunchMode = "sdk"
)

// ParseResolvePolicy validates a configured policy name.
func ParseResolvePolicy(s string) (ResolvePolicy, error) {
	switch ResolvePolicy(s) {
	case ResolveOnResult, ResolveOnLaunch:
		return ResolvePolicy(s), nil
	}
	return "", fmt.Errorf("unknown resolve policy %q", s)
}

// ParseLaunchMode validates a configured launch mode name.
func ParseLaunchMode(s string) (LaunchMode, error) {
	switch LaunchMode(s) {
	case LaunchByBridge, LaunchBySDK:
		return LaunchMode(s), nil
	}
	return "", fmt.Errorf("unknown launch mode %q", s)
}

type options struct {
	executor Executor
	config   sdk.Configuration
	policy   ResolvePolicy
	launch   LaunchMode
	timeout  time.Duration
	host     sdk.Host
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a Bridge.
type Option func(*options)

// WithExecutor sets the execution context outcomes are delivered on.
func WithExecutor(e Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithConfiguration sets the configuration passed to StartVerification.
func WithConfiguration(c sdk.Configuration) Option {
	return func(o *options) { o.config = c }
}

func WithResolvePolicy(p ResolvePolicy) Option {
	return func(o *options) { o.policy = p }
}

func WithLaunchMode(m LaunchMode) Option {
	return func(o *options) { o.launch = m }
}

// WithTimeout fails requests that are still pending after d. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHost sets the default host the UI is launched on.
func WithHost(h sdk.Host) Option {
	return func(o *options) { o.host = h }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type startOptions struct {
	callback      func(Outcome)
	host          *sdk.Host
	correlationID string
}

// StartOption configures a single Start call.
type StartOption func(*startOptions)

// WithCallback registers fn to run on the bridge executor when the request
// resolves, right after Done is closed.
func WithCallback(fn func(Outcome)) StartOption {
	return func(o *startOptions) { o.callback = fn }
}

// WithStartHost overrides the host the UI is launched on for this request.
func WithStartHost(h sdk.Host) StartOption {
	return func(o *startOptions) { o.host = &h }
}

// WithCorrelationID tags the request for logs and attempt history.
func WithCorrelationID(id string) StartOption {
	return func(o *startOptions) { o.correlationID = id }
}
