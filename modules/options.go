package modules

import "time"

// Default option values.
const (
	DefaultProtocol             = "simple_majority"
	DefaultTimeout              = 5 * time.Minute
	DefaultMaxProposalsPerAgent = 10
)

// Options stores runtime configuration settings shared by the modules.
type Options struct {
	defaultProtocol      string
	defaultTimeout       time.Duration
	maxProposalsPerAgent int

	byzantineProtection     bool
	autoExecute             bool
	participantVerification bool
	eventLogging            bool
}

// NewOptions returns an Options with the documented defaults.
func NewOptions() *Options {
	return &Options{
		defaultProtocol:      DefaultProtocol,
		defaultTimeout:       DefaultTimeout,
		maxProposalsPerAgent: DefaultMaxProposalsPerAgent,
		autoExecute:          true,
		eventLogging:         true,
	}
}

// DefaultProtocol returns the protocol used when a proposal does not name
// one and none of the selection rules apply.
func (opts Options) DefaultProtocol() string {
	return opts.defaultProtocol
}

// DefaultTimeout returns the voting timeout used when neither the proposal
// nor its protocol specify one.
func (opts Options) DefaultTimeout() time.Duration {
	return opts.defaultTimeout
}

// MaxProposalsPerAgent returns the number of simultaneously open proposals a
// single proposer may hold. Zero disables the limit.
func (opts Options) MaxProposalsPerAgent() int {
	return opts.maxProposalsPerAgent
}

// ByzantineProtection returns true if suspicious votes should be discarded.
func (opts Options) ByzantineProtection() bool {
	return opts.byzantineProtection
}

// AutoExecute returns true if approved proposals should be enqueued for
// execution automatically.
func (opts Options) AutoExecute() bool {
	return opts.autoExecute
}

// ParticipantVerification returns true if vote signatures are generated and
// verified.
func (opts Options) ParticipantVerification() bool {
	return opts.participantVerification
}

// EventLogging returns true if lifecycle transitions are recorded in the
// audit log.
func (opts Options) EventLogging() bool {
	return opts.eventLogging
}

// SetDefaultProtocol sets the default protocol name.
func (opts *Options) SetDefaultProtocol(name string) {
	opts.defaultProtocol = name
}

// SetDefaultTimeout sets the default voting timeout.
func (opts *Options) SetDefaultTimeout(d time.Duration) {
	opts.defaultTimeout = d
}

// SetMaxProposalsPerAgent sets the open proposal budget per proposer.
func (opts *Options) SetMaxProposalsPerAgent(n int) {
	opts.maxProposalsPerAgent = n
}

// SetByzantineProtection toggles discarding of suspicious votes.
func (opts *Options) SetByzantineProtection(enable bool) {
	opts.byzantineProtection = enable
}

// SetAutoExecute toggles automatic execution of approved proposals.
func (opts *Options) SetAutoExecute(enable bool) {
	opts.autoExecute = enable
}

// SetParticipantVerification toggles vote signature generation and
// verification.
func (opts *Options) SetParticipantVerification(enable bool) {
	opts.participantVerification = enable
}

// SetEventLogging toggles the audit log.
func (opts *Options) SetEventLogging(enable bool) {
	opts.eventLogging = enable
}
