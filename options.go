package governor

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
}

// Option configures Governor construction.
type Option func(*options)

// WithLogger sets the logger used for admission, throttle and pause events.
//
// If nil is passed, logging is disabled (NoopLogger).
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the collector notified of admissions, throttles
// and releases.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}
