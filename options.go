package tiercache

// GetOption adjusts the behavior of a single Get call.
type GetOption func(*getOptions)

type getOptions struct {
	forceRefresh bool
}

// WithForceRefresh skips both cache tiers and fetches from the network,
// writing the result through the tiers. Concurrent forced fetches for the
// same key are still coalesced.
func WithForceRefresh() GetOption {
	return func(o *getOptions) {
		o.forceRefresh = true
	}
}

func applyGetOptions(opts ...GetOption) getOptions {
	var options getOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}
