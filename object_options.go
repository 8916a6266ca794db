package domain

// WritePolicy decides whether a property of target may be written, for
// example to lock a posted invoice.
type WritePolicy interface {
	CanWrite(target any, property string) bool
}

// WritePolicyFunc adapts a function to WritePolicy.
type WritePolicyFunc func(target any, property string) bool

// CanWrite implements WritePolicy.
func (f WritePolicyFunc) CanWrite(target any, property string) bool {
	return f(target, property)
}

// ObjectOption configures an Object when it is bound.
type ObjectOption func(*objectConfig)

type objectConfig struct {
	child                bool
	mode                 BindingMode
	modeSet              bool
	metadata             MetadataProvider
	policy               WritePolicy
	skipInitialCheck     bool
	allowMissingIdentity bool
}

// Configurer is implemented by types that carry their own default options.
// They are applied before the options passed to Init.
type Configurer interface {
	ObjectOptions() []ObjectOption
}

// AsChild marks the object as owned from the start.
func AsChild() ObjectOption {
	return func(cfg *objectConfig) {
		cfg.child = true
	}
}

// WithBindingMode selects the notification coalescing mode.
func WithBindingMode(mode BindingMode) ObjectOption {
	return func(cfg *objectConfig) {
		cfg.mode = mode
		cfg.modeSet = true
	}
}

// WithMetadata installs a metadata provider for display names.
func WithMetadata(metadata MetadataProvider) ObjectOption {
	return func(cfg *objectConfig) {
		cfg.metadata = metadata
	}
}

// WithWritePolicy installs the CanWriteProperty policy.
func WithWritePolicy(policy WritePolicy) ObjectOption {
	return func(cfg *objectConfig) {
		cfg.policy = policy
	}
}

// SkipInitialRuleCheck leaves rules unchecked after Init.
func SkipInitialRuleCheck() ObjectOption {
	return func(cfg *objectConfig) {
		cfg.skipInitialCheck = true
	}
}

// AllowMissingIdentity lets InitPersisted accept a nil identity.
func AllowMissingIdentity() ObjectOption {
	return func(cfg *objectConfig) {
		cfg.allowMissingIdentity = true
	}
}

func resolveObjectConfig(self any, opts []ObjectOption) objectConfig {
	var cfg objectConfig
	if configurer, ok := self.(Configurer); ok {
		for _, opt := range configurer.ObjectOptions() {
			if opt != nil {
				opt(&cfg)
			}
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
