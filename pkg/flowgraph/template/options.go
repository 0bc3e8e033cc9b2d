package template

// MissingAction specifies how to handle missing variables.
type MissingAction int

const (
	// MissingKeep leaves the placeholder as-is. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError fails the render, naming every missing variable.
	MissingError
)

// Option configures a single Render call.
type Option func(*renderConfig)

type renderConfig struct {
	missing MissingAction
}

// WithMissingAction sets how missing variables are handled.
func WithMissingAction(action MissingAction) Option {
	return func(c *renderConfig) {
		c.missing = action
	}
}
