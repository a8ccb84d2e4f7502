package output

import "io"

// Option configures a Printer.
type Option func(*Printer)

// WithStyles sets the style provider. Unavailable providers are ignored.
func WithStyles(provider StyleProvider) Option {
	return func(p *Printer) {
		if provider != nil && provider.IsAvailable() {
			p.styleProvider = provider
		}
	}
}

// WithWriter sets the destination. Default is os.Stdout.
func WithWriter(writer io.Writer) Option {
	return func(p *Printer) {
		if writer != nil {
			p.writer = writer
		}
	}
}

// PlainText disables styling.
func PlainText() Option {
	return func(p *Printer) {
		p.mode = ModePlain
	}
}

// JSON selects JSON output for scripting.
func JSON() Option {
	return func(p *Printer) {
		p.mode = ModeJSON
	}
}
