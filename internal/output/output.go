package output

import "sync"

var (
	globalPrinter = NewPrinter()
	globalMu      sync.RWMutex
)

// ConfigureGlobal replaces the printer used by the package-level functions.
func ConfigureGlobal(options ...Option) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalPrinter = NewPrinter(options...)
}

// GetGlobalPrinter returns the package-level printer.
func GetGlobalPrinter() *Printer {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalPrinter
}

// Println writes a line with the global printer.
func Println(text string) {
	GetGlobalPrinter().Println(text)
}

// Info writes a notice with the global printer.
func Info(text string) {
	GetGlobalPrinter().Info(text)
}

// Warning writes a warning with the global printer.
func Warning(text string) {
	GetGlobalPrinter().Warning(text)
}

// Error writes an error with the global printer.
func Error(text string) {
	GetGlobalPrinter().Error(text)
}
