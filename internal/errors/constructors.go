package errors

// Convenience constructors for the error taxonomy used by the pipeline.

// ConfigurationError creates a fatal configuration error. These abort the run
// before any tile work starts.
func ConfigurationError(message string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, message)
}

// UnsupportedUnitsError marks a tile whose coordinate reference uses units the
// solver cannot consume. Fatal to the owning tile only.
func UnsupportedUnitsError(message string) *PipelineError {
	return New(CategoryUnits, SeverityError, message)
}

// UnsupportedFormatError marks an input file of an unrecognized type.
func UnsupportedFormatError(message string) *PipelineError {
	return New(CategoryFormat, SeverityError, message)
}

// MissingDependencyError signals an optional reader is unavailable. The owning
// stage degrades to a skip with a logged warning.
func MissingDependencyError(message string) *PipelineError {
	return New(CategoryDependency, SeverityWarning, message)
}

// ExternalProcessError wraps a failed solver or flood-spreader invocation.
func ExternalProcessError(err error, message string) *PipelineError {
	return Wrap(err, CategoryProcess, SeverityError, message)
}

// CacheIOError wraps an unreadable or unwritable ledger file. The run proceeds
// with an in-memory-only ledger.
func CacheIOError(err error, message string) *PipelineError {
	return Wrap(err, CategoryCache, SeverityWarning, message)
}
