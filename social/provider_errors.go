package social

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderError carries the details of a failed call to an OAuth provider,
// normalized across providers so callers can log and map them uniformly.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	label := e.label()
	switch {
	case e.Description != "":
		return fmt.Sprintf("%s failed: %s", label, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s", label, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", label, e.Err)
	}
	return label + " failed"
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) label() string {
	switch {
	case e.Provider != "" && e.Operation != "":
		return e.Provider + " " + e.Operation
	case e.Provider != "":
		return e.Provider
	case e.Operation != "":
		return e.Operation
	}
	return "provider"
}

// Metadata flattens the error into key/value pairs for structured reporting.
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	putMeta(meta, "provider", e.Provider)
	putMeta(meta, "operation", e.Operation)
	putMeta(meta, "code", e.Code)
	putMeta(meta, "description", e.Description)
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	return meta
}

func putMeta(meta map[string]any, key, val string) {
	if val != "" {
		meta[key] = val
	}
}

// wrapProviderError attaches provider failure detail to a cloned sentinel so
// the shared sentinel value is never mutated.
func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	if base == nil {
		return err
	}

	meta := map[string]any{}
	putMeta(meta, "provider", provider)
	putMeta(meta, "operation", operation)

	var perr *ProviderError
	switch {
	case errors.As(err, &perr) && perr != nil:
		for k, v := range perr.Metadata() {
			meta[k] = v
		}
	case err != nil:
		meta["error"] = err.Error()
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}

	return clone
}
