package exporter

import (
	"errors"
	"fmt"
	"strings"
)

// Failure records one document that could not be exported.
type Failure struct {
	Exporter string
	DocID    string
	Err      error
}

func (f Failure) String() string {
	return fmt.Sprintf("exporter %s, doc %s: %v", f.Exporter, f.DocID, f.Err)
}

// ExportError aggregates per-document export failures. The sinks record each
// failed document here instead of failing the whole batch; siblings of a
// failed document are still written.
type ExportError struct {
	failures []Failure
}

// Add records one failed document.
func (e *ExportError) Add(exporter, docID string, err error) {
	e.failures = append(e.failures, Failure{Exporter: exporter, DocID: docID, Err: err})
}

// Failures returns the recorded failures in occurrence order.
func (e *ExportError) Failures() []Failure {
	return e.failures
}

// OrNil returns the error itself when failures were recorded, nil otherwise.
// Sinks return Flush errors through this so an all-success flush is a plain nil.
func (e *ExportError) OrNil() error {
	if e == nil || len(e.failures) == 0 {
		return nil
	}
	return e
}

func (e *ExportError) Error() string {
	switch len(e.failures) {
	case 0:
		return "export failed"
	case 1:
		return "export failed for 1 document: " + e.failures[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "export failed for %d documents: ", len(e.failures))
	b.WriteString(e.failures[0].String())
	b.WriteString("; ...")
	return b.String()
}

// CollectFailures walks an error tree (as produced by errors.Join and
// fmt.Errorf wrapping) and gathers every per-document Failure. Errors that
// are not ExportErrors — a sink that failed wholesale, an open that never
// succeeded — come back as a Failure with an empty DocID.
func CollectFailures(err error) []Failure {
	if err == nil {
		return nil
	}
	var out []Failure
	collect(err, &out)
	return out
}

func collect(err error, out *[]Failure) {
	// Descend into joined errors first so one ExportError does not shadow
	// its siblings.
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range u.Unwrap() {
			collect(e, out)
		}
		return
	}
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		*out = append(*out, exportErr.failures...)
		return
	}
	*out = append(*out, Failure{Err: err})
}
