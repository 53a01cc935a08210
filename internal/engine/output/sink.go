package output

import (
	"errors"

	"github.com/rendis/yelptap/internal/model"
)

type Sink interface {
	Emit(rec model.BusinessRecord) error
}

// MultiSink hands every record to each of its sinks. All sinks see the record
// even if an earlier one fails; the errors are joined.
type MultiSink []Sink

func (m MultiSink) Emit(rec model.BusinessRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
