/*
Package errors provides the error taxonomy of entitywork.

Every failure is a distinguishable value carrying the offending type, name or
argument, and can be checked with the standard errors.Is / errors.As or with
the helper functions:

	var (
	    ErrConfigurationInvalid // factory validation failed before Start
	    ErrNotReady             // context or factory used outside its started state
	    ErrNoSuitableProvider   // no bound provider takes care of a type
	    ErrPropertyNotFound     // dynamic query names an unknown property
	    ErrInvalidInput         // bad argument, e.g. Between with three bounds
	    ErrStartupFailed        // one or more provider factories failed to start
	    ErrAmbientConflict      // a ready current context would be replaced
	    ErrInternal             // invariant violation
	)

Usage:

	if _, err := c.Fulfill(ctx, q); err != nil {
	    var pnf *errors.PropertyNotFoundError
	    if errors.As(err, &pnf) {
	        return fmt.Errorf("unknown filter %q", pnf.Property)
	    }
	    return err
	}

Constructors attach a stack trace through github.com/cockroachdb/errors, so
%+v on a returned error prints where it was raised.
*/
package errors
