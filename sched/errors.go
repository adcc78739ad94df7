package sched

import "github.com/rs/zerolog"

// Kind classifies a fatal precondition violation. There are no recoverable
// errors in this package: every Kind below is always delivered as a panic
// carrying a *FatalError, never an error return.
type Kind string

const (
	KindSizing         Kind = "sizing"           // job_count or stack_size not a power of two
	KindBadQueueIndex  Kind = "bad_queue_index"  // enqueue or run with index >= queue count
	KindPoolExhaustion Kind = "pool_exhaustion"   // free job/fiber pool empty
	KindGroupMisuse    Kind = "group_misuse"      // group magic tag missing or corrupt
	KindChainMisuse    Kind = "chain_misuse"      // queue_priority re-linking an end that's already chained
	KindMissingBody    Kind = "missing_body"      // job descriptor has no body function
)

// FatalError is the payload of every panic this package raises. It is
// exported so a caller that wants to log-and-re-panic at a process
// boundary (e.g. cmd/streambench) can recover() and inspect Kind before
// letting the panic continue to crash the process.
type FatalError struct {
	Kind    Kind
	Message string
}

func (e *FatalError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// fail logs the violation with structured fields and panics with a
// *FatalError. log may be the zero value of zerolog.Logger; a caller that
// hands NewScheduler such a logger still gets a correctly-typed panic,
// just no log line.
func fail(log zerolog.Logger, kind Kind, msg string) {
	log.Error().Str("kind", string(kind)).Msg(msg)
	panic(&FatalError{Kind: kind, Message: msg})
}

// abortSignal is the sentinel panic value Job.Abort uses to unwind out of
// a running job body without returning control to it. It is never meant
// to escape the fiber's own recover; anything else recovered is a real
// panic and is re-raised.
type abortSignal struct{}

var theAbortSignal = abortSignal{}
