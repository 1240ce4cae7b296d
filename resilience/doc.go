// Package resilience composes the policies that guard every outbound call to a
// downstream service.
//
// A Pipeline is an explicit, ordered list of stages built once per downstream
// service at startup:
//
//	retry (outermost) -> circuit breaker -> timeout (innermost) -> attempt
//
// so a single logical call may produce several physical attempts, each bounded by
// the timeout stage and each subject to the breaker's fail-fast rejection while it
// is open. Every pipeline owns its own breaker; failures on one downstream never
// change another's circuit state.
//
// Stages communicate through error values only:
//
//   - Transient(err) marks an attempt failure as qualifying (retryable, counted by the breaker)
//   - ErrTimeout is returned by the timeout stage when an attempt exceeds its bound
//   - ErrCircuitOpen is returned by the breaker stage while the circuit rejects calls
//   - *RetryError wraps the last error once retries are exhausted
//
// Any other error is non-qualifying and passes straight through: it is not retried
// and counts as a success for the breaker.
package resilience
