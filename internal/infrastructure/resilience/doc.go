/*
Package resilience provides bounded recovery policies.

# Overview

Recovery in the service is always bounded: an IME that keeps dying is
restarted a few times and then left alone, and startup polling for
collaborators gives up after a fixed number of attempts. Both policies take
an injected clock so tests never sleep.

# Budget

A Budget allows at most Max actions in any rolling Window, refilling
gradually:

	budget := resilience.NewBudget(3, 3*time.Second, clock.Real{})
	if budget.Allow() {
		queue.Push(message.New(message.MsgRestartIme, nil))
	}

# Retry

	err := resilience.Poll(ctx, resilience.RetryPolicy{
		Attempts: 10,
		Interval: 100 * time.Millisecond,
	}, accounts.IsReady)
*/
package resilience
