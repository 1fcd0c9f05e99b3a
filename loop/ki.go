package loop

// DeliverKI marks a keyboard interrupt as pending. It is safe to call from
// any goroutine (the intended caller is signalsafe.Bridge, itself driven by
// os/signal.Notify). Delivery always waits for the main task's next
// indefinite suspension and lands there only if the main task is not
// KI-protected at that point; it never interrupts a running task.
func (r *Runner) DeliverKI() {
	r.kiMu.Lock()
	r.kiPending = true
	r.kiMu.Unlock()
	r.wakeup.NotifyThreadAndSignalSafe()
}

func (r *Runner) takeKIPending() bool {
	r.kiMu.Lock()
	defer r.kiMu.Unlock()
	if r.kiPending {
		r.kiPending = false
		return true
	}
	return false
}

func (r *Runner) kiPendingPeek() bool {
	r.kiMu.Lock()
	defer r.kiMu.Unlock()
	return r.kiPending
}

// attemptDeliverKI tries to land a pending keyboard interrupt into the main
// task at its current suspension, exactly like a cancellation delivery but
// sourced from DeliverKI rather than a CancelScope (spec.md §4.6).
func (r *Runner) attemptDeliverKI() {
	if r.mainTask == nil || r.mainTask.state != stateSuspended {
		return
	}
	if r.mainTask.kiProtected() {
		return
	}
	if !r.kiPendingPeek() {
		return
	}
	abort := r.mainTask.abort
	raised := ErrorOutcome(&KICancelled{Cancelled{Origin: nil}})
	if abort(func() Outcome { return raised }) == AbortSucceeded {
		r.takeKIPending()
		r.Reschedule(r.mainTask, raised)
	}
}
