package sag

// Observer receives progress and log messages from scan and recreate.
// Calls are made synchronously from the working goroutine; current never
// decreases and never exceeds the total announced by the first call.
type Observer interface {
	OnProgress(current, total int)
	OnLog(message string)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) OnProgress(int, int) {}
func (NopObserver) OnLog(string)        {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(current, total int)
	Log      func(message string)
}

func (o ObserverFuncs) OnProgress(current, total int) {
	if o.Progress != nil {
		o.Progress(current, total)
	}
}

func (o ObserverFuncs) OnLog(message string) {
	if o.Log != nil {
		o.Log(message)
	}
}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
