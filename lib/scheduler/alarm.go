package scheduler

import "time"

// alarmClock fires once right away, then on every interval. Stop also ends
// the forwarding goroutine; time.Ticker.Stop alone does not close its channel,
// which would strand the forwarder.
type alarmClock struct {
	C chan time.Time

	ticker *time.Ticker
	done   chan struct{}
}

func newAlarmClock(interval time.Duration) *alarmClock {
	a := &alarmClock{
		C:      make(chan time.Time, 1),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	go func() {
		a.C <- time.Now()
		for {
			select {
			case <-a.done:
				return
			case t := <-a.ticker.C:
				select {
				case a.C <- t:
				case <-a.done:
					return
				}
			}
		}
	}()

	return a
}

func (a *alarmClock) Stop() {
	a.ticker.Stop()
	close(a.done)
}
