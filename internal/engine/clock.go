package engine

import "time"

// Clock абстрагирует время — в тестах движок гоняем на мок-часах.
type Clock interface {
	Now() time.Time
	Tick(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                        { return time.Now() }
func (realClock) Tick(d time.Duration) <-chan time.Time { return time.After(d) }

func RealClock() Clock { return realClock{} }
