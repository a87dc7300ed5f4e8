package polyphony

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// ThrottledLoop drives body no faster than rate iterations per second,
// sleeping the remainder of each period after body completes. count bounds
// the number of iterations; count <= 0 means unbounded. Grounded on
// catrate/limiter.go's Limiter.Allow(category) (time.Time, bool): each
// invocation owns its own *catrate.Limiter and category, since the rate
// applies only to this one loop, not globally.
func ThrottledLoop(rate int, count int, body func()) {
	if rate <= 0 {
		rate = 1
	}
	limiter := catrate.NewLimiter(map[time.Duration]int{time.Second / time.Duration(rate): 1})
	category := new(struct{})

	for i := 0; count <= 0 || i < count; i++ {
		for {
			t, ok := limiter.Allow(category)
			if ok {
				break
			}
			Sleep(time.Until(t))
		}
		body()
	}
}
