package scheduler

import (
	"context"
	"log"
	"os"
	"time"
)

var initLog = log.New(os.Stdout, "[INIT] ", log.LstdFlags)

// InitForever calls init until it succeeds, waiting backoff between attempts.
// Only cancellation of ctx stops it early.
func InitForever(ctx context.Context, name string, backoff time.Duration, init func() error) error {
	for attempt := 1; ; attempt++ {
		err := init()
		if err == nil {
			if attempt > 1 {
				initLog.Printf("%s initialized after %d attempts", name, attempt)
			} else {
				initLog.Printf("%s initialized", name)
			}
			return nil
		}
		initLog.Printf("%s init attempt %d failed: %v (retrying in %v)", name, attempt, err, backoff)

		if err := sleepContext(ctx, backoff); err != nil {
			return err
		}
	}
}
