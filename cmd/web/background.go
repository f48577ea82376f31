package main

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// storePinger keeps probing MongoDB so a recovered backend promotes the
// process out of in-memory fallback. Writes made while degraded stay in
// memory; promotion only switches where new calls go.
func (app *application) storePinger(interval time.Duration) {
	for {
		time.Sleep(interval)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := app.client.Ping(ctx, readpref.Primary())
		cancel()

		if err != nil {
			app.health.MarkDown(err)
		} else {
			app.health.MarkUp()
		}
	}
}
