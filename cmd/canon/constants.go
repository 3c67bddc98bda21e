package main

import "time"

const (
	// pollInterval is how often job status is refreshed while waiting.
	pollInterval = 2 * time.Second

	// pollDeadline bounds how long a command waits for a job to finish.
	pollDeadline = 5 * time.Minute
)
