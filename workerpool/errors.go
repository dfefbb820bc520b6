package workerpool

import "errors"

// ErrUnknownWorker indicates no registration row exists for a worker id.
var ErrUnknownWorker = errors.New("workerpool: unknown worker")
