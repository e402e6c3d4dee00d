package metadata

import "time"

const (
	// DefaultMinimumThroughput is the slowest transfer rate an upload is
	// assumed to sustain: 1 Mbit/s.
	DefaultMinimumThroughput int64 = 1_000_000 / 8

	// DefaultMinimumWindow is added to every upload deadline.
	DefaultMinimumWindow = 5 * time.Minute
)

// UploadDeadline computes how long a batch of pending files may stay pending.
// The grace period grows with the declared size of the batch.
type UploadDeadline struct {
	// MinimumThroughput in bytes per second.
	MinimumThroughput int64
	MinimumWindow     time.Duration
}

// DefaultUploadDeadline returns the 1 Mbit/s + 5 minutes policy.
func DefaultUploadDeadline() UploadDeadline {
	return UploadDeadline{
		MinimumThroughput: DefaultMinimumThroughput,
		MinimumWindow:     DefaultMinimumWindow,
	}
}

// Allowance returns ceil(totalBytes / throughput) seconds plus the window.
func (d UploadDeadline) Allowance(totalBytes int64) time.Duration {
	throughput := d.MinimumThroughput
	if throughput <= 0 {
		throughput = DefaultMinimumThroughput
	}
	if totalBytes < 0 {
		totalBytes = 0
	}
	seconds := (totalBytes + throughput - 1) / throughput
	return time.Duration(seconds)*time.Second + d.MinimumWindow
}

// ExpiresAt returns the shared expiry of a batch declared at now.
func (d UploadDeadline) ExpiresAt(now time.Time, specs []PendingFileSpec) time.Time {
	var total int64
	for _, s := range specs {
		total += s.Bytes
	}
	return now.Add(d.Allowance(total))
}
