package software

// Option configures a Device.
type Option func(*Device)

// WithWorkers sets the number of goroutines executing workgroups.
// 0 or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workers = n }
}

// WithMapLatency delays every MapAsync callback until the n-th Poll after
// the request. Values below 1 deliver on the first Poll.
func WithMapLatency(n int) Option {
	return func(d *Device) {
		if n < 1 {
			n = 1
		}
		d.mapLatency = n
	}
}
