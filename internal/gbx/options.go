package gbx

import "github.com/thelolagemann/cartreader/pkg/log"

// Opt is a function that modifies a Reader.
type Opt func(r *Reader)

func WithLogger(l log.Logger) Opt {
	return func(r *Reader) {
		r.log = l
	}
}

// WithKey changes the key the reader holds the bus lock with.
func WithKey(key uint32) Opt {
	return func(r *Reader) {
		r.key = key
	}
}
