package main

import "github.com/rs/zerolog"

type closer struct {
	name string
	fn   func() error
}

// closeAll closes resources in order and logs failures without stopping.
func closeAll(log zerolog.Logger, closers ...closer) {
	for _, c := range closers {
		if err := c.fn(); err != nil {
			log.Error().Err(err).Str("resource", c.name).Msg("close failed")
		}
	}
}
