package speech

import "montage/internal/services"

// ErrUnavailable reports that no speech provider is configured.
var ErrUnavailable = services.Wrap(services.ErrConfiguration, "speech", "synthesize", "no speech provider configured", nil)
