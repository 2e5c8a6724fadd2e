package protocol

// Echo returns its input payload unchanged. It has no backend
// dependency and exists for diagnostics and the handful of end-to-end
// checks that only care about multiplexer behavior, not a real backend
// round-trip.
type Echo struct{}

func (h *Echo) Init(core Core, initStr string) bool { return true }

func (h *Echo) Call(core Core, input string) (string, error) {
	return input, nil
}
