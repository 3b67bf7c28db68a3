package bot

// bestEffort runs a fire-and-forget side effect (chat-action pings, storage
// mirroring, outbound sends). Failures are recorded under the given event key
// and never propagate; the swallow policy lives here instead of in scattered
// inline checks.
func (h *Handler) bestEffort(event string, fn func() error) {
	if err := fn(); err != nil {
		h.logger.Warn(event, "error", err.Error())
	}
}
