package provisioning

// Characteristic handlers binding the machine to the GATT registry's
// capability interfaces, without this package importing the registry.

// StateHandler serves the read+notify state characteristic.
type StateHandler struct {
	m *Machine
}

func (m *Machine) StateHandler() *StateHandler {
	return &StateHandler{m: m}
}

// ReadValue returns the current {"state":...} document.
func (h *StateHandler) ReadValue() []byte {
	h.m.logger.Debug("state read")
	return h.m.StatePayload()
}

// SubscriptionChanged pushes current truth on subscribe.
func (h *StateHandler) SubscriptionChanged(enabled bool) {
	h.m.HandleSubscription(enabled)
}

// CommandHandler serves the write-only command characteristic.
type CommandHandler struct {
	m *Machine
}

func (m *Machine) CommandHandler() *CommandHandler {
	return &CommandHandler{m: m}
}

// WriteValue feeds one written payload into the machine.
func (h *CommandHandler) WriteValue(value []byte) {
	h.m.HandleCommand(value)
}
