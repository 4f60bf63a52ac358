package gatt

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/pidevelop/provision"
)

// deviceInfoPayload matches the JSON the companion app expects. Key casing
// is part of the wire format.
type deviceInfoPayload struct {
	Company     string `json:"Company"`
	Developer   string `json:"Developer"`
	ProjectName string `json:"project_name"`
	Version     string `json:"version"`
}

// DeviceInfoHandler serves the static device-info characteristic.
type DeviceInfoHandler struct {
	logger  *zap.SugaredLogger
	payload []byte
}

func NewDeviceInfoHandler(info provision.DeviceInfo, logger *zap.SugaredLogger) *DeviceInfoHandler {
	payload, err := json.Marshal(deviceInfoPayload{
		Company:     info.Company,
		Developer:   info.Developer,
		ProjectName: info.ProjectName,
		Version:     provision.GetVersion(),
	})
	if err != nil {
		// The struct above only holds strings; this cannot happen.
		logger.Errorf("marshaling device info: %v", err)
		payload = []byte("{}")
	}
	return &DeviceInfoHandler{logger: logger, payload: payload}
}

// ReadValue implements Readable.
func (d *DeviceInfoHandler) ReadValue() []byte {
	d.logger.Debug("device-info read")
	return d.payload
}
