package audio

import (
	"github.com/gordonklaus/portaudio"
)

// Initialize sets up the PortAudio runtime. Call once at daemon start,
// before opening any device; pair with Terminate at shutdown.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate releases the PortAudio runtime.
func Terminate() error {
	return portaudio.Terminate()
}

// FindDevice returns the *portaudio.DeviceInfo matching by name, or nil.
func FindDevice(name string) *portaudio.DeviceInfo {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil
	}
	for _, d := range devices {
		if d.Name == name {
			return d
		}
	}
	return nil
}
