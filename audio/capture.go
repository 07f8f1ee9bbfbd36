// Package audio owns the real-time capture and playback engines and
// bridges them to the session loop through one-way frame handoff:
// every frame is copied out of engine-owned memory before it crosses a
// goroutine boundary, so no mutable state is shared with the engines.
package audio

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrAlreadyRecording is returned when Start is called on a capture
// that has not been stopped first.
var ErrAlreadyRecording = errors.New("capture already recording")

// Capture owns the microphone and pushes fixed-format PCM frames
// (16-bit little-endian mono) to a handler for as long as recording is
// active. The sequence is not restartable: after Stop, a new Start
// acquires the device from scratch.
type Capture struct {
	sampleRate  int
	frameMillis int

	mu        sync.Mutex
	actx      *malgo.AllocatedContext
	device    *malgo.Device
	handler   func(pcm []byte)
	recording bool
}

// NewCapture creates an idle capture pipeline. No resource is acquired
// until Start.
func NewCapture(sampleRate, frameMillis int) *Capture {
	return &Capture{
		sampleRate:  sampleRate,
		frameMillis: frameMillis,
	}
}

// Start acquires the microphone and begins delivering frames to handler
// in capture order, each exactly once. Acquisition failure is returned
// to the caller and nothing is retained; there is no internal retry.
func (c *Capture) Start(handler func(pcm []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return ErrAlreadyRecording
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	actx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(c.frameMillis)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			c.deliver(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(actx.Context, deviceConfig, callbacks)
	if err != nil {
		uninitContext(actx)
		return fmt.Errorf("init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		uninitContext(actx)
		return fmt.Errorf("start capture device: %w", err)
	}

	c.actx = actx
	c.device = device
	c.handler = handler
	c.recording = true
	return nil
}

// deliver hands one engine frame to the registered handler. Frames that
// arrive after Stop has flipped the recording flag are discarded, even
// if the engine had already buffered them.
func (c *Capture) deliver(pInputSamples []byte) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	handler := c.handler
	c.mu.Unlock()

	frame := make([]byte, len(pInputSamples))
	copy(frame, pInputSamples)
	handler(frame)
}

// Stop releases the microphone. Release is best effort: teardown
// problems are logged but never fail the stop. Stopping an idle capture
// is a no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil
	}
	c.recording = false
	device := c.device
	actx := c.actx
	c.device = nil
	c.actx = nil
	c.handler = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if actx != nil {
		uninitContext(actx)
	}
	return nil
}

// Recording reports whether the microphone is currently held.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func uninitContext(actx *malgo.AllocatedContext) {
	if err := actx.Uninit(); err != nil {
		log.Printf("⚠️ Failed to release audio context: %v", err)
	}
	actx.Free()
}
