package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration
type Config struct {
	ServerURL          string        // Base WebSocket URL of the agent gateway
	ReconnectDelay     time.Duration // Fixed delay before redialing after a lost connection
	DialTimeout        time.Duration // WebSocket handshake timeout
	WriteTimeout       time.Duration // Per-message write deadline
	MicSampleRate      int           // Capture sample rate in Hz (16-bit mono PCM)
	PlaybackSampleRate int           // Playback sample rate in Hz (16-bit mono PCM)
	FrameMillis        int           // Capture period per delivered frame
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		ServerURL:          "ws://localhost:8080",
		ReconnectDelay:     5 * time.Second,
		DialTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MicSampleRate:      16000,
		PlaybackSampleRate: 24000,
		FrameMillis:        20,
	}

	// Optional: SERVER_URL
	if serverURL := os.Getenv("SERVER_URL"); serverURL != "" {
		if !strings.HasPrefix(serverURL, "ws://") && !strings.HasPrefix(serverURL, "wss://") {
			return nil, fmt.Errorf("invalid SERVER_URL: must start with ws:// or wss://")
		}
		config.ServerURL = strings.TrimRight(serverURL, "/")
	}

	// Optional: RECONNECT_DELAY (in seconds)
	if delay := os.Getenv("RECONNECT_DELAY"); delay != "" {
		d, err := strconv.Atoi(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid RECONNECT_DELAY: %w", err)
		}
		config.ReconnectDelay = time.Duration(d) * time.Second
	}

	// Optional: DIAL_TIMEOUT (in seconds)
	if timeout := os.Getenv("DIAL_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid DIAL_TIMEOUT: %w", err)
		}
		config.DialTimeout = time.Duration(t) * time.Second
	}

	// Optional: WRITE_TIMEOUT (in seconds)
	if timeout := os.Getenv("WRITE_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
		}
		config.WriteTimeout = time.Duration(t) * time.Second
	}

	// Optional: MIC_SAMPLE_RATE (in Hz)
	if rate := os.Getenv("MIC_SAMPLE_RATE"); rate != "" {
		r, err := strconv.Atoi(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid MIC_SAMPLE_RATE: %w", err)
		}
		config.MicSampleRate = r
	}

	// Optional: PLAYBACK_SAMPLE_RATE (in Hz)
	if rate := os.Getenv("PLAYBACK_SAMPLE_RATE"); rate != "" {
		r, err := strconv.Atoi(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid PLAYBACK_SAMPLE_RATE: %w", err)
		}
		config.PlaybackSampleRate = r
	}

	// Optional: FRAME_MILLIS (capture period in milliseconds)
	if frame := os.Getenv("FRAME_MILLIS"); frame != "" {
		f, err := strconv.Atoi(frame)
		if err != nil {
			return nil, fmt.Errorf("invalid FRAME_MILLIS: %w", err)
		}
		if f <= 0 {
			return nil, fmt.Errorf("invalid FRAME_MILLIS: must be positive")
		}
		config.FrameMillis = f
	}

	return config, nil
}
