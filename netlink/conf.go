package netlink

import (
	"fmt"
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Log bool `yaml:"log"`

	MaxBatchIOOps  int `yaml:"maxBatchIoOps"`
	ReadBufferSize int `yaml:"readBufferSize"`

	BufferSize     int  `yaml:"bufferSize"`
	BufferPoolSize int  `yaml:"bufferPoolSize"`
	PoisonBuffers  bool `yaml:"poisonBuffers"`

	MaxPendingRequests      int `yaml:"maxPendingRequests"`
	MaxPendingNotifications int `yaml:"maxPendingNotifications"`
	WriteQueueSize          int `yaml:"writeQueueSize"`

	TimeoutMs int `yaml:"timeoutMs"`

	// BypassSendQueue writes requests straight from Send when nothing is
	// queued ahead of them. Handy when no write loop is running.
	BypassSendQueue bool `yaml:"bypassSendQueue"`

	// DispatchWorkers moves callback execution onto a pool of goroutines.
	// With 0 callbacks run on the I/O goroutine once each batch is over.
	DispatchWorkers int `yaml:"dispatchWorkers"`
}

var DefaultConfig = Config{
	Log:                     true,
	MaxBatchIOOps:           DefaultMaxBatchIOOps,
	ReadBufferSize:          DefaultReadBufferSize,
	BufferSize:              DefaultBufferSize,
	BufferPoolSize:          DefaultBufferPoolSize,
	PoisonBuffers:           false,
	MaxPendingRequests:      DefaultMaxPendingRequests,
	MaxPendingNotifications: DefaultMaxPendingNotifications,
	WriteQueueSize:          DefaultWriteQueueSize,
	TimeoutMs:               DefaultTimeoutMs,
	BypassSendQueue:         false,
	DispatchWorkers:         0,
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := config(DefaultConfig)

	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}

	*c = Config(def)

	return nil
}

// Timeout is the reply timeout applied to requests that don't set one.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *Config) validate() error {
	if c.MaxBatchIOOps <= 0 {
		return fmt.Errorf("maxBatchIoOps must be positive, got %d", c.MaxBatchIOOps)
	}
	if c.ReadBufferSize < HeaderLen {
		return fmt.Errorf("readBufferSize %d can't hold a message header", c.ReadBufferSize)
	}
	if c.BufferSize < HeaderLen+GenlHeaderLen {
		return fmt.Errorf("bufferSize %d can't hold the message headers", c.BufferSize)
	}
	if c.BufferPoolSize <= 0 {
		return fmt.Errorf("bufferPoolSize must be positive, got %d", c.BufferPoolSize)
	}
	if c.WriteQueueSize <= 0 {
		return fmt.Errorf("writeQueueSize must be positive, got %d", c.WriteQueueSize)
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("timeoutMs must be positive, got %d", c.TimeoutMs)
	}
	if c.DispatchWorkers < 0 {
		return fmt.Errorf("dispatchWorkers can't be negative, got %d", c.DispatchWorkers)
	}
	return nil
}
