// Package serial provides serial port communication functionality
package serial

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// LineEnding identifies the terminator appended to transmitted commands
type LineEnding string

const (
	EndingLN   LineEnding = "LN"   // \n
	EndingCR   LineEnding = "CR"   // \r
	EndingCRLN LineEnding = "CRLN" // \r\n
	EndingNUL  LineEnding = "NUL"  // \x00
)

// Bytes returns the raw terminator for the line ending
func (e LineEnding) Bytes() []byte {
	switch e {
	case EndingLN:
		return []byte("\n")
	case EndingCR:
		return []byte("\r")
	case EndingCRLN:
		return []byte("\r\n")
	case EndingNUL:
		return []byte{0}
	default:
		return []byte("\n")
	}
}

// Valid reports whether the line ending is one of the known values
func (e LineEnding) Valid() bool {
	switch e {
	case EndingLN, EndingCR, EndingCRLN, EndingNUL:
		return true
	}
	return false
}

// Config defines the configuration for serial port communication
type Config struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	DataBits    int           `yaml:"data_bits"`
	StopBits    int           `yaml:"stop_bits"`
	Parity      string        `yaml:"parity"`
	FlowControl string        `yaml:"flow_control"`
	LineEnding  LineEnding    `yaml:"tx_line_ending"`
	DTR         bool          `yaml:"dtr"`
	RTS         bool          `yaml:"rts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Validate checks if the serial configuration is valid
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	return c.ValidateParams()
}

// ValidateParams checks every connection parameter except the port.
// Saved settings leave the port for the connect target to supply.
func (c Config) ValidateParams() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}

	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("data bits must be between 5 and 8, got: %d", c.DataBits)
	}

	if c.StopBits < 1 || c.StopBits > 2 {
		return fmt.Errorf("stop bits must be 1 or 2, got: %d", c.StopBits)
	}

	validParity := []string{"none", "odd", "even", "mark", "space"}
	validParityFound := false
	for _, p := range validParity {
		if c.Parity == p {
			validParityFound = true
			break
		}
	}
	if !validParityFound {
		return fmt.Errorf("invalid parity: %s", c.Parity)
	}

	switch c.FlowControl {
	case "", "none", "hardware", "software":
	default:
		return fmt.Errorf("invalid flow control: %s", c.FlowControl)
	}

	if !c.LineEnding.Valid() {
		return fmt.Errorf("invalid line ending: %s", c.LineEnding)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	return nil
}

// DefaultConfig returns a default serial configuration
func DefaultConfig() Config {
	return Config{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "none",
		FlowControl: "none",
		LineEnding:  EndingLN,
		Timeout:     100 * time.Millisecond,
	}
}

// Port interface defines the contract for serial port operations
type Port interface {
	Open(config Config) error
	Close() error
	Read(buffer []byte) (int, error)
	Write(data []byte) (int, error)
	IsOpen() bool
	GetConfig() Config
	SetReadTimeout(timeout time.Duration) error
}

// ErrNotConnected is returned by I/O operations on a closed port
var ErrNotConnected = fmt.Errorf("serial port is not open")

// devicePort implements Port using go.bug.st/serial
type devicePort struct {
	port   serial.Port
	config Config
	isOpen bool
}

// NewPort creates a new serial port instance
func NewPort() Port {
	return &devicePort{}
}

// Open opens the serial port with the given configuration
func (sp *devicePort) Open(config Config) error {
	if sp.isOpen {
		return fmt.Errorf("serial port is already open")
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// go.bug.st/serial has no flow control in its Mode; refuse loudly
	// rather than open with a setting that silently does nothing
	switch config.FlowControl {
	case "", "none":
	default:
		return fmt.Errorf("flow control %q is not supported by the serial backend", config.FlowControl)
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: convertStopBits(config.StopBits),
		Parity:   convertParity(config.Parity),
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: config.DTR,
			RTS: config.RTS,
		},
	}

	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", config.Port, err)
	}

	if config.Timeout > 0 {
		if err := port.SetReadTimeout(config.Timeout); err != nil {
			port.Close()
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	sp.port = port
	sp.config = config
	sp.isOpen = true

	return nil
}

// Close closes the serial port
func (sp *devicePort) Close() error {
	if !sp.isOpen {
		return ErrNotConnected
	}

	err := sp.port.Close()
	sp.port = nil
	sp.isOpen = false

	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	return nil
}

// Read reads data from the serial port
func (sp *devicePort) Read(buffer []byte) (int, error) {
	if !sp.isOpen {
		return 0, ErrNotConnected
	}

	n, err := sp.port.Read(buffer)
	if err != nil {
		return n, fmt.Errorf("failed to read from serial port: %w", err)
	}

	return n, nil
}

// Write writes data to the serial port
func (sp *devicePort) Write(data []byte) (int, error) {
	if !sp.isOpen {
		return 0, ErrNotConnected
	}

	n, err := sp.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("failed to write to serial port: %w", err)
	}

	return n, nil
}

// IsOpen returns true if the serial port is open
func (sp *devicePort) IsOpen() bool {
	return sp.isOpen
}

// GetConfig returns the current serial port configuration
func (sp *devicePort) GetConfig() Config {
	return sp.config
}

// SetReadTimeout sets the read timeout for the serial port
func (sp *devicePort) SetReadTimeout(timeout time.Duration) error {
	if !sp.isOpen {
		return ErrNotConnected
	}

	if err := sp.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	sp.config.Timeout = timeout
	return nil
}

// LineWriter appends the configured line terminator to each command.
// It is the outbound boundary the macro interpreter writes through.
type LineWriter struct {
	port   Port
	ending LineEnding
}

// NewLineWriter creates a LineWriter over a port
func NewLineWriter(port Port, ending LineEnding) *LineWriter {
	return &LineWriter{port: port, ending: ending}
}

// Send writes command plus the configured terminator in a single write
func (w *LineWriter) Send(command string) error {
	data := append([]byte(command), w.ending.Bytes()...)
	if _, err := w.port.Write(data); err != nil {
		return fmt.Errorf("send %q: %w", command, err)
	}
	return nil
}

// PortInfo contains information about a serial port
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListPorts returns available serial port names. Legacy ttyS* devices are
// filtered out, matching the port picker behaviour of the desktop app.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get available ports: %w", err)
	}

	filtered := make([]string, 0, len(ports))
	for _, p := range ports {
		if strings.Contains(p, "ttyS") {
			continue
		}
		filtered = append(filtered, p)
	}

	return filtered, nil
}

// GetDetailedPortsList returns detailed information about available serial ports
func GetDetailedPortsList() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get ports list: %w", err)
	}

	var portInfos []PortInfo
	for _, d := range details {
		if strings.Contains(d.Name, "ttyS") {
			continue
		}
		portInfos = append(portInfos, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
		})
	}

	return portInfos, nil
}

// IsPortAvailable checks if a specific port is available
func IsPortAvailable(portName string) bool {
	ports, err := ListPorts()
	if err != nil {
		return false
	}

	for _, port := range ports {
		if port == portName {
			return true
		}
	}

	return false
}

// RetryConfig defines configuration for the auto-reconnect loop
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxInterval   time.Duration `yaml:"max_interval"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		RetryInterval: time.Second,
		BackoffFactor: 2.0,
		MaxInterval:   time.Second * 10,
	}
}

// Validate checks if the retry configuration is valid
func (r RetryConfig) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if r.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative")
	}

	if r.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff factor must be >= 1.0")
	}

	if r.MaxInterval < r.RetryInterval {
		return fmt.Errorf("max interval cannot be less than retry interval")
	}

	return nil
}

// OpenWithRetry opens the port, retrying with exponential backoff.
// Used by the auto-reconnect loop after a device disappears.
func OpenWithRetry(port Port, config Config, retry RetryConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}

	var lastErr error
	interval := retry.RetryInterval

	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(interval)
			interval = time.Duration(float64(interval) * retry.BackoffFactor)
			if interval > retry.MaxInterval {
				interval = retry.MaxInterval
			}
		}

		if err := port.Open(config); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	return fmt.Errorf("failed to open serial port after %d attempts: %w", retry.MaxRetries+1, lastErr)
}

// convertStopBits converts our stop bits format to go.bug.st/serial format
func convertStopBits(stopBits int) serial.StopBits {
	switch stopBits {
	case 1:
		return serial.OneStopBit
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

// convertParity converts our parity format to go.bug.st/serial format
func convertParity(parity string) serial.Parity {
	switch parity {
	case "none":
		return serial.NoParity
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}
