package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/DJA-prog/Serial-Gui/pkg/app"
	"github.com/DJA-prog/Serial-Gui/pkg/config"
	"github.com/DJA-prog/Serial-Gui/pkg/serial"
)

var (
	baudRate   int
	dataBits   int
	stopBits   int
	parity     string
	flow       string
	lineEnding string
	setDTR     bool
	setRTS     bool
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <port|config>",
	Short: "Open an interactive monitor session",
	Long: `Connect to a serial port directly or using a saved configuration
and open the interactive monitor.

You can specify either:
  - A port name (e.g., /dev/ttyUSB0) with optional parameters
  - A saved configuration name

Examples:
  # Connect to /dev/ttyUSB0 with default settings
  serial-gui connect /dev/ttyUSB0

  # Connect with a custom baud rate and CRLF line endings
  serial-gui connect /dev/ttyUSB0 -b 9600 --ending CRLN

  # Connect using a saved configuration
  serial-gui connect mydevice`,
	Args:    cobra.ExactArgs(1),
	Aliases: []string{"open", "c"},
	Run:     runConnect,
}

func init() {
	connectCmd.Flags().IntVarP(&baudRate, "baud", "b", 115200, "baud rate")
	connectCmd.Flags().IntVarP(&dataBits, "data", "d", 8, "data bits (5, 6, 7, or 8)")
	connectCmd.Flags().IntVarP(&stopBits, "stop", "s", 1, "stop bits (1 or 2)")
	connectCmd.Flags().StringVar(&parity, "parity", "none", "parity (none, odd, even, mark, space)")
	connectCmd.Flags().StringVar(&flow, "flow", "none", "flow control (only none is supported by the backend)")
	connectCmd.Flags().StringVar(&lineEnding, "ending", "LN", "transmit line ending (LN, CR, CRLN, NUL)")
	connectCmd.Flags().BoolVar(&setDTR, "dtr", true, "assert DTR on open")
	connectCmd.Flags().BoolVar(&setRTS, "rts", true, "assert RTS on open")
}

func runConnect(cmd *cobra.Command, args []string) {
	manager, err := configManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	settings, err := manager.Settings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}

	serialConfig, err := resolveTarget(manager, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		suggestTargets(manager)
		os.Exit(1)
	}
	settings.Serial = serialConfig

	logger, closeLog, err := fileLogger(manager)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	port := serial.NewPort()
	if err := serial.OpenWithRetry(port, serialConfig, serial.DefaultRetryConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open serial port: %v\n", err)
		explainOpenError(err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		port.Close()
		fmt.Fprintf(os.Stderr, "Error: failed to create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		port.Close()
		fmt.Fprintf(os.Stderr, "Error: failed to init screen: %v\n", err)
		os.Exit(1)
	}

	monitor, err := app.NewMonitor(app.MonitorConfig{
		Settings: settings,
		Manager:  manager,
		Port:     port,
		Screen:   screen,
		Logger:   logger,
	})
	if err != nil {
		screen.Fini()
		port.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := monitor.Run(ctx)
	screen.Fini()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// resolveTarget turns the positional argument into a serial config: a
// port name combined with the connection flags, or a saved
// configuration looked up by name
func resolveTarget(manager *config.FileManager, target string) (serial.Config, error) {
	if !isSerialPort(target) && manager.ConfigExists(target) {
		return manager.LoadConfig(target)
	}

	config := serial.DefaultConfig()
	config.Port = target
	config.BaudRate = baudRate
	config.DataBits = dataBits
	config.StopBits = stopBits
	config.Parity = parity
	config.FlowControl = flow
	config.DTR = setDTR
	config.RTS = setRTS

	ending, err := parseLineEnding(lineEnding)
	if err != nil {
		return serial.Config{}, err
	}
	config.LineEnding = ending

	if err := config.Validate(); err != nil {
		return serial.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if verbose {
		fmt.Printf("Connecting to %s (%d baud, %d%s%d, %s ending)\n",
			target, baudRate, dataBits, strings.ToUpper(parity[:1]), stopBits, ending)
	}

	return config, nil
}

// parseLineEnding maps the flag value onto a transmit line ending
func parseLineEnding(name string) (serial.LineEnding, error) {
	ending := serial.LineEnding(strings.ToUpper(strings.TrimSpace(name)))
	if !ending.Valid() {
		return "", fmt.Errorf("invalid line ending %q (use LN, CR, CRLN or NUL)", name)
	}
	return ending, nil
}

// isSerialPort reports whether name looks like a serial device rather
// than a saved configuration name
func isSerialPort(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "com") {
		return true
	}
	if strings.HasPrefix(name, "/dev/") {
		return true
	}

	ports, err := serial.ListPorts()
	if err == nil {
		for _, port := range ports {
			if strings.EqualFold(port, name) {
				return true
			}
		}
	}
	return false
}

func suggestTargets(manager *config.FileManager) {
	ports, _ := serial.ListPorts()
	if len(ports) > 0 {
		fmt.Fprintln(os.Stderr, "\nAvailable ports:")
		for _, port := range ports {
			fmt.Fprintf(os.Stderr, "  - %s\n", port)
		}
	}

	configs, _ := manager.ListConfigs()
	if len(configs) > 0 {
		fmt.Fprintln(os.Stderr, "\nSaved configurations:")
		for _, info := range configs {
			fmt.Fprintf(os.Stderr, "  - %s (port: %s)\n", info.Name, info.Config.Port)
		}
	}
}

func explainOpenError(err error) {
	errStr := err.Error()
	if strings.Contains(errStr, "permission") || strings.Contains(errStr, "access") {
		fmt.Fprintln(os.Stderr, "  - Check that you have permission to access the port")
		fmt.Fprintln(os.Stderr, "  - On Linux: add your user to the 'dialout' group")
	}
	if strings.Contains(errStr, "busy") || strings.Contains(errStr, "use") {
		fmt.Fprintln(os.Stderr, "  - The port may be in use by another application")
	}
	if strings.Contains(errStr, "not found") || strings.Contains(errStr, "no such") {
		fmt.Fprintln(os.Stderr, "  - Use 'serial-gui list' to see available ports")
	}
}
