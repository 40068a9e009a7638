package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DJA-prog/Serial-Gui/pkg/app"
	"github.com/DJA-prog/Serial-Gui/pkg/gateway"
	"github.com/DJA-prog/Serial-Gui/pkg/macro"
	"github.com/DJA-prog/Serial-Gui/pkg/serial"
)

var (
	runPort string
	runYes  bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <macro>",
	Short: "Run a macro without the interactive screen",
	Long: `Run a macro against a serial port and print the session to stdout.

Steps that would open a dialog in the interactive monitor prompt on
stdin instead. With --yes, confirmations are answered yes and prompts
are skipped, which keeps unattended runs moving.

Example:
  serial-gui run provision --port /dev/ttyUSB0 -b 9600`,
	Args: cobra.ExactArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPort, "port", "p", "", "serial port or saved configuration name")
	runCmd.Flags().IntVarP(&baudRate, "baud", "b", 115200, "baud rate")
	runCmd.Flags().IntVarP(&dataBits, "data", "d", 8, "data bits (5, 6, 7, or 8)")
	runCmd.Flags().IntVarP(&stopBits, "stop", "s", 1, "stop bits (1 or 2)")
	runCmd.Flags().StringVar(&parity, "parity", "none", "parity (none, odd, even, mark, space)")
	runCmd.Flags().StringVar(&lineEnding, "ending", "LN", "transmit line ending (LN, CR, CRLN, NUL)")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "answer yes to confirmations, skip prompts")
	runCmd.MarkFlagRequired("port")
}

func runRun(cmd *cobra.Command, args []string) {
	manager, err := configManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, err := macroStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	def, err := store.Load(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	config, err := resolveTarget(manager, runPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := fileLogger(manager)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	port := serial.NewPort()
	if err := serial.OpenWithRetry(port, config, serial.DefaultRetryConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", config.Port, err)
		explainOpenError(err)
		os.Exit(1)
	}

	var gw macro.Gateway
	if runYes {
		gw = &gateway.StaticResponder{ConfirmAnswer: true}
	} else {
		gw = app.NewStdinGateway(os.Stdin, os.Stdout)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := app.NewHeadlessRunner(port, config, gw, os.Stdout, logger)
	result, err := runner.Run(ctx, def)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: macro %q failed: %v\n", def.Name, err)
		os.Exit(1)
	}
	if result != macro.ResultCompleted {
		os.Exit(1)
	}
}
