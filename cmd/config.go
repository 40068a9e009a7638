package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/DJA-prog/Serial-Gui/pkg/serial"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage saved connection configurations",
	Long: `Manage named connection configurations.

A configuration bundles a port with its parameters (baud rate, framing,
line ending) under a name that can be passed to 'connect'.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save <name> <port>",
	Short: "Save a connection configuration",
	Long: `Save the given port and connection flags under a name.

Example:
  serial-gui config save mydevice /dev/ttyUSB0 -b 9600 --ending CRLN`,
	Args: cobra.ExactArgs(2),
	Run:  runConfigSave,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved configurations",
	Run:   runConfigList,
}

var configShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show details of a saved configuration",
	Args:  cobra.ExactArgs(1),
	Run:   runConfigShow,
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved configuration",
	Args:  cobra.ExactArgs(1),
	Run:   runConfigDelete,
}

func init() {
	configSaveCmd.Flags().IntVarP(&baudRate, "baud", "b", 115200, "baud rate")
	configSaveCmd.Flags().IntVarP(&dataBits, "data", "d", 8, "data bits (5, 6, 7, or 8)")
	configSaveCmd.Flags().IntVarP(&stopBits, "stop", "s", 1, "stop bits (1 or 2)")
	configSaveCmd.Flags().StringVar(&parity, "parity", "none", "parity (none, odd, even, mark, space)")
	configSaveCmd.Flags().StringVar(&flow, "flow", "none", "flow control (only none is supported by the backend)")
	configSaveCmd.Flags().StringVar(&lineEnding, "ending", "LN", "transmit line ending (LN, CR, CRLN, NUL)")

	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDeleteCmd)
}

func runConfigSave(cmd *cobra.Command, args []string) {
	manager, err := configManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	name, port := args[0], args[1]

	config := serial.DefaultConfig()
	config.Port = port
	config.BaudRate = baudRate
	config.DataBits = dataBits
	config.StopBits = stopBits
	config.Parity = parity
	config.FlowControl = flow

	ending, err := parseLineEnding(lineEnding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	config.LineEnding = ending

	if err := manager.SaveConfig(name, config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration %q saved.\n", name)
}

func runConfigList(cmd *cobra.Command, args []string) {
	manager, err := configManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	configs, err := manager.ListConfigs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing configurations: %v\n", err)
		os.Exit(1)
	}

	if len(configs) == 0 {
		fmt.Println("No saved configurations.")
		return
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })

	fmt.Printf("%-20s %-16s %-8s %s\n", "NAME", "PORT", "BAUD", "LAST USED")
	for _, info := range configs {
		fmt.Printf("%-20s %-16s %-8d %s\n",
			info.Name,
			info.Config.Port,
			info.Config.BaudRate,
			info.LastUsedAt.Format("2006-01-02 15:04"))
	}
}

func runConfigShow(cmd *cobra.Command, args []string) {
	manager, err := configManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	config, err := manager.LoadConfig(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration: %s\n", args[0])
	fmt.Printf("  Port:         %s\n", config.Port)
	fmt.Printf("  Baud rate:    %d\n", config.BaudRate)
	fmt.Printf("  Framing:      %d%s%d\n", config.DataBits, parityLetterCmd(config.Parity), config.StopBits)
	fmt.Printf("  Flow control: %s\n", config.FlowControl)
	fmt.Printf("  Line ending:  %s\n", config.LineEnding)
	fmt.Printf("  DTR/RTS:      %t/%t\n", config.DTR, config.RTS)
}

func runConfigDelete(cmd *cobra.Command, args []string) {
	manager, err := configManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := manager.DeleteConfig(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration %q deleted.\n", args[0])
}

func parityLetterCmd(parity string) string {
	if parity == "" {
		return "N"
	}
	switch parity[0] {
	case 'e', 'E':
		return "E"
	case 'o', 'O':
		return "O"
	case 'm', 'M':
		return "M"
	case 's', 'S':
		return "S"
	default:
		return "N"
	}
}
