package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DJA-prog/Serial-Gui/pkg/macro"
)

// macrosCmd represents the macros command
var macrosCmd = &cobra.Command{
	Use:   "macros",
	Short: "Manage macro definitions",
	Long: `Manage YAML macro definitions stored in the configuration directory.

Macros automate a serial session: each macro is a named sequence of
steps (send a command, wait, expect a response, show a menu) described
in a YAML file. Put macro files in the 'macros' directory under the
configuration directory, or point --config-dir somewhere else.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var macrosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available macros",
	Run:   runMacrosList,
}

var macrosShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a macro definition",
	Args:  cobra.ExactArgs(1),
	Run:   runMacrosShow,
}

var macrosDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a macro",
	Args:  cobra.ExactArgs(1),
	Run:   runMacrosDelete,
}

func init() {
	macrosCmd.AddCommand(macrosListCmd)
	macrosCmd.AddCommand(macrosShowCmd)
	macrosCmd.AddCommand(macrosDeleteCmd)
}

func macroStore() (*macro.Store, error) {
	manager, err := configManager()
	if err != nil {
		return nil, err
	}
	if err := manager.Initialize(); err != nil {
		return nil, err
	}
	return macro.NewStore(manager.MacroDir())
}

func runMacrosList(cmd *cobra.Command, args []string) {
	store, err := macroStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	names, err := store.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing macros: %v\n", err)
		os.Exit(1)
	}

	if len(names) == 0 {
		fmt.Printf("No macros found in %s\n", store.Dir())
		return
	}

	for _, name := range names {
		m, err := store.Load(name)
		if err != nil {
			fmt.Printf("%-24s (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Printf("%-24s %d steps\n", name, len(m.Steps))
	}
}

func runMacrosShow(cmd *cobra.Command, args []string) {
	store, err := macroStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	m, err := store.Load(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := macro.Encode(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(data)
}

func runMacrosDelete(cmd *cobra.Command, args []string) {
	store, err := macroStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := store.Delete(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Macro %q deleted.\n", args[0])
}
