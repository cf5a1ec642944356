package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmmo/querymanager/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample query manager configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/querymanager/config.yaml. Use --config to specify a
custom path.

Examples:
  # Initialize with default location
  querymanager init

  # Initialize with custom path
  querymanager init --config /etc/querymanager/config.yaml

  # Force overwrite existing config
  querymanager init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: querymanager start")
	fmt.Printf("  3. Or specify custom config: querymanager start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random shared secret has been generated under server.password.")
	fmt.Println("  Every game, login and web client must present it on login; set the")
	fmt.Println("  same value in their configuration.")

	return nil
}
