package cmd

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/glint-sh/glint/internal/backend"
	"github.com/glint-sh/glint/internal/config"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List discovered search backends",
	Long: `List the search backends glint would query.

Backends are discovered from descriptor files; each entry shows the
socket the backend listens on and whether something is answering there
right now. Backends excluded in the configuration are not listed.`,
	RunE: runBackends,
}

func runBackends(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	paths := config.DefaultPaths()

	dirs := cfg.Backends.Dirs
	if len(dirs) == 0 {
		dirs = paths.BackendDirs()
	}
	registry := backend.NewRegistry(backend.RegistryConfig{
		Dirs:       dirs,
		RuntimeDir: paths.RuntimeDir,
		Exclude:    cfg.Backends.Exclude,
	})

	backends := registry.Backends()
	if len(backends) == 0 {
		fmt.Println("No search backends found.")
		fmt.Printf("%sDescriptors are read from:%s\n", colorDim, colorReset)
		for _, dir := range dirs {
			fmt.Printf("  %s\n", dir)
		}
		return nil
	}

	for _, b := range backends {
		fmt.Printf("%s%s%s  %s\n", colorBold, b.AppID, colorReset, socketStatus(b.Socket))
		fmt.Printf("  socket:  %s\n", b.Socket)
		fmt.Printf("  service: %s\n", b.Service)
		if b.AppIcon != "" {
			fmt.Printf("  icon:    %s\n", b.AppIcon)
		}
	}

	fmt.Println()
	fmt.Printf("%s%d backend(s)%s\n", colorDim, len(backends), colorReset)
	return nil
}

// socketStatus probes whether anything is listening on the socket.
func socketStatus(path string) string {
	conn, err := net.DialTimeout("unix", path, 250*time.Millisecond)
	if err != nil {
		return colorDim + "offline" + colorReset
	}
	conn.Close()
	return colorGreen + "online" + colorReset
}
