package main

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"

    "mavmesh/pkg/config"
)

var (
    // set with -ldflags "-X main.version=..."
    version = "dev"

    configPath string
    address    string
)

func main() {
    if err := newRootCommand().Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}

func newRootCommand() *cobra.Command {
    root := &cobra.Command{
        Use:   "mavmesh",
        Short: "MAVLink telemetry bridge over a multi-hop mesh",
        Long: `mavmesh carries a MAVLink byte stream between a flight controller and a
ground control station over a mesh of udp, tcp, quic or named pipe links.`,
        SilenceUsage: true,
    }
    root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML or TOML config file")
    root.PersistentFlags().StringVarP(&address, "address", "a", "", "Mesh neighbor address to dial")

    root.AddCommand(newBridgeCommand(config.RoleFC, "Flight controller side: serial endpoint, opens the link"))
    root.AddCommand(newBridgeCommand(config.RoleGC, "Ground control side: udp endpoint, announces and accepts the link"))
    root.AddCommand(newBridgeCommand("bridge", "Run a bridge from a plain config"))
    root.AddCommand(newNodeCommand())
    root.AddCommand(newIdentityCommand())
    root.AddCommand(newVersionCommand())
    return root
}

func newBridgeCommand(use, short string) *cobra.Command {
    var peer string
    cmd := &cobra.Command{
        Use:   use,
        Short: short,
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            role := use
            if role == "bridge" { role = "" }
            return runBridge(cmd.Context(), role, peer)
        },
    }
    cmd.Flags().StringVar(&peer, "peer", "", "Hex address hash of the peer destination (overrides bridge.peer)")
    return cmd
}

func newNodeCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "node",
        Short: "Run a relay-only mesh node",
        Args:  cobra.NoArgs,
        RunE:  func(cmd *cobra.Command, _ []string) error { return runNode(cmd.Context()) },
    }
}

func newIdentityCommand() *cobra.Command {
    var role string
    cmd := &cobra.Command{
        Use:   "identity",
        Short: "Print the local destination hash",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            cfg, err := loadConfig(role)
            if err != nil { return err }
            return printIdentity(cmd.OutOrStdout(), cfg)
        },
    }
    cmd.Flags().StringVar(&role, "role", "", "Role preset: fc or gc")
    return cmd
}

func newVersionCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "version",
        Short: "Print the version",
        Run: func(cmd *cobra.Command, _ []string) {
            fmt.Fprintln(cmd.OutOrStdout(), "mavmesh", version)
        },
    }
}
