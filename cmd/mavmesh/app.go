package main

import (
    "context"
    "fmt"
    "io"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "go.uber.org/zap"

    "mavmesh/pkg/bridge"
    "mavmesh/pkg/config"
    "mavmesh/pkg/core/netstack"
    "mavmesh/pkg/endpoint"
    "mavmesh/pkg/identity"
    "mavmesh/pkg/mesh"
    "mavmesh/pkg/observability"
)

func loadConfig(role string) (*config.Config, error) {
    cfg, err := config.LoadRole(configPath, role)
    if err != nil { return nil, fmt.Errorf("load config: %w", err) }
    cfg.AddDial(address)
    return cfg, nil
}

// localDestination builds the bridge's own destination from identity config.
func localDestination(cfg *config.Config) (*mesh.Destination, error) {
    priv, _, err := identity.LoadOrGenEd25519(cfg.Identity)
    if err != nil { return nil, fmt.Errorf("identity: %w", err) }
    return mesh.NewDestination(priv, mesh.NewDestinationName(cfg.Bridge.App, cfg.Bridge.Aspect)), nil
}

func printIdentity(w io.Writer, cfg *config.Config) error {
    d, err := localDestination(cfg)
    if err != nil { return err }
    desc := d.Desc()
    fmt.Fprintf(w, "destination: %s\n", desc.AddressHash)
    fmt.Fprintf(w, "name:        %s\n", desc.Name)
    fmt.Fprintf(w, "identity:    %x\n", identity.Hash(desc.Identity))
    return nil
}

// runtime is the mesh side shared by the bridge and node commands.
type runtime struct {
    cfg     *config.Config
    node    *mesh.Node
    metrics *observability.Metrics
    stack   *netstack.Stack
}

func startRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    metrics := observability.NewMetrics(reg)

    mopts := mesh.OptionsFromConfig(cfg.Mesh)
    mopts.Metrics = metrics
    node, err := mesh.New(mopts)
    if err != nil { return nil, fmt.Errorf("mesh: %w", err) }

    stack, err := netstack.StartFromConfig(ctx, cfg.Transports, node, netstack.OptionsFromConfig(cfg.Net))
    if err != nil {
        _ = node.Close()
        return nil, fmt.Errorf("transports: %w", err)
    }
    go func() {
        if err := node.Run(ctx); err != nil { zap.L().Error("mesh node stopped", zap.Error(err)) }
    }()
    if cfg.Metrics.Listen != "" {
        go func() {
            if err := observability.ServeMetrics(ctx, cfg.Metrics.Listen, cfg.Metrics.Path, reg); err != nil {
                zap.L().Error("metrics server failed", zap.Error(err))
            }
        }()
    }
    zap.L().Info("mesh started", zap.Int("mtu", cfg.Mesh.MTU), zap.Int("mdu", node.MDU()), zap.Bool("transport", cfg.Mesh.TransportEnabled))
    return &runtime{cfg: cfg, node: node, metrics: metrics, stack: stack}, nil
}

func (r *runtime) close() {
    if err := r.node.Close(); err != nil { zap.L().Debug("mesh close", zap.Error(err)) }
    r.stack.Close()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
    if parent == nil { parent = context.Background() }
    return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runBridge(parent context.Context, role, peer string) error {
    cfg, err := loadConfig(role)
    if err != nil { return err }
    if peer != "" { cfg.Bridge.Peer = peer }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil { return fmt.Errorf("logger: %w", err) }
    defer func() { _ = logger.Sync() }()
    zap.L().Info("mavmesh starting", zap.String("app", cfg.AppName), zap.String("role", cfg.Role), zap.String("version", version), zap.String("address", address))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    // reject a bad peer before touching the device or the network
    if err := bridge.CheckConfig(cfg.Bridge); err != nil { return err }

    local, err := localDestination(cfg)
    if err != nil { return err }
    local.AppData, err = mesh.EncodeAppData(map[string]any{"role": cfg.Role, "app": cfg.Bridge.App, "mode": cfg.Bridge.Mode})
    if err != nil { return err }

    ep, err := endpoint.Open(cfg.Endpoint)
    if err != nil { return &bridge.EndpointOpenError{Kind: cfg.Endpoint.Kind, Err: err} }
    defer ep.Close()

    ctx, cancel := signalContext(parent)
    defer cancel()
    rt, err := startRuntime(ctx, cfg)
    if err != nil { return err }
    defer rt.close()

    rt.node.AddDestination(local)
    zap.L().Info("local destination", zap.String("dest", local.AddressHash().String()), zap.String("name", local.Desc().Name.String()))

    opts := bridge.OptionsFromConfig(cfg.Bridge)
    opts.Local = local
    opts.Metrics = rt.metrics
    b, err := bridge.New(rt.node, ep, opts)
    if err != nil { return err }

    if err := b.Run(ctx); err != nil {
        zap.L().Error("bridge exited with error", zap.Error(err))
        return err
    }
    zap.L().Info("bridge exit")
    return nil
}

func runNode(parent context.Context) error {
    cfg, err := loadConfig("")
    if err != nil { return err }
    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil { return fmt.Errorf("logger: %w", err) }
    defer func() { _ = logger.Sync() }()
    zap.L().Info("mavmesh node starting", zap.String("app", cfg.AppName), zap.String("version", version))

    ctx, cancel := signalContext(parent)
    defer cancel()
    rt, err := startRuntime(ctx, cfg)
    if err != nil { return err }
    defer rt.close()

    t := time.NewTicker(30 * time.Second)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            zap.L().Info("node exit")
            return nil
        case <-t.C:
            zap.L().Info("node status", zap.Int("neighbors", len(rt.node.Neighbors())), zap.Int("paths", len(rt.node.Paths())))
        }
    }
}
