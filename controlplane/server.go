package controlplane

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/yanet-platform/yatable/classify"
	"github.com/yanet-platform/yatable/controlplane/internal/xgrpc"
	"github.com/yanet-platform/yatable/controlplane/tablepb"
	"github.com/yanet-platform/yatable/tables"
	"github.com/yanet-platform/yatable/tables/algo"
)

type options struct {
	Log      *zap.SugaredLogger
	LogLevel *zap.AtomicLevel
	Listener net.Listener
	Ifaces   classify.IfaceResolver
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// ServerOption is a function that configures the Server.
type ServerOption func(*options)

// WithLog sets the logger for the Server.
func WithLog(log *zap.SugaredLogger) ServerOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithAtomicLogLevel sets the atomic log level for the Server.
//
// It enables changing the log level at runtime.
func WithAtomicLogLevel(level *zap.AtomicLevel) ServerOption {
	return func(o *options) {
		o.LogLevel = level
	}
}

// WithListener makes the Server accept connections on the given listener
// instead of listening on the configured endpoint.
func WithListener(listener net.Listener) ServerOption {
	return func(o *options) {
		o.Listener = listener
	}
}

// WithIfaces sets the resolver of interface names for packet
// classification. Interfaces are resolved through netlink by default.
func WithIfaces(ifaces classify.IfaceResolver) ServerOption {
	return func(o *options) {
		o.Ifaces = ifaces
	}
}

// Server is the table engine control plane: a table registry exposed over
// gRPC.
type Server struct {
	cfg      *Config
	registry *tables.Registry
	server   *grpc.Server
	listener net.Listener
	log      *zap.SugaredLogger
}

// NewServer creates a new Server and creates the configured tables.
func NewServer(cfg *Config, options ...ServerOption) (*Server, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	log := opts.Log

	registry, err := tables.New(
		tables.WithLog(log.Named("tables")),
		tables.WithMaxTables(cfg.Registry.MaxTables),
		tables.WithAlgorithms(algo.Defaults()...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize table registry: %w", err)
	}

	if err := Bootstrap(registry, cfg.Tables, log); err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("failed to create configured tables: %w", err)
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			xgrpc.AccessLogInterceptor(log.Named("grpc")),
		),
	)
	ifaces := opts.Ifaces
	if ifaces == nil {
		ifaces = classify.NewNetlinkIfaces()
	}

	service := NewTableService(registry, cfg.Registry.DumpBuffer.Bytes(), ifaces, opts.LogLevel, log)
	tablepb.RegisterTableServiceServer(server, service)

	return &Server{
		cfg:      cfg,
		registry: registry,
		server:   server,
		listener: opts.Listener,
		log:      log,
	}, nil
}

// Registry returns the table registry the Server exposes.
func (m *Server) Registry() *tables.Registry {
	return m.registry
}

// Close destroys the table registry.
func (m *Server) Close() error {
	return m.registry.Close()
}

// Run serves the gRPC API until the context is canceled.
func (m *Server) Run(ctx context.Context) error {
	listener := m.listener
	if listener == nil {
		l, err := listen(m.cfg.Server.Endpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize gRPC listener: %w", err)
		}
		listener = l
	}

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		m.log.Infow("exposing gRPC API", zap.Stringer("addr", listener.Addr()))
		return m.server.Serve(listener)
	})

	<-ctx.Done()

	m.log.Infow("stopping gRPC API", zap.Stringer("addr", listener.Addr()))
	defer m.log.Infow("stopped gRPC API", zap.Stringer("addr", listener.Addr()))

	m.server.GracefulStop()

	return wg.Wait()
}

func listen(endpoint string) (net.Listener, error) {
	if strings.HasPrefix(endpoint, "/") {
		dir := path.Dir(endpoint)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		if err := os.Remove(endpoint); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}

		return net.Listen("unix", endpoint)
	}

	return net.Listen("tcp", endpoint)
}
