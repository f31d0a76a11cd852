package config

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

var (
	// ErrUsage means the positional arguments were missing or extra.
	ErrUsage = errors.New("invalid number of arguments")
	// ErrInvalidPort means a port argument was not a non-negative integer.
	ErrInvalidPort = errors.New("invalid port")
)

// DiscoveryMode selects how the client maps the host of a connect command
// to the host it dials.
type DiscoveryMode string

const (
	DiscoveryDNS        DiscoveryMode = "dns"
	DiscoveryStatic     DiscoveryMode = "static"
	DiscoveryKubernetes DiscoveryMode = "kubernetes"
)

// ServerConfig holds the echo server's configuration.
type ServerConfig struct {
	Port  int
	Debug bool

	// Empty disables the health server.
	HealthServerPort string
}

// ClientConfig holds the interactive client's configuration.
type ClientConfig struct {
	Debug bool

	// Host discovery
	DiscoveryMode  DiscoveryMode
	StaticHosts    string
	KubeConfigPath string
	KubeContext    string
	Namespace      string
}

// ParsePort parses a decimal, non-negative port number.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPort, s)
	}
	return port, nil
}

// ParseServerArgs parses the server command line: flags plus exactly one
// positional port argument. Flag errors and usage are written to output.
func ParseServerArgs(args []string, output io.Writer) (*ServerConfig, error) {
	cfg := &ServerConfig{}

	fs := pflag.NewFlagSet("echo-server", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	fs.StringVar(&cfg.HealthServerPort, "health-port", "", "serve /health and /ready on this port (disabled when empty)")
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage: echo-server [flags] <port>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("%w: expected 1, got %d", ErrUsage, fs.NArg())
	}

	port, err := ParsePort(fs.Arg(0))
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate ensures configuration is coherent
func (c *ServerConfig) validate() error {
	if c.Port > 65535 {
		return fmt.Errorf("%w: %d is out of range", ErrInvalidPort, c.Port)
	}
	if c.HealthServerPort != "" {
		hp, err := ParsePort(c.HealthServerPort)
		if err != nil {
			return fmt.Errorf("health-port: %w", err)
		}
		if hp != 0 && hp == c.Port {
			return fmt.Errorf("health-port must differ from the echo port %d", c.Port)
		}
	}
	return nil
}

// ParseClientArgs parses the client command line. The client takes no
// positional arguments.
func ParseClientArgs(args []string, output io.Writer) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	var mode string

	fs := pflag.NewFlagSet("echo-client", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging on stderr")
	fs.StringVar(&mode, "discovery", string(DiscoveryDNS), "host discovery mode: dns, static or kubernetes")
	fs.StringVar(&cfg.StaticHosts, "static-hosts", "", "alias=host pairs, comma separated (static discovery)")
	fs.StringVar(&cfg.KubeConfigPath, "kubeconfig", "", "path to a kubeconfig file (kubernetes discovery)")
	fs.StringVar(&cfg.KubeContext, "kube-context", "", "kubeconfig context to use (kubernetes discovery)")
	fs.StringVar(&cfg.Namespace, "namespace", "", "only discover services in this namespace (kubernetes discovery)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("%w: expected none, got %d", ErrUsage, fs.NArg())
	}

	cfg.DiscoveryMode = determineDiscoveryMode(mode, cfg.StaticHosts)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate ensures configuration is coherent
func (c *ClientConfig) validate() error {
	switch c.DiscoveryMode {
	case DiscoveryDNS, DiscoveryKubernetes:
	case DiscoveryStatic:
		if c.StaticHosts == "" {
			return fmt.Errorf("static discovery requires --static-hosts")
		}
	default:
		return fmt.Errorf("unsupported discovery mode: %s (supported: %s)", c.DiscoveryMode,
			strings.Join([]string{string(DiscoveryDNS), string(DiscoveryStatic), string(DiscoveryKubernetes)}, ", "))
	}
	return nil
}

func determineDiscoveryMode(mode, staticHosts string) DiscoveryMode {
	switch strings.ToLower(mode) {
	case "", "dns":
		// Auto-detect: static if hosts were given without an explicit mode
		if staticHosts != "" {
			return DiscoveryStatic
		}
		return DiscoveryDNS
	case "static", "memory":
		return DiscoveryStatic
	case "kubernetes", "k8s":
		return DiscoveryKubernetes
	default:
		return DiscoveryMode(mode)
	}
}
