package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/config"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/core"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/discovery/kubernetes"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/discovery/memory"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ResolverFactory creates host resolvers based on configuration
type ResolverFactory struct {
	cfg *config.ClientConfig

	// newClientset is swapped in tests.
	newClientset func(*rest.Config) (k8s.Interface, error)
}

// NewResolverFactory creates a new resolver factory
func NewResolverFactory(cfg *config.ClientConfig) *ResolverFactory {
	return &ResolverFactory{
		cfg: cfg,
		newClientset: func(c *rest.Config) (k8s.Interface, error) {
			return k8s.NewForConfig(c)
		},
	}
}

// Create creates a host resolver based on configuration. A kubernetes
// resolver keeps watching until ctx is cancelled.
func (f *ResolverFactory) Create(ctx context.Context) (core.HostResolver, error) {
	switch f.cfg.DiscoveryMode {
	case config.DiscoveryDNS:
		logger.Debug("Using DNS host resolution")
		return core.PassthroughResolver{}, nil
	case config.DiscoveryStatic:
		return f.createStaticResolver()
	case config.DiscoveryKubernetes:
		return f.createKubernetesResolver(ctx)
	default:
		return nil, fmt.Errorf("unknown discovery mode: %s", f.cfg.DiscoveryMode)
	}
}

func (f *ResolverFactory) createStaticResolver() (core.HostResolver, error) {
	logger.Info("Creating Static Host Resolver", "hosts", f.cfg.StaticHosts)

	resolver, err := memory.NewResolver(f.cfg.StaticHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to create static resolver: %w", err)
	}

	return resolver, nil
}

func (f *ResolverFactory) createKubernetesResolver(ctx context.Context) (core.HostResolver, error) {
	logger.Info("Creating Kubernetes Host Resolver",
		"kubeconfig", f.cfg.KubeConfigPath,
		"context", f.cfg.KubeContext,
		"namespace", f.cfg.Namespace)

	restConfig, err := f.restConfig()
	if err != nil {
		return nil, err
	}

	clientset, err := f.newClientset(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	resolver, err := kubernetes.NewK8sResolver(ctx, clientset, f.cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to start kubernetes resolver: %w", err)
	}
	logger.Info("Kubernetes resolver created successfully")
	return resolver, nil
}

func (f *ResolverFactory) restConfig() (*rest.Config, error) {
	kubeconfig := f.cfg.KubeConfigPath
	if kubeconfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			if _, err := os.Stat(home + "/.kube/config"); err == nil {
				kubeconfig = home + "/.kube/config"
			}
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if f.cfg.KubeContext != "" {
		configOverrides.CurrentContext = f.cfg.KubeContext
		logger.Info("Using specific Kubernetes context", "context", f.cfg.KubeContext)
	}

	// Try kubeconfig first, then fall back to in-cluster config
	if kubeconfig != "" {
		restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()
		if err == nil {
			return restConfig, nil
		}
		logger.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
	}

	logger.Info("Attempting in-cluster Kubernetes configuration")
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
	}
	return restConfig, nil
}
