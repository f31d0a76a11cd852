package kubernetes

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// EnabledLabel marks a Service as an echo server the client may connect to.
const EnabledLabel = "xecho-enabled"

type K8sResolver struct {
	store cache.Store
}

// NewK8sResolver starts a Service informer and blocks until its cache has
// synced or ctx is done. The informer runs until ctx is cancelled. An empty
// namespace watches all namespaces.
func NewK8sResolver(ctx context.Context, clientset kubernetes.Interface, namespace string) (*K8sResolver, error) {
	var opts []informers.SharedInformerOption
	if namespace != "" {
		opts = append(opts, informers.WithNamespace(namespace))
	}
	factory := informers.NewSharedInformerFactoryWithOptions(clientset, 10*time.Minute, opts...)
	serviceInformer := factory.Core().V1().Services().Informer()

	// Start the informer in the background
	factory.Start(ctx.Done())
	for typ, ok := range factory.WaitForCacheSync(ctx.Done()) {
		if !ok {
			return nil, fmt.Errorf("failed to sync informer cache for %v", typ)
		}
	}

	return &K8sResolver{
		store: serviceInformer.GetStore(),
	}, nil
}

// Resolve maps "name" or "name.namespace" of an enabled Service to its
// cluster DNS name. IP literals and hosts that match no Service are returned
// unchanged.
func (r *K8sResolver) Resolve(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	name, namespace, _ := strings.Cut(host, ".")

	// Scan services for matching labels
	for _, obj := range r.store.List() {
		svc, ok := obj.(*corev1.Service)
		if !ok {
			continue
		}

		if svc.Labels[EnabledLabel] != "true" {
			continue
		}

		if svc.Name != name || (namespace != "" && svc.Namespace != namespace) {
			continue
		}

		return fmt.Sprintf("%s.%s.svc.cluster.local", svc.Name, svc.Namespace), nil
	}

	return host, nil
}
