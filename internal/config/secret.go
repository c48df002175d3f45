package config

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ParseSecretRef splits "namespace/name". A bare name uses the "default"
// namespace.
func ParseSecretRef(ref string) (namespace, name string, err error) {
	ref = strings.TrimSpace(ref)
	namespace, name, found := strings.Cut(ref, "/")
	if !found {
		namespace, name = "default", ref
	}
	if namespace == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid secret reference %q, expected namespace/name", ref)
	}
	return namespace, name, nil
}

// LoadCredentialsFromSecret reads credentials from the data of a Kubernetes
// Secret. Keys follow the credentials file, e.g. "api_key" and
// "base_domain", with or without the "dns_cdmon_" prefix.
func LoadCredentialsFromSecret(ctx context.Context, client kubernetes.Interface, namespace, name string) (*Credentials, error) {
	secret, err := client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting secret %s/%s: %w", namespace, name, err)
	}

	values := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		values[k] = string(v)
	}
	creds, err := fromSettings(normalizeKeys(values))
	if err != nil {
		return nil, fmt.Errorf("secret %s/%s: %w", namespace, name, err)
	}
	return creds, nil
}
