package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

const KindSecret = "secret"

// SecretAdapter compares Secrets by their decoded key/value content, so a
// re-encode of the same values never registers as drift.
type SecretAdapter struct {
	client kubernetes.Interface
}

func NewSecretAdapter(client kubernetes.Interface) *SecretAdapter {
	return &SecretAdapter{client: client}
}

func (a *SecretAdapter) Fetch(ctx context.Context, name, namespace string) (interface{}, error) {
	secret, err := a.client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classifyFetchError(err, KindSecret, name, namespace)
	}
	return secret, nil
}

func (a *SecretAdapter) Extract(obj interface{}) (interface{}, error) {
	secret, ok := obj.(*corev1.Secret)
	if !ok {
		return nil, fmt.Errorf("expected *corev1.Secret, got %T", obj)
	}

	// Data holds base64-decoded bytes already; comparison happens on the
	// plain values.
	decoded := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		decoded[k] = string(v)
	}
	return decoded, nil
}

func (a *SecretAdapter) Patch(ctx context.Context, name, namespace string, payload map[string]interface{}) error {
	// map[string][]byte marshals as base64, the wire form the API expects
	// under data.
	data := make(map[string][]byte, len(payload))
	for k, v := range payload {
		data[k] = []byte(stringValue(v))
	}

	body, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return fmt.Errorf("encode secret patch: %w", err)
	}

	_, err = a.client.CoreV1().Secrets(namespace).Patch(ctx, name, k8stypes.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch secret %s/%s: %w", namespace, name, err)
	}
	return nil
}
