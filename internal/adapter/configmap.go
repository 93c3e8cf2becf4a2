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

const KindConfigMap = "configmap"

// ConfigMapAdapter compares and restores the data map of a ConfigMap.
type ConfigMapAdapter struct {
	client kubernetes.Interface
}

func NewConfigMapAdapter(client kubernetes.Interface) *ConfigMapAdapter {
	return &ConfigMapAdapter{client: client}
}

func (a *ConfigMapAdapter) Fetch(ctx context.Context, name, namespace string) (interface{}, error) {
	cm, err := a.client.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classifyFetchError(err, KindConfigMap, name, namespace)
	}
	return cm, nil
}

func (a *ConfigMapAdapter) Extract(obj interface{}) (interface{}, error) {
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok {
		return nil, fmt.Errorf("expected *corev1.ConfigMap, got %T", obj)
	}

	data := make(map[string]string, len(cm.Data))
	for k, v := range cm.Data {
		data[k] = v
	}
	return data, nil
}

func (a *ConfigMapAdapter) Patch(ctx context.Context, name, namespace string, payload map[string]interface{}) error {
	data := make(map[string]string, len(payload))
	for k, v := range payload {
		data[k] = stringValue(v)
	}

	body, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return fmt.Errorf("encode configmap patch: %w", err)
	}

	_, err = a.client.CoreV1().ConfigMaps(namespace).Patch(ctx, name, k8stypes.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch configmap %s/%s: %w", namespace, name, err)
	}
	return nil
}
