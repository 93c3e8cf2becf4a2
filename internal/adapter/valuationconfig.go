package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
)

const KindValuationConfig = "valuationconfig"

// ValuationConfigGVR locates the valuation-configuration custom resource.
var ValuationConfigGVR = schema.GroupVersionResource{
	Group:    "valuation.example.com",
	Version:  "v1alpha1",
	Resource: "valuationconfigs",
}

// ValuationConfigAdapter compares the spec.parameters map of the
// valuation-configuration custom resource.
type ValuationConfigAdapter struct {
	client dynamic.Interface
}

func NewValuationConfigAdapter(client dynamic.Interface) *ValuationConfigAdapter {
	return &ValuationConfigAdapter{client: client}
}

func (a *ValuationConfigAdapter) Fetch(ctx context.Context, name, namespace string) (interface{}, error) {
	obj, err := a.client.Resource(ValuationConfigGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classifyFetchError(err, KindValuationConfig, name, namespace)
	}
	return obj, nil
}

func (a *ValuationConfigAdapter) Extract(obj interface{}) (interface{}, error) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return nil, fmt.Errorf("expected *unstructured.Unstructured, got %T", obj)
	}
	return ExtractParameters(u)
}

func (a *ValuationConfigAdapter) Patch(ctx context.Context, name, namespace string, payload map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{
			"parameters": payload,
		},
	})
	if err != nil {
		return fmt.Errorf("encode valuationconfig patch: %w", err)
	}

	_, err = a.client.Resource(ValuationConfigGVR).Namespace(namespace).Patch(ctx, name, k8stypes.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch valuationconfig %s/%s: %w", namespace, name, err)
	}
	return nil
}

// ExtractParameters reads spec.parameters from a valuation config object. The
// advisory watcher shares this projection so that it observes exactly what the
// controller hashes.
func ExtractParameters(u *unstructured.Unstructured) (map[string]interface{}, error) {
	params, found, err := unstructured.NestedMap(u.Object, "spec", "parameters")
	if err != nil {
		return nil, fmt.Errorf("read spec.parameters: %w", err)
	}
	if !found {
		return map[string]interface{}{}, nil
	}
	return params, nil
}
