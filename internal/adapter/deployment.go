package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

const KindDeployment = "deployment"

// DeploymentAdapter compares the container specs of a Deployment's pod
// template. Replica counts, rollout status and other volatile fields are
// deliberately outside the comparable projection.
type DeploymentAdapter struct {
	client kubernetes.Interface
}

func NewDeploymentAdapter(client kubernetes.Interface) *DeploymentAdapter {
	return &DeploymentAdapter{client: client}
}

func (a *DeploymentAdapter) Fetch(ctx context.Context, name, namespace string) (interface{}, error) {
	deploy, err := a.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classifyFetchError(err, KindDeployment, name, namespace)
	}
	return deploy, nil
}

func (a *DeploymentAdapter) Extract(obj interface{}) (interface{}, error) {
	deploy, ok := obj.(*appsv1.Deployment)
	if !ok {
		return nil, fmt.Errorf("expected *appsv1.Deployment, got %T", obj)
	}
	return deploy.Spec.Template.Spec.Containers, nil
}

// Patch merges the desired payload into the pod template spec. The source of
// truth supplies pod-spec-level content, typically {"containers": [...]}.
func (a *DeploymentAdapter) Patch(ctx context.Context, name, namespace string, payload map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{
			"template": map[string]interface{}{
				"spec": payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("encode deployment patch: %w", err)
	}

	_, err = a.client.AppsV1().Deployments(namespace).Patch(ctx, name, k8stypes.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patch deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}
