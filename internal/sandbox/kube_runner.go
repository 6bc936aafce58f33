package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
)

// KubeRunner is the alternate Runner backend for environments without a
// Docker daemon: one Kubernetes Job per sandbox run. The Job has no
// workspace volume and no init container, so the bundle is not copied into
// the pod, and the harness report is not retrieved: every completed run
// reports a RUNTIME finding. Grounded on this module's
// in-cluster/kubeconfig client construction pattern, generalized from
// exec-into-an-existing-pod to create-and-watch-a-Job.
type KubeRunner struct {
	Image     string
	Namespace string
	TestCmd   []string
	clientset *kubernetes.Clientset
}

func NewKubeRunner(image, namespace string, cmd []string) (*KubeRunner, error) {
	clientset, err := newInClusterOrKubeconfigClient()
	if err != nil {
		return nil, fmt.Errorf("build kube client: %w", err)
	}
	if namespace == "" {
		namespace = "builder"
	}
	return &KubeRunner{Image: image, Namespace: namespace, TestCmd: cmd, clientset: clientset}, nil
}

func newInClusterOrKubeconfigClient() (*kubernetes.Clientset, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := strings.TrimSpace(os.Getenv("KUBECONFIG"))
		if kubeconfig == "" {
			home, _ := os.UserHomeDir()
			if home != "" {
				kubeconfig = filepath.Join(home, ".kube", "config")
			}
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, err
		}
	}
	return kubernetes.NewForConfig(cfg)
}

func (r *KubeRunner) Run(ctx context.Context, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Duration(req.Profile.WallClockSec) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jobName := fmt.Sprintf("builder-sandbox-%s-%s", sanitizeK8sName(req.JobID), sanitizeK8sName(req.AttemptID))
	cmd := r.TestCmd
	if len(cmd) == 0 {
		cmd = []string{"sh", "-c", "python -m pytest -q"}
	}

	backoffLimit := int32(0)
	activeDeadline := int64(timeout.Seconds())
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: jobName, Namespace: r.Namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit:          &backoffLimit,
			ActiveDeadlineSeconds: &activeDeadline,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"builder-job": sanitizeK8sName(req.JobID)}},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:            "sandbox",
							Image:           r.Image,
							Command:         cmd,
							WorkingDir:      "/workspace",
							Resources:       resourceRequirementsFor(req.Profile),
							SecurityContext: hermeticSecurityContext(),
						},
					},
				},
			},
		},
	}
	if req.Profile.Network == policy.NetworkNone {
		job.Spec.Template.Spec.HostNetwork = false
	}

	jobs := r.clientset.BatchV1().Jobs(r.Namespace)
	created, err := jobs.Create(runCtx, job, metav1.CreateOptions{})
	if err != nil {
		return Result{State: StateAborted}, fmt.Errorf("create sandbox job: %w", err)
	}
	defer func() {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		propagation := metav1.DeletePropagationBackground
		_ = jobs.Delete(deleteCtx, created.Name, metav1.DeleteOptions{PropagationPolicy: &propagation})
	}()

	start := time.Now()
	state, err := waitForJobCompletion(runCtx, jobs, created.Name)
	usage := ResourceUsage{WallClock: time.Since(start)}
	if runCtx.Err() != nil {
		rep := report.Report{CapabilitySuiteResults: map[string]bool{}}
		rep.Findings = append(rep.Findings, report.Finding{
			Severity: report.SeverityFatal,
			Kind:     report.KindTimeout,
			Message:  fmt.Sprintf("sandbox job exceeded %s", timeout),
		})
		return Result{Report: rep, Usage: usage, State: StateAborted}, nil
	}
	if err != nil {
		return Result{State: StateAborted}, err
	}

	rep := report.Report{CapabilitySuiteResults: map[string]bool{}}
	rep.Findings = append(rep.Findings, report.Finding{
		Severity: report.SeverityFatal,
		Kind:     report.KindRuntime,
		Message:  fmt.Sprintf("kubernetes sandbox backend does not yet support harness report retrieval without a shared volume driver; job phase=%s", state),
	})
	return Result{Report: rep, Usage: usage, State: StateReleased}, nil
}

func waitForJobCompletion(ctx context.Context, jobs interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions) (*batchv1.Job, error)
}, name string) (string, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			j, err := jobs.Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return "", err
			}
			if j.Status.Succeeded > 0 {
				return "succeeded", nil
			}
			if j.Status.Failed > 0 {
				return "failed", nil
			}
		}
	}
}

func resourceRequirementsFor(p policy.Profile) corev1.ResourceRequirements {
	cpu := resource.NewMilliQuantity(int64(p.CPUSeconds*1000), resource.DecimalSI)
	mem := resource.NewQuantity(p.MemoryBytes, resource.BinarySI)
	return corev1.ResourceRequirements{
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    *cpu,
			corev1.ResourceMemory: *mem,
		},
	}
}

func hermeticSecurityContext() *corev1.SecurityContext {
	falseVal := false
	trueVal := true
	nonRootUID := int64(65534)
	return &corev1.SecurityContext{
		Privileged:               &falseVal,
		AllowPrivilegeEscalation: &falseVal,
		ReadOnlyRootFilesystem:   &trueVal,
		RunAsNonRoot:             &trueVal,
		RunAsUser:                &nonRootUID,
		Capabilities:             &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
	}
}

func sanitizeK8sName(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 40 {
		out = out[:40]
	}
	if out == "" {
		out = "job"
	}
	return out
}
