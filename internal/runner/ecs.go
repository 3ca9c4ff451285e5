package runner

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"vidpair/internal/correlate"
)

// ECSAPI is the subset of the ECS client the runner uses.
type ECSAPI interface {
	RunTask(ctx context.Context, in *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
}

// ECSRunner dispatches the merge job by launching a Fargate task, passing
// the pair's artifact keys through container environment overrides. The
// task performs the actual merge; the runner only starts it.
type ECSRunner struct {
	client         ECSAPI
	cluster        string
	taskDefinition string
	containerName  string
	subnets        []string
	securityGroups []string
}

// NewECSRunner creates a runner that launches tasks on the given cluster.
func NewECSRunner(client ECSAPI, cluster, taskDefinition, containerName string, subnets, securityGroups []string) *ECSRunner {
	return &ECSRunner{
		client:         client,
		cluster:        cluster,
		taskDefinition: taskDefinition,
		containerName:  containerName,
		subnets:        subnets,
		securityGroups: securityGroups,
	}
}

func (r *ECSRunner) Invoke(ctx context.Context, payload correlate.MergePayload) error {
	env := func(name, value string) types.KeyValuePair {
		return types.KeyValuePair{Name: aws.String(name), Value: aws.String(value)}
	}

	out, err := r.client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(r.cluster),
		TaskDefinition: aws.String(r.taskDefinition),
		LaunchType:     types.LaunchTypeFargate,
		NetworkConfiguration: &types.NetworkConfiguration{
			AwsvpcConfiguration: &types.AwsVpcConfiguration{
				Subnets:        r.subnets,
				SecurityGroups: r.securityGroups,
				AssignPublicIp: types.AssignPublicIpEnabled,
			},
		},
		Overrides: &types.TaskOverride{
			ContainerOverrides: []types.ContainerOverride{{
				Name: aws.String(r.containerName),
				Environment: []types.KeyValuePair{
					env("TASK_ID", payload.RequestID),
					env("MAIN_VIDEO_KEY", payload.PrimaryArtifactID),
					env("TRANSLATOR_VIDEO_KEY", payload.CompanionArtifactID),
					env("ROOM_NAME", payload.Session),
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("running merge task: %w", err)
	}
	if len(out.Failures) > 0 {
		f := out.Failures[0]
		return fmt.Errorf("running merge task: %s: %s", aws.ToString(f.Reason), aws.ToString(f.Detail))
	}
	if len(out.Tasks) == 0 {
		return fmt.Errorf("running merge task: no task started")
	}
	return nil
}

// Compile-time check that ECSRunner implements the runner interface
var _ correlate.Runner = (*ECSRunner)(nil)
