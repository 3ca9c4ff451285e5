package runner

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"vidpair/internal/config"
	"vidpair/internal/correlate"
)

// NewRunnerFromConfig creates a Runner implementation based on the runner
// config type. awsCfg may be nil for the memory backend.
func NewRunnerFromConfig(cfg config.RunnerConfig, awsCfg *aws.Config) (correlate.Runner, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryRunner(), nil
	case "lambda":
		if cfg.FunctionName == "" {
			return nil, fmt.Errorf("function_name required for lambda runner")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("aws configuration required for lambda runner")
		}
		return NewLambdaRunner(lambda.NewFromConfig(*awsCfg), cfg.FunctionName), nil
	case "ecs":
		if cfg.Cluster == "" || cfg.TaskDefinition == "" || cfg.ContainerName == "" {
			return nil, fmt.Errorf("cluster, task_definition and container_name required for ecs runner")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("aws configuration required for ecs runner")
		}
		return NewECSRunner(ecs.NewFromConfig(*awsCfg), cfg.Cluster, cfg.TaskDefinition,
			cfg.ContainerName, cfg.Subnets, cfg.SecurityGroups), nil
	default:
		return nil, fmt.Errorf("unknown runner type: %s", cfg.Type)
	}
}
