package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"vidpair/internal/correlate"
)

// LambdaAPI is the subset of the Lambda client the runner uses.
type LambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaRunner dispatches the merge job by asynchronously invoking a Lambda
// function. The invocation type is Event: the call returns once the request
// is queued, not when the merge finishes.
type LambdaRunner struct {
	client       LambdaAPI
	functionName string
}

// NewLambdaRunner creates a runner that invokes functionName.
func NewLambdaRunner(client LambdaAPI, functionName string) *LambdaRunner {
	return &LambdaRunner{client: client, functionName: functionName}
}

func (r *LambdaRunner) Invoke(ctx context.Context, payload correlate.MergePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	out, err := r.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(r.functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        body,
	})
	if err != nil {
		return fmt.Errorf("invoking %s: %w", r.functionName, err)
	}
	if out.StatusCode < 200 || out.StatusCode >= 300 {
		return fmt.Errorf("invoking %s: unexpected status %d", r.functionName, out.StatusCode)
	}
	return nil
}

// Compile-time check that LambdaRunner implements the runner interface
var _ correlate.Runner = (*LambdaRunner)(nil)
