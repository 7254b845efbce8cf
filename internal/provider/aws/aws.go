// Package aws adapts AWS Lambda to the benchmark pipeline. Cold starts are
// forced by bumping a counter environment variable on the function, and
// provider-side execution times come from REPORT lines queried through
// CloudWatch Logs Insights.
package aws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

// coldStartVar is the environment variable mutated to force configuration
// redeployment, and with it a fresh instance on the next invocation.
const coldStartVar = "cold_start_var"

// requestIDHeader carries the Lambda-assigned request id on function URL
// responses.
const requestIDHeader = "x-amzn-RequestId"

const (
	configPropagationTimeout = 5 * time.Minute
	queryPollInterval        = time.Second
)

// Settings holds the aws section of the providers config.
type Settings struct {
	Region string `mapstructure:"region"`
}

// Provider implements provider.Provider for AWS Lambda.
type Provider struct {
	lambda *lambda.Client
	logs   *cloudwatchlogs.Client
}

// New builds a Lambda provider using the default AWS credential chain.
func New(ctx context.Context, settings Settings) (*Provider, error) {
	if settings.Region == "" {
		return nil, fmt.Errorf("aws: region is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(settings.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &Provider{
		lambda: lambda.NewFromConfig(cfg),
		logs:   cloudwatchlogs.NewFromConfig(cfg),
	}, nil
}

func (p *Provider) Name() string { return "aws" }

// EnforceColdStart increments the cold start counter variable and waits for
// the configuration update to finish propagating.
func (p *Provider) EnforceColdStart(ctx context.Context, fn string) error {
	out, err := p.lambda.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: awssdk.String(fn),
	})
	if err != nil {
		return p.infraErr(fn, "get function configuration", err)
	}

	env := map[string]string{}
	if out.Environment != nil {
		for k, v := range out.Environment.Variables {
			env[k] = v
		}
	}
	current, _ := strconv.Atoi(env[coldStartVar])
	env[coldStartVar] = strconv.Itoa(current + 1)

	_, err = p.lambda.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: awssdk.String(fn),
		Environment:  &lambdatypes.Environment{Variables: env},
	})
	if err != nil {
		return p.infraErr(fn, "update environment", err)
	}
	if err := p.waitUpdated(ctx, fn); err != nil {
		return p.infraErr(fn, "await configuration update", err)
	}
	slog.Debug("cold start enforced", "provider", "aws", "function", fn, "counter", env[coldStartVar])
	return nil
}

// SetMemory updates the function's memory size and waits for propagation.
func (p *Provider) SetMemory(ctx context.Context, fn string, memoryMB int, native bool) error {
	_, err := p.lambda.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: awssdk.String(fn),
		MemorySize:   awssdk.Int32(int32(memoryMB)),
	})
	if err != nil {
		return p.infraErr(fn, "update memory", err)
	}
	if err := p.waitUpdated(ctx, fn); err != nil {
		return p.infraErr(fn, "await configuration update", err)
	}
	return nil
}

func (p *Provider) waitUpdated(ctx context.Context, fn string) error {
	waiter := lambda.NewFunctionUpdatedV2Waiter(p.lambda)
	return waiter.Wait(ctx, &lambda.GetFunctionInput{
		FunctionName: awssdk.String(fn),
	}, configPropagationTimeout)
}

// PrepareRequest is a no-op; Lambda assigns the request id server-side.
func (p *Provider) PrepareRequest(hdr http.Header) string { return "" }

// CorrelationID reads the Lambda request id from the response headers.
func (p *Provider) CorrelationID(pregen string, resp http.Header) (string, error) {
	id := resp.Get(requestIDHeader)
	if id == "" {
		return "", fmt.Errorf("aws: response missing %s header", requestIDHeader)
	}
	return id, nil
}

// FetchCandidates runs a Logs Insights query for REPORT lines in the
// function's log group and returns the raw messages.
func (p *Provider) FetchCandidates(ctx context.Context, fn string, w models.Window) ([]models.RawLogEntry, error) {
	start, err := p.logs.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: awssdk.String("/aws/lambda/" + fn),
		QueryString:  awssdk.String("filter @message like /REPORT/"),
		StartTime:    awssdk.Int64(w.Start.Unix()),
		EndTime:      awssdk.Int64(w.End.Unix() + 1),
		Limit:        awssdk.Int32(10000),
	})
	if err != nil {
		return nil, fmt.Errorf("starting logs insights query: %w", err)
	}

	for {
		out, err := p.logs.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{
			QueryId: start.QueryId,
		})
		if err != nil {
			return nil, fmt.Errorf("polling logs insights query: %w", err)
		}

		switch out.Status {
		case cwltypes.QueryStatusRunning, cwltypes.QueryStatusScheduled:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(queryPollInterval):
			}
		case cwltypes.QueryStatusComplete:
			var entries []models.RawLogEntry
			for _, row := range out.Results {
				for _, field := range row {
					if awssdk.ToString(field.Field) == "@message" {
						entries = append(entries, models.RawLogEntry{
							Message: awssdk.ToString(field.Value),
						})
					}
				}
			}
			return entries, nil
		default:
			return nil, fmt.Errorf("logs insights query ended with status %s", out.Status)
		}
	}
}

// ExtractMatch parses a REPORT line into a request id and its duration.
func (p *Provider) ExtractMatch(entry models.RawLogEntry) (string, time.Duration, bool) {
	return parseReportLine(entry.Message)
}

// Delete removes the Lambda function and its log group.
func (p *Provider) Delete(ctx context.Context, fn string) error {
	_, err := p.lambda.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: awssdk.String(fn),
	})
	if err != nil {
		return p.infraErr(fn, "delete function", err)
	}
	_, err = p.logs.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: awssdk.String("/aws/lambda/" + fn),
	})
	if err != nil {
		// The log group may never have been created.
		slog.Warn("deleting log group failed", "function", fn, "error", err)
	}
	return nil
}

func (p *Provider) infraErr(fn, op string, err error) error {
	return &provider.InfrastructureError{Provider: "aws", Function: fn, Op: op, Err: err}
}
