package backend

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/codemusic/roverseer-gateway/core"
)

// BedrockAdapter implements TextGenerator against a Bedrock-hosted model
// via the Converse API, grounded on itsneelabh-gomind's ai/go.mod
// bedrockruntime dependency. It is usually the third tier of a Selection
// Policy, behind two API-key-based vendors, since it authenticates via
// the ambient AWS credential chain instead of a key in configuration.
type BedrockAdapter struct {
	id     string
	client *bedrockruntime.Client
	model  string
}

func NewBedrockAdapter(ctx context.Context, id, region, modelID string) (*BedrockAdapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, core.Wrap("backend.bedrock.New", core.KindInternal, "loading AWS config", err)
	}
	return &BedrockAdapter{
		id:     id,
		client: bedrockruntime.NewFromConfig(cfg),
		model:  modelID,
	}, nil
}

func (a *BedrockAdapter) ID() string             { return a.id }
func (a *BedrockAdapter) Capability() Capability { return CapGenerateText }

func (a *BedrockAdapter) GenerateText(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	model := params.Model
	if model == "" {
		model = a.model
	}
	maxTokens := int32(params.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(maxTokens),
		},
	}
	if params.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(params.Temperature)
	}
	if params.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: params.System}}
	}

	out, err := a.client.Converse(ctx, input)
	if err != nil {
		return "", classifyBedrockError(a.id, err)
	}
	return extractBedrockText(a.id, out)
}

func classifyBedrockError(id string, err error) error {
	var apiErr smithy.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "ModelTimeoutException", "ModelNotReadyException":
			return core.Wrap("backend.bedrock", core.KindBackendUnavailable, id+": "+apiErr.ErrorCode(), err)
		case "ValidationException", "ModelErrorException":
			return core.Wrap("backend.bedrock", core.KindBackendRejected, id+": "+apiErr.ErrorCode(), err)
		}
	}
	return core.Wrap("backend.bedrock", core.KindBackendProtocol, id+": unrecognized failure shape", err)
}

func asAPIError(err error, target *smithy.APIError) bool {
	var ae smithy.APIError
	for e := err; e != nil; e = unwrap(e) {
		if v, ok := e.(smithy.APIError); ok {
			ae = v
			*target = ae
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// extractBedrockText pulls the assistant text out of a Converse response;
// an unexpected content shape is a BackendProtocol error, never a panic.
func extractBedrockText(id string, out *bedrockruntime.ConverseOutput) (string, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", core.New("backend.bedrock.extractText", core.KindBackendProtocol, id+": unexpected converse output shape")
	}
	var text string
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text += t.Value
		}
	}
	if text == "" {
		return "", core.New("backend.bedrock.extractText", core.KindBackendProtocol, id+": no text content block")
	}
	return text, nil
}
