package analyzer

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEnv is the shared evaluation environment for custom rules. Programs
// see two variables: `value`, the extracted value of the rule's field, and
// `fields`, every extracted value keyed by field id.
var (
	celEnvOnce sync.Once
	celEnvInst *cel.Env
	celEnvErr  error
)

func celEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnvInst, celEnvErr = cel.NewEnv(
			cel.Variable("value", cel.StringType),
			cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
		)
	})
	return celEnvInst, celEnvErr
}

// evalExpression compiles and runs a custom rule expression. The program
// must evaluate to a bool; true means the rule is satisfied.
func evalExpression(expr, value string, fields map[string]string) (bool, error) {
	env, err := celEnv()
	if err != nil {
		return false, fmt.Errorf("cel environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("program: %w", err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	out, _, err := prg.Eval(map[string]any{"value": value, "fields": fields})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression result is %T, want bool", out.Value())
	}
	return b, nil
}
