// internal/service/alert/infrastructure/rule/cel_engine.go
package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"ticketradar/internal/service/alert/domain"
)

// CelRuleEngine 实现 domain.RuleEngine，用 CEL 求值告警上的自定义表达式。
// 表达式按内容缓存编译结果，同一条规则只编译一次。
//
// 暴露给表达式的变量：
//
//	title, venue, location, section, platform: string
//	min_price, max_price: double
//	quantity: int
type CelRuleEngine struct {
	env      *cel.Env
	programs sync.Map // rule string -> cel.Program
}

func NewCelRuleEngine() (*CelRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("title", cel.StringType),
		cel.Variable("venue", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("section", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("min_price", cel.DoubleType),
		cel.Variable("max_price", cel.DoubleType),
		cel.Variable("quantity", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}
	return &CelRuleEngine{env: env}, nil
}

func (e *CelRuleEngine) Evaluate(rule string, listing *domain.Listing) (bool, error) {
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"title":     listing.Title,
		"venue":     listing.Venue,
		"location":  listing.Location,
		"section":   listing.Section,
		"platform":  listing.Platform,
		"min_price": listing.MinPrice,
		"max_price": listing.MaxPrice,
		"quantity":  listing.Quantity,
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate rule")
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("rule expression must evaluate to bool")
	}
	return result, nil
}

func (e *CelRuleEngine) program(rule string) (cel.Program, error) {
	if cached, ok := e.programs.Load(rule); ok {
		return cached.(cel.Program), nil
	}

	ast, iss := e.env.Compile(rule)
	if iss.Err() != nil {
		return nil, errors.Wrap(iss.Err(), "compile rule")
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build rule program")
	}
	e.programs.Store(rule, prg)
	return prg, nil
}
