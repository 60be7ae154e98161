package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog/log"
)

const policyQuery = "data.cheqr.attendance.allow"

// DefaultRegoPolicy allows the assigned lecturer to generate sessions, and the assigned lecturer or an admin to
// view attendance.
const DefaultRegoPolicy = `package cheqr.attendance

default allow = false

allow if {
	input.action == "generate_session"
	input.subject.id != ""
	input.subject.id == input.course.lecturer_id
}

allow if {
	input.action == "view_attendance"
	input.subject.id != ""
	input.subject.id == input.course.lecturer_id
}

allow if {
	input.action == "view_attendance"
	input.subject.role == "admin"
}
`

// OPAEvaluator evaluates course authorization with an OPA Rego policy compiled once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultRegoPolicy when empty) and prepares the allow query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"attendance.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// NewOPAEvaluatorFromFile reads a Rego policy from path. An empty path selects DefaultRegoPolicy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// HealthCheck evaluates the prepared query against a fixed input. Returns nil when the engine yields a decision.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"action":  string(ActionGenerateSession),
		"subject": map[string]interface{}{"id": "health", "role": "lecturer"},
		"course":  map[string]interface{}{"id": "health", "lecturer_id": "health"},
	}))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return errors.New("policy query returned no result")
	}
	return nil
}

// Authorize evaluates the policy. A missing course is never allowed. If evaluation fails or yields no boolean,
// the built-in rule is applied instead so a broken policy cannot lock lecturers out.
func (e *OPAEvaluator) Authorize(ctx context.Context, req Request) (bool, error) {
	if req.Course == nil {
		return false, nil
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(req)))
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("course_id", req.Course.ID).Msg("policy: evaluation failed, using built-in rule")
		return defaultDecision(req), nil
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return defaultDecision(req), nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		log.Ctx(ctx).Warn().Str("course_id", req.Course.ID).Msg("policy: non-boolean decision, using built-in rule")
		return defaultDecision(req), nil
	}
	return allowed, nil
}

func buildInput(req Request) map[string]interface{} {
	return map[string]interface{}{
		"action": string(req.Action),
		"subject": map[string]interface{}{
			"id":   req.SubjectID,
			"role": req.Role,
		},
		"course": map[string]interface{}{
			"id":          req.Course.ID,
			"lecturer_id": req.Course.LecturerID,
		},
	}
}

// defaultDecision mirrors DefaultRegoPolicy in Go.
func defaultDecision(req Request) bool {
	if req.Course == nil {
		return false
	}
	owner := req.SubjectID != "" && req.SubjectID == req.Course.LecturerID
	switch req.Action {
	case ActionGenerateSession:
		return owner
	case ActionViewAttendance:
		return owner || req.Role == "admin"
	}
	return false
}
