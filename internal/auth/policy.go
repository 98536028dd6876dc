package auth

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// Actions checked by the watcher service on top of the transition itself.
const (
	ActionWatchOther   = "watch_other"
	ActionUnwatchOther = "unwatch_other"
)

const objectTicket = "ticket"

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

var (
	customerAgentAdmin = []domain.Role{domain.RoleCustomer, domain.RoleAgent, domain.RoleAdmin}
	agentAdmin         = []domain.Role{domain.RoleAgent, domain.RoleAdmin}
	adminOnly          = []domain.Role{domain.RoleAdmin}
)

// DefaultPolicy maps each action to the roles that may perform it.
var DefaultPolicy = map[string][]domain.Role{
	string(domain.TransitionCreate):            customerAgentAdmin,
	string(domain.TransitionPushToSystech):     adminOnly,
	string(domain.TransitionEscalate):          adminOnly,
	string(domain.TransitionAssignInternal):    adminOnly,
	string(domain.TransitionResolveInternally): adminOnly,
	string(domain.TransitionResolve):           agentAdmin,
	string(domain.TransitionReopen):            {domain.RoleCustomer, domain.RoleAgent},
	string(domain.TransitionAutoClose):         {domain.RoleSystem},
	string(domain.TransitionStartWork):         agentAdmin,
	string(domain.TransitionAwaitCustomer):     agentAdmin,
	string(domain.TransitionResume):            customerAgentAdmin,
	string(domain.TransitionClose):             customerAgentAdmin,
	string(domain.TransitionLabelAdded):        agentAdmin,
	string(domain.TransitionLabelRemoved):      agentAdmin,
	string(domain.TransitionCommentAdded):      customerAgentAdmin,
	string(domain.TransitionAttachmentAdded):   customerAgentAdmin,
	string(domain.TransitionWatcherAdded):      customerAgentAdmin,
	string(domain.TransitionWatcherRemoved):    customerAgentAdmin,
	ActionWatchOther:                           agentAdmin,
	ActionUnwatchOther:                         adminOnly,
}

// Authorizer decides whether a role may perform an action on a ticket.
type Authorizer interface {
	Allowed(role domain.Role, action string) (bool, error)
}

// PolicyAuthorizer evaluates a casbin role x action policy.
type PolicyAuthorizer struct {
	mu       sync.Mutex
	enforcer *casbin.Enforcer
}

// NewPolicyAuthorizer loads the policy from a casbin CSV file at path, or the
// built-in DefaultPolicy when path is empty.
func NewPolicyAuthorizer(path string) (*PolicyAuthorizer, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("policy model: %w", err)
	}

	if path != "" {
		enforcer, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(path))
		if err != nil {
			return nil, fmt.Errorf("load policy %s: %w", path, err)
		}
		return &PolicyAuthorizer{enforcer: enforcer}, nil
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("policy enforcer: %w", err)
	}
	var rules [][]string
	for action, roles := range DefaultPolicy {
		for _, role := range roles {
			rules = append(rules, []string{string(role), objectTicket, action})
		}
	}
	if _, err := enforcer.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("seed policy: %w", err)
	}
	return &PolicyAuthorizer{enforcer: enforcer}, nil
}

// MustDefaultAuthorizer returns the built-in policy and panics if it cannot be compiled.
func MustDefaultAuthorizer() *PolicyAuthorizer {
	a, err := NewPolicyAuthorizer("")
	if err != nil {
		panic(err)
	}
	return a
}

func (a *PolicyAuthorizer) Allowed(role domain.Role, action string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enforcer.Enforce(string(role), objectTicket, action)
}
